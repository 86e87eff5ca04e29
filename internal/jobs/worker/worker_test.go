package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/changespage/changespage/internal/clock"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	"github.com/changespage/changespage/internal/jobs/queue"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	worker *Worker
	queue  jobsdomain.Queue
	db     *gorm.DB
	clock  *clock.FakeClock
}

func setupWorker(t *testing.T, cfg Config) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(&jobsdomain.Job{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	q := queue.New(queue.Params{DB: db, Log: log, GenID: node, Clock: fake})
	w := New(Params{DB: db, Log: log, Clock: fake, Config: cfg})

	return fixture{worker: w, queue: q, db: db, clock: fake}
}

func loadJob(t *testing.T, db *gorm.DB, id snowflake.ID) jobsdomain.Job {
	t.Helper()
	var job jobsdomain.Job
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	return job
}

func TestEnqueueDedupesOnKey(t *testing.T) {
	fx := setupWorker(t, Config{})
	ctx := context.Background()

	first, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind:      jobsdomain.KindImagesCleanup,
		Payload:   map[string]any{"path": "1/2/abc"},
		DedupeKey: "cleanup:42",
	})
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if first == nil {
		t.Fatal("expected first enqueue to insert")
	}

	second, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind:      jobsdomain.KindImagesCleanup,
		Payload:   map[string]any{"path": "1/2/abc"},
		DedupeKey: "cleanup:42",
	})
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if second != nil {
		t.Fatal("expected duplicate enqueue to be dropped")
	}

	var n int64
	if err := fx.db.Model(&jobsdomain.Job{}).Count(&n).Error; err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one job row, got %d", n)
	}
}

func TestEnqueueWithoutDedupeKeyAlwaysInserts(t *testing.T) {
	fx := setupWorker(t, Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		job, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
			Kind:    jobsdomain.KindReportPageUsage,
			Payload: map[string]any{"user_id": "1"},
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if job == nil {
			t.Fatalf("expected enqueue %d to insert", i)
		}
	}

	var n int64
	if err := fx.db.Model(&jobsdomain.Job{}).Count(&n).Error; err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected two job rows, got %d", n)
	}
}

func TestRunOnceProcessesJob(t *testing.T) {
	fx := setupWorker(t, Config{})
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	fx.worker.Register(jobsdomain.KindEmailWelcome, func(ctx context.Context, job *jobsdomain.Job) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, fmt.Sprintf("%v", job.Payload["email"]))
		return nil
	})

	job, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind:    jobsdomain.KindEmailWelcome,
		Payload: map[string]any{"email": "owner@example.com"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processed, err := fx.worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected one job processed, got %d", processed)
	}
	if len(got) != 1 || got[0] != "owner@example.com" {
		t.Fatalf("handler saw %v", got)
	}

	stored := loadJob(t, fx.db, job.ID)
	if stored.Status != jobsdomain.StatusDone {
		t.Fatalf("expected done status, got %s", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", stored.Attempts)
	}
}

func TestRunOnceSkipsFutureJobs(t *testing.T) {
	fx := setupWorker(t, Config{})
	ctx := context.Background()

	calls := 0
	fx.worker.Register(jobsdomain.KindSubscriptionSync, func(ctx context.Context, job *jobsdomain.Job) error {
		calls++
		return nil
	})

	_, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind:     jobsdomain.KindSubscriptionSync,
		RunAfter: fx.clock.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processed, err := fx.worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if processed != 0 || calls != 0 {
		t.Fatalf("expected future job untouched, processed=%d calls=%d", processed, calls)
	}

	fx.clock.Advance(2 * time.Hour)
	processed, err = fx.worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once after advance: %v", err)
	}
	if processed != 1 || calls != 1 {
		t.Fatalf("expected due job processed, processed=%d calls=%d", processed, calls)
	}
}

func TestFailedJobRetriesWithBackoff(t *testing.T) {
	fx := setupWorker(t, Config{MaxAttempts: 3})
	ctx := context.Background()

	fx.worker.Register(jobsdomain.KindEmailMagicLink, func(ctx context.Context, job *jobsdomain.Job) error {
		return errors.New("smtp down")
	})

	job, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind: jobsdomain.KindEmailMagicLink,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := fx.worker.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	stored := loadJob(t, fx.db, job.ID)
	if stored.Status != jobsdomain.StatusPending {
		t.Fatalf("expected pending for retry, got %s", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", stored.Attempts)
	}
	if stored.LastError != "smtp down" {
		t.Fatalf("expected last error recorded, got %q", stored.LastError)
	}
	wantRunAfter := fx.clock.Now().Add(30 * time.Second)
	if !stored.RunAfter.Equal(wantRunAfter) {
		t.Fatalf("expected run_after %s, got %s", wantRunAfter, stored.RunAfter)
	}

	// Second attempt backs off for a minute.
	fx.clock.Advance(time.Minute)
	if _, err := fx.worker.RunOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	stored = loadJob(t, fx.db, job.ID)
	if stored.Attempts != 2 {
		t.Fatalf("expected two attempts, got %d", stored.Attempts)
	}
	wantRunAfter = fx.clock.Now().Add(time.Minute)
	if !stored.RunAfter.Equal(wantRunAfter) {
		t.Fatalf("expected run_after %s, got %s", wantRunAfter, stored.RunAfter)
	}
}

func TestFailedJobExhaustsAttempts(t *testing.T) {
	fx := setupWorker(t, Config{MaxAttempts: 2})
	ctx := context.Background()

	fx.worker.Register(jobsdomain.KindReportEmailUsage, func(ctx context.Context, job *jobsdomain.Job) error {
		return errors.New("stripe unavailable")
	})

	job, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind: jobsdomain.KindReportEmailUsage,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := fx.worker.RunOnce(ctx); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		fx.clock.Advance(time.Hour)
	}

	stored := loadJob(t, fx.db, job.ID)
	if stored.Status != jobsdomain.StatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.Attempts != 2 {
		t.Fatalf("expected two attempts, got %d", stored.Attempts)
	}

	// Failed jobs never run again.
	if processed, err := fx.worker.RunOnce(ctx); err != nil || processed != 0 {
		t.Fatalf("expected no further processing, processed=%d err=%v", processed, err)
	}
}

func TestUnknownKindFailsImmediately(t *testing.T) {
	fx := setupWorker(t, Config{})
	ctx := context.Background()

	job, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind: jobsdomain.Kind("nobody/handles.this"),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := fx.worker.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	stored := loadJob(t, fx.db, job.ID)
	if stored.Status != jobsdomain.StatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.LastError != jobsdomain.ErrUnknownKind.Error() {
		t.Fatalf("expected unknown kind error, got %q", stored.LastError)
	}
}

func TestPanickingHandlerFailsJobWithoutCrashing(t *testing.T) {
	fx := setupWorker(t, Config{MaxAttempts: 1})
	ctx := context.Background()

	fx.worker.Register(jobsdomain.KindEmailPagePublish, func(ctx context.Context, job *jobsdomain.Job) error {
		panic("bad payload")
	})

	job, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind:    jobsdomain.KindEmailPagePublish,
		Payload: map[string]any{"to": "a@b.c"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := fx.worker.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	stored := loadJob(t, fx.db, job.ID)
	if stored.Status != jobsdomain.StatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if !strings.Contains(stored.LastError, "handler panic") {
		t.Fatalf("expected panic in last error, got %q", stored.LastError)
	}
	if !strings.Contains(stored.LastError, "bad payload") {
		t.Fatalf("expected panic value in last error, got %q", stored.LastError)
	}
}

func TestPanickingHandlerRetriesWithBackoff(t *testing.T) {
	fx := setupWorker(t, Config{MaxAttempts: 3})
	ctx := context.Background()

	fx.worker.Register(jobsdomain.KindEmailPagePublish, func(ctx context.Context, job *jobsdomain.Job) error {
		panic("bad payload")
	})

	job, err := fx.queue.Enqueue(ctx, jobsdomain.Request{
		Kind:    jobsdomain.KindEmailPagePublish,
		Payload: map[string]any{"to": "a@b.c"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := fx.worker.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	stored := loadJob(t, fx.db, job.ID)
	if stored.Status != jobsdomain.StatusPending {
		t.Fatalf("expected pending retry, got %s", stored.Status)
	}
	want := fx.clock.Now().Add(30 * time.Second)
	if !stored.RunAfter.Equal(want) {
		t.Fatalf("expected run_after %v, got %v", want, stored.RunAfter)
	}
}

func TestBackoffCapsAtTenMinutes(t *testing.T) {
	cases := map[int]time.Duration{
		1:  30 * time.Second,
		2:  time.Minute,
		3:  2 * time.Minute,
		4:  4 * time.Minute,
		5:  8 * time.Minute,
		6:  10 * time.Minute,
		20: 10 * time.Minute,
	}
	for attempts, want := range cases {
		if got := backoff(attempts); got != want {
			t.Fatalf("backoff(%d) = %s, want %s", attempts, got, want)
		}
	}
}
