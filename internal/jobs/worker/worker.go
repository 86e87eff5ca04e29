package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/changespage/changespage/internal/clock"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	obsmetrics "github.com/changespage/changespage/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	JobTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	return c
}

// Registration binds a job kind to its handler. Handler packages
// contribute these through the "job_handlers" value group.
type Registration struct {
	Kind    jobsdomain.Kind
	Handler jobsdomain.Handler
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Metrics       *obsmetrics.Metrics `optional:"true"`
	Registrations []Registration      `group:"job_handlers"`
	Config        Config              `optional:"true"`
}

type Worker struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	metrics  *obsmetrics.Metrics
	cfg      Config
	handlers map[jobsdomain.Kind]jobsdomain.Handler
}

func New(p Params) *Worker {
	handlers := make(map[jobsdomain.Kind]jobsdomain.Handler, len(p.Registrations))
	for _, reg := range p.Registrations {
		handlers[reg.Kind] = reg.Handler
	}
	return &Worker{
		db:       p.DB,
		log:      p.Log.Named("jobs.worker"),
		clock:    p.Clock,
		metrics:  p.Metrics,
		cfg:      p.Config.withDefaults(),
		handlers: handlers,
	}
}

// Register binds a handler outside of fx wiring. Tests use this.
func (w *Worker) Register(kind jobsdomain.Kind, h jobsdomain.Handler) {
	w.handlers[kind] = h
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("worker pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce drains due jobs in claim batches until the queue is empty
// and reports how many jobs were processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		claimed, err := w.claimBatch(ctx)
		if err != nil {
			return total, err
		}
		if len(claimed) == 0 {
			return total, nil
		}

		for i := range claimed {
			w.process(ctx, &claimed[i])
			total++
		}
	}
}

// claimBatch moves due pending jobs to processing inside one
// transaction so concurrent workers never claim the same row.
func (w *Worker) claimBatch(ctx context.Context) ([]jobsdomain.Job, error) {
	now := w.clock.Now().UTC()
	var claimed []jobsdomain.Job

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where("status = ? AND run_after <= ?", jobsdomain.StatusPending, now).
			Order("run_after ASC, id ASC").
			Limit(w.cfg.BatchSize)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(claimed))
		for i := range claimed {
			ids = append(ids, claimed[i].ID)
		}
		if err := tx.Model(&jobsdomain.Job{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     jobsdomain.StatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].Status = jobsdomain.StatusProcessing
			claimed[i].Attempts++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	return claimed, nil
}

func (w *Worker) process(ctx context.Context, job *jobsdomain.Job) {
	log := w.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", job.Attempts),
	)

	handler, ok := w.handlers[job.Kind]
	if !ok {
		log.Error("no handler for job kind")
		w.finish(ctx, job, jobsdomain.StatusFailed, jobsdomain.ErrUnknownKind.Error())
		w.metrics.IncJobProcessed(string(job.Kind), "failed")
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	err := w.runHandler(jobCtx, handler, job)
	cancel()

	if err == nil {
		w.finish(ctx, job, jobsdomain.StatusDone, "")
		w.metrics.IncJobProcessed(string(job.Kind), "ok")
		return
	}

	if job.Attempts >= w.cfg.MaxAttempts {
		log.Error("job failed permanently", zap.Error(err))
		w.finish(ctx, job, jobsdomain.StatusFailed, err.Error())
		w.metrics.IncJobProcessed(string(job.Kind), "failed")
		return
	}

	log.Warn("job failed, scheduling retry", zap.Error(err))
	w.retry(ctx, job, err)
	w.metrics.IncJobProcessed(string(job.Kind), "retry")
}

// runHandler converts a handler panic into a failed attempt so one bad
// payload cannot take down the worker loop.
func (w *Worker) runHandler(ctx context.Context, handler jobsdomain.Handler, job *jobsdomain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (w *Worker) finish(ctx context.Context, job *jobsdomain.Job, status jobsdomain.Status, lastErr string) {
	now := w.clock.Now().UTC()
	err := w.db.WithContext(ctx).Model(&jobsdomain.Job{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":     status,
			"last_error": lastErr,
			"updated_at": now,
		}).Error
	if err != nil {
		w.log.Error("update job status failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

func (w *Worker) retry(ctx context.Context, job *jobsdomain.Job, cause error) {
	now := w.clock.Now().UTC()
	err := w.db.WithContext(ctx).Model(&jobsdomain.Job{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":     jobsdomain.StatusPending,
			"run_after":  now.Add(backoff(job.Attempts)),
			"last_error": cause.Error(),
			"updated_at": now,
		}).Error
	if err != nil {
		w.log.Error("requeue job failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

// backoff doubles per attempt starting at 30s, capped at 10m.
func backoff(attempts int) time.Duration {
	d := 30 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return d
}
