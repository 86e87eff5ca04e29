package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	"github.com/changespage/changespage/internal/providers/email"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type emailStub struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (e *emailStub) Send(ctx context.Context, msg email.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, msg)
	return nil
}

type billingStub struct {
	mu         sync.Mutex
	pageCalls  []string
	emailCalls []emailUsageCall
	syncCalls  []snowflake.ID
}

type emailUsageCall struct {
	userID   snowflake.ID
	quantity int64
	jobID    string
}

func (b *billingStub) GetByUser(ctx context.Context, userID snowflake.ID) (*billingdomain.BillingAccount, error) {
	return nil, nil
}

func (b *billingStub) HasActiveSubscription(ctx context.Context, userID snowflake.ID) (bool, error) {
	return false, nil
}

func (b *billingStub) ReportPageUsage(ctx context.Context, userID snowflake.ID, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pageCalls = append(b.pageCalls, jobID)
	return nil
}

func (b *billingStub) ReportEmailUsage(ctx context.Context, userID snowflake.ID, quantity int64, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emailCalls = append(b.emailCalls, emailUsageCall{userID: userID, quantity: quantity, jobID: jobID})
	return nil
}

func (b *billingStub) SyncSubscription(ctx context.Context, userID snowflake.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncCalls = append(b.syncCalls, userID)
	return nil
}

type storageStub struct {
	mu      sync.Mutex
	deleted []string
}

func (s *storageStub) DeleteFolder(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, path)
	return nil
}

type stubs struct {
	email   *emailStub
	billing *billingStub
	storage *storageStub
}

func setupHandlers(t *testing.T) (map[jobsdomain.Kind]jobsdomain.Handler, stubs) {
	t.Helper()
	st := stubs{
		email:   &emailStub{},
		billing: &billingStub{},
		storage: &storageStub{},
	}
	result := New(Params{
		Log:     zap.NewNop(),
		Email:   st.email,
		Billing: st.billing,
		Storage: st.storage,
	})

	byKind := make(map[jobsdomain.Kind]jobsdomain.Handler, len(result.Registrations))
	for _, reg := range result.Registrations {
		byKind[reg.Kind] = reg.Handler
	}
	return byKind, st
}

func makeJob(t *testing.T, kind jobsdomain.Kind, payload map[string]any) *jobsdomain.Job {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return &jobsdomain.Job{
		ID:      node.Generate(),
		Kind:    kind,
		Payload: datatypes.JSONMap(payload),
	}
}

func TestAllKindsRegistered(t *testing.T) {
	byKind, _ := setupHandlers(t)
	for _, kind := range []jobsdomain.Kind{
		jobsdomain.KindEmailPagePublish,
		jobsdomain.KindEmailWelcome,
		jobsdomain.KindEmailMagicLink,
		jobsdomain.KindImagesCleanup,
		jobsdomain.KindReportPageUsage,
		jobsdomain.KindReportEmailUsage,
		jobsdomain.KindSubscriptionSync,
	} {
		if byKind[kind] == nil {
			t.Fatalf("no handler registered for %s", kind)
		}
	}

	result := New(Params{Log: zap.NewNop(), Email: &emailStub{}, Billing: &billingStub{}, Storage: &storageStub{}})
	if got := len(result.Registrations); got != 7 {
		t.Fatalf("expected 7 registrations, got %d", got)
	}
}

func TestSendEmailHandler(t *testing.T) {
	byKind, st := setupHandlers(t)
	job := makeJob(t, jobsdomain.KindEmailPagePublish, map[string]any{
		"email":    "reader@example.com",
		"subject":  "Acme: v2.0",
		"html":     "<p>hi</p>",
		"text":     "hi",
		"from":     "notifications@changes.page",
		"reply_to": "founders@acme.test",
	})

	if err := byKind[jobsdomain.KindEmailPagePublish](context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(st.email.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(st.email.sent))
	}
	msg := st.email.sent[0]
	if msg.To != "reader@example.com" || msg.Subject != "Acme: v2.0" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.ReplyTo != "founders@acme.test" || msg.From != "notifications@changes.page" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
}

func TestSendEmailHandlerMissingFields(t *testing.T) {
	byKind, st := setupHandlers(t)
	job := makeJob(t, jobsdomain.KindEmailWelcome, map[string]any{
		"email": "owner@example.com",
	})

	err := byKind[jobsdomain.KindEmailWelcome](context.Background(), job)
	if !errors.Is(err, jobsdomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if len(st.email.sent) != 0 {
		t.Fatal("expected nothing sent")
	}
}

func TestSendEmailHandlerProviderError(t *testing.T) {
	byKind, st := setupHandlers(t)
	st.email.err = errors.New("postmark 500")

	job := makeJob(t, jobsdomain.KindEmailMagicLink, map[string]any{
		"email":   "reader@example.com",
		"subject": "Confirm",
		"html":    "<p>link</p>",
	})
	if err := byKind[jobsdomain.KindEmailMagicLink](context.Background(), job); err == nil {
		t.Fatal("expected provider error to propagate for retry")
	}
}

func TestImagesCleanupHandler(t *testing.T) {
	byKind, st := setupHandlers(t)
	job := makeJob(t, jobsdomain.KindImagesCleanup, map[string]any{
		"path": "123/456/abc",
	})

	if err := byKind[jobsdomain.KindImagesCleanup](context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(st.storage.deleted) != 1 || st.storage.deleted[0] != "123/456/abc" {
		t.Fatalf("unexpected deletions: %v", st.storage.deleted)
	}
}

func TestUsageHandlersParsePayload(t *testing.T) {
	byKind, st := setupHandlers(t)
	user := snowflake.ID(123456789)

	pageJob := makeJob(t, jobsdomain.KindReportPageUsage, map[string]any{
		"user_id": user.String(),
	})
	if err := byKind[jobsdomain.KindReportPageUsage](context.Background(), pageJob); err != nil {
		t.Fatalf("page usage: %v", err)
	}
	if len(st.billing.pageCalls) != 1 || st.billing.pageCalls[0] != pageJob.ID.String() {
		t.Fatalf("expected job id passed through, got %v", st.billing.pageCalls)
	}

	// JSON round-trips numbers as float64.
	emailJob := makeJob(t, jobsdomain.KindReportEmailUsage, map[string]any{
		"user_id":  user.String(),
		"quantity": float64(42),
	})
	if err := byKind[jobsdomain.KindReportEmailUsage](context.Background(), emailJob); err != nil {
		t.Fatalf("email usage: %v", err)
	}
	if len(st.billing.emailCalls) != 1 {
		t.Fatalf("expected one email usage call, got %d", len(st.billing.emailCalls))
	}
	call := st.billing.emailCalls[0]
	if call.userID != user || call.quantity != 42 || call.jobID != emailJob.ID.String() {
		t.Fatalf("unexpected call: %+v", call)
	}

	syncJob := makeJob(t, jobsdomain.KindSubscriptionSync, map[string]any{
		"user_id": user.String(),
	})
	if err := byKind[jobsdomain.KindSubscriptionSync](context.Background(), syncJob); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(st.billing.syncCalls) != 1 || st.billing.syncCalls[0] != user {
		t.Fatalf("unexpected sync calls: %v", st.billing.syncCalls)
	}

	badJob := makeJob(t, jobsdomain.KindReportPageUsage, map[string]any{
		"user_id": "not-a-snowflake",
	})
	if err := byKind[jobsdomain.KindReportPageUsage](context.Background(), badJob); !errors.Is(err, jobsdomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}
