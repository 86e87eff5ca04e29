package handlers

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	"github.com/changespage/changespage/internal/jobs/worker"
	obsmetrics "github.com/changespage/changespage/internal/observability/metrics"
	"github.com/changespage/changespage/internal/providers/email"
	"github.com/changespage/changespage/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Email   email.Provider
	Billing billingdomain.Service
	Storage storage.Provider
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Result struct {
	fx.Out

	Registrations []worker.Registration `group:"job_handlers,flatten"`
}

type handlers struct {
	log     *zap.Logger
	email   email.Provider
	billing billingdomain.Service
	storage storage.Provider
	metrics *obsmetrics.Metrics
}

// New wires every job kind to its handler.
func New(p Params) Result {
	h := &handlers{
		log:     p.Log.Named("jobs.handlers"),
		email:   p.Email,
		billing: p.Billing,
		storage: p.Storage,
		metrics: p.Metrics,
	}
	return Result{
		Registrations: []worker.Registration{
			{Kind: jobsdomain.KindEmailPagePublish, Handler: h.sendEmail("page.publish")},
			{Kind: jobsdomain.KindEmailWelcome, Handler: h.sendEmail("welcome")},
			{Kind: jobsdomain.KindEmailMagicLink, Handler: h.sendEmail("magic_link")},
			{Kind: jobsdomain.KindImagesCleanup, Handler: h.imagesCleanup},
			{Kind: jobsdomain.KindReportPageUsage, Handler: h.reportPageUsage},
			{Kind: jobsdomain.KindReportEmailUsage, Handler: h.reportEmailUsage},
			{Kind: jobsdomain.KindSubscriptionSync, Handler: h.subscriptionSync},
		},
	}
}

// sendEmail delivers a pre-rendered message. Payloads carry the final
// subject and bodies so retries resend exactly what was composed.
func (h *handlers) sendEmail(campaign string) jobsdomain.Handler {
	return func(ctx context.Context, job *jobsdomain.Job) error {
		to, err := stringField(job, "email")
		if err != nil {
			return err
		}
		subject, err := stringField(job, "subject")
		if err != nil {
			return err
		}
		html, err := stringField(job, "html")
		if err != nil {
			return err
		}

		msg := email.Message{
			To:       to,
			From:     optionalString(job, "from"),
			ReplyTo:  optionalString(job, "reply_to"),
			Subject:  subject,
			HTMLBody: html,
			TextBody: optionalString(job, "text"),
		}
		if err := h.email.Send(ctx, msg); err != nil {
			h.metrics.IncEmailSent(campaign, "error")
			return fmt.Errorf("send %s email: %w", campaign, err)
		}
		h.metrics.IncEmailSent(campaign, "ok")
		return nil
	}
}

func (h *handlers) imagesCleanup(ctx context.Context, job *jobsdomain.Job) error {
	path, err := stringField(job, "path")
	if err != nil {
		return err
	}
	if err := h.storage.DeleteFolder(ctx, path); err != nil {
		return fmt.Errorf("cleanup images: %w", err)
	}
	return nil
}

func (h *handlers) reportPageUsage(ctx context.Context, job *jobsdomain.Job) error {
	userID, err := userIDField(job)
	if err != nil {
		return err
	}
	return h.billing.ReportPageUsage(ctx, userID, job.ID.String())
}

func (h *handlers) reportEmailUsage(ctx context.Context, job *jobsdomain.Job) error {
	userID, err := userIDField(job)
	if err != nil {
		return err
	}
	quantity, err := intField(job, "quantity")
	if err != nil {
		return err
	}
	return h.billing.ReportEmailUsage(ctx, userID, quantity, job.ID.String())
}

func (h *handlers) subscriptionSync(ctx context.Context, job *jobsdomain.Job) error {
	userID, err := userIDField(job)
	if err != nil {
		return err
	}
	return h.billing.SyncSubscription(ctx, userID)
}

func userIDField(job *jobsdomain.Job) (snowflake.ID, error) {
	raw, err := stringField(job, "user_id")
	if err != nil {
		return 0, err
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: user_id %q", jobsdomain.ErrInvalidPayload, raw)
	}
	return id, nil
}

func stringField(job *jobsdomain.Job, key string) (string, error) {
	value, ok := job.Payload[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: missing %s", jobsdomain.ErrInvalidPayload, key)
	}
	return value, nil
}

func optionalString(job *jobsdomain.Job, key string) string {
	value, _ := job.Payload[key].(string)
	return value
}

func intField(job *jobsdomain.Job, key string) (int64, error) {
	switch v := job.Payload[key].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%w: missing %s", jobsdomain.ErrInvalidPayload, key)
	}
}
