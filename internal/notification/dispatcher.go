// Package notification fans a published post out to its verified
// subscribers through the job queue.
package notification

import (
	"context"
	"fmt"
	"html/template"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	"github.com/changespage/changespage/internal/config"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	obsmetrics "github.com/changespage/changespage/internal/observability/metrics"
	pagedomain "github.com/changespage/changespage/internal/page/domain"
	settingsdomain "github.com/changespage/changespage/internal/pagesettings/domain"
	postdomain "github.com/changespage/changespage/internal/post/domain"
	"github.com/changespage/changespage/internal/providers/email"
	subscriberdomain "github.com/changespage/changespage/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Config      config.Config
	PostSvc     postdomain.Service
	PageSvc     pagedomain.Service
	SettingsSvc settingsdomain.Service
	BillingSvc  billingdomain.Service
	Subscribers subscriberdomain.Service
	Queue       jobsdomain.Queue
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Dispatcher struct {
	log         *zap.Logger
	baseURL     string
	from        string
	postSvc     postdomain.Service
	pageSvc     pagedomain.Service
	settingsSvc settingsdomain.Service
	billingSvc  billingdomain.Service
	subscribers subscriberdomain.Service
	queue       jobsdomain.Queue
	metrics     *obsmetrics.Metrics
}

func New(p Params) *Dispatcher {
	return &Dispatcher{
		log:         p.Log.Named("notification"),
		baseURL:     p.Config.BaseURL,
		from:        p.Config.Email.From,
		postSvc:     p.PostSvc,
		pageSvc:     p.PageSvc,
		settingsSvc: p.SettingsSvc,
		billingSvc:  p.BillingSvc,
		subscribers: p.Subscribers,
		queue:       p.Queue,
		metrics:     p.Metrics,
	}
}

// DispatchPublished notifies subscribers of a freshly published post and
// reports how many emails were enqueued.
//
// The email_notified claim happens before any gate so a post never
// re-enters dispatch: a delivery that loses the claim, or one whose page
// has notifications switched off, is finished for good.
func (d *Dispatcher) DispatchPublished(ctx context.Context, postID snowflake.ID) (int, error) {
	log := d.log.With(zap.String("post_id", postID.String()))

	claimed, err := d.postSvc.ClaimNotification(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("claim notification: %w", err)
	}
	if !claimed {
		log.Debug("post already notified, skipping")
		return 0, nil
	}

	post, err := d.postSvc.GetByID(ctx, postID.String())
	if err != nil {
		return 0, fmt.Errorf("load post: %w", err)
	}
	page, err := d.pageSvc.GetByID(ctx, post.PageID.String())
	if err != nil {
		return 0, fmt.Errorf("load page: %w", err)
	}
	settings, err := d.settingsSvc.GetOrCreate(ctx, page.ID)
	if err != nil {
		return 0, fmt.Errorf("load page settings: %w", err)
	}

	if !settings.EmailNotifications {
		log.Info("email notifications disabled for page",
			zap.String("page_id", page.ID.String()))
		return 0, nil
	}
	if settings.EmailPhysicalAddress == "" {
		log.Info("page has no physical address, skipping notification",
			zap.String("page_id", page.ID.String()))
		return 0, nil
	}
	active, err := d.billingSvc.HasActiveSubscription(ctx, page.UserID)
	if err != nil {
		return 0, fmt.Errorf("check subscription: %w", err)
	}
	if !active {
		log.Info("page owner has no active subscription, skipping notification",
			zap.String("user_id", page.UserID.String()))
		return 0, nil
	}

	dispatched := 0
	offset := 0
	for {
		batch, err := d.subscribers.ListVerified(ctx, page.ID, offset)
		if err != nil {
			return dispatched, fmt.Errorf("list subscribers at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		reqs, err := d.buildBatch(post, page, settings, batch)
		if err != nil {
			return dispatched, err
		}
		created, err := d.queue.EnqueueBatch(ctx, reqs)
		if err != nil {
			// A failed batch must not starve the rest of the list.
			log.Error("enqueue notification batch failed",
				zap.Int("offset", offset),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
		} else {
			dispatched += created
		}

		offset += len(batch)
		if len(batch) < subscriberdomain.FanoutBatchSize {
			break
		}
	}

	if dispatched > 0 {
		_, err := d.queue.Enqueue(ctx, jobsdomain.Request{
			Kind: jobsdomain.KindReportEmailUsage,
			Payload: map[string]any{
				"user_id":  page.UserID.String(),
				"quantity": dispatched,
			},
			DedupeKey: fmt.Sprintf("email_usage:%s", post.ID),
		})
		if err != nil {
			log.Error("enqueue email usage report failed", zap.Error(err))
		}
	}

	log.Info("post notification dispatched",
		zap.String("page_id", page.ID.String()),
		zap.Int("emails", dispatched),
	)
	return dispatched, nil
}

func (d *Dispatcher) buildBatch(
	post *postdomain.Post,
	page *pagedomain.Page,
	settings *settingsdomain.PageSettings,
	batch []*subscriberdomain.Subscriber,
) ([]jobsdomain.Request, error) {
	postURL := fmt.Sprintf("%s/%s/%s", d.baseURL, page.URLSlug, post.ID)
	subject := fmt.Sprintf("%s: %s", page.Title, post.Title)

	reqs := make([]jobsdomain.Request, 0, len(batch))
	for _, sub := range batch {
		html, err := email.RenderPublish(email.PublishData{
			PageTitle:       page.Title,
			PostTitle:       post.Title,
			PostHTML:        template.HTML(post.Content),
			PostURL:         postURL,
			UnsubscribeURL:  fmt.Sprintf("%s/unsubscribe?token=%s", d.baseURL, sub.VerificationToken),
			PhysicalAddress: settings.EmailPhysicalAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("render notification: %w", err)
		}

		reqs = append(reqs, jobsdomain.Request{
			Kind: jobsdomain.KindEmailPagePublish,
			Payload: map[string]any{
				"email":    sub.Email,
				"subject":  subject,
				"html":     html,
				"text":     fmt.Sprintf("%s\n\n%s", post.Title, postURL),
				"from":     d.from,
				"reply_to": settings.EmailReplyTo,
			},
			DedupeKey: fmt.Sprintf("publish:%s:%s", post.ID, sub.ID),
		})
	}
	return reqs, nil
}
