package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	"github.com/changespage/changespage/internal/config"
	obsmetrics "github.com/changespage/changespage/internal/observability/metrics"
	pagedomain "github.com/changespage/changespage/internal/page/domain"
	"github.com/changespage/changespage/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	PageSvc pagedomain.Service
	Gateway billingdomain.Gateway `optional:"true"`
	Metrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	pageSvc pagedomain.Service
	gateway billingdomain.Gateway
	metrics *obsmetrics.Metrics
	repo    repository.Repository[billingdomain.BillingAccount]

	pagePriceID  string
	emailPriceID string
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("billing.service"),
		pageSvc:      p.PageSvc,
		gateway:      p.Gateway,
		metrics:      p.Metrics,
		repo:         repository.ProvideStore[billingdomain.BillingAccount](p.DB),
		pagePriceID:  p.Cfg.StripePagePriceID,
		emailPriceID: p.Cfg.StripeEmailPriceID,
	}
}

func (s *Service) GetByUser(ctx context.Context, userID snowflake.ID) (*billingdomain.BillingAccount, error) {
	if userID == 0 {
		return nil, billingdomain.ErrInvalidUser
	}
	return s.repo.FindOne(ctx, &billingdomain.BillingAccount{UserID: userID})
}

func (s *Service) HasActiveSubscription(ctx context.Context, userID snowflake.ID) (bool, error) {
	account, err := s.GetByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return account.Active(), nil
}

func (s *Service) ReportPageUsage(ctx context.Context, userID snowflake.ID, jobID string) error {
	account, sub, err := s.resolveReportable(ctx, userID, jobID)
	if err != nil || sub == nil {
		return err
	}

	item := findItem(sub, s.pagePriceID)
	if item == nil {
		s.log.Warn("no page price item on subscription",
			zap.String("user_id", userID.String()),
			zap.String("subscription_id", account.StripeSubscriptionID),
		)
		return nil
	}

	count, err := s.pageSvc.CountByUser(ctx, userID)
	if err != nil {
		return err
	}

	return s.submit(ctx, "pages", item.ID, billingdomain.UsageRecord{
		Quantity:       count,
		Timestamp:      time.Now().UTC().Unix(),
		Action:         billingdomain.UsageActionSet,
		IdempotencyKey: idempotencyKey(userID, jobID),
	})
}

func (s *Service) ReportEmailUsage(ctx context.Context, userID snowflake.ID, quantity int64, jobID string) error {
	if quantity <= 0 {
		return nil
	}

	account, sub, err := s.resolveReportable(ctx, userID, jobID)
	if err != nil || sub == nil {
		return err
	}

	item := findItem(sub, s.emailPriceID)
	if item == nil {
		s.log.Warn("no email price item on subscription",
			zap.String("user_id", userID.String()),
			zap.String("subscription_id", account.StripeSubscriptionID),
		)
		return nil
	}

	return s.submit(ctx, "emails", item.ID, billingdomain.UsageRecord{
		Quantity:       quantity,
		Timestamp:      time.Now().UTC().Unix(),
		Action:         billingdomain.UsageActionIncrement,
		IdempotencyKey: idempotencyKey(userID, jobID),
	})
}

func (s *Service) SyncSubscription(ctx context.Context, userID snowflake.ID) error {
	account, err := s.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if account == nil || account.StripeSubscriptionID == "" {
		return nil
	}
	if s.gateway == nil {
		return billingdomain.ErrGatewayMissing
	}

	sub, err := s.gateway.GetSubscription(ctx, account.StripeSubscriptionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.repo.Update(ctx, account.ID.String(), map[string]any{
		"subscription_status": billingdomain.SubscriptionStatus(sub.Status),
		"synced_at":           now,
		"updated_at":          now,
	})
}

// resolveReportable applies the shared no-op gates: missing account or
// subscription, canceled status, missing gateway. A nil subscription with a
// nil error means "nothing to report".
func (s *Service) resolveReportable(ctx context.Context, userID snowflake.ID, jobID string) (*billingdomain.BillingAccount, *billingdomain.Subscription, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, nil, billingdomain.ErrInvalidJob
	}

	account, err := s.GetByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil || account.StripeCustomerID == "" || account.StripeSubscriptionID == "" {
		return nil, nil, nil
	}
	if account.SubscriptionStatus == billingdomain.SubscriptionStatusCanceled {
		return nil, nil, nil
	}
	if s.gateway == nil {
		s.log.Debug("billing gateway not configured, skipping usage report",
			zap.String("user_id", userID.String()))
		return nil, nil, nil
	}

	sub, err := s.gateway.GetSubscription(ctx, account.StripeSubscriptionID)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(sub.Status, string(billingdomain.SubscriptionStatusCanceled)) {
		return nil, nil, nil
	}
	return account, sub, nil
}

func (s *Service) submit(ctx context.Context, meter, itemID string, record billingdomain.UsageRecord) error {
	if err := s.gateway.CreateUsageRecord(ctx, itemID, record); err != nil {
		if s.metrics != nil {
			s.metrics.IncUsageReport(meter, "error")
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.IncUsageReport(meter, "ok")
	}
	return nil
}

func findItem(sub *billingdomain.Subscription, priceID string) *billingdomain.SubscriptionItem {
	if sub == nil || strings.TrimSpace(priceID) == "" {
		return nil
	}
	for i := range sub.Items {
		if sub.Items[i].PriceID == priceID {
			return &sub.Items[i]
		}
	}
	return nil
}

func idempotencyKey(userID snowflake.ID, jobID string) string {
	return fmt.Sprintf("%s-report-job-%s", userID.String(), jobID)
}
