package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	"github.com/changespage/changespage/internal/config"
	pagedomain "github.com/changespage/changespage/internal/page/domain"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gatewayStub struct {
	mu           sync.Mutex
	subscription *billingdomain.Subscription
	getCalls     int
	records      []recordedUsage
}

type recordedUsage struct {
	itemID string
	record billingdomain.UsageRecord
}

func (g *gatewayStub) GetSubscription(ctx context.Context, subscriptionID string) (*billingdomain.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.subscription == nil {
		return nil, fmt.Errorf("no such subscription %s", subscriptionID)
	}
	return g.subscription, nil
}

func (g *gatewayStub) CreateUsageRecord(ctx context.Context, subscriptionItemID string, record billingdomain.UsageRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = append(g.records, recordedUsage{itemID: subscriptionItemID, record: record})
	return nil
}

func (g *gatewayStub) usage() []recordedUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]recordedUsage, len(g.records))
	copy(out, g.records)
	return out
}

type pageSvcStub struct {
	count int64
}

func (p *pageSvcStub) Create(ctx context.Context, req pagedomain.CreateRequest) (*pagedomain.Page, error) {
	return nil, nil
}
func (p *pageSvcStub) GetByID(ctx context.Context, id string) (*pagedomain.Page, error) {
	return nil, pagedomain.ErrNotFound
}
func (p *pageSvcStub) GetBySlug(ctx context.Context, urlSlug string) (*pagedomain.Page, error) {
	return nil, pagedomain.ErrNotFound
}
func (p *pageSvcStub) ListByUser(ctx context.Context, userID snowflake.ID) ([]*pagedomain.Page, error) {
	return nil, nil
}
func (p *pageSvcStub) Update(ctx context.Context, req pagedomain.UpdateRequest) (*pagedomain.Page, error) {
	return nil, nil
}
func (p *pageSvcStub) Delete(ctx context.Context, id string) error { return nil }
func (p *pageSvcStub) CountByUser(ctx context.Context, userID snowflake.ID) (int64, error) {
	return p.count, nil
}

type billingFixture struct {
	svc     billingdomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	gateway *gatewayStub
	pages   *pageSvcStub
}

func setupBillingService(t *testing.T, gateway billingdomain.Gateway, pages *pageSvcStub) billingFixture {
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

	if err := db.AutoMigrate(&billingdomain.BillingAccount{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node := mustNode(t)
	if pages == nil {
		pages = &pageSvcStub{}
	}
	svc := NewService(ServiceParam{
		DB:  db,
		Log: zap.NewNop(),
		Cfg: config.Config{
			StripePagePriceID:  "price_pages",
			StripeEmailPriceID: "price_emails",
		},
		PageSvc: pages,
		Gateway: gateway,
	})

	fx := billingFixture{svc: svc, db: db, node: node, pages: pages}
	if stub, ok := gateway.(*gatewayStub); ok {
		fx.gateway = stub
	}
	return fx
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func seedAccount(t *testing.T, fx billingFixture, status billingdomain.SubscriptionStatus) *billingdomain.BillingAccount {
	t.Helper()
	account := &billingdomain.BillingAccount{
		ID:                   fx.node.Generate(),
		UserID:               fx.node.Generate(),
		StripeCustomerID:     "cus_123",
		StripeSubscriptionID: "sub_123",
		SubscriptionStatus:   status,
	}
	if err := fx.db.Create(account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func activeSubscription() *billingdomain.Subscription {
	return &billingdomain.Subscription{
		ID:     "sub_123",
		Status: "active",
		Items: []billingdomain.SubscriptionItem{
			{ID: "si_pages", PriceID: "price_pages"},
			{ID: "si_emails", PriceID: "price_emails"},
		},
	}
}

func TestReportPageUsageSetsPageCount(t *testing.T) {
	gateway := &gatewayStub{subscription: activeSubscription()}
	fx := setupBillingService(t, gateway, &pageSvcStub{count: 7})
	account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)

	before := time.Now().UTC().Unix()
	if err := fx.svc.ReportPageUsage(context.Background(), account.UserID, "42"); err != nil {
		t.Fatalf("report page usage: %v", err)
	}

	usage := gateway.usage()
	if len(usage) != 1 {
		t.Fatalf("expected one usage record, got %d", len(usage))
	}
	got := usage[0]
	if got.itemID != "si_pages" {
		t.Fatalf("expected page item, got %s", got.itemID)
	}
	if got.record.Action != billingdomain.UsageActionSet {
		t.Fatalf("expected set action, got %s", got.record.Action)
	}
	if got.record.Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", got.record.Quantity)
	}
	wantKey := fmt.Sprintf("%s-report-job-42", account.UserID)
	if got.record.IdempotencyKey != wantKey {
		t.Fatalf("expected idempotency key %s, got %s", wantKey, got.record.IdempotencyKey)
	}
	if got.record.Timestamp < before {
		t.Fatalf("expected recent timestamp, got %d", got.record.Timestamp)
	}
}

func TestReportEmailUsageIncrements(t *testing.T) {
	gateway := &gatewayStub{subscription: activeSubscription()}
	fx := setupBillingService(t, gateway, nil)
	account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)

	if err := fx.svc.ReportEmailUsage(context.Background(), account.UserID, 12, "7"); err != nil {
		t.Fatalf("report email usage: %v", err)
	}

	usage := gateway.usage()
	if len(usage) != 1 {
		t.Fatalf("expected one usage record, got %d", len(usage))
	}
	got := usage[0]
	if got.itemID != "si_emails" {
		t.Fatalf("expected email item, got %s", got.itemID)
	}
	if got.record.Action != billingdomain.UsageActionIncrement {
		t.Fatalf("expected increment action, got %s", got.record.Action)
	}
	if got.record.Quantity != 12 {
		t.Fatalf("expected quantity 12, got %d", got.record.Quantity)
	}
}

func TestReportEmailUsageZeroQuantityNoOp(t *testing.T) {
	gateway := &gatewayStub{subscription: activeSubscription()}
	fx := setupBillingService(t, gateway, nil)
	account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)

	if err := fx.svc.ReportEmailUsage(context.Background(), account.UserID, 0, "7"); err != nil {
		t.Fatalf("report email usage: %v", err)
	}
	if len(gateway.usage()) != 0 {
		t.Fatal("expected no usage records for zero quantity")
	}
}

func TestReportUsageNoOpGates(t *testing.T) {
	t.Run("no account", func(t *testing.T) {
		gateway := &gatewayStub{subscription: activeSubscription()}
		fx := setupBillingService(t, gateway, nil)

		if err := fx.svc.ReportPageUsage(context.Background(), fx.node.Generate(), "1"); err != nil {
			t.Fatalf("report page usage: %v", err)
		}
		if len(gateway.usage()) != 0 {
			t.Fatal("expected no usage records without an account")
		}
	})

	t.Run("no subscription id", func(t *testing.T) {
		gateway := &gatewayStub{subscription: activeSubscription()}
		fx := setupBillingService(t, gateway, nil)
		account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)
		if err := fx.db.Model(account).Update("stripe_subscription_id", "").Error; err != nil {
			t.Fatalf("clear subscription: %v", err)
		}

		if err := fx.svc.ReportPageUsage(context.Background(), account.UserID, "1"); err != nil {
			t.Fatalf("report page usage: %v", err)
		}
		if len(gateway.usage()) != 0 {
			t.Fatal("expected no usage records without a subscription")
		}
	})

	t.Run("canceled locally", func(t *testing.T) {
		gateway := &gatewayStub{subscription: activeSubscription()}
		fx := setupBillingService(t, gateway, nil)
		account := seedAccount(t, fx, billingdomain.SubscriptionStatusCanceled)

		if err := fx.svc.ReportPageUsage(context.Background(), account.UserID, "1"); err != nil {
			t.Fatalf("report page usage: %v", err)
		}
		if gateway.getCalls != 0 {
			t.Fatal("expected no gateway call for locally canceled account")
		}
		if len(gateway.usage()) != 0 {
			t.Fatal("expected no usage records for canceled account")
		}
	})

	t.Run("canceled at stripe", func(t *testing.T) {
		sub := activeSubscription()
		sub.Status = "canceled"
		gateway := &gatewayStub{subscription: sub}
		fx := setupBillingService(t, gateway, nil)
		account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)

		if err := fx.svc.ReportPageUsage(context.Background(), account.UserID, "1"); err != nil {
			t.Fatalf("report page usage: %v", err)
		}
		if len(gateway.usage()) != 0 {
			t.Fatal("expected no usage records for remotely canceled subscription")
		}
	})

	t.Run("missing price item", func(t *testing.T) {
		sub := activeSubscription()
		sub.Items = sub.Items[:0]
		gateway := &gatewayStub{subscription: sub}
		fx := setupBillingService(t, gateway, nil)
		account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)

		if err := fx.svc.ReportPageUsage(context.Background(), account.UserID, "1"); err != nil {
			t.Fatalf("report page usage: %v", err)
		}
		if len(gateway.usage()) != 0 {
			t.Fatal("expected no usage records without a price item")
		}
	})

	t.Run("no gateway", func(t *testing.T) {
		fx := setupBillingService(t, nil, nil)
		account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)

		if err := fx.svc.ReportPageUsage(context.Background(), account.UserID, "1"); err != nil {
			t.Fatalf("report page usage: %v", err)
		}
	})

	t.Run("empty job id", func(t *testing.T) {
		gateway := &gatewayStub{subscription: activeSubscription()}
		fx := setupBillingService(t, gateway, nil)
		account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)

		if err := fx.svc.ReportPageUsage(context.Background(), account.UserID, " "); err != billingdomain.ErrInvalidJob {
			t.Fatalf("expected ErrInvalidJob, got %v", err)
		}
	})
}

func TestSyncSubscriptionRefreshesStatus(t *testing.T) {
	sub := activeSubscription()
	sub.Status = "past_due"
	gateway := &gatewayStub{subscription: sub}
	fx := setupBillingService(t, gateway, nil)
	account := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)

	if err := fx.svc.SyncSubscription(context.Background(), account.UserID); err != nil {
		t.Fatalf("sync subscription: %v", err)
	}

	var stored billingdomain.BillingAccount
	if err := fx.db.First(&stored, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("load account: %v", err)
	}
	if stored.SubscriptionStatus != billingdomain.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due status, got %s", stored.SubscriptionStatus)
	}
	if stored.SyncedAt == nil {
		t.Fatal("expected synced_at to be set")
	}
}

func TestHasActiveSubscription(t *testing.T) {
	fx := setupBillingService(t, nil, nil)
	active := seedAccount(t, fx, billingdomain.SubscriptionStatusActive)
	canceled := seedAccount(t, fx, billingdomain.SubscriptionStatusCanceled)

	got, err := fx.svc.HasActiveSubscription(context.Background(), active.UserID)
	if err != nil {
		t.Fatalf("has active: %v", err)
	}
	if !got {
		t.Fatal("expected active subscription")
	}

	got, err = fx.svc.HasActiveSubscription(context.Background(), canceled.UserID)
	if err != nil {
		t.Fatalf("has active: %v", err)
	}
	if got {
		t.Fatal("expected inactive subscription")
	}

	got, err = fx.svc.HasActiveSubscription(context.Background(), fx.node.Generate())
	if err != nil {
		t.Fatalf("has active: %v", err)
	}
	if got {
		t.Fatal("expected missing account to be inactive")
	}
}
