package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Usage record actions. Page counts are absolute ("set"), email sends are
// additive ("increment"); the two meters deliberately use different
// semantics.
const (
	UsageActionSet       = "set"
	UsageActionIncrement = "increment"
)

// UsageRecord is one usage submission to a metered subscription item.
type UsageRecord struct {
	Quantity       int64
	Timestamp      int64
	Action         string
	IdempotencyKey string
}

// SubscriptionItem is the slice of a Stripe subscription tied to one price.
type SubscriptionItem struct {
	ID      string
	PriceID string
}

// Subscription is the gateway's view of a Stripe subscription.
type Subscription struct {
	ID     string
	Status string
	Items  []SubscriptionItem
}

// Gateway abstracts the Stripe API for subscription reads and usage writes.
type Gateway interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateUsageRecord(ctx context.Context, subscriptionItemID string, record UsageRecord) error
}

type Service interface {
	GetByUser(ctx context.Context, userID snowflake.ID) (*BillingAccount, error)
	HasActiveSubscription(ctx context.Context, userID snowflake.ID) (bool, error)

	// ReportPageUsage recomputes count(pages) for the user and pushes it to
	// Stripe as a "set" usage record keyed by {user_id}-report-job-{job_id}.
	// Missing accounts, missing subscriptions, canceled subscriptions and
	// missing price items are all quiet no-ops.
	ReportPageUsage(ctx context.Context, userID snowflake.ID, jobID string) error

	// ReportEmailUsage pushes an "increment" usage record on the email
	// meter with the same idempotency key scheme.
	ReportEmailUsage(ctx context.Context, userID snowflake.ID, quantity int64, jobID string) error

	// SyncSubscription refreshes the cached subscription status snapshot.
	SyncSubscription(ctx context.Context, userID snowflake.ID) error
}

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidJob     = errors.New("invalid_job")
	ErrGatewayMissing = errors.New("billing_gateway_unavailable")
)
