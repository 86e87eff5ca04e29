// Package domain contains billing account state and the Stripe gateway
// boundary for usage metering.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus mirrors the Stripe subscription status snapshot.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// BillingAccount links a user to their Stripe customer and subscription.
// The status column is a cached snapshot refreshed by the sync job; usage
// reporting consults it before talking to Stripe.
type BillingAccount struct {
	ID                   snowflake.ID       `gorm:"primaryKey"`
	UserID               snowflake.ID       `gorm:"not null;uniqueIndex"`
	StripeCustomerID     string             `gorm:"type:text"`
	StripeSubscriptionID string             `gorm:"type:text"`
	SubscriptionStatus   SubscriptionStatus `gorm:"type:text"`
	SyncedAt             *time.Time         `gorm:""`
	CreatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingAccount) TableName() string { return "billing_accounts" }

// Active reports whether the cached status entitles the user to paid
// features such as subscriber notifications.
func (a *BillingAccount) Active() bool {
	if a == nil {
		return false
	}
	switch a.SubscriptionStatus {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}
