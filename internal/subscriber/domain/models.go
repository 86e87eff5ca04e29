// Package domain contains persistence models for page subscribers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriberStatus enumerates the states a subscriber can be in.
type SubscriberStatus string

const (
	SubscriberStatusPending      SubscriberStatus = "pending"
	SubscriberStatusVerified     SubscriberStatus = "verified"
	SubscriberStatusUnsubscribed SubscriberStatus = "unsubscribed"
)

// Subscriber is a single email recipient of a page's publish notifications.
// Only verified subscribers are visited by the fan-out.
type Subscriber struct {
	ID                snowflake.ID     `gorm:"primaryKey"`
	PageID            snowflake.ID     `gorm:"not null;index:idx_subscribers_page_email,unique"`
	Email             string           `gorm:"type:text;not null;index:idx_subscribers_page_email,unique"`
	Status            SubscriberStatus `gorm:"type:text;not null;default:'pending'"`
	VerificationToken string           `gorm:"type:text;not null;index"`
	VerifiedAt        *time.Time       `gorm:""`
	CreatedAt         time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscriber) TableName() string { return "subscribers" }
