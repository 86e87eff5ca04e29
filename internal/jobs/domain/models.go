package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

type Kind string

const (
	KindEmailPagePublish Kind = "email/page.publish"
	KindEmailWelcome     Kind = "email/welcome"
	KindEmailMagicLink   Kind = "email/magic_link"
	KindImagesCleanup    Kind = "images/cleanup"
	KindReportPageUsage  Kind = "billing/report.page_usage"
	KindReportEmailUsage Kind = "billing/report.email_usage"
	KindSubscriptionSync Kind = "billing/subscription.sync"
)

// Job is a row in the durable work queue. Rows with a DedupeKey are
// inserted at most once; redelivered webhooks collapse onto the
// existing row instead of producing duplicate work.
type Job struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind      Kind              `gorm:"type:varchar(64);index;not null" json:"kind"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb" json:"payload"`
	DedupeKey *string           `gorm:"type:varchar(255);uniqueIndex" json:"dedupe_key,omitempty"`
	Status    Status            `gorm:"type:varchar(16);index;default:pending" json:"status"`
	Attempts  int               `gorm:"default:0" json:"attempts"`
	RunAfter  time.Time         `gorm:"index" json:"run_after"`
	LastError string            `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}
