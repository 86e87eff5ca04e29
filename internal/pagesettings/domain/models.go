// Package domain contains persistence models for per-page settings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PageSettings holds branding, domain and notification switches for a page.
// Rows are created lazily the first time a page's settings are read.
type PageSettings struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	PageID snowflake.ID `gorm:"not null;uniqueIndex"`

	AppTitle   string `gorm:"type:text"`
	BrandColor string `gorm:"type:text"`
	LogoURL    string `gorm:"type:text"`

	CustomDomain string `gorm:"type:text"`

	// IntegrationSecretKey authenticates the public v1 API.
	IntegrationSecretKey string `gorm:"type:text;not null;uniqueIndex"`

	EmailNotifications   bool   `gorm:"not null;default:false"`
	EmailPhysicalAddress string `gorm:"type:text"`
	EmailReplyTo         string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PageSettings) TableName() string { return "page_settings" }
