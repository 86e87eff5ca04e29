// Package domain contains persistence models for changelog pages.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PageType selects the public rendering of a page.
type PageType string

const (
	PageTypeChangelog     PageType = "changelog"
	PageTypeRoadmap       PageType = "roadmap"
	PageTypeAnnouncements PageType = "announcements"
)

// Page is a tenant's published changelog/roadmap site.
type Page struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	UserID      snowflake.ID  `gorm:"not null;index"`
	TeamID      *snowflake.ID `gorm:"index"`
	URLSlug     string        `gorm:"type:text;not null;uniqueIndex"`
	Title       string        `gorm:"type:text;not null"`
	Description string        `gorm:"type:text"`
	Type        PageType      `gorm:"type:text;not null"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Page) TableName() string { return "pages" }

func (t PageType) Valid() bool {
	switch t {
	case PageTypeChangelog, PageTypeRoadmap, PageTypeAnnouncements:
		return true
	default:
		return false
	}
}
