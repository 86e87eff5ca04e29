// Package domain contains persistence models for changelog posts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PostStatus is the publication state of a post.
type PostStatus string

const (
	PostStatusDraft        PostStatus = "draft"
	PostStatusPublishLater PostStatus = "publish_later"
	PostStatusPublished    PostStatus = "published"
)

// Post is a single changelog entry belonging to a page.
//
// EmailNotified flips false -> true at most once. Together with the published
// status it forms three states: unpublished, published pending notify, and
// published notified; transitions never go backward.
type Post struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	PageID        snowflake.ID      `gorm:"not null;index"`
	Title         string            `gorm:"type:text;not null"`
	Content       string            `gorm:"type:text"`
	Tags          datatypes.JSONMap `gorm:"type:jsonb"`
	ImagesFolder  string            `gorm:"type:text"`
	Status        PostStatus        `gorm:"type:text;not null;default:'draft'"`
	PublishAt     *time.Time        `gorm:""`
	EmailNotified bool              `gorm:"not null;default:false"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Post) TableName() string { return "posts" }

func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusPublishLater, PostStatusPublished:
		return true
	default:
		return false
	}
}
