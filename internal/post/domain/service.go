package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/changespage/changespage/pkg/db/pagination"
)

type CreateRequest struct {
	PageID       string         `json:"page_id"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Tags         map[string]any `json:"tags"`
	ImagesFolder string         `json:"images_folder"`
	Status       string         `json:"status"`
	PublishAt    *time.Time     `json:"publish_at"`
}

type UpdateRequest struct {
	ID        string     `json:"id"`
	Title     *string    `json:"title"`
	Content   *string    `json:"content"`
	Status    *string    `json:"status"`
	PublishAt *time.Time `json:"publish_at"`
}

type ListRequest struct {
	PageID    snowflake.ID
	Status    PostStatus
	PageToken string
	PageSize  int32
}

type ListResponse struct {
	pagination.PageInfo
	Posts []Post `json:"posts"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Post, error)
	GetByID(ctx context.Context, id string) (*Post, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, req UpdateRequest) (*Post, error)
	Delete(ctx context.Context, id string) error

	// ClaimNotification performs the compare-and-swap on email_notified.
	// It reports true for exactly one caller per post; redelivered webhooks
	// and concurrent deliveries observe false.
	ClaimNotification(ctx context.Context, id snowflake.ID) (bool, error)

	// ListDuePublishLater returns publish_later posts whose publish_at has
	// passed, up to limit.
	ListDuePublishLater(ctx context.Context, now time.Time, limit int) ([]*Post, error)

	// Publish moves a post to published status.
	Publish(ctx context.Context, id snowflake.ID) (*Post, error)
}

var (
	ErrNotFound           = errors.New("post_not_found")
	ErrInvalidPage        = errors.New("invalid_page")
	ErrInvalidTitle       = errors.New("invalid_title")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrBackwardTransition = errors.New("backward_status_transition")
	ErrMissingPublishAt   = errors.New("missing_publish_at")
)
