package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// FanoutBatchSize is the fixed page size used when walking verified
// subscribers during notification dispatch.
const FanoutBatchSize = 50

type SubscribeRequest struct {
	PageID string `json:"page_id"`
	Email  string `json:"email"`
}

type Service interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (*Subscriber, error)
	Verify(ctx context.Context, token string) (*Subscriber, error)
	Unsubscribe(ctx context.Context, token string) error

	// ListVerified returns one fixed-size batch of verified subscribers,
	// ordered by id so an offset cursor visits each row exactly once.
	ListVerified(ctx context.Context, pageID snowflake.ID, offset int) ([]*Subscriber, error)

	CountVerified(ctx context.Context, pageID snowflake.ID) (int64, error)
}

var (
	ErrNotFound      = errors.New("subscriber_not_found")
	ErrInvalidPage   = errors.New("invalid_page")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrAlreadyExists = errors.New("subscriber_exists")
)
