package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	UserID      string `json:"user_id"`
	TeamID      string `json:"team_id"`
	URLSlug     string `json:"url_slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type UpdateRequest struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	URLSlug     *string `json:"url_slug"`
	Type        *string `json:"type"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Page, error)
	GetByID(ctx context.Context, id string) (*Page, error)
	GetBySlug(ctx context.Context, urlSlug string) (*Page, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]*Page, error)
	Update(ctx context.Context, req UpdateRequest) (*Page, error)
	Delete(ctx context.Context, id string) error
	CountByUser(ctx context.Context, userID snowflake.ID) (int64, error)
}

var (
	ErrNotFound     = errors.New("page_not_found")
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidTitle = errors.New("invalid_title")
	ErrInvalidSlug  = errors.New("invalid_url_slug")
	ErrInvalidType  = errors.New("invalid_page_type")
	ErrSlugTaken    = errors.New("url_slug_taken")
)
