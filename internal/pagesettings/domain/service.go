package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type UpdateRequest struct {
	PageID               string  `json:"page_id"`
	AppTitle             *string `json:"app_title"`
	BrandColor           *string `json:"brand_color"`
	LogoURL              *string `json:"logo_url"`
	CustomDomain         *string `json:"custom_domain"`
	EmailNotifications   *bool   `json:"email_notifications"`
	EmailPhysicalAddress *string `json:"email_physical_address"`
	EmailReplyTo         *string `json:"email_reply_to"`
}

type Service interface {
	// GetOrCreate returns the settings row for a page, creating it with a
	// fresh integration secret key on first access.
	GetOrCreate(ctx context.Context, pageID snowflake.ID) (*PageSettings, error)
	Update(ctx context.Context, req UpdateRequest) (*PageSettings, error)
	RotateSecretKey(ctx context.Context, pageID snowflake.ID) (*PageSettings, error)
	GetBySecretKey(ctx context.Context, secretKey string) (*PageSettings, error)
}

var (
	ErrNotFound    = errors.New("page_settings_not_found")
	ErrInvalidPage = errors.New("invalid_page")
	ErrInvalidKey  = errors.New("invalid_secret_key")
)
