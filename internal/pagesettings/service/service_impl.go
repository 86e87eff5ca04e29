package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	settingsdomain "github.com/changespage/changespage/internal/pagesettings/domain"
	"github.com/changespage/changespage/pkg/db"
	"github.com/changespage/changespage/pkg/repository"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository[settingsdomain.PageSettings]
}

func NewService(p ServiceParam) settingsdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pagesettings.service"),
		genID: p.GenID,
		repo:  repository.ProvideStore[settingsdomain.PageSettings](p.DB),
	}
}

func (s *Service) GetOrCreate(ctx context.Context, pageID snowflake.ID) (*settingsdomain.PageSettings, error) {
	if pageID == 0 {
		return nil, settingsdomain.ErrInvalidPage
	}

	existing, err := s.repo.FindOne(ctx, &settingsdomain.PageSettings{PageID: pageID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	record := &settingsdomain.PageSettings{
		ID:                   s.genID.Generate(),
		PageID:               pageID,
		IntegrationSecretKey: uuid.NewString(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		// Concurrent first access: somebody else created the row.
		if db.IsDuplicateKeyErr(err) {
			return s.repo.FindOne(ctx, &settingsdomain.PageSettings{PageID: pageID})
		}
		return nil, err
	}

	return record, nil
}

func (s *Service) Update(ctx context.Context, req settingsdomain.UpdateRequest) (*settingsdomain.PageSettings, error) {
	pageID, err := snowflake.ParseString(strings.TrimSpace(req.PageID))
	if err != nil || pageID == 0 {
		return nil, settingsdomain.ErrInvalidPage
	}

	record, err := s.GetOrCreate(ctx, pageID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.AppTitle != nil {
		updates["app_title"] = strings.TrimSpace(*req.AppTitle)
	}
	if req.BrandColor != nil {
		updates["brand_color"] = strings.TrimSpace(*req.BrandColor)
	}
	if req.LogoURL != nil {
		updates["logo_url"] = strings.TrimSpace(*req.LogoURL)
	}
	if req.CustomDomain != nil {
		updates["custom_domain"] = strings.TrimSpace(*req.CustomDomain)
	}
	if req.EmailNotifications != nil {
		updates["email_notifications"] = *req.EmailNotifications
	}
	if req.EmailPhysicalAddress != nil {
		updates["email_physical_address"] = strings.TrimSpace(*req.EmailPhysicalAddress)
	}
	if req.EmailReplyTo != nil {
		updates["email_reply_to"] = strings.TrimSpace(*req.EmailReplyTo)
	}

	if err := s.repo.Update(ctx, record.ID.String(), updates); err != nil {
		return nil, err
	}

	return s.repo.FindOne(ctx, &settingsdomain.PageSettings{PageID: pageID})
}

func (s *Service) RotateSecretKey(ctx context.Context, pageID snowflake.ID) (*settingsdomain.PageSettings, error) {
	record, err := s.GetOrCreate(ctx, pageID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"integration_secret_key": uuid.NewString(),
		"updated_at":             time.Now().UTC(),
	}
	if err := s.repo.Update(ctx, record.ID.String(), updates); err != nil {
		return nil, err
	}

	return s.repo.FindOne(ctx, &settingsdomain.PageSettings{PageID: pageID})
}

func (s *Service) GetBySecretKey(ctx context.Context, secretKey string) (*settingsdomain.PageSettings, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, settingsdomain.ErrInvalidKey
	}

	record, err := s.repo.FindOne(ctx, &settingsdomain.PageSettings{IntegrationSecretKey: secretKey})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, settingsdomain.ErrNotFound
	}
	return record, nil
}
