package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	pagedomain "github.com/changespage/changespage/internal/page/domain"
	"github.com/changespage/changespage/pkg/db"
	"github.com/changespage/changespage/pkg/repository"
	"github.com/gosimple/slug"
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
	repo  repository.Repository[pagedomain.Page]
}

func NewService(p ServiceParam) pagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("page.service"),
		genID: p.GenID,
		repo:  repository.ProvideStore[pagedomain.Page](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req pagedomain.CreateRequest) (*pagedomain.Page, error) {
	userID, err := parseID(req.UserID)
	if err != nil {
		return nil, pagedomain.ErrInvalidUser
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, pagedomain.ErrInvalidTitle
	}

	pageType := pagedomain.PageType(strings.TrimSpace(req.Type))
	if pageType == "" {
		pageType = pagedomain.PageTypeChangelog
	}
	if !pageType.Valid() {
		return nil, pagedomain.ErrInvalidType
	}

	urlSlug := strings.TrimSpace(req.URLSlug)
	if urlSlug == "" {
		urlSlug = slug.Make(title)
	}
	if !slug.IsSlug(urlSlug) {
		return nil, pagedomain.ErrInvalidSlug
	}

	now := time.Now().UTC()
	record := &pagedomain.Page{
		ID:          s.genID.Generate(),
		UserID:      userID,
		URLSlug:     urlSlug,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Type:        pageType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if teamID, err := snowflake.ParseString(strings.TrimSpace(req.TeamID)); err == nil && teamID != 0 {
		record.TeamID = &teamID
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, pagedomain.ErrSlugTaken
		}
		return nil, err
	}

	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*pagedomain.Page, error) {
	pageID, err := parseID(id)
	if err != nil {
		return nil, pagedomain.ErrNotFound
	}

	record, err := s.repo.FindOne(ctx, &pagedomain.Page{ID: pageID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pagedomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) GetBySlug(ctx context.Context, urlSlug string) (*pagedomain.Page, error) {
	urlSlug = strings.TrimSpace(urlSlug)
	if urlSlug == "" {
		return nil, pagedomain.ErrInvalidSlug
	}

	record, err := s.repo.FindOne(ctx, &pagedomain.Page{URLSlug: urlSlug})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pagedomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID) ([]*pagedomain.Page, error) {
	if userID == 0 {
		return nil, pagedomain.ErrInvalidUser
	}
	return s.repo.Find(ctx, &pagedomain.Page{UserID: userID})
}

func (s *Service) Update(ctx context.Context, req pagedomain.UpdateRequest) (*pagedomain.Page, error) {
	record, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, pagedomain.ErrInvalidTitle
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.URLSlug != nil {
		urlSlug := strings.TrimSpace(*req.URLSlug)
		if !slug.IsSlug(urlSlug) {
			return nil, pagedomain.ErrInvalidSlug
		}
		updates["url_slug"] = urlSlug
	}
	if req.Type != nil {
		pageType := pagedomain.PageType(strings.TrimSpace(*req.Type))
		if !pageType.Valid() {
			return nil, pagedomain.ErrInvalidType
		}
		updates["type"] = pageType
	}

	if err := s.repo.Update(ctx, record.ID.String(), updates); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, pagedomain.ErrSlugTaken
		}
		return nil, err
	}

	return s.GetByID(ctx, req.ID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	record, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, record.ID.String())
}

// CountByUser feeds the page usage meter.
func (s *Service) CountByUser(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, pagedomain.ErrInvalidUser
	}
	return s.repo.Count(ctx, &pagedomain.Page{UserID: userID})
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, pagedomain.ErrNotFound
	}
	return id, nil
}
