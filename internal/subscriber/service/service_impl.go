package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriberdomain "github.com/changespage/changespage/internal/subscriber/domain"
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
	repo  repository.Repository[subscriberdomain.Subscriber]
}

func NewService(p ServiceParam) subscriberdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscriber.service"),
		genID: p.GenID,
		repo:  repository.ProvideStore[subscriberdomain.Subscriber](p.DB),
	}
}

func (s *Service) Subscribe(ctx context.Context, req subscriberdomain.SubscribeRequest) (*subscriberdomain.Subscriber, error) {
	pageID, err := snowflake.ParseString(strings.TrimSpace(req.PageID))
	if err != nil || pageID == 0 {
		return nil, subscriberdomain.ErrInvalidPage
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, subscriberdomain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	record := &subscriberdomain.Subscriber{
		ID:                s.genID.Generate(),
		PageID:            pageID,
		Email:             email,
		Status:            subscriberdomain.SubscriberStatusPending,
		VerificationToken: uuid.NewString(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, subscriberdomain.ErrAlreadyExists
		}
		return nil, err
	}

	return record, nil
}

func (s *Service) Verify(ctx context.Context, token string) (*subscriberdomain.Subscriber, error) {
	record, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.Update(ctx, record.ID.String(), map[string]any{
		"status":      subscriberdomain.SubscriberStatusVerified,
		"verified_at": now,
		"updated_at":  now,
	}); err != nil {
		return nil, err
	}

	record.Status = subscriberdomain.SubscriberStatusVerified
	record.VerifiedAt = &now
	return record, nil
}

func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	record, err := s.findByToken(ctx, token)
	if err != nil {
		return err
	}

	return s.repo.Update(ctx, record.ID.String(), map[string]any{
		"status":     subscriberdomain.SubscriberStatusUnsubscribed,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Service) ListVerified(ctx context.Context, pageID snowflake.ID, offset int) ([]*subscriberdomain.Subscriber, error) {
	if pageID == 0 {
		return nil, subscriberdomain.ErrInvalidPage
	}
	if offset < 0 {
		offset = 0
	}

	var rows []*subscriberdomain.Subscriber
	err := s.db.WithContext(ctx).
		Where("page_id = ? AND status = ?", pageID, subscriberdomain.SubscriberStatusVerified).
		Order("id ASC").
		Offset(offset).
		Limit(subscriberdomain.FanoutBatchSize).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) CountVerified(ctx context.Context, pageID snowflake.ID) (int64, error) {
	if pageID == 0 {
		return 0, subscriberdomain.ErrInvalidPage
	}
	return s.repo.Count(ctx, &subscriberdomain.Subscriber{
		PageID: pageID,
		Status: subscriberdomain.SubscriberStatusVerified,
	})
}

func (s *Service) findByToken(ctx context.Context, token string) (*subscriberdomain.Subscriber, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, subscriberdomain.ErrInvalidToken
	}

	record, err := s.repo.FindOne(ctx, &subscriberdomain.Subscriber{VerificationToken: token})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, subscriberdomain.ErrNotFound
	}
	return record, nil
}
