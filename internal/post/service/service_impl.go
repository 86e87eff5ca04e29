package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	postdomain "github.com/changespage/changespage/internal/post/domain"
	"github.com/changespage/changespage/pkg/db/option"
	"github.com/changespage/changespage/pkg/db/pagination"
	"github.com/changespage/changespage/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	repo  repository.Repository[postdomain.Post]
}

func NewService(p ServiceParam) postdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("post.service"),
		genID: p.GenID,
		repo:  repository.ProvideStore[postdomain.Post](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req postdomain.CreateRequest) (*postdomain.Post, error) {
	pageID, err := snowflake.ParseString(strings.TrimSpace(req.PageID))
	if err != nil || pageID == 0 {
		return nil, postdomain.ErrInvalidPage
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, postdomain.ErrInvalidTitle
	}

	status := postdomain.PostStatus(strings.TrimSpace(req.Status))
	if status == "" {
		status = postdomain.PostStatusDraft
	}
	if !status.Valid() {
		return nil, postdomain.ErrInvalidStatus
	}
	if status == postdomain.PostStatusPublishLater && req.PublishAt == nil {
		return nil, postdomain.ErrMissingPublishAt
	}

	now := time.Now().UTC()
	record := &postdomain.Post{
		ID:           s.genID.Generate(),
		PageID:       pageID,
		Title:        title,
		Content:      req.Content,
		ImagesFolder: strings.TrimSpace(req.ImagesFolder),
		Status:       status,
		PublishAt:    req.PublishAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Tags != nil {
		record.Tags = datatypes.JSONMap(req.Tags)
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*postdomain.Post, error) {
	postID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || postID == 0 {
		return nil, postdomain.ErrNotFound
	}

	record, err := s.repo.FindOne(ctx, &postdomain.Post{ID: postID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, postdomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, req postdomain.ListRequest) (postdomain.ListResponse, error) {
	if req.PageID == 0 {
		return postdomain.ListResponse{}, postdomain.ErrInvalidPage
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := &postdomain.Post{PageID: req.PageID}
	if req.Status != "" {
		if !req.Status.Valid() {
			return postdomain.ListResponse{}, postdomain.ErrInvalidStatus
		}
		filter.Status = req.Status
	}

	items, err := s.repo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return postdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *postdomain.Post) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	posts := make([]postdomain.Post, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		posts = append(posts, *item)
	}

	resp := postdomain.ListResponse{Posts: posts}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req postdomain.UpdateRequest) (*postdomain.Post, error) {
	record, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, postdomain.ErrInvalidTitle
		}
		updates["title"] = title
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.Status != nil {
		next := postdomain.PostStatus(strings.TrimSpace(*req.Status))
		if !next.Valid() {
			return nil, postdomain.ErrInvalidStatus
		}
		// Published posts that already notified must not step back; doing
		// so would re-arm the notification webhook for the same post.
		if record.EmailNotified && next != postdomain.PostStatusPublished {
			return nil, postdomain.ErrBackwardTransition
		}
		if next == postdomain.PostStatusPublishLater {
			if req.PublishAt == nil && record.PublishAt == nil {
				return nil, postdomain.ErrMissingPublishAt
			}
		}
		updates["status"] = next
	}
	if req.PublishAt != nil {
		updates["publish_at"] = req.PublishAt.UTC()
	}

	if err := s.repo.Update(ctx, record.ID.String(), updates); err != nil {
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

func (s *Service) ClaimNotification(ctx context.Context, id snowflake.ID) (bool, error) {
	if id == 0 {
		return false, postdomain.ErrNotFound
	}

	result := s.db.WithContext(ctx).
		Model(&postdomain.Post{}).
		Where("id = ? AND email_notified = ?", id, false).
		Updates(map[string]any{
			"email_notified": true,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) ListDuePublishLater(ctx context.Context, now time.Time, limit int) ([]*postdomain.Post, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []*postdomain.Post
	err := s.db.WithContext(ctx).
		Where("status = ? AND publish_at IS NOT NULL AND publish_at <= ?", postdomain.PostStatusPublishLater, now.UTC()).
		Order("publish_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) Publish(ctx context.Context, id snowflake.ID) (*postdomain.Post, error) {
	if id == 0 {
		return nil, postdomain.ErrNotFound
	}

	if err := s.repo.Update(ctx, id.String(), map[string]any{
		"status":     postdomain.PostStatusPublished,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	return s.GetByID(ctx, id.String())
}
