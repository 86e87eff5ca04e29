package server

import (
	"net/http"
	"strconv"
	"time"

	postdomain "github.com/changespage/changespage/internal/post/domain"
	"github.com/gin-gonic/gin"
)

type createPostRequest struct {
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Tags         map[string]any `json:"tags"`
	ImagesFolder string         `json:"images_folder"`
	Status       string         `json:"status"`
	PublishAt    *time.Time     `json:"publish_at"`
}

type updatePostRequest struct {
	Title     *string    `json:"title"`
	Content   *string    `json:"content"`
	Status    *string    `json:"status"`
	PublishAt *time.Time `json:"publish_at"`
}

func (s *Server) ListPosts(c *gin.Context) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	pageSize := 0
	if raw := c.Query("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(c, http.StatusBadRequest, "invalid page_size")
			return
		}
		pageSize = parsed
	}

	resp, err := s.postSvc.List(c.Request.Context(), postdomain.ListRequest{
		PageID:    settings.PageID,
		Status:    postdomain.PostStatus(c.Query("status")),
		PageToken: c.Query("page_token"),
		PageSize:  int32(pageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreatePost(c *gin.Context) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.postSvc.Create(c.Request.Context(), postdomain.CreateRequest{
		PageID:       settings.PageID.String(),
		Title:        req.Title,
		Content:      req.Content,
		Tags:         req.Tags,
		ImagesFolder: req.ImagesFolder,
		Status:       req.Status,
		PublishAt:    req.PublishAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) GetPost(c *gin.Context) {
	post, ok := s.ownedPost(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) UpdatePost(c *gin.Context) {
	post, ok := s.ownedPost(c)
	if !ok {
		return
	}

	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.postSvc.Update(c.Request.Context(), postdomain.UpdateRequest{
		ID:        post.ID.String(),
		Title:     req.Title,
		Content:   req.Content,
		Status:    req.Status,
		PublishAt: req.PublishAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) DeletePost(c *gin.Context) {
	post, ok := s.ownedPost(c)
	if !ok {
		return
	}

	if err := s.postSvc.Delete(c.Request.Context(), post.ID.String()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownedPost loads the :id post and checks it belongs to the
// authenticated page. Posts of other pages read as 404.
func (s *Server) ownedPost(c *gin.Context) (*postdomain.Post, bool) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}

	post, err := s.postSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if post == nil || post.PageID != settings.PageID {
		AbortWithError(c, postdomain.ErrNotFound)
		return nil, false
	}
	return post, true
}
