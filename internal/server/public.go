package server

import (
	"errors"
	"fmt"
	"net/http"

	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	"github.com/changespage/changespage/internal/providers/email"
	subscriberdomain "github.com/changespage/changespage/internal/subscriber/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type subscribeRequest struct {
	Email string `json:"email"`
}

// Subscribe registers a pending subscriber and mails a confirmation
// link. Re-subscribing an existing address is reported as success so
// the endpoint leaks nothing about the list.
func (s *Server) Subscribe(c *gin.Context) {
	page, err := s.pageSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := s.subscriberSvc.Subscribe(c.Request.Context(), subscriberdomain.SubscribeRequest{
		PageID: page.ID.String(),
		Email:  req.Email,
	})
	if err != nil {
		if errors.Is(err, subscriberdomain.ErrAlreadyExists) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		AbortWithError(c, err)
		return
	}

	html, err := email.RenderMagicLink(email.MagicLinkData{
		PageTitle: page.Title,
		LinkURL:   fmt.Sprintf("%s/api/subscribers/verify?token=%s", s.cfg.BaseURL, sub.VerificationToken),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	_, err = s.queue.Enqueue(c.Request.Context(), jobsdomain.Request{
		Kind: jobsdomain.KindEmailMagicLink,
		Payload: map[string]any{
			"email":   sub.Email,
			"subject": fmt.Sprintf("Confirm your subscription to %s", page.Title),
			"html":    html,
		},
		DedupeKey: fmt.Sprintf("magic_link:%s", sub.ID),
	})
	if err != nil {
		s.log.Error("magic link enqueue failed",
			zap.String("subscriber_id", sub.ID.String()),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) VerifySubscriber(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, http.StatusBadRequest, "missing token")
		return
	}

	if _, err := s.subscriberSvc.Verify(c.Request.Context(), token); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) Unsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, http.StatusBadRequest, "missing token")
		return
	}

	if err := s.subscriberSvc.Unsubscribe(c.Request.Context(), token); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
