package server

import (
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	"github.com/changespage/changespage/internal/providers/email"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	webhookInsert = "INSERT"
	webhookUpdate = "UPDATE"
	webhookDelete = "DELETE"
)

// postRecord is the posts-row slice of a trigger payload. Only the
// fields the pipeline inspects are decoded.
type postRecord struct {
	ID            int64  `json:"id"`
	PageID        int64  `json:"page_id"`
	Status        string `json:"status"`
	EmailNotified bool   `json:"email_notified"`
	ImagesFolder  string `json:"images_folder"`
}

type pageRecord struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
}

type settingsRecord struct {
	PageID               int64  `json:"page_id"`
	IntegrationSecretKey string `json:"integration_secret_key"`
	EmailReplyTo         string `json:"email_reply_to"`
}

// webhookPayload is the tagged variant every trigger posts:
// record holds the new row, old_record the previous one on
// UPDATE/DELETE.
type webhookPayload[T any] struct {
	Type      string `json:"type"`
	Table     string `json:"table"`
	Record    T      `json:"record"`
	OldRecord T      `json:"old_record"`
}

func webhookOK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PostsWebhook reacts to posts-row changes: publishes fan out to
// subscribers, deletions clean up uploaded images.
func (s *Server) PostsWebhook(c *gin.Context) {
	var payload webhookPayload[postRecord]
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.obsMetrics.IncWebhookEvent("posts", "bad_payload")
		respondError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	log := s.log.With(zap.String("table", "posts"), zap.String("type", payload.Type))

	switch payload.Type {
	case webhookInsert, webhookUpdate:
		rec := payload.Record
		if rec.Status != "published" || rec.EmailNotified {
			s.obsMetrics.IncWebhookEvent("posts", "skipped")
			webhookOK(c)
			return
		}
		if _, err := s.dispatcher.DispatchPublished(c.Request.Context(), snowflake.ID(rec.ID)); err != nil {
			log.Error("dispatch failed", zap.Int64("post_id", rec.ID), zap.Error(err))
			s.obsMetrics.IncWebhookEvent("posts", "error")
			respondError(c, http.StatusInternalServerError, "dispatch failed")
			return
		}
	case webhookDelete:
		if err := s.enqueueImageCleanup(c, payload.OldRecord); err != nil {
			log.Error("image cleanup enqueue failed", zap.Error(err))
			s.obsMetrics.IncWebhookEvent("posts", "error")
			respondError(c, http.StatusInternalServerError, "cleanup enqueue failed")
			return
		}
	default:
		s.obsMetrics.IncWebhookEvent("posts", "bad_payload")
		respondError(c, http.StatusBadRequest, "unknown webhook type")
		return
	}

	s.obsMetrics.IncWebhookEvent("posts", "ok")
	webhookOK(c)
}

func (s *Server) enqueueImageCleanup(c *gin.Context, rec postRecord) error {
	if rec.ImagesFolder == "" {
		return nil
	}

	page, err := s.pageSvc.GetByID(c.Request.Context(), snowflake.ID(rec.PageID).String())
	if err != nil {
		return fmt.Errorf("load page %d: %w", rec.PageID, err)
	}

	_, err = s.queue.Enqueue(c.Request.Context(), jobsdomain.Request{
		Kind: jobsdomain.KindImagesCleanup,
		Payload: map[string]any{
			"path": fmt.Sprintf("%s/%s/%s", page.UserID, page.ID, rec.ImagesFolder),
		},
		DedupeKey: fmt.Sprintf("cleanup:%d", rec.ID),
	})
	return err
}

// PagesWebhook recomputes the owner's page count on every page-row
// change. The set-style meter makes redundant reports harmless.
func (s *Server) PagesWebhook(c *gin.Context) {
	var payload webhookPayload[pageRecord]
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.obsMetrics.IncWebhookEvent("pages", "bad_payload")
		respondError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	rec := payload.Record
	if payload.Type == webhookDelete {
		rec = payload.OldRecord
	}
	if rec.UserID == 0 {
		s.obsMetrics.IncWebhookEvent("pages", "bad_payload")
		respondError(c, http.StatusBadRequest, "missing user_id")
		return
	}

	_, err := s.queue.Enqueue(c.Request.Context(), jobsdomain.Request{
		Kind: jobsdomain.KindReportPageUsage,
		Payload: map[string]any{
			"user_id": snowflake.ID(rec.UserID).String(),
		},
	})
	if err != nil {
		s.log.Error("page usage enqueue failed",
			zap.Int64("user_id", rec.UserID),
			zap.Error(err),
		)
		s.obsMetrics.IncWebhookEvent("pages", "error")
		respondError(c, http.StatusInternalServerError, "usage enqueue failed")
		return
	}

	s.obsMetrics.IncWebhookEvent("pages", "ok")
	webhookOK(c)
}

// PageSettingsWebhook sends the one-time welcome email on settings
// creation and drops stale secret-key cache entries on rotation.
func (s *Server) PageSettingsWebhook(c *gin.Context) {
	var payload webhookPayload[settingsRecord]
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.obsMetrics.IncWebhookEvent("page_settings", "bad_payload")
		respondError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	switch payload.Type {
	case webhookInsert:
		if err := s.enqueueWelcomeEmail(c, payload.Record); err != nil {
			s.log.Error("welcome email enqueue failed", zap.Error(err))
			s.obsMetrics.IncWebhookEvent("page_settings", "error")
			respondError(c, http.StatusInternalServerError, "welcome enqueue failed")
			return
		}
	case webhookUpdate:
		oldKey := payload.OldRecord.IntegrationSecretKey
		if oldKey != "" && oldKey != payload.Record.IntegrationSecretKey {
			s.settingsCache.InvalidateSecretKey(oldKey)
		}
	case webhookDelete:
		if key := payload.OldRecord.IntegrationSecretKey; key != "" {
			s.settingsCache.InvalidateSecretKey(key)
		}
	default:
		s.obsMetrics.IncWebhookEvent("page_settings", "bad_payload")
		respondError(c, http.StatusBadRequest, "unknown webhook type")
		return
	}

	s.obsMetrics.IncWebhookEvent("page_settings", "ok")
	webhookOK(c)
}

func (s *Server) enqueueWelcomeEmail(c *gin.Context, rec settingsRecord) error {
	if rec.EmailReplyTo == "" {
		// No deliverable owner address on the row; nothing to send.
		s.log.Debug("settings row has no reply-to, skipping welcome email",
			zap.Int64("page_id", rec.PageID))
		return nil
	}

	page, err := s.pageSvc.GetByID(c.Request.Context(), snowflake.ID(rec.PageID).String())
	if err != nil {
		return fmt.Errorf("load page %d: %w", rec.PageID, err)
	}

	html, err := email.RenderWelcome(email.WelcomeData{
		PageTitle: page.Title,
		PageURL:   fmt.Sprintf("%s/%s", s.cfg.BaseURL, page.URLSlug),
	})
	if err != nil {
		return err
	}

	_, err = s.queue.Enqueue(c.Request.Context(), jobsdomain.Request{
		Kind: jobsdomain.KindEmailWelcome,
		Payload: map[string]any{
			"email":   rec.EmailReplyTo,
			"subject": fmt.Sprintf("%s is ready", page.Title),
			"html":    html,
		},
		DedupeKey: fmt.Sprintf("welcome:%d", rec.PageID),
	})
	return err
}
