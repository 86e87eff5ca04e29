package server

import (
	"net/http"
	"strconv"

	pagedomain "github.com/changespage/changespage/internal/page/domain"
	settingsdomain "github.com/changespage/changespage/internal/pagesettings/domain"
	"github.com/gin-gonic/gin"
)

type updatePageRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	URLSlug     *string `json:"url_slug"`
	Type        *string `json:"type"`
}

type updateSettingsRequest struct {
	AppTitle             *string `json:"app_title"`
	BrandColor           *string `json:"brand_color"`
	LogoURL              *string `json:"logo_url"`
	CustomDomain         *string `json:"custom_domain"`
	EmailNotifications   *bool   `json:"email_notifications"`
	EmailPhysicalAddress *string `json:"email_physical_address"`
	EmailReplyTo         *string `json:"email_reply_to"`
}

func (s *Server) GetOwnPage(c *gin.Context) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	page, err := s.pageSvc.GetByID(c.Request.Context(), settings.PageID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) UpdateOwnPage(c *gin.Context) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updatePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.pageSvc.Update(c.Request.Context(), pagedomain.UpdateRequest{
		ID:          settings.PageID.String(),
		Title:       req.Title,
		Description: req.Description,
		URLSlug:     req.URLSlug,
		Type:        req.Type,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) GetOwnSettings(c *gin.Context) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) UpdateOwnSettings(c *gin.Context) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.settingsSvc.Update(c.Request.Context(), settingsdomain.UpdateRequest{
		PageID:               settings.PageID.String(),
		AppTitle:             req.AppTitle,
		BrandColor:           req.BrandColor,
		LogoURL:              req.LogoURL,
		CustomDomain:         req.CustomDomain,
		EmailNotifications:   req.EmailNotifications,
		EmailPhysicalAddress: req.EmailPhysicalAddress,
		EmailReplyTo:         req.EmailReplyTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// RotateOwnSecretKey invalidates the caller's key immediately; the reply
// carries the only copy of the new one.
func (s *Server) RotateOwnSecretKey(c *gin.Context) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	rotated, err := s.settingsSvc.RotateSecretKey(c.Request.Context(), settings.PageID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.settingsCache.InvalidateSecretKey(settings.IntegrationSecretKey)
	c.JSON(http.StatusOK, rotated)
}

func (s *Server) ListSubscribers(c *gin.Context) {
	settings := s.settingsFromContext(c)
	if settings == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(c, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = parsed
	}

	subscribers, err := s.subscriberSvc.ListVerified(c.Request.Context(), settings.PageID, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	total, err := s.subscriberSvc.CountVerified(c.Request.Context(), settings.PageID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscribers": subscribers,
		"offset":      offset,
		"total":       total,
	})
}
