package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	settingsdomain "github.com/changespage/changespage/internal/pagesettings/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	webhookKeyHeader = "x-webhook-key"
	secretKeyHeader  = "page-secret-key"

	ctxSettingsKey = "page_settings"
)

const (
	v1Rate  = 10.0
	v1Burst = 30
)

// WebhookKeyRequired gates the Postgres trigger callbacks. The header
// name and the 400 reply are fixed by the trigger configuration.
func (s *Server) WebhookKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(webhookKeyHeader)
		if s.cfg.WebhookKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.WebhookKey)) != 1 {
			respondError(c, http.StatusBadRequest, "invalid webhook key")
			return
		}
		c.Next()
	}
}

// SecretKeyRequired authenticates the public v1 API against a page's
// integration secret key and stashes the resolved settings row.
func (s *Server) SecretKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(secretKeyHeader)
		if key == "" {
			respondError(c, http.StatusUnauthorized, "missing page-secret-key")
			return
		}

		settings, ok := s.settingsCache.GetBySecretKey(key)
		if !ok {
			var err error
			settings, err = s.settingsSvc.GetBySecretKey(c.Request.Context(), key)
			switch {
			case errors.Is(err, settingsdomain.ErrNotFound), errors.Is(err, settingsdomain.ErrInvalidKey):
				respondError(c, http.StatusUnauthorized, "invalid page-secret-key")
				return
			case err != nil:
				// A resolution failure is not an auth verdict.
				s.log.Error("secret key lookup failed", zap.Error(err))
				respondError(c, http.StatusInternalServerError, "internal server error")
				return
			case settings == nil:
				respondError(c, http.StatusUnauthorized, "invalid page-secret-key")
				return
			}
			s.settingsCache.SetBySecretKey(key, settings)
		}

		c.Set(ctxSettingsKey, settings)
		c.Next()
	}
}

func (s *Server) RateLimitBySecretKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		key := "ratelimit:v1:" + c.GetHeader(secretKeyHeader)
		result, err := s.limiter.Allow(c.Request.Context(), key, v1Rate, v1Burst)
		if err != nil {
			// Redis trouble must not take the API down.
			s.log.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			respondError(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func (s *Server) settingsFromContext(c *gin.Context) *settingsdomain.PageSettings {
	value, ok := c.Get(ctxSettingsKey)
	if !ok {
		return nil
	}
	settings, _ := value.(*settingsdomain.PageSettings)
	return settings
}
