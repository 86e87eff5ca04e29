package server

import (
	"errors"
	"net/http"

	pagedomain "github.com/changespage/changespage/internal/page/domain"
	settingsdomain "github.com/changespage/changespage/internal/pagesettings/domain"
	postdomain "github.com/changespage/changespage/internal/post/domain"
	subscriberdomain "github.com/changespage/changespage/internal/subscriber/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// errorBody is the wire shape every error reply uses. The Postgres
// trigger configuration depends on it, so it never changes.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, message := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{
			StatusCode: status,
			Message:    message,
		}})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{
		StatusCode: status,
		Message:    message,
	}})
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case isValidationError(err):
		return http.StatusBadRequest, err.Error()
	case isNotFoundError(err):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, postdomain.ErrInvalidPage),
		errors.Is(err, postdomain.ErrInvalidTitle),
		errors.Is(err, postdomain.ErrInvalidStatus),
		errors.Is(err, postdomain.ErrBackwardTransition),
		errors.Is(err, postdomain.ErrMissingPublishAt),
		errors.Is(err, pagedomain.ErrInvalidUser),
		errors.Is(err, pagedomain.ErrInvalidTitle),
		errors.Is(err, pagedomain.ErrInvalidSlug),
		errors.Is(err, pagedomain.ErrInvalidType),
		errors.Is(err, pagedomain.ErrSlugTaken),
		errors.Is(err, subscriberdomain.ErrInvalidEmail),
		errors.Is(err, subscriberdomain.ErrInvalidToken),
		errors.Is(err, settingsdomain.ErrInvalidPage):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, postdomain.ErrNotFound),
		errors.Is(err, pagedomain.ErrNotFound),
		errors.Is(err, settingsdomain.ErrNotFound),
		errors.Is(err, subscriberdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
