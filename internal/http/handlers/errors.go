package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/services"
)

// Error codes are lowercase snake_case and stable: clients branch on them.
// Generic codes follow the HTTP status; domain codes say what to fix when
// the status alone cannot.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeForbidden       = "forbidden"
	ErrCodeNotFound        = "not_found"
	ErrCodeConflict        = "conflict"
	ErrCodeRateLimited     = middleware.CodeRateLimited
	ErrCodeUnavailable     = "unavailable"
	ErrCodePayloadTooLarge = "payload_too_large"
	ErrCodeInternal        = "internal_error"

	// Domain-specific:
	ErrCodeTooLong          = "too_long"
	ErrCodeUnsupportedMedia = "unsupported_media"
	ErrCodeMediaDisabled    = "media_disabled"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// failErr translates a service error into the matching status and code.
// The message is the error text for client errors and a generic one for
// server errors so store details do not leak.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeTooLong, err.Error())
	case errors.Is(err, services.ErrInvalidMedia):
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedMedia, err.Error())
	case errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrNoMediaStore):
		fail(c, http.StatusServiceUnavailable, ErrCodeMediaDisabled, "media uploads are not configured")
	case errors.Is(err, services.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "temporarily unavailable, retry shortly")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unclassified service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
