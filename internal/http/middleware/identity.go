package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HeaderUserID carries the caller's identity, as resolved by the external
// auth platform in front of this service.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is the Gin context key read by handlers, the rate limiter and
// the access logs.
const ctxKeyUserID = "userID"

var userIDRE = regexp.MustCompile(`^[A-Za-z0-9._\-:]{1,128}$`)

// Identity resolves the caller from X-User-ID and stores it under "userID".
// Requests without the header stay anonymous; reads then return empty
// personalised results and writes are rejected by the handlers. A malformed
// header is rejected with 400.
//
// It also attaches a request-scoped zerolog logger to the request context so
// services can log through zerolog.Ctx. Place it after RequestID.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id != "" {
			if !userIDRE.MatchString(id) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"request_id": RequestIDFrom(c),
					"code":       "bad_user_id",
					"message":    "invalid X-User-ID",
				})
				return
			}
			c.Set(ctxKeyUserID, id)
		}

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("user_id", id).
			Logger()
		if _, ok := c.Get(loggerKey); !ok {
			c.Set(loggerKey, &l)
		}
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()
	}
}

// UserID returns the identity stored by Identity, or "" for anonymous
// requests.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
