package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityRouter(seen *string, scoped *bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Identity())
	r.GET("/profiles/me", func(c *gin.Context) {
		*seen = UserID(c)
		*scoped = zerolog.Ctx(c.Request.Context()).GetLevel() != zerolog.Disabled
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestIdentity(t *testing.T) {
	tests := map[string]struct {
		header   string
		wantCode int
		wantUser string
	}{
		"anonymous":       {"", http.StatusNoContent, ""},
		"trimmed":         {"  ada.l:42 ", http.StatusNoContent, "ada.l:42"},
		"whitespace only": {"   ", http.StatusNoContent, ""},
		"spaces inside":   {"ada lovelace", http.StatusBadRequest, ""},
		"slash":           {"ada/1", http.StatusBadRequest, ""},
		"too long":        {strings.Repeat("u", 129), http.StatusBadRequest, ""},
		"max length":      {strings.Repeat("u", 128), http.StatusNoContent, strings.Repeat("u", 128)},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var seen string
			var scoped bool
			r := identityRouter(&seen, &scoped)

			req := httptest.NewRequest(http.MethodGet, "/profiles/me", nil)
			if tt.header != "" {
				req.Header.Set(HeaderUserID, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode != http.StatusNoContent {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "bad_user_id", body["code"])
				assert.Equal(t, w.Header().Get(requestIDHeader), body["request_id"])
				return
			}
			assert.Equal(t, tt.wantUser, seen)
			assert.True(t, scoped, "request context carries a logger")
		})
	}
}

func TestUserID_IgnoresForeignValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, UserID(c))
	c.Set(ctxKeyUserID, 42)
	assert.Empty(t, UserID(c))
	c.Set(ctxKeyUserID, "bob")
	assert.Equal(t, "bob", UserID(c))
}
