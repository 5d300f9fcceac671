package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf) // plain JSON lines
	return &buf
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		assert.NotEmpty(t, RequestIDFrom(c), "request id in context")
		c.String(http.StatusOK, "ok")
	})

	// No header -> generated
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader), "generated request id")

	// Lowercase header -> propagated
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(strings.ToLower(requestIDHeader), "feed-req-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "feed-req-123", w.Header().Get(requestIDHeader))
}

func TestRequestID_RejectsUntrustedValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, bad := range []string{"has spaces", "<script>", strings.Repeat("a", 129)} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/rid", nil)
		req.Header.Set(requestIDHeader, bad)
		r.ServeHTTP(w, req)
		got := w.Header().Get(requestIDHeader)
		assert.NotEmpty(t, got)
		assert.NotEqual(t, bad, got, "untrusted request id is replaced")
	}
}

func TestRecovery_PanicsToJSON500AndLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Identity(), Recovery())
	r.GET("/posts/:id", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/posts/p1", nil)
	req.Header.Set(HeaderUserID, "u1")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["code"])
	assert.Equal(t, "internal server error", body["message"])
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, w.Header().Get(requestIDHeader), body["request_id"])

	out := buf.String()
	assert.Contains(t, out, `"panic recovered"`)
	assert.Contains(t, out, `"route":"/posts/:id"`)
	assert.Contains(t, out, `"user_id":"u1"`)
}

func TestRecovery_PanicAfterWrite_NoJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic-after-write", func(c *gin.Context) {
		c.String(http.StatusOK, "partial-body")
		panic("late kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic-after-write", nil))

	assert.NotContains(t, w.Body.String(), "internal server error")
	assert.NotContains(t, strings.ToLower(w.Header().Get("Content-Type")), "application/json")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestLoggerFrom_FallbackAndRequestScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Without Identity the global logger is returned.
	buf1 := captureLogger(t)
	r1 := gin.New()
	r1.Use(RequestID())
	r1.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("custom")
		c.Status(http.StatusOK)
	})
	r1.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/use", nil))
	assert.Contains(t, buf1.String(), `"message":"custom"`)
	assert.NotContains(t, buf1.String(), `"request_id"`, "fallback logger is not request scoped")

	// With Identity the logger carries request_id and user_id.
	buf2 := captureLogger(t)
	r2 := gin.New()
	r2.Use(RequestID(), Identity())
	r2.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("custom2")
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/use", nil)
	req.Header.Set(HeaderUserID, "ada")
	r2.ServeHTTP(httptest.NewRecorder(), req)
	out := buf2.String()
	assert.Contains(t, out, `"message":"custom2"`)
	assert.Contains(t, out, `"request_id"`)
	assert.Contains(t, out, `"user_id":"ada"`)
}

func TestHelpers_routeOf_asString_truncate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var matched, unmatched string
	r.GET("/stories/:id", func(c *gin.Context) { matched = routeOf(c) })
	r.NoRoute(func(c *gin.Context) { unmatched = routeOf(c) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stories/s1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	assert.Equal(t, "/stories/:id", matched)
	assert.Equal(t, "unmatched", unmatched)

	assert.Equal(t, "x", asString("x"))
	assert.Empty(t, asString(123))
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "abcde…", truncate("abcdefgh", 5))
	assert.Equal(t, "abc", truncate("abc", 0), "zero disables truncation")
}
