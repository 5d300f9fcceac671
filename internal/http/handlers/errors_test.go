package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/tbourn/go-social-backend/internal/services"
)

func TestFailErr_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("load post: %w", services.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"conflict", services.ErrConflict, http.StatusConflict, ErrCodeConflict},
		{"unauthorized", services.ErrUnauthorized, http.StatusForbidden, ErrCodeForbidden},
		{"invalid", services.ErrInvalidInput, http.StatusBadRequest, ErrCodeBadRequest},
		{"too long", services.ErrTooLong, http.StatusBadRequest, ErrCodeTooLong},
		{"media", services.ErrInvalidMedia, http.StatusBadRequest, ErrCodeUnsupportedMedia},
		{"no store", services.ErrNoMediaStore, http.StatusServiceUnavailable, ErrCodeMediaDisabled},
		{"transient", fmt.Errorf("%w: disk I/O error", services.ErrTransient), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { failErr(c, tc.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			wantCode(t, w, tc.status, tc.code)

			want := ""
			if tc.code == ErrCodeUnavailable {
				want = "1"
			}
			assert.Equal(t, want, w.Header().Get("Retry-After"))
		})
	}
}

func TestFailErr_InternalHidesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { failErr(c, errors.New("pq: password authentication failed")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	var er ErrorResponse
	decode(t, w, &er)
	assert.Equal(t, "internal error", er.Message, "internal details must not leak")
}
