package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/media"
)

func TestOpenMediaStore_LocalServedUnderMedia(t *testing.T) {
	s, err := openMediaStore(context.Background(), config.MediaConfig{Backend: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &media.LocalStore{}, s)

	url, err := s.Put(context.Background(), "posts/a.png", "image/png", strings.NewReader("x"), 1)
	require.NoError(t, err)
	assert.Equal(t, "/media/posts/a.png", url)
}

func TestOpenMediaStore_S3NeedsBucket(t *testing.T) {
	_, err := openMediaStore(context.Background(), config.MediaConfig{Backend: "s3"})
	assert.Error(t, err)
}
