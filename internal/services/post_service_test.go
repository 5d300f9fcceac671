package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-social-backend/internal/domain"
)

func TestPost_CreateAndDelete(t *testing.T) {
	db := newTestDB(t)
	mustProfile(t, db, "a", "alice")
	mustProfile(t, db, "b", "bob")
	svc := NewPostService(db, nil, &memStore{})
	ctx := context.Background()

	p, err := svc.Create(ctx, "a", "https://img/1.jpg", "  ")
	require.NoError(t, err)
	assert.Nil(t, p.Caption, "blank caption is stored as NULL")

	_, err = svc.Create(ctx, "a", "https://img/2.jpg", strings.Repeat("x", MaxCaptionRunes+1))
	assert.ErrorIs(t, err, ErrTooLong)

	eng := NewEngagementService(db, nil)
	_, err = eng.Like(ctx, p.ID, "b")
	require.NoError(t, err)
	_, err = eng.AddComment(ctx, p.ID, "b", "wow")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, p.ID, "b"), ErrUnauthorized)
	require.NoError(t, svc.Delete(ctx, p.ID, "a"))
	assert.Zero(t, countRows(t, db, &domain.Like{}, "post_id = ?", p.ID), "likes survived post delete")
	assert.Zero(t, countRows(t, db, &domain.Comment{}, "post_id = ?", p.ID), "comments survived post delete")
}

func TestPost_Upload(t *testing.T) {
	db := newTestDB(t)
	store := &memStore{}
	svc := NewPostService(db, nil, store)
	ctx := context.Background()

	orig := timeNow
	timeNow = func() time.Time { return time.UnixMilli(1700000000000) }
	t.Cleanup(func() { timeNow = orig })

	p, err := svc.Upload(ctx, "a", "cat.PNG", "image/png", strings.NewReader("png"), 3, "my cat")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/posts/a-1700000000000.png", p.ImageURL)
	assert.Equal(t, "png", string(store.objects["posts/a-1700000000000.png"]))

	_, err = svc.Upload(ctx, "a", "clip.mp4", "video/mp4", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, ErrInvalidMedia, "video post")
}
