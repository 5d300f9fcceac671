package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
)

func TestResolveFeedScope_ContainsSelf(t *testing.T) {
	db := newTestDB(t)
	mustProfile(t, db, "u", "user_u")
	svc := NewGraphService(db, nil)

	scope, err := svc.ResolveFeedScope(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"u"}, scope)
}

func TestResolveFeedScope_EmptyAndUnknownIdentity(t *testing.T) {
	db := newTestDB(t)
	svc := NewGraphService(db, nil)

	for _, id := range []string{"", "   ", "ghost"} {
		scope, err := svc.ResolveFeedScope(context.Background(), id)
		require.NoError(t, err, "identity %q", id)
		assert.Empty(t, scope, "identity %q", id)
	}
}

func TestFollowUnfollow_ChangesScope(t *testing.T) {
	db := newTestDB(t)
	for _, id := range []string{"u", "v", "w"} {
		mustProfile(t, db, id, "user_"+id)
	}
	bus := &recBus{}
	svc := NewGraphService(db, bus)
	ctx := context.Background()

	for _, f := range []string{"w", "v"} {
		created, err := svc.Follow(ctx, "u", f)
		require.NoError(t, err)
		require.True(t, created, "follow %s", f)
	}
	scope, err := svc.ResolveFeedScope(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"u", "v", "w"}, scope, "scope is sorted")

	require.NoError(t, svc.Unfollow(ctx, "u", "v"))
	scope, _ = svc.ResolveFeedScope(ctx, "u")
	assert.Equal(t, []string{"u", "w"}, scope)

	// unfollowing again is a no-op
	assert.NoError(t, svc.Unfollow(ctx, "u", "v"))

	assert.Equal(t, 2, bus.count(realtime.EntityFollows, realtime.OpInsert))
	assert.Equal(t, 1, bus.count(realtime.EntityFollows, realtime.OpDelete))
	assert.EqualValues(t, 1, countRows(t, db, &domain.Notification{}, "user_id = ? AND type = ?", "v", domain.NotifyFollow))
}

func TestFollow_DuplicateIsAbsorbed(t *testing.T) {
	db := newTestDB(t)
	mustProfile(t, db, "u", "user_u")
	mustProfile(t, db, "v", "user_v")
	svc := NewGraphService(db, nil)
	ctx := context.Background()

	_, err := svc.Follow(ctx, "u", "v")
	require.NoError(t, err)
	created, err := svc.Follow(ctx, "u", "v")
	require.NoError(t, err)
	assert.False(t, created)

	assert.EqualValues(t, 1, countRows(t, db, &domain.Follow{}, "follower_id = ? AND following_id = ?", "u", "v"))
	assert.EqualValues(t, 1, countRows(t, db, &domain.Notification{}, "user_id = ?", "v"), "duplicate follow must not notify again")
}

func TestFollow_Validation(t *testing.T) {
	db := newTestDB(t)
	mustProfile(t, db, "u", "user_u")
	svc := NewGraphService(db, nil)
	ctx := context.Background()

	_, err := svc.Follow(ctx, "u", "u")
	assert.ErrorIs(t, err, ErrInvalidInput, "self follow")
	_, err = svc.Follow(ctx, "u", "ghost")
	assert.ErrorIs(t, err, ErrNotFound, "unknown followee")
}

func TestFollowersFollowing(t *testing.T) {
	db := newTestDB(t)
	mustProfile(t, db, "a", "alice")
	mustProfile(t, db, "b", "bob")
	svc := NewGraphService(db, nil)
	ctx := context.Background()

	_, err := svc.Follow(ctx, "a", "b")
	require.NoError(t, err)

	followers, err := svc.Followers(ctx, "b")
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].Username)

	following, err := svc.Following(ctx, "a")
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "bob", following[0].Username)

	ok, err := svc.IsFollowing(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
