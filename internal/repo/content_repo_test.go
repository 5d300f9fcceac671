package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-social-backend/internal/domain"
)

func TestProfiles_EnsureGetSearch(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()

	created, err := EnsureProfile(ctx, db, "u1", "alice")
	require.NoError(t, err)
	assert.True(t, created, "first EnsureProfile creates")
	created, err = EnsureProfile(ctx, db, "u1", "other")
	require.NoError(t, err)
	assert.False(t, created, "second EnsureProfile is a no-op")
	_, err = EnsureProfile(ctx, db, "u2", "al_ice")
	require.NoError(t, err)

	p, err := GetProfile(ctx, db, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	_, err = GetProfile(ctx, db, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := SearchProfiles(ctx, db, "ALI", 20)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	// underscore is literal, not a wildcard
	got, err = SearchProfiles(ctx, db, "l_i", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].ID)

	m, err := ProfilesByIDs(ctx, db, []string{"u1", "missing"})
	require.NoError(t, err)
	assert.Len(t, m, 1)
	m, err = ProfilesByIDs(ctx, db, nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	require.NoError(t, UpdateProfile(ctx, db, "u1", map[string]any{"bio": "hi"}))
	assert.ErrorIs(t, UpdateProfile(ctx, db, "ghost", map[string]any{"bio": "hi"}), ErrNotFound)
	err = UpdateProfile(ctx, db, "u2", map[string]any{"username": "alice"})
	assert.True(t, IsUniqueViolation(err), "expected unique violation on username, got %v", err)
}

func TestFollows_CreateIsIdempotent(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()

	created, err := CreateFollow(ctx, db, "u", "v")
	require.NoError(t, err)
	assert.True(t, created, "first follow")
	created, err = CreateFollow(ctx, db, "u", "v")
	require.NoError(t, err)
	assert.False(t, created, "duplicate follow should be absorbed")
	_, err = CreateFollow(ctx, db, "u", "w")
	require.NoError(t, err)

	ids, err := FollowingIDs(ctx, db, "u")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	ok, err := IsFollowing(ctx, db, "u", "v")
	require.NoError(t, err)
	assert.True(t, ok)

	followers, following, err := FollowCounts(ctx, db, "u")
	require.NoError(t, err)
	assert.EqualValues(t, 0, followers)
	assert.EqualValues(t, 2, following)

	n, err := DeleteFollow(ctx, db, "u", "v")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = DeleteFollow(ctx, db, "u", "v")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "second unfollow")

	list, err := ListFollowers(ctx, db, "w")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u", list[0].FollowerID)
}

func TestPosts_OrderAndPagination(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	posts := []domain.Post{
		{ID: "a", UserID: "u1", ImageURL: "x", CreatedAt: base},
		{ID: "b", UserID: "u2", ImageURL: "x", CreatedAt: base.Add(time.Minute)},
		{ID: "c", UserID: "u1", ImageURL: "x", CreatedAt: base.Add(time.Minute)}, // same ts as b
		{ID: "d", UserID: "u3", ImageURL: "x", CreatedAt: base.Add(2 * time.Minute)},
	}
	require.NoError(t, db.Create(&posts).Error)

	ids := func(ps []domain.Post) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	got, err := ListPostsByOwners(ctx, db, []string{"u1", "u2"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))

	page, err := ListPostsByOwners(ctx, db, []string{"u1", "u2"}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(page))

	total, err := CountPostsByOwners(ctx, db, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	none, err := ListPostsByOwners(ctx, db, nil, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	recent, err := ListRecentPosts(ctx, db, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, ids(recent))
}

func TestLikesAndComments_Enrichment(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()

	p, err := CreatePost(ctx, db, "owner", "img", nil)
	require.NoError(t, err)
	other, err := CreatePost(ctx, db, "owner", "img2", nil)
	require.NoError(t, err)

	for _, u := range []string{"a", "b", "a"} {
		_, err := CreateLike(ctx, db, p.ID, u)
		require.NoError(t, err, "CreateLike %s", u)
	}
	n, err := CountLikes(ctx, db, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = CreateComment(ctx, db, p.ID, "a", "nice")
	require.NoError(t, err)
	c2, err := CreateComment(ctx, db, p.ID, "b", "cool")
	require.NoError(t, err)

	likes, err := LikesForPosts(ctx, db, []string{p.ID, other.ID})
	require.NoError(t, err)
	assert.Len(t, likes[p.ID], 2)
	assert.Empty(t, likes[other.ID])

	counts, err := CommentCounts(ctx, db, []string{p.ID, other.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[p.ID])
	assert.EqualValues(t, 0, counts[other.ID])

	assert.ErrorIs(t, DeleteComment(ctx, db, c2.ID, "a"), ErrNotFound, "someone else's comment")
	require.NoError(t, DeleteComment(ctx, db, c2.ID, "b"))

	list, err := ListComments(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	deleted, err := DeleteLike(ctx, db, p.ID, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	require.NoError(t, DeletePost(ctx, db, p.ID))
	n, err = CountLikes(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "likes must go with the post")
	assert.ErrorIs(t, DeletePost(ctx, db, p.ID), ErrNotFound, "second DeletePost")
}
