package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-social-backend/internal/realtime"
)

func strPtr(s string) *string { return &s }

func TestProfile_EnsureIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	bus := &recBus{}
	svc := NewProfileService(db, bus)
	ctx := context.Background()

	p, err := svc.Ensure(ctx, "3F2A-91BC-0000", "")
	require.NoError(t, err)
	assert.Equal(t, "user_3f2a91bc", p.Username)

	again, err := svc.Ensure(ctx, "3F2A-91BC-0000", "other_name")
	require.NoError(t, err)
	assert.Equal(t, p.Username, again.Username, "Ensure must not overwrite an existing profile")
	assert.Equal(t, 1, bus.count(realtime.EntityProfiles, realtime.OpInsert))
}

func TestProfile_UpdateAndConflicts(t *testing.T) {
	db := newTestDB(t)
	mustProfile(t, db, "a", "alice")
	mustProfile(t, db, "b", "bob")
	svc := NewProfileService(db, nil)
	ctx := context.Background()

	p, err := svc.Update(ctx, "a", ProfilePatch{
		Username: strPtr("  Alice.W "),
		Bio:      strPtr("hello   world"),
	})
	require.NoError(t, err)
	assert.Equal(t, "alice.w", p.Username)
	assert.Equal(t, "hello world", p.Bio)

	tests := map[string]struct {
		id    string
		patch ProfilePatch
		want  error
	}{
		"taken username":  {"a", ProfilePatch{Username: strPtr("bob")}, ErrConflict},
		"bad username":    {"a", ProfilePatch{Username: strPtr("no spaces")}, ErrInvalidInput},
		"long bio":        {"a", ProfilePatch{Bio: strPtr(strings.Repeat("x", MaxBioRunes+1))}, ErrTooLong},
		"unknown profile": {"ghost", ProfilePatch{Bio: strPtr("x")}, ErrNotFound},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.id, tt.patch)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProfile_GetCounters(t *testing.T) {
	db := newTestDB(t)
	mustProfile(t, db, "a", "alice")
	mustProfile(t, db, "b", "bob")
	mustPost(t, db, "p1", "a", time.Now().UTC())
	_, err := NewGraphService(db, nil).Follow(context.Background(), "b", "a")
	require.NoError(t, err)

	v, err := NewProfileService(db, nil).Get(context.Background(), "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.Followers)
	assert.EqualValues(t, 0, v.Following)
	assert.EqualValues(t, 1, v.Posts)

	_, err = NewProfileService(db, nil).Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfile_Search(t *testing.T) {
	db := newTestDB(t)
	mustProfile(t, db, "a", "alice")
	mustProfile(t, db, "b", "malik")
	mustProfile(t, db, "c", "bob")
	mustProfile(t, db, "d", "a_bo")
	svc := NewProfileService(db, nil)
	ctx := context.Background()

	got, err := svc.Search(ctx, "LI", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2, "alice and malik")

	// underscore is matched literally, not as a wildcard
	got, _ = svc.Search(ctx, "a_", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "a_bo", got[0].Username)

	got, _ = svc.Search(ctx, "   ", 10)
	assert.Empty(t, got)
}
