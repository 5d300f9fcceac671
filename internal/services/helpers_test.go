package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:socialsvc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// recBus records published events.
type recBus struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *recBus) Publish(_ context.Context, e realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recBus) count(entity, op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Entity == entity && e.Op == op {
			n++
		}
	}
	return n
}

func mustProfile(t *testing.T, db *gorm.DB, id, username string) {
	t.Helper()
	_, err := repo.EnsureProfile(context.Background(), db, id, username)
	require.NoError(t, err, "seed profile %s", id)
}

func mustPost(t *testing.T, db *gorm.DB, id, owner string, at time.Time) {
	t.Helper()
	p := &domain.Post{ID: id, UserID: owner, ImageURL: "https://img/" + id, CreatedAt: at}
	require.NoError(t, db.Create(p).Error, "seed post %s", id)
}

func postIDs(items []domain.FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Post.ID
	}
	return out
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(where, args...).Count(&n).Error)
	return n
}
