package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-social-backend/internal/domain"
)

func TestOpenSQLite_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "social.db")
	db, err := OpenSQLite(path)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "sqlite dir")
}

func TestOpenSQLite_PragmasAndPool(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "social.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Row().Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	for pragma, want := range map[string]int{
		"PRAGMA synchronous":  1, // NORMAL
		"PRAGMA foreign_keys": 1,
		"PRAGMA busy_timeout": 5000,
	} {
		var got int
		require.NoError(t, db.Raw(pragma).Row().Scan(&got), pragma)
		assert.Equal(t, want, got, pragma)
	}
	assert.Equal(t, sqlitePool.open, sqlDB.Stats().MaxOpenConnections)
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "social.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	// Both are held at once, so the pool has to dial a second connection.
	first, err := sqlDB.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := sqlDB.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for i, c := range []*sql.Conn{first, second} {
		var fk, busy int
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
		assert.Equal(t, 1, fk, "conn %d foreign_keys", i)
		assert.Equal(t, 5000, busy, "conn %d busy_timeout", i)
	}
	assert.GreaterOrEqual(t, sqlDB.Stats().OpenConnections, 2)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"data/social.db?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		sqliteDSN("data/social.db"))
	assert.True(t, strings.HasPrefix(sqliteDSN("file:x?mode=memory"), "file:x?mode=memory&_pragma=journal_mode(WAL)&"))
}

func TestAutoMigrate_CreatesEveryTable(t *testing.T) {
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "social.db"))
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	for _, m := range Models() {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}

	now := time.Now().UTC()
	require.NoError(t, db.Create(&domain.Post{ID: "p1", UserID: "ada", ImageURL: "/media/a.jpg", CreatedAt: now}).Error)
	require.NoError(t, db.Create(&domain.Like{ID: "l1", PostID: "p1", UserID: "bob", CreatedAt: now}).Error)

	var got domain.Post
	require.NoError(t, db.Take(&got, "id = ?", "p1").Error)
	assert.Equal(t, "ada", got.UserID)
}

func TestOpen_DriverSelection(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.ErrorContains(t, err, `unsupported driver "mysql"`)

	_, err = Open(" Postgres ", "   ")
	assert.ErrorIs(t, err, errEmptyDSN)
}
