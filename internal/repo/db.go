// Package repo is the GORM persistence layer: connection setup, schema
// migration, and one file of query functions per aggregate.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// Supported DB_DRIVER values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var errEmptyDSN = errors.New("repo: empty postgres DSN")

// sqlitePragmas are connection-scoped, so they travel in the DSN and the
// driver applies them to every connection the pool opens.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// sqliteDSN appends sqlitePragmas to path as _pragma query parameters.
func sqliteDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

type poolLimits struct {
	open    int
	idleFor time.Duration
	life    time.Duration
}

var (
	sqlitePool   = poolLimits{open: 10, idleFor: 5 * time.Minute, life: 30 * time.Minute}
	postgresPool = poolLimits{open: 25, idleFor: 5 * time.Minute, life: 30 * time.Minute}
)

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
}

// Open connects with the named driver ("" means sqlite) and installs the
// OpenTelemetry plugin, so each query becomes a child span of the request.
func Open(driver, dsn string) (*gorm.DB, error) {
	var open func(string) (*gorm.DB, error)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		open = OpenSQLite
	case DriverPostgres:
		open = OpenPostgres
	default:
		return nil, fmt.Errorf("repo: unsupported driver %q", driver)
	}
	db, err := open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("repo: tracing plugin: %w", err)
	}
	return db, nil
}

// OpenSQLite opens or creates the database file at path. The parent
// directory must already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("repo: sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig())
	if err != nil {
		return nil, err
	}
	return db, applyPool(db, sqlitePool)
}

// OpenPostgres connects through the pgx-backed GORM driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errEmptyDSN
	}
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	return db, applyPool(db, postgresPool)
}

func applyPool(db *gorm.DB, p poolLimits) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(p.open)
	sqlDB.SetMaxIdleConns(p.open)
	sqlDB.SetConnMaxIdleTime(p.idleFor)
	sqlDB.SetConnMaxLifetime(p.life)
	return nil
}

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&domain.Profile{},
		&domain.Follow{},
		&domain.Post{},
		&domain.Like{},
		&domain.Comment{},
		&domain.Story{},
		&domain.StoryView{},
		&domain.Notification{},
		&domain.Conversation{},
		&domain.ConversationParticipant{},
		&domain.DirectMessage{},
		&domain.Idempotency{},
	}
}

// AutoMigrate creates or updates every table the service uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
