// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Profile
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a profile is not found, functions return gorm.ErrRecordNotFound
//     (also exported as ErrNotFound).
//   - On other DB errors the raw gorm error is propagated; the service layer
//     classifies it.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// EnsureProfile inserts a profile for id unless one already exists. It
// reports whether a row was created.
func EnsureProfile(ctx context.Context, db *gorm.DB, id, username string) (bool, error) {
	now := time.Now().UTC()
	p := &domain.Profile{ID: id, Username: username, CreatedAt: now, UpdatedAt: now}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetProfile fetches a single profile by ID, or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ProfileExists reports whether a profile row exists for id.
func ProfileExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Profile{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// ProfilesByIDs loads the profiles for ids keyed by ID. Missing IDs are simply
// absent from the map. An empty input never touches the store.
func ProfilesByIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Profile
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// UpdateProfile applies the given column updates to the profile identified by
// id. It returns ErrNotFound when no row matched.
func UpdateProfile(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SearchProfiles performs a case-insensitive substring match on username,
// ordered by username. LIKE wildcards in q are escaped.
func SearchProfiles(ctx context.Context, db *gorm.DB, q string, limit int) ([]domain.Profile, error) {
	var out []domain.Profile
	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
	err := db.WithContext(ctx).
		Where(`LOWER(username) LIKE ? ESCAPE '\'`, pattern).
		Order("username asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
