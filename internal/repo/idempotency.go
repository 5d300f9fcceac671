package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// IdemKey scopes an Idempotency-Key to the caller and the parent resource
// the write targeted.
type IdemKey struct {
	UserID     string
	ResourceID string
	Key        string
}

func (k IdemKey) complete() bool {
	return strings.TrimSpace(k.UserID) != "" &&
		strings.TrimSpace(k.ResourceID) != "" &&
		strings.TrimSpace(k.Key) != ""
}

// FindIdempotent returns the live record for k, or ErrNotFound when there
// is none or it expired at or before now.
func FindIdempotent(ctx context.Context, db *gorm.DB, k IdemKey, now time.Time) (*domain.Idempotency, error) {
	if !k.complete() {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where(&domain.Idempotency{UserID: k.UserID, ResourceID: k.ResourceID, Key: k.Key}).
		Where("expires_at > ?", now).
		Take(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotent records that the write identified by k produced recordID.
// A second save for the same k fails with ErrDuplicate.
func SaveIdempotent(ctx context.Context, db *gorm.DB, k IdemKey, recordID string, status int, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		UserID:     k.UserID,
		ResourceID: k.ResourceID,
		Key:        k.Key,
		RecordID:   recordID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	if IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
