// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// NotificationsStats returns aggregate metadata for a user's notifications:
// the total number of rows, the unread count, and the greatest CreatedAt.
//
// When the user has no notifications, count is 0 and latest is nil. The
// unread count is part of the result so that marking an item read changes
// the derived ETag even though no row is added.
func NotificationsStats(ctx context.Context, db *gorm.DB, userID string) (count, unread int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}
	if unread, err = CountUnread(ctx, db, userID); err != nil {
		return 0, 0, nil, err
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	q = db.WithContext(ctx).Model(&domain.Notification{}).Where("user_id = ?", userID)
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, unread, &row.CreatedAt, nil
}

// MessagesStats returns aggregate metadata for messages within a given
// conversation: the total number of rows and the greatest CreatedAt.
//
// When the conversation has no messages, the returned count is 0 and
// latest is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.DirectMessage{}).Where("conversation_id = ?", conversationID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	q = db.WithContext(ctx).Model(&domain.DirectMessage{}).Where("conversation_id = ?", conversationID)
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// TableMark fingerprints the table behind model as its row count and the
// newest value of column, formatted "count@newest". Inserts and deletes
// change it; so do updates that move column forward. An empty table is "0".
func TableMark(ctx context.Context, db *gorm.DB, model any, column string) (string, error) {
	var count int64
	if err := db.WithContext(ctx).Model(model).Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return "0", nil
	}
	var row struct {
		At string
	}
	err := db.WithContext(ctx).Model(model).
		Select(column + " AS at").
		Order(column + " DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d@%s", count, row.At), nil
}

// CountAllUnread counts unread notifications across every recipient.
func CountAllUnread(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Notification{}).Where("read = ?", false).Count(&n).Error
	return n, err
}
