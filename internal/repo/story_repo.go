// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers stories and their view receipts.
//
// Expiry is a read-time filter: stories are only returned while
// expires_at > now. Rows past expiry stay in the table until
// PurgeStoriesBefore removes them.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateStory inserts a story owned by userID, created at createdAt and
// visible for ttl.
func CreateStory(ctx context.Context, db *gorm.DB, userID, mediaURL, mediaType string, createdAt time.Time, ttl time.Duration) (*domain.Story, error) {
	createdAt = createdAt.UTC()
	s := &domain.Story{
		ID:        uuid.NewString(),
		UserID:    userID,
		MediaURL:  mediaURL,
		MediaType: mediaType,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetActiveStory fetches a story that is still visible at now. Unknown and
// expired stories both yield ErrNotFound.
func GetActiveStory(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.Story, error) {
	var s domain.Story
	err := db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, now.UTC()).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStory fetches a story by ID regardless of expiry.
func GetStory(ctx context.Context, db *gorm.DB, id string) (*domain.Story, error) {
	var s domain.Story
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActiveStories returns every story with expires_at > now, newest first.
func ListActiveStories(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Story, error) {
	var out []domain.Story
	err := db.WithContext(ctx).
		Where("expires_at > ?", now.UTC()).
		Order("created_at desc").Order("id desc").
		Find(&out).Error
	return out, err
}

// PurgeStoriesBefore hard-deletes stories with expires_at <= before, along
// with their view receipts, and returns the number of stories removed.
func PurgeStoriesBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	var purged int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&domain.Story{}).Select("id").Where("expires_at <= ?", before.UTC())
		if err := tx.Where("story_id IN (?)", expired).Delete(&domain.StoryView{}).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at <= ?", before.UTC()).Delete(&domain.Story{})
		purged = res.RowsAffected
		return res.Error
	})
	return purged, err
}

// CreateStoryView writes a view receipt unless one exists for the pair.
// created reports whether this call inserted the row.
func CreateStoryView(ctx context.Context, db *gorm.DB, storyID, viewerID string, at time.Time) (created bool, err error) {
	v := &domain.StoryView{
		ID:       uuid.NewString(),
		StoryID:  storyID,
		ViewerID: viewerID,
		ViewedAt: at.UTC(),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(v)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetStoryView returns the receipt for (storyID, viewerID), or ErrNotFound.
func GetStoryView(ctx context.Context, db *gorm.DB, storyID, viewerID string) (*domain.StoryView, error) {
	var v domain.StoryView
	err := db.WithContext(ctx).
		Where("story_id = ? AND viewer_id = ?", storyID, viewerID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CountStoryViews returns the number of distinct viewers of a story.
func CountStoryViews(ctx context.Context, db *gorm.DB, storyID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.StoryView{}).
		Where("story_id = ?", storyID).
		Distinct("viewer_id").
		Count(&n).Error
	return n, err
}

// StoryViewCounts returns viewer counts per story for storyIDs.
func StoryViewCounts(ctx context.Context, db *gorm.DB, storyIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(storyIDs))
	if len(storyIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		StoryID string
		N       int64
	}
	err := db.WithContext(ctx).
		Model(&domain.StoryView{}).
		Select("story_id, COUNT(DISTINCT viewer_id) AS n").
		Where("story_id IN ?", storyIDs).
		Group("story_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.StoryID] = r.N
	}
	return out, nil
}

// ListStoryViews returns a story's receipts, most recent first.
func ListStoryViews(ctx context.Context, db *gorm.DB, storyID string) ([]domain.StoryView, error) {
	var out []domain.StoryView
	err := db.WithContext(ctx).
		Where("story_id = ?", storyID).
		Order("viewed_at desc").Order("id desc").
		Find(&out).Error
	return out, err
}
