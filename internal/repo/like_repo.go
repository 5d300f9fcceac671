package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateLike records that userID liked postID. The insert uses
// ON CONFLICT DO NOTHING against ux_likes_post_user, so concurrent or
// repeated likes collapse into one row; created reports whether this call
// wrote it.
func CreateLike(ctx context.Context, db *gorm.DB, postID, userID string) (created bool, err error) {
	l := &domain.Like{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(l)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteLike removes userID's like on postID and returns the deleted count.
func DeleteLike(ctx context.Context, db *gorm.DB, postID, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&domain.Like{})
	return res.RowsAffected, res.Error
}

// LikesForPosts loads every like attached to postIDs, grouped by post and
// ordered oldest first. Posts without likes are absent from the map.
func LikesForPosts(ctx context.Context, db *gorm.DB, postIDs []string) (map[string][]domain.Like, error) {
	out := make(map[string][]domain.Like, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []domain.Like
	err := db.WithContext(ctx).
		Where("post_id IN ?", postIDs).
		Order("created_at asc").Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, l := range rows {
		out[l.PostID] = append(out[l.PostID], l)
	}
	return out, nil
}

// CountLikes returns how many likes a post has.
func CountLikes(ctx context.Context, db *gorm.DB, postID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Like{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}
