package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateFollow inserts the edge follower→following. A pair that already
// exists is left untouched; created reports whether a new row was written.
func CreateFollow(ctx context.Context, db *gorm.DB, follower, following string) (created bool, err error) {
	f := &domain.Follow{
		ID:          uuid.NewString(),
		FollowerID:  follower,
		FollowingID: following,
		CreatedAt:   time.Now().UTC(),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteFollow removes the edge follower→following and returns the number of
// deleted rows (0 when the edge did not exist).
func DeleteFollow(ctx context.Context, db *gorm.DB, follower, following string) (int64, error) {
	res := db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", follower, following).
		Delete(&domain.Follow{})
	return res.RowsAffected, res.Error
}

// FollowingIDs returns the IDs that follower follows.
func FollowingIDs(ctx context.Context, db *gorm.DB, follower string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Follow{}).
		Where("follower_id = ?", follower).
		Pluck("following_id", &ids).Error
	return ids, err
}

// ListFollowers returns edges pointing at id, newest first.
func ListFollowers(ctx context.Context, db *gorm.DB, id string) ([]domain.Follow, error) {
	var out []domain.Follow
	err := db.WithContext(ctx).
		Where("following_id = ?", id).
		Order("created_at desc").Order("id desc").
		Find(&out).Error
	return out, err
}

// ListFollowing returns edges leaving id, newest first.
func ListFollowing(ctx context.Context, db *gorm.DB, id string) ([]domain.Follow, error) {
	var out []domain.Follow
	err := db.WithContext(ctx).
		Where("follower_id = ?", id).
		Order("created_at desc").Order("id desc").
		Find(&out).Error
	return out, err
}

// IsFollowing reports whether the edge a→b exists.
func IsFollowing(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Follow{}).
		Where("follower_id = ? AND following_id = ?", a, b).
		Count(&n).Error
	return n > 0, err
}

// FollowCounts returns how many identities follow id and how many id follows.
func FollowCounts(ctx context.Context, db *gorm.DB, id string) (followers, following int64, err error) {
	q := db.WithContext(ctx).Model(&domain.Follow{})
	if err = q.Where("following_id = ?", id).Count(&followers).Error; err != nil {
		return 0, 0, err
	}
	q = db.WithContext(ctx).Model(&domain.Follow{})
	if err = q.Where("follower_id = ?", id).Count(&following).Error; err != nil {
		return 0, 0, err
	}
	return followers, following, nil
}
