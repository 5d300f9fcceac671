// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Post model
// and the feed queries built on it.
//
// Feed queries always order by created_at DESC, id DESC so that posts sharing
// a timestamp still come back in a stable order across calls and pages.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreatePost inserts a new Post owned by userID. The post ID is a random UUID
// and CreatedAt is set to UTC.
func CreatePost(ctx context.Context, db *gorm.DB, userID, imageURL string, caption *string) (*domain.Post, error) {
	p := &domain.Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		ImageURL:  imageURL,
		Caption:   caption,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPost fetches a single post by ID, or ErrNotFound.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.Post, error) {
	var p domain.Post
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePost removes a post together with its likes and comments in one
// transaction. Engagement rows are deleted explicitly so the result does not
// depend on the connection having foreign keys enabled.
func DeletePost(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&domain.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListPostsByOwners returns posts whose owner is in owners, newest first.
// A non-positive limit returns every matching row. An empty owners slice
// returns nil without querying.
func ListPostsByOwners(ctx context.Context, db *gorm.DB, owners []string, offset, limit int) ([]domain.Post, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	q := db.WithContext(ctx).
		Where("user_id IN ?", owners).
		Order("created_at desc").Order("id desc")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	var out []domain.Post
	err := q.Find(&out).Error
	return out, err
}

// CountPostsByOwners returns the number of posts owned by any of owners.
func CountPostsByOwners(ctx context.Context, db *gorm.DB, owners []string) (int64, error) {
	if len(owners) == 0 {
		return 0, nil
	}
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("user_id IN ?", owners).
		Count(&total).Error
	return total, err
}

// ListRecentPosts returns the newest limit posts regardless of owner.
func ListRecentPosts(ctx context.Context, db *gorm.DB, limit int) ([]domain.Post, error) {
	var out []domain.Post
	err := db.WithContext(ctx).
		Order("created_at desc").Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
