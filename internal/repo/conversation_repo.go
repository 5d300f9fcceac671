// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for direct-message
// conversations and their participants.
//
// Functions:
//
//   - CreateConversation(ctx, db, participants...) -> *domain.Conversation, error
//     Inserts a conversation and its participant rows in one transaction.
//
//   - FindDirectConversation(ctx, db, a, b) -> *domain.Conversation, error
//     Returns the existing two-party conversation between a and b, or ErrNotFound.
//
//   - ListConversationsForUser(ctx, db, userID) -> []domain.Conversation, error
//     Returns the user's conversations ordered by last activity.
//
//   - IsParticipant / ParticipantIDs / TouchConversation
//     Membership checks, participant lookup, and activity bump on send.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateConversation inserts a new conversation with the given participants.
func CreateConversation(ctx context.Context, db *gorm.DB, participants ...string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		rows := make([]domain.ConversationParticipant, 0, len(participants))
		for _, p := range participants {
			rows = append(rows, domain.ConversationParticipant{ConversationID: c.ID, UserID: p})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindDirectConversation returns a conversation whose participants are
// exactly a and b.
func FindDirectConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	both := db.Model(&domain.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id IN ?", []string{a, b}).
		Group("conversation_id").
		Having("COUNT(DISTINCT user_id) = 2")
	exactlyTwo := db.Model(&domain.ConversationParticipant{}).
		Select("conversation_id").
		Group("conversation_id").
		Having("COUNT(*) = 2")

	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("id IN (?) AND id IN (?)", both, exactlyTwo).
		Order("updated_at desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a conversation by ID, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsForUser returns userID's conversations, most recently
// active first.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	mine := db.Model(&domain.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id = ?", userID)
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("id IN (?)", mine).
		Order("updated_at desc").Order("id desc").
		Find(&out).Error
	return out, err
}

// IsParticipant reports whether userID belongs to conversation id.
func IsParticipant(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", id, userID).
		Count(&n).Error
	return n > 0, err
}

// ParticipantIDs returns participant user IDs keyed by conversation.
func ParticipantIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.ConversationParticipant
	err := db.WithContext(ctx).
		Where("conversation_id IN ?", ids).
		Order("user_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ConversationID] = append(out[r.ConversationID], r.UserID)
	}
	return out, nil
}

// TouchConversation moves the conversation's updated_at to at.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", at.UTC()).Error
}
