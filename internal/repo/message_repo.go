package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

func CreateDirectMessage(ctx context.Context, db *gorm.DB, conversationID, senderID, content string) (*domain.DirectMessage, error) {
	m := &domain.DirectMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&total).Error
	return total, err
}

func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.DirectMessage, error) {
	var out []domain.DirectMessage
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func GetDirectMessage(ctx context.Context, db *gorm.DB, id string) (*domain.DirectMessage, error) {
	var m domain.DirectMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// LastMessages returns the newest message of each conversation in ids.
// Conversations without messages are absent from the map.
func LastMessages(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.DirectMessage, error) {
	out := make(map[string]domain.DirectMessage, len(ids))
	for _, id := range ids {
		var m domain.DirectMessage
		err := db.WithContext(ctx).
			Where("conversation_id = ?", id).
			Order("created_at DESC, id DESC").
			Limit(1).
			Find(&m).Error
		if err != nil {
			return nil, err
		}
		if m.ID != "" {
			out[id] = m
		}
	}
	return out, nil
}
