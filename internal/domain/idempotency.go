package domain

import "time"

// Idempotency represents a recorded result of a previously processed write,
// keyed by (user_id, resource_id, key). ResourceID is the parent the write
// targeted (a post for comments, a conversation for messages) and RecordID
// is the row the first request produced. Replays return that row without
// re-executing side effects.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_resource_key,priority:1"`
	ResourceID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_resource_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_resource_key,priority:3"`
	RecordID   string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
