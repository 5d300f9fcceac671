// Package domain defines the persistence models for profiles, the follow
// graph, posts and their engagement, stories, notifications, and direct
// messages. These types are mapped with GORM and form the core data layer
// of the social backend.
package domain

import (
	"time"
)

// Story media kinds.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// Notification kinds.
const (
	NotifyLike      = "like"
	NotifyComment   = "comment"
	NotifyFollow    = "follow"
	NotifyStoryView = "story_view"
)

// Profile holds the mutable public attributes of an identity. The ID is
// issued by the external auth platform and never changes.
//
// Fields:
//   - ID: identity UUID (char(36)), primary key.
//   - Username: unique handle, lower-case.
//   - FullName / AvatarURL / Bio: optional display attributes.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Profile struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Username  string    `json:"username"   gorm:"type:varchar(30);not null;uniqueIndex:ux_profiles_username"`
	FullName  string    `json:"full_name"  gorm:"type:varchar(100);not null;default:''"`
	AvatarURL string    `json:"avatar_url" gorm:"type:varchar(512);not null;default:''"`
	Bio       string    `json:"bio"        gorm:"type:varchar(600);not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Follow is a directed edge of the social graph: FollowerID follows
// FollowingID. A pair may exist at most once and an identity cannot follow
// itself (both enforced by the schema).
type Follow struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	FollowerID  string    `json:"follower_id"  gorm:"type:char(36);not null;uniqueIndex:ux_follows_pair,priority:1;check:chk_follows_self,follower_id <> following_id"`
	FollowingID string    `json:"following_id" gorm:"type:char(36);not null;index:idx_follows_following;uniqueIndex:ux_follows_pair,priority:2"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Follow.
func (Follow) TableName() string { return "follows" }

// Post is a content item owned by one identity. It is immutable after
// creation; only its engagement (likes, comments) changes.
type Post struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_posts_owner_created,priority:1"`
	ImageURL  string    `json:"image_url"  gorm:"type:varchar(512);not null"`
	Caption   *string   `json:"caption"    gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_posts_owner_created,priority:2;index:idx_posts_created"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// Like records that an identity liked a post. A user can like a given post
// at most once (enforced by unique index).
//
// Post is the liked content. Likes are cascade-deleted with their post.
type Like struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	PostID    string    `json:"post_id"    gorm:"type:char(36);not null;index;uniqueIndex:ux_likes_post_user"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;uniqueIndex:ux_likes_post_user"`
	CreatedAt time.Time `json:"created_at"`

	Post Post `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Like.
func (Like) TableName() string { return "likes" }

// Comment is a short text attached to a post by an author. Only the author
// may delete it.
type Comment struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	PostID    string    `json:"post_id"    gorm:"type:char(36);not null;index:idx_comments_post,priority:1"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_comments_post,priority:2"`

	Post Post `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// Story is ephemeral media. It stays visible while now < ExpiresAt; after
// that it is filtered from every read and eventually purged by the reaper.
type Story struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	MediaURL  string    `json:"media_url"  gorm:"type:varchar(512);not null"`
	MediaType string    `json:"media_type" gorm:"type:varchar(8);not null;check:media_type IN ('image','video')"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

// TableName returns the database table name for Story.
func (Story) TableName() string { return "stories" }

// Active reports whether the story is still visible at now.
func (s Story) Active(now time.Time) bool { return now.Before(s.ExpiresAt) }

// StoryView is a receipt that ViewerID has seen StoryID. At most one
// receipt exists per (story, viewer).
type StoryView struct {
	ID       string    `json:"id"        gorm:"type:char(36);primaryKey"`
	StoryID  string    `json:"story_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_story_views_pair"`
	ViewerID string    `json:"viewer_id" gorm:"type:char(36);not null;uniqueIndex:ux_story_views_pair"`
	ViewedAt time.Time `json:"viewed_at"`

	Story Story `json:"-" gorm:"foreignKey:StoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for StoryView.
func (StoryView) TableName() string { return "story_views" }

// Notification tells UserID that ActorID did something (like, comment,
// follow, story view). PostID is set for post-related kinds.
type Notification struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_notifications_user,priority:1"`
	ActorID   string    `json:"actor_id"   gorm:"type:char(36);not null"`
	Type      string    `json:"type"       gorm:"type:varchar(16);not null;check:type IN ('like','comment','follow','story_view')"`
	PostID    *string   `json:"post_id"    gorm:"type:char(36)"`
	Read      bool      `json:"read"       gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_notifications_user,priority:2"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Conversation is a direct-message thread. UpdatedAt moves forward every
// time a message is sent so inboxes can be ordered by activity.
type Conversation struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// ConversationParticipant links an identity to a conversation.
type ConversationParticipant struct {
	ConversationID string `json:"conversation_id" gorm:"type:char(36);primaryKey"`
	UserID         string `json:"user_id"         gorm:"type:char(36);primaryKey;index"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationParticipant.
func (ConversationParticipant) TableName() string { return "conversation_participants" }

// DirectMessage is a single message within a conversation.
//
// Conversation is the parent thread. Messages are cascade-deleted if their
// conversation is removed.
type DirectMessage struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_dm_conversation,priority:1"`
	SenderID       string    `json:"sender_id"       gorm:"type:char(36);not null"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_dm_conversation,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DirectMessage.
func (DirectMessage) TableName() string { return "messages" }
