package domain

import "time"

// PlaceholderUsername is shown for authors whose profile could not be read.
const PlaceholderUsername = "unknown"

// ProfileSnapshot is the subset of a Profile embedded into feed items.
type ProfileSnapshot struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// Snapshot projects a profile into its feed-facing form.
func (p Profile) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{ID: p.ID, Username: p.Username, AvatarURL: p.AvatarURL}
}

// PlaceholderProfile is used when a post's author profile is unavailable.
func PlaceholderProfile(id string) ProfileSnapshot {
	return ProfileSnapshot{ID: id, Username: PlaceholderUsername}
}

// FeedItem is a post enriched with its author, like receipts and comment
// count. It is a read model and is never persisted.
type FeedItem struct {
	Post         Post            `json:"post"`
	Author       ProfileSnapshot `json:"author"`
	Likes        []Like          `json:"likes"`
	CommentCount int64           `json:"comment_count"`
}

// LikedBy reports whether userID is among the item's likers.
func (f FeedItem) LikedBy(userID string) bool {
	for _, l := range f.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

// ProfileView is a profile plus graph and content counters.
type ProfileView struct {
	Profile
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
	Posts     int64 `json:"posts"`
}

// StoryItem is an active story with its author. Viewers is set only when
// the requester owns the story.
type StoryItem struct {
	Story
	Author  ProfileSnapshot `json:"author"`
	Viewers *int64          `json:"viewers,omitempty"`
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	ID           string            `json:"id"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Participants []ProfileSnapshot `json:"participants"`
	LastMessage  *DirectMessage    `json:"last_message,omitempty"`
}

// StoryViewer is a view receipt with the viewer's snapshot.
type StoryViewer struct {
	StoryView
	Viewer ProfileSnapshot `json:"viewer"`
}

// CommentView is a comment with its author's snapshot.
type CommentView struct {
	Comment
	Author ProfileSnapshot `json:"author"`
}

// NotificationView is a notification with its actor's snapshot.
type NotificationView struct {
	Notification
	Actor ProfileSnapshot `json:"actor"`
}
