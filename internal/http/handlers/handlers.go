// Package handlers exposes the public REST API of the social backend.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses (including
// conditional and replayed responses). Business rules live in the services
// package.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// FeedService builds the aggregated read models served by the feed endpoints.
type FeedService interface {
	HomeFeed(ctx context.Context, viewer string, page, pageSize int) ([]domain.FeedItem, int64, error)
	ExploreFeed(ctx context.Context, page, pageSize int) ([]domain.FeedItem, int64, error)
	UserPosts(ctx context.Context, owner string, page, pageSize int) ([]domain.FeedItem, int64, error)
	GetPost(ctx context.Context, id string) (*domain.FeedItem, error)
}

// GraphService manages follow edges.
type GraphService interface {
	Follow(ctx context.Context, follower, followee string) (bool, error)
	Unfollow(ctx context.Context, follower, followee string) error
	Followers(ctx context.Context, identity string) ([]domain.ProfileSnapshot, error)
	Following(ctx context.Context, identity string) ([]domain.ProfileSnapshot, error)
	IsFollowing(ctx context.Context, a, b string) (bool, error)
}

// PostService creates and removes posts.
type PostService interface {
	Create(ctx context.Context, owner, imageURL, caption string) (*domain.Post, error)
	Upload(ctx context.Context, owner, filename, contentType string, r io.Reader, size int64, caption string) (*domain.Post, error)
	Delete(ctx context.Context, postID, owner string) error
}

// EngagementService handles likes and comments.
type EngagementService interface {
	Like(ctx context.Context, postID, user string) (bool, error)
	Unlike(ctx context.Context, postID, user string) error
	AddComment(ctx context.Context, postID, user, content string) (*domain.Comment, error)
	Comment(ctx context.Context, id string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, commentID, user string) error
	ListComments(ctx context.Context, postID string) ([]domain.CommentView, error)
}

// StoryService publishes ephemeral stories and tracks their views.
type StoryService interface {
	Create(ctx context.Context, owner, mediaURL, mediaType string) (*domain.Story, error)
	Upload(ctx context.Context, owner, filename, contentType string, r io.Reader, size int64) (*domain.Story, error)
	ActiveStories(ctx context.Context, now time.Time, viewer string) ([]domain.StoryItem, error)
	RecordView(ctx context.Context, storyID, viewer string) (*domain.StoryView, error)
	Viewers(ctx context.Context, storyID, requester string) ([]domain.StoryViewer, error)
	ViewerCountFor(ctx context.Context, storyID string) (int64, error)
}

// ProfileService reads, provisions and updates profiles.
type ProfileService interface {
	Get(ctx context.Context, id string) (*domain.ProfileView, error)
	Ensure(ctx context.Context, id, username string) (*domain.Profile, error)
	Update(ctx context.Context, id string, patch services.ProfilePatch) (*domain.Profile, error)
	Search(ctx context.Context, q string, limit int) ([]domain.ProfileSnapshot, error)
}

// NotificationService lists and acknowledges notifications.
type NotificationService interface {
	List(ctx context.Context, userID string, page, pageSize int) ([]domain.NotificationView, int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// MessagingService handles direct-message conversations.
type MessagingService interface {
	Start(ctx context.Context, a, b string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, user string) ([]domain.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID, user string, page, pageSize int) ([]domain.DirectMessage, int64, error)
	Send(ctx context.Context, conversationID, sender, content string) (*domain.DirectMessage, error)
	Message(ctx context.Context, id string) (*domain.DirectMessage, error)
}

//
// Handler wiring
//

// Services bundles the application services the handlers delegate to.
type Services struct {
	Feed          FeedService
	Graph         GraphService
	Posts         PostService
	Engagement    EngagementService
	Stories       StoryService
	Profiles      ProfileService
	Notifications NotificationService
	Messaging     MessagingService
}

// Options carries the transport-level collaborators.
//
// DB backs idempotency records and the stats-based ETags; when nil both are
// skipped. Versions backs the feed and story ETags; when nil those
// endpoints are served without an ETag.
type Options struct {
	DB             *gorm.DB
	Versions       *realtime.Versions
	IdempotencyTTL time.Duration
	MaxUploadBytes int64
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	svc  Services
	opts Options

	// boot distinguishes Versions counters across restarts.
	boot string
	now  func() time.Time
}

// New constructs and returns a Handlers instance bound to the given services.
func New(svc Services, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{
		svc:  svc,
		opts: opts,
		boot: strconv.FormatInt(time.Now().UnixNano(), 36),
		now:  time.Now,
	}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// userID returns the caller identity set by middleware.Identity, or "".
func userID(c *gin.Context) string { return middleware.UserID(c) }

// requireUser returns the caller identity or aborts with 401.
func requireUser(c *gin.Context) (string, bool) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return "", false
	}
	return uid, true
}

// pathUUID reads a path parameter that must be a UUID.
func pathUUID(c *gin.Context, name, what string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, what+" id must be a UUID")
		return "", false
	}
	return id, true
}

// clampPagination reads page and page_size from the query string.
func clampPagination(c *gin.Context) (page, pageSize int) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"))
	return p.Number, p.Size
}

// notModified sets etag and reports whether the request already holds it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// versionTag builds a weak ETag from in-process change counters.
func (h *Handlers) versionTag(kind string, parts ...any) string {
	s := fmt.Sprintf(`W/"%s:%s`, kind, h.boot)
	for _, p := range parts {
		s += fmt.Sprintf(":%v", p)
	}
	return s + `"`
}

// replayed looks up a stored Idempotency-Key result for (caller, resource)
// and returns the recorded row ID.
func (h *Handlers) replayed(c *gin.Context, uid, resourceID string) (key, recordID string) {
	key, _ = middleware.GetIdempotencyKey(c)
	if key == "" || h.opts.DB == nil {
		return key, ""
	}
	rec, err := repo.FindIdempotent(c.Request.Context(), h.opts.DB, repo.IdemKey{UserID: uid, ResourceID: resourceID, Key: key}, h.now().UTC())
	if err != nil || rec == nil {
		return key, ""
	}
	return key, rec.RecordID
}

// remember stores the result of a keyed write. Failures are logged and
// otherwise ignored; the write itself already succeeded.
func (h *Handlers) remember(c *gin.Context, uid, resourceID, key, recordID string, status int) {
	if key == "" || h.opts.DB == nil {
		return
	}
	k := repo.IdemKey{UserID: uid, ResourceID: resourceID, Key: key}
	if _, err := repo.SaveIdempotent(c.Request.Context(), h.opts.DB, k, recordID, status, h.now().UTC(), h.opts.IdempotencyTTL); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("resource_id", resourceID).Msg("idempotency record not stored")
	}
}

// isBodyTooLarge reports whether err came from the body size limiter.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
