package services

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/media"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// PostService creates and deletes posts.
type PostService struct {
	DB    *gorm.DB
	Bus   realtime.Publisher
	Media media.Store

	MaxCaptionRunes int
}

// NewPostService constructs a PostService.
func NewPostService(db *gorm.DB, bus realtime.Publisher, store media.Store) *PostService {
	return &PostService{DB: db, Bus: bus, Media: store, MaxCaptionRunes: MaxCaptionRunes}
}

// Create stores a post for owner. An empty caption is stored as NULL.
func (s *PostService) Create(ctx context.Context, owner, imageURL, caption string) (*domain.Post, error) {
	ctx, span := otel.Tracer("services/PostService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", owner),
		),
	)
	defer span.End()

	if strings.TrimSpace(owner) == "" || strings.TrimSpace(imageURL) == "" {
		return nil, ErrInvalidInput
	}
	var capPtr *string
	if c := normalizeText(caption); c != "" {
		if s.MaxCaptionRunes > 0 && utf8.RuneCountInString(c) > s.MaxCaptionRunes {
			return nil, ErrTooLong
		}
		capPtr = &c
	}

	p, err := repo.CreatePost(ctx, s.DB, owner, strings.TrimSpace(imageURL), capPtr)
	if err != nil {
		return nil, classify(err)
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityPosts, Op: realtime.OpInsert, RecordID: p.ID, Key: owner,
	})
	return p, nil
}

// Upload stores an image and creates a post for it. Only image/* content
// types are accepted.
func (s *PostService) Upload(ctx context.Context, owner, filename, contentType string, r io.Reader, size int64, caption string) (*domain.Post, error) {
	ctx, span := otel.Tracer("services/PostService").Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.String("media.content_type", contentType),
		),
	)
	defer span.End()

	if strings.TrimSpace(owner) == "" {
		return nil, ErrInvalidInput
	}
	if kind, err := MediaTypeFor(contentType); err != nil || kind != domain.MediaImage {
		return nil, ErrInvalidMedia
	}
	if s.MaxCaptionRunes > 0 && utf8.RuneCountInString(normalizeText(caption)) > s.MaxCaptionRunes {
		return nil, ErrTooLong
	}
	if s.Media == nil {
		return nil, ErrNoMediaStore
	}

	key := media.ObjectKey("posts", owner, filename, timeNow())
	url, err := s.Media.Put(ctx, key, contentType, r, size)
	if err != nil {
		return nil, transient("store post image", err)
	}
	return s.Create(ctx, owner, url, caption)
}

// Delete removes a post and its engagement. Only the owner may delete it.
func (s *PostService) Delete(ctx context.Context, postID, owner string) error {
	ctx, span := otel.Tracer("services/PostService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.String("user.id", owner),
		),
	)
	defer span.End()

	p, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		return classify(err)
	}
	if p.UserID != owner {
		return ErrUnauthorized
	}
	if err := repo.DeletePost(ctx, s.DB, postID); err != nil {
		return classify(err)
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityPosts, Op: realtime.OpDelete, RecordID: postID, Key: owner,
	})
	return nil
}
