// Package services: StoryService
//
// StoryService owns ephemeral stories. A story is visible while
// now < expires_at; visibility is decided at read time, so no state changes
// when a story expires. View receipts are unique per (story, viewer) and
// recording the same view twice returns the original receipt.
package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/media"
	"github.com/tbourn/go-social-backend/internal/observability"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// DefaultStoryTTL is how long a story stays visible.
const DefaultStoryTTL = 24 * time.Hour

// ErrNoMediaStore is returned by uploads when no media store is configured.
var ErrNoMediaStore = errors.New("media store not configured")

// StoryService manages stories and their view receipts.
type StoryService struct {
	DB    *gorm.DB
	Bus   realtime.Publisher
	Media media.Store
	TTL   time.Duration

	// Now is the clock used for expiry; tests replace it.
	Now func() time.Time
}

// NewStoryService constructs a StoryService with the default TTL.
func NewStoryService(db *gorm.DB, bus realtime.Publisher, store media.Store) *StoryService {
	return &StoryService{DB: db, Bus: bus, Media: store, TTL: DefaultStoryTTL, Now: time.Now}
}

func (s *StoryService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *StoryService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultStoryTTL
}

// MediaTypeFor maps a MIME content type onto a story media kind.
func MediaTypeFor(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "video/"):
		return domain.MediaVideo, nil
	case strings.HasPrefix(ct, "image/"):
		return domain.MediaImage, nil
	}
	return "", ErrInvalidMedia
}

// Create publishes a story for owner that expires TTL from now.
func (s *StoryService) Create(ctx context.Context, owner, mediaURL, mediaType string) (*domain.Story, error) {
	ctx, span := otel.Tracer("services/StoryService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", owner)),
	)
	defer span.End()

	if strings.TrimSpace(owner) == "" || strings.TrimSpace(mediaURL) == "" {
		return nil, ErrInvalidInput
	}
	if mediaType != domain.MediaImage && mediaType != domain.MediaVideo {
		return nil, ErrInvalidMedia
	}

	st, err := repo.CreateStory(ctx, s.DB, owner, strings.TrimSpace(mediaURL), mediaType, s.now(), s.ttl())
	if err != nil {
		return nil, classify(err)
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityStories, Op: realtime.OpInsert, RecordID: st.ID, Key: owner,
	})
	return st, nil
}

// Upload stores the media blob and creates a story pointing at it.
func (s *StoryService) Upload(ctx context.Context, owner, filename, contentType string, r io.Reader, size int64) (*domain.Story, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrInvalidInput
	}
	kind, err := MediaTypeFor(contentType)
	if err != nil {
		return nil, err
	}
	if s.Media == nil {
		return nil, ErrNoMediaStore
	}

	key := media.ObjectKey("stories", owner, filename, s.now())
	url, err := s.Media.Put(ctx, key, contentType, r, size)
	if err != nil {
		return nil, transient("store story media", err)
	}
	return s.Create(ctx, owner, url, kind)
}

// ActiveStories returns the stories visible at now, newest first, with
// their author snapshot. Viewer counts are attached only to the stories
// viewer owns; anonymous callers (viewer "") get none.
func (s *StoryService) ActiveStories(ctx context.Context, now time.Time, viewer string) ([]domain.StoryItem, error) {
	ctx, span := otel.Tracer("services/StoryService").Start(ctx, "ActiveStories",
		trace.WithAttributes(attribute.String("user.id", viewer)),
	)
	defer span.End()

	stories, err := repo.ListActiveStories(ctx, s.DB, now)
	if err != nil {
		return nil, transient("load stories", err)
	}
	if len(stories) == 0 {
		return []domain.StoryItem{}, nil
	}

	var own []string
	owners := make([]string, 0, len(stories))
	for _, st := range stories {
		owners = append(owners, st.UserID)
		if viewer != "" && st.UserID == viewer {
			own = append(own, st.ID)
		}
	}
	counts, err := repo.StoryViewCounts(ctx, s.DB, own)
	if err != nil {
		return nil, transient("count story views", err)
	}
	profiles, perr := repo.ProfilesByIDs(ctx, s.DB, uniq(owners))
	if perr != nil {
		logFrom(ctx).Warn().Err(perr).Msg("story authors unavailable; using placeholders")
	}
	snaps, degraded := snapshots(profiles, owners)
	observability.IncDegraded(degraded)

	out := make([]domain.StoryItem, 0, len(stories))
	for _, st := range stories {
		it := domain.StoryItem{Story: st, Author: snaps[st.UserID]}
		if viewer != "" && st.UserID == viewer {
			n := counts[st.ID]
			it.Viewers = &n
		}
		out = append(out, it)
	}
	span.SetAttributes(attribute.Int("stories", len(out)), attribute.Int("owned", len(own)))
	return out, nil
}

// RecordView records that viewer saw storyID. It is idempotent: a repeated
// view returns the first receipt and writes nothing. Unknown or expired
// stories yield ErrNotFound. The owner is notified on the first view by
// someone else.
func (s *StoryService) RecordView(ctx context.Context, storyID, viewer string) (*domain.StoryView, error) {
	ctx, span := otel.Tracer("services/StoryService").Start(ctx, "RecordView",
		trace.WithAttributes(
			attribute.String("story.id", storyID),
			attribute.String("user.id", viewer),
		),
	)
	defer span.End()

	if strings.TrimSpace(viewer) == "" || strings.TrimSpace(storyID) == "" {
		return nil, ErrInvalidInput
	}
	now := s.now()
	st, err := repo.GetActiveStory(ctx, s.DB, storyID, now)
	if err != nil {
		return nil, classify(err)
	}

	var (
		created bool
		note    *domain.Notification
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.CreateStoryView(ctx, tx, storyID, viewer, now)
		if err != nil {
			return err
		}
		created = ok
		if !ok {
			return nil
		}
		note, err = notifyTx(ctx, tx, st.UserID, viewer, domain.NotifyStoryView, nil)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	v, err := repo.GetStoryView(ctx, s.DB, storyID, viewer)
	if err != nil {
		return nil, classify(err)
	}
	if !created {
		observability.IncConflictAbsorbed("story_view")
		return v, nil
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityStoryViews, Op: realtime.OpInsert, RecordID: v.ID, Key: storyID,
	})
	if note != nil {
		publish(ctx, s.Bus, notificationEvent(note, realtime.OpInsert))
	}
	return v, nil
}

// ViewerCountFor returns the number of distinct viewers of a story. It does
// not check ownership; callers gate it behind Viewers or ActiveStories.
func (s *StoryService) ViewerCountFor(ctx context.Context, storyID string) (int64, error) {
	ctx, span := otel.Tracer("services/StoryService").Start(ctx, "ViewerCountFor",
		trace.WithAttributes(attribute.String("story.id", storyID)),
	)
	defer span.End()

	n, err := repo.CountStoryViews(ctx, s.DB, storyID)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Viewers lists a story's receipts, most recent first. Only the owner may
// see them.
func (s *StoryService) Viewers(ctx context.Context, storyID, requester string) ([]domain.StoryViewer, error) {
	st, err := repo.GetStory(ctx, s.DB, storyID)
	if err != nil {
		return nil, classify(err)
	}
	if st.UserID != requester {
		return nil, ErrUnauthorized
	}
	views, err := repo.ListStoryViews(ctx, s.DB, storyID)
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ViewerID)
	}
	profiles, perr := repo.ProfilesByIDs(ctx, s.DB, ids)
	if perr != nil {
		logFrom(ctx).Warn().Err(perr).Msg("story viewers unavailable; using placeholders")
	}
	snaps, _ := snapshots(profiles, ids)

	out := make([]domain.StoryViewer, 0, len(views))
	for _, v := range views {
		out = append(out, domain.StoryViewer{StoryView: v, Viewer: snaps[v.ViewerID]})
	}
	return out, nil
}

// PurgeExpired hard-deletes stories that expired at or before before.
func (s *StoryService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := repo.PurgeStoriesBefore(ctx, s.DB, before)
	if err != nil {
		return 0, classify(err)
	}
	if n > 0 {
		publish(ctx, s.Bus, realtime.Event{Entity: realtime.EntityStories, Op: realtime.OpDelete})
	}
	return n, nil
}
