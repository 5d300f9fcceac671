// Package services: GraphService
//
// GraphService reads and mutates the follow graph. Its central query,
// ResolveFeedScope, decides whose posts make up a viewer's home feed: the
// viewer plus everyone the viewer follows.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/observability"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// GraphService coordinates follow edges.
type GraphService struct {
	DB  *gorm.DB
	Bus realtime.Publisher
}

// NewGraphService constructs a GraphService.
func NewGraphService(db *gorm.DB, bus realtime.Publisher) *GraphService {
	return &GraphService{DB: db, Bus: bus}
}

// ResolveFeedScope returns identity together with every identity it follows,
// deduplicated and sorted ascending. An empty or unknown identity resolves
// to an empty scope.
func (s *GraphService) ResolveFeedScope(ctx context.Context, identity string) ([]string, error) {
	ctx, span := otel.Tracer("services/GraphService").Start(ctx, "ResolveFeedScope",
		trace.WithAttributes(attribute.String("user.id", identity)),
	)
	defer span.End()

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return []string{}, nil
	}

	exists, err := repo.ProfileExists(ctx, s.DB, identity)
	if err != nil {
		return nil, transient("resolve identity", err)
	}
	if !exists {
		return []string{}, nil
	}

	followees, err := repo.FollowingIDs(ctx, s.DB, identity)
	if err != nil {
		return nil, transient("load followees", err)
	}

	scope := uniq(append([]string{identity}, followees...))
	sort.Strings(scope)
	span.SetAttributes(attribute.Int("scope.size", len(scope)))
	return scope, nil
}

// Follow creates the edge follower→followee. A repeated follow is absorbed
// and reports created=false. A new edge notifies the followee.
func (s *GraphService) Follow(ctx context.Context, follower, followee string) (created bool, err error) {
	ctx, span := otel.Tracer("services/GraphService").Start(ctx, "Follow",
		trace.WithAttributes(
			attribute.String("user.id", follower),
			attribute.String("followee.id", followee),
		),
	)
	defer span.End()

	follower, followee = strings.TrimSpace(follower), strings.TrimSpace(followee)
	if follower == "" || followee == "" || follower == followee {
		return false, ErrInvalidInput
	}

	exists, err := repo.ProfileExists(ctx, s.DB, followee)
	if err != nil {
		return false, classify(err)
	}
	if !exists {
		return false, ErrNotFound
	}

	var note *domain.Notification
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.CreateFollow(ctx, tx, follower, followee)
		if err != nil {
			return err
		}
		created = ok
		if !ok {
			return nil
		}
		note, err = notifyTx(ctx, tx, followee, follower, domain.NotifyFollow, nil)
		return err
	})
	if err != nil {
		return false, classify(err)
	}

	if !created {
		observability.IncConflictAbsorbed("follow")
		return false, nil
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityFollows, Op: realtime.OpInsert, RecordID: followee, Key: follower,
	})
	if note != nil {
		publish(ctx, s.Bus, notificationEvent(note, realtime.OpInsert))
	}
	return true, nil
}

// Unfollow removes the edge follower→followee. A missing edge is a no-op.
func (s *GraphService) Unfollow(ctx context.Context, follower, followee string) error {
	ctx, span := otel.Tracer("services/GraphService").Start(ctx, "Unfollow",
		trace.WithAttributes(
			attribute.String("user.id", follower),
			attribute.String("followee.id", followee),
		),
	)
	defer span.End()

	if strings.TrimSpace(follower) == "" || strings.TrimSpace(followee) == "" {
		return ErrInvalidInput
	}
	n, err := repo.DeleteFollow(ctx, s.DB, follower, followee)
	if err != nil {
		return classify(err)
	}
	if n > 0 {
		publish(ctx, s.Bus, realtime.Event{
			Entity: realtime.EntityFollows, Op: realtime.OpDelete, RecordID: followee, Key: follower,
		})
	}
	return nil
}

// Followers lists who follows identity, most recent edge first.
func (s *GraphService) Followers(ctx context.Context, identity string) ([]domain.ProfileSnapshot, error) {
	edges, err := repo.ListFollowers(ctx, s.DB, identity)
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FollowerID)
	}
	return s.resolve(ctx, ids), nil
}

// Following lists whom identity follows, most recent edge first.
func (s *GraphService) Following(ctx context.Context, identity string) ([]domain.ProfileSnapshot, error) {
	edges, err := repo.ListFollowing(ctx, s.DB, identity)
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FollowingID)
	}
	return s.resolve(ctx, ids), nil
}

// IsFollowing reports whether a follows b.
func (s *GraphService) IsFollowing(ctx context.Context, a, b string) (bool, error) {
	ok, err := repo.IsFollowing(ctx, s.DB, a, b)
	return ok, classify(err)
}

func (s *GraphService) resolve(ctx context.Context, ids []string) []domain.ProfileSnapshot {
	profiles, err := repo.ProfilesByIDs(ctx, s.DB, ids)
	if err != nil {
		logFrom(ctx).Warn().Err(err).Msg("graph profiles unavailable; using placeholders")
	}
	snaps, _ := snapshots(profiles, ids)
	out := make([]domain.ProfileSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, snaps[id])
	}
	return out
}
