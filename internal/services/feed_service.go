// Package services: FeedService
//
// FeedService aggregates posts into feed items. For a scope (a set of owner
// IDs) it loads the posts newest first and enriches each one with its
// author's profile snapshot, its like receipts and its comment count, then
// hands the result to the ranking package.
//
// Partial failures are handled asymmetrically: a missing or unreadable
// author profile degrades to a placeholder, while a failure to read likes or
// comment counts aborts the request with ErrTransient.
//
// Observability: every surface is traced and timed
// (feed_aggregation_duration_seconds, feed_items_returned).
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/observability"
	"github.com/tbourn/go-social-backend/internal/ranking"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// DefaultExploreWindow is how many recent posts the explore feed ranks.
const DefaultExploreWindow = 50

// Feed surfaces, used as metric labels.
const (
	SurfaceHome    = "home"
	SurfaceExplore = "explore"
	SurfaceUser    = "user"
	SurfacePost    = "post"
)

// FeedService builds home, explore and profile feeds.
type FeedService struct {
	DB    *gorm.DB
	Graph *GraphService

	ExploreWindow int
}

// NewFeedService constructs a FeedService with the default explore window.
func NewFeedService(db *gorm.DB, graph *GraphService) *FeedService {
	return &FeedService{DB: db, Graph: graph, ExploreWindow: DefaultExploreWindow}
}

// FetchContentFor returns every post owned by a member of scope, newest
// first, each exactly once. An empty scope returns an empty slice without
// querying the store.
func (s *FeedService) FetchContentFor(ctx context.Context, scope []string) ([]domain.FeedItem, error) {
	ctx, span := otel.Tracer("services/FeedService").Start(ctx, "FetchContentFor",
		trace.WithAttributes(attribute.Int("scope.size", len(scope))),
	)
	defer span.End()

	if len(scope) == 0 {
		return []domain.FeedItem{}, nil
	}
	posts, err := repo.ListPostsByOwners(ctx, s.DB, uniq(scope), 0, 0)
	if err != nil {
		return nil, transient("load posts", err)
	}
	return s.enrich(ctx, posts)
}

// HomeFeed returns one page of the viewer's home feed in chronological
// order, plus the total number of posts in scope.
func (s *FeedService) HomeFeed(ctx context.Context, viewer string, page, pageSize int) ([]domain.FeedItem, int64, error) {
	ctx, span := otel.Tracer("services/FeedService").Start(ctx, "HomeFeed",
		trace.WithAttributes(
			attribute.String("user.id", viewer),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()
	started := time.Now()

	scope, err := s.Graph.ResolveFeedScope(ctx, viewer)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.pageFor(ctx, scope, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	items = ranking.Rank(items, ranking.Chronological)
	observability.ObserveFeed(SurfaceHome, started, len(items))
	return items, total, nil
}

// ExploreFeed ranks the most recent ExploreWindow posts by engagement and
// returns the requested page of that ranking.
func (s *FeedService) ExploreFeed(ctx context.Context, page, pageSize int) ([]domain.FeedItem, int64, error) {
	ctx, span := otel.Tracer("services/FeedService").Start(ctx, "ExploreFeed",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()
	started := time.Now()

	window := s.ExploreWindow
	if window <= 0 {
		window = DefaultExploreWindow
	}
	posts, err := repo.ListRecentPosts(ctx, s.DB, window)
	if err != nil {
		return nil, 0, transient("load recent posts", err)
	}
	items, err := s.enrich(ctx, posts)
	if err != nil {
		return nil, 0, err
	}
	ranked := ranking.Rank(items, ranking.Engagement)

	total := int64(len(ranked))
	offset, limit := pageBounds(page, pageSize)
	if offset >= len(ranked) {
		ranked = []domain.FeedItem{}
	} else {
		end := offset + limit
		if end > len(ranked) {
			end = len(ranked)
		}
		ranked = ranked[offset:end]
	}
	observability.ObserveFeed(SurfaceExplore, started, len(ranked))
	return ranked, total, nil
}

// UserPosts returns one page of owner's posts for the profile grid.
func (s *FeedService) UserPosts(ctx context.Context, owner string, page, pageSize int) ([]domain.FeedItem, int64, error) {
	ctx, span := otel.Tracer("services/FeedService").Start(ctx, "UserPosts",
		trace.WithAttributes(attribute.String("owner.id", owner)),
	)
	defer span.End()
	started := time.Now()

	if owner == "" {
		return nil, 0, ErrInvalidInput
	}
	items, total, err := s.pageFor(ctx, []string{owner}, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	observability.ObserveFeed(SurfaceUser, started, len(items))
	return items, total, nil
}

// GetPost returns a single enriched post.
func (s *FeedService) GetPost(ctx context.Context, id string) (*domain.FeedItem, error) {
	ctx, span := otel.Tracer("services/FeedService").Start(ctx, "GetPost",
		trace.WithAttributes(attribute.String("post.id", id)),
	)
	defer span.End()
	started := time.Now()

	p, err := repo.GetPost(ctx, s.DB, id)
	if err != nil {
		return nil, classify(err)
	}
	items, err := s.enrich(ctx, []domain.Post{*p})
	if err != nil {
		return nil, err
	}
	observability.ObserveFeed(SurfacePost, started, 1)
	return &items[0], nil
}

func (s *FeedService) pageFor(ctx context.Context, scope []string, page, pageSize int) ([]domain.FeedItem, int64, error) {
	if len(scope) == 0 {
		return []domain.FeedItem{}, 0, nil
	}
	offset, limit := pageBounds(page, pageSize)

	total, err := repo.CountPostsByOwners(ctx, s.DB, scope)
	if err != nil {
		return nil, 0, transient("count posts", err)
	}
	if total == 0 || int64(offset) >= total {
		return []domain.FeedItem{}, total, nil
	}
	posts, err := repo.ListPostsByOwners(ctx, s.DB, scope, offset, limit)
	if err != nil {
		return nil, 0, transient("load posts", err)
	}
	items, err := s.enrich(ctx, posts)
	return items, total, err
}

// enrich attaches author, likes and comment count to each post, keeping the
// input order.
func (s *FeedService) enrich(ctx context.Context, posts []domain.Post) ([]domain.FeedItem, error) {
	if len(posts) == 0 {
		return []domain.FeedItem{}, nil
	}

	postIDs := make([]string, 0, len(posts))
	ownerIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		ownerIDs = append(ownerIDs, p.UserID)
	}

	likes, err := repo.LikesForPosts(ctx, s.DB, postIDs)
	if err != nil {
		return nil, transient("load likes", err)
	}
	comments, err := repo.CommentCounts(ctx, s.DB, postIDs)
	if err != nil {
		return nil, transient("count comments", err)
	}

	profiles, perr := repo.ProfilesByIDs(ctx, s.DB, uniq(ownerIDs))
	if perr != nil {
		logFrom(ctx).Warn().Err(perr).Int("posts", len(posts)).
			Msg("author profiles unavailable; serving placeholders")
	}

	out := make([]domain.FeedItem, 0, len(posts))
	degraded := 0
	for _, p := range posts {
		author, ok := profiles[p.UserID]
		snap := author.Snapshot()
		if !ok {
			snap = domain.PlaceholderProfile(p.UserID)
			degraded++
		}
		ls := likes[p.ID]
		if ls == nil {
			ls = []domain.Like{}
		}
		out = append(out, domain.FeedItem{
			Post:         p,
			Author:       snap,
			Likes:        ls,
			CommentCount: comments[p.ID],
		})
	}
	if degraded > 0 {
		observability.IncDegraded(degraded)
		if perr == nil {
			logFrom(ctx).Warn().Int("items", degraded).Msg("feed items without author profile")
		}
	}
	return out, nil
}
