// Package services: EngagementService
//
// EngagementService handles likes and comments on posts. Likes are unique
// per (post, user): the insert is ON CONFLICT DO NOTHING, so a double tap or
// a retried request collapses into one row without an error, and unliking
// something that is not liked is a no-op.
package services

import (
	"context"
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

// EngagementService manages likes and comments.
type EngagementService struct {
	DB  *gorm.DB
	Bus realtime.Publisher
}

// NewEngagementService constructs an EngagementService.
func NewEngagementService(db *gorm.DB, bus realtime.Publisher) *EngagementService {
	return &EngagementService{DB: db, Bus: bus}
}

// Like records that user likes postID. created is false when the like
// already existed.
func (s *EngagementService) Like(ctx context.Context, postID, user string) (created bool, err error) {
	ctx, span := otel.Tracer("services/EngagementService").Start(ctx, "Like",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.String("user.id", user),
		),
	)
	defer span.End()

	if strings.TrimSpace(user) == "" || strings.TrimSpace(postID) == "" {
		return false, ErrInvalidInput
	}
	post, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		return false, classify(err)
	}

	var note *domain.Notification
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.CreateLike(ctx, tx, postID, user)
		if err != nil {
			return err
		}
		created = ok
		if !ok {
			return nil
		}
		note, err = notifyTx(ctx, tx, post.UserID, user, domain.NotifyLike, &post.ID)
		return err
	})
	if err != nil {
		return false, classify(err)
	}

	if !created {
		observability.IncConflictAbsorbed("like")
		return false, nil
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityLikes, Op: realtime.OpInsert, RecordID: postID, Key: post.UserID,
	})
	if note != nil {
		publish(ctx, s.Bus, notificationEvent(note, realtime.OpInsert))
	}
	return true, nil
}

// Unlike removes user's like on postID. Removing a like that does not exist
// succeeds without effect.
func (s *EngagementService) Unlike(ctx context.Context, postID, user string) error {
	ctx, span := otel.Tracer("services/EngagementService").Start(ctx, "Unlike",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.String("user.id", user),
		),
	)
	defer span.End()

	if strings.TrimSpace(user) == "" || strings.TrimSpace(postID) == "" {
		return ErrInvalidInput
	}
	n, err := repo.DeleteLike(ctx, s.DB, postID, user)
	if err != nil {
		return classify(err)
	}
	if n > 0 {
		publish(ctx, s.Bus, realtime.Event{Entity: realtime.EntityLikes, Op: realtime.OpDelete, RecordID: postID})
	}
	return nil
}

// AddComment attaches a comment to postID. Content is trimmed and
// NFC-normalized, and must be 1..MaxCommentRunes runes.
func (s *EngagementService) AddComment(ctx context.Context, postID, user, content string) (*domain.Comment, error) {
	ctx, span := otel.Tracer("services/EngagementService").Start(ctx, "AddComment",
		trace.WithAttributes(
			attribute.String("post.id", postID),
			attribute.String("user.id", user),
		),
	)
	defer span.End()

	if strings.TrimSpace(user) == "" {
		return nil, ErrInvalidInput
	}
	content, err := checkText(content, MaxCommentRunes)
	if err != nil {
		return nil, err
	}
	post, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		return nil, classify(err)
	}

	var (
		c    *domain.Comment
		note *domain.Notification
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = repo.CreateComment(ctx, tx, postID, user, content); err != nil {
			return err
		}
		note, err = notifyTx(ctx, tx, post.UserID, user, domain.NotifyComment, &post.ID)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityComments, Op: realtime.OpInsert, RecordID: c.ID, Key: postID,
	})
	if note != nil {
		publish(ctx, s.Bus, notificationEvent(note, realtime.OpInsert))
	}
	return c, nil
}

// Comment fetches a single comment.
func (s *EngagementService) Comment(ctx context.Context, id string) (*domain.Comment, error) {
	c, err := repo.GetComment(ctx, s.DB, id)
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

// DeleteComment removes a comment. Only its author may delete it.
func (s *EngagementService) DeleteComment(ctx context.Context, commentID, user string) error {
	c, err := repo.GetComment(ctx, s.DB, commentID)
	if err != nil {
		return classify(err)
	}
	if c.UserID != user {
		return ErrUnauthorized
	}
	if err := repo.DeleteComment(ctx, s.DB, commentID, user); err != nil {
		return classify(err)
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityComments, Op: realtime.OpDelete, RecordID: commentID, Key: c.PostID,
	})
	return nil
}

// ListComments returns a post's comments oldest first with author snapshots.
func (s *EngagementService) ListComments(ctx context.Context, postID string) ([]domain.CommentView, error) {
	if _, err := repo.GetPost(ctx, s.DB, postID); err != nil {
		return nil, classify(err)
	}
	rows, err := repo.ListComments(ctx, s.DB, postID)
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.UserID)
	}
	profiles, perr := repo.ProfilesByIDs(ctx, s.DB, uniq(ids))
	if perr != nil {
		logFrom(ctx).Warn().Err(perr).Msg("comment authors unavailable; using placeholders")
	}
	snaps, _ := snapshots(profiles, ids)

	out := make([]domain.CommentView, 0, len(rows))
	for _, c := range rows {
		out = append(out, domain.CommentView{Comment: c, Author: snaps[c.UserID]})
	}
	return out, nil
}
