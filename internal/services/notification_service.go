package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// NotificationService manages a user's activity notifications.
type NotificationService struct {
	DB  *gorm.DB
	Bus realtime.Publisher
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, bus realtime.Publisher) *NotificationService {
	return &NotificationService{DB: db, Bus: bus}
}

func validKind(kind string) bool {
	switch kind {
	case domain.NotifyLike, domain.NotifyComment, domain.NotifyFollow, domain.NotifyStoryView:
		return true
	}
	return false
}

// notifyTx writes a notification inside an existing transaction. It returns
// nil without writing when the actor is the recipient.
func notifyTx(ctx context.Context, tx *gorm.DB, recipient, actor, kind string, postID *string) (*domain.Notification, error) {
	if recipient == actor {
		return nil, nil
	}
	return repo.CreateNotification(ctx, tx, recipient, actor, kind, postID)
}

func notificationEvent(n *domain.Notification, op string) realtime.Event {
	return realtime.Event{Entity: realtime.EntityNotifications, Op: op, RecordID: n.ID, Key: n.UserID}
}

// Notify stores a notification for recipient. Self-notifications are skipped
// and return (nil, nil).
func (s *NotificationService) Notify(ctx context.Context, recipient, actor, kind string, postID *string) (*domain.Notification, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "Notify",
		trace.WithAttributes(
			attribute.String("user.id", recipient),
			attribute.String("actor.id", actor),
			attribute.String("notification.type", kind),
		),
	)
	defer span.End()

	if strings.TrimSpace(recipient) == "" || strings.TrimSpace(actor) == "" || !validKind(kind) {
		return nil, ErrInvalidInput
	}
	n, err := notifyTx(ctx, s.DB, recipient, actor, kind, postID)
	if err != nil {
		return nil, classify(err)
	}
	if n != nil {
		publish(ctx, s.Bus, notificationEvent(n, realtime.OpInsert))
	}
	return n, nil
}

// List returns a page of the user's notifications, newest first, each with
// its actor's snapshot.
func (s *NotificationService) List(ctx context.Context, userID string, page, pageSize int) ([]domain.NotificationView, int64, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	offset, limit := pageBounds(page, pageSize)

	total, err := repo.CountNotifications(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, classify(err)
	}
	if total == 0 {
		return []domain.NotificationView{}, 0, nil
	}

	rows, err := repo.ListNotificationsPage(ctx, s.DB, userID, offset, limit)
	if err != nil {
		return nil, 0, classify(err)
	}

	actorIDs := make([]string, 0, len(rows))
	for _, n := range rows {
		actorIDs = append(actorIDs, n.ActorID)
	}
	profiles, perr := repo.ProfilesByIDs(ctx, s.DB, uniq(actorIDs))
	if perr != nil {
		logFrom(ctx).Warn().Err(perr).Msg("notification actors unavailable; using placeholders")
	}
	snaps, _ := snapshots(profiles, actorIDs)

	out := make([]domain.NotificationView, 0, len(rows))
	for _, n := range rows {
		out = append(out, domain.NotificationView{Notification: n, Actor: snaps[n.ActorID]})
	}
	return out, total, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("notification.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if err := repo.MarkNotificationRead(ctx, s.DB, id, userID); err != nil {
		return classify(err)
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityNotifications, Op: realtime.OpUpdate, RecordID: id, Key: userID,
	})
	return nil
}

// UnreadCount returns how many notifications the user has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "UnreadCount",
		trace.WithAttributes(
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	n, err := repo.CountUnread(ctx, s.DB, userID)
	return n, classify(err)
}
