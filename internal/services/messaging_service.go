// Package services: MessagingService
//
// MessagingService owns two-party direct-message conversations. Every read
// and write checks that the caller participates in the conversation.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// ConversationRepo abstracts conversation persistence so the service can be
// tested with fakes; the router wires it to the repo package.
type ConversationRepo interface {
	// CreateConversation inserts a conversation with its participants.
	CreateConversation(ctx context.Context, db *gorm.DB, participants ...string) (*domain.Conversation, error)

	// FindDirectConversation returns the conversation between exactly a and b.
	FindDirectConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error)

	// GetConversation fetches a conversation by ID.
	GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error)

	// ListConversationsForUser lists conversations, most recently active first.
	ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error)

	// IsParticipant reports whether userID belongs to conversation id.
	IsParticipant(ctx context.Context, db *gorm.DB, id, userID string) (bool, error)
}

// MessagingService coordinates conversations and messages.
type MessagingService struct {
	DB   *gorm.DB
	Repo ConversationRepo
	Bus  realtime.Publisher

	MaxMessageRunes int
}

// NewMessagingService constructs a MessagingService.
func NewMessagingService(db *gorm.DB, r ConversationRepo, bus realtime.Publisher) *MessagingService {
	return &MessagingService{DB: db, Repo: r, Bus: bus, MaxMessageRunes: MaxMessageRunes}
}

// Start returns the conversation between a and b, creating it if needed.
func (s *MessagingService) Start(ctx context.Context, a, b string) (*domain.Conversation, error) {
	ctx, span := otel.Tracer("services/MessagingService").Start(ctx, "Start",
		trace.WithAttributes(
			attribute.String("user.id", a),
			attribute.String("peer.id", b),
		),
	)
	defer span.End()

	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return nil, ErrInvalidInput
	}
	exists, err := repo.ProfileExists(ctx, s.DB, b)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	c, err := s.Repo.FindDirectConversation(ctx, s.DB, a, b)
	if err == nil {
		return c, nil
	}
	if err = classify(err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	c, err = s.Repo.CreateConversation(ctx, s.DB, a, b)
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

// ListConversations returns the user's inbox: each conversation with the
// other participants and its last message.
func (s *MessagingService) ListConversations(ctx context.Context, user string) ([]domain.ConversationSummary, error) {
	convs, err := s.Repo.ListConversationsForUser(ctx, s.DB, user)
	if err != nil {
		return nil, classify(err)
	}
	if len(convs) == 0 {
		return []domain.ConversationSummary{}, nil
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	parts, err := repo.ParticipantIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, classify(err)
	}
	last, err := repo.LastMessages(ctx, s.DB, ids)
	if err != nil {
		return nil, classify(err)
	}

	var others []string
	for _, ps := range parts {
		for _, p := range ps {
			if p != user {
				others = append(others, p)
			}
		}
	}
	others = uniq(others)
	profiles, perr := repo.ProfilesByIDs(ctx, s.DB, others)
	if perr != nil {
		logFrom(ctx).Warn().Err(perr).Msg("conversation participants unavailable; using placeholders")
	}
	snaps, _ := snapshots(profiles, others)

	out := make([]domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		sum := domain.ConversationSummary{ID: c.ID, UpdatedAt: c.UpdatedAt, Participants: []domain.ProfileSnapshot{}}
		for _, p := range parts[c.ID] {
			if p != user {
				sum.Participants = append(sum.Participants, snaps[p])
			}
		}
		if m, ok := last[c.ID]; ok {
			m := m
			sum.LastMessage = &m
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *MessagingService) authorize(ctx context.Context, conversationID, user string) error {
	if _, err := s.Repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		return classify(err)
	}
	ok, err := s.Repo.IsParticipant(ctx, s.DB, conversationID, user)
	if err != nil {
		return classify(err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// ListMessages returns a page of messages, oldest first.
func (s *MessagingService) ListMessages(ctx context.Context, conversationID, user string, page, pageSize int) ([]domain.DirectMessage, int64, error) {
	ctx, span := otel.Tracer("services/MessagingService").Start(ctx, "ListMessages",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if err := s.authorize(ctx, conversationID, user); err != nil {
		return nil, 0, err
	}
	offset, limit := pageBounds(page, pageSize)

	total, err := repo.CountMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, 0, classify(err)
	}
	if total == 0 {
		return []domain.DirectMessage{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, conversationID, offset, limit)
	if err != nil {
		return nil, 0, classify(err)
	}
	return items, total, nil
}

// Send appends a message and bumps the conversation's activity time.
func (s *MessagingService) Send(ctx context.Context, conversationID, sender, content string) (*domain.DirectMessage, error) {
	ctx, span := otel.Tracer("services/MessagingService").Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", sender),
		),
	)
	defer span.End()

	limit := s.MaxMessageRunes
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	content, err := checkText(content, limit)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, conversationID, sender); err != nil {
		return nil, err
	}

	var m *domain.DirectMessage
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if m, err = repo.CreateDirectMessage(ctx, tx, conversationID, sender, content); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, conversationID, m.CreatedAt)
	})
	if err != nil {
		return nil, classify(err)
	}
	publish(ctx, s.Bus, realtime.Event{
		Entity: realtime.EntityMessages, Op: realtime.OpInsert, RecordID: m.ID, Key: conversationID,
	})
	return m, nil
}

// Message fetches a single message.
func (s *MessagingService) Message(ctx context.Context, id string) (*domain.DirectMessage, error) {
	m, err := repo.GetDirectMessage(ctx, s.DB, id)
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}
