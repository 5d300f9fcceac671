// Package realtime is an in-process change feed. Services publish an Event
// after each committed write; subscribers (the ETag version counters, or any
// handler wanting "on change, re-run aggregation") receive it synchronously.
//
// The bus is a stand-in for a database replication stream. Because every
// consumer only needs to know that something changed, Versions.Watch
// layers Poll over store fingerprints to catch writes the bus never saw.
package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-social-backend/internal/observability"
)

// Change operations.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Entities that emit change events.
const (
	EntityPosts         = "posts"
	EntityLikes         = "likes"
	EntityComments      = "comments"
	EntityFollows       = "follows"
	EntityStories       = "stories"
	EntityStoryViews    = "story_views"
	EntityNotifications = "notifications"
	EntityMessages      = "messages"
	EntityProfiles      = "profiles"
)

// Event describes one committed change. Key is the partition the change
// belongs to: the owner for posts and stories, the follower for follows, the
// recipient for notifications, the conversation for messages.
type Event struct {
	Entity   string `json:"entity"`
	Op       string `json:"op"`
	RecordID string `json:"record_id"`
	Key      string `json:"key,omitempty"`
}

// Filter selects events. An empty Entity matches every entity; a nil Match
// accepts every event of the entity.
type Filter struct {
	Entity string
	Match  func(Event) bool
}

func (f Filter) accepts(e Event) bool {
	if f.Entity != "" && f.Entity != e.Entity {
		return false
	}
	return f.Match == nil || f.Match(e)
}

// Handler receives matching events.
type Handler func(ctx context.Context, e Event)

// Publisher is the write side of the bus, as seen by services.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type subscription struct {
	id     uint64
	filter Filter
	fn     Handler
}

// Bus fans events out to subscribers. It is safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	next uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn for events accepted by f. The returned function
// removes the subscription; calling it more than once is harmless.
func (b *Bus) Subscribe(f Filter, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, filter: f, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers e to every matching subscriber in subscription order.
// A panicking handler is logged and skipped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	observability.IncRealtimeEvent(e.Entity, e.Op)

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.filter.accepts(e) {
			deliver(ctx, s.fn, e)
		}
	}
}

func deliver(ctx context.Context, fn Handler, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logger(ctx).Error().
				Interface("panic", rec).
				Str("entity", e.Entity).
				Str("op", e.Op).
				Msg("realtime handler panicked")
		}
	}()
	fn(ctx, e)
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
