package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Versions keeps monotonically increasing change counters derived from bus
// events. The HTTP layer folds them into weak ETags so a client only re-runs
// an aggregation after something relevant changed.
//
// The bus only sees writes made by this process. Watch adds a polling
// refresh over store fingerprints for deployments where several replicas
// share one database.
type Versions struct {
	content atomic.Uint64
	stories atomic.Uint64
	// graph and inbox are bumped by Sync and apply to every identity.
	graph atomic.Uint64
	inbox atomic.Uint64

	mu      sync.Mutex
	follows map[string]uint64
	notify  map[string]uint64
	marks   Marks
	synced  bool
	stops   []context.CancelFunc

	watchers sync.WaitGroup
	unsub    func()
}

// Marks fingerprints the store, one opaque string per change domain. Two
// equal marks mean nothing in that domain changed in between.
type Marks struct {
	Content       string
	Stories       string
	Follows       string
	Notifications string
}

// NewVersions subscribes to bus and starts counting.
func NewVersions(bus *Bus) *Versions {
	v := &Versions{follows: map[string]uint64{}, notify: map[string]uint64{}}
	v.unsub = bus.Subscribe(Filter{}, v.apply)
	return v
}

// Close stops counting and waits for any Watch loop to return.
func (v *Versions) Close() {
	if v.unsub != nil {
		v.unsub()
	}
	v.mu.Lock()
	stops := v.stops
	v.stops = nil
	v.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	v.watchers.Wait()
}

func (v *Versions) apply(_ context.Context, e Event) {
	switch e.Entity {
	case EntityPosts, EntityLikes, EntityComments, EntityProfiles:
		v.content.Add(1)
	case EntityStories, EntityStoryViews:
		v.stories.Add(1)
	case EntityFollows:
		v.mu.Lock()
		v.follows[e.Key]++
		v.mu.Unlock()
	case EntityNotifications:
		v.mu.Lock()
		v.notify[e.Key]++
		v.mu.Unlock()
	}
}

// Sync bumps every counter whose mark differs from the previous Sync. The
// first call only records the baseline. Follow and notification marks are
// not per identity, so a change there moves every identity's counter.
func (v *Versions) Sync(m Marks) {
	v.mu.Lock()
	prev, seen := v.marks, v.synced
	v.marks, v.synced = m, true
	v.mu.Unlock()
	if !seen {
		return
	}
	if m.Content != prev.Content {
		v.content.Add(1)
	}
	if m.Stories != prev.Stories {
		v.stories.Add(1)
	}
	if m.Follows != prev.Follows {
		v.graph.Add(1)
	}
	if m.Notifications != prev.Notifications {
		v.inbox.Add(1)
	}
}

// Watch reads marks now and then every interval, feeding each result to
// Sync, until Close. A failed read keeps the previous marks.
func (v *Versions) Watch(interval time.Duration, read func(context.Context) (Marks, error)) {
	ctx, cancel := context.WithCancel(context.Background())
	v.mu.Lock()
	v.stops = append(v.stops, cancel)
	v.mu.Unlock()

	logger := log.With().Str("component", "versions").Logger()
	v.watchers.Add(1)
	go func() {
		defer v.watchers.Done()
		Poll(ctx, interval, func(ctx context.Context) {
			m, err := read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(err).Msg("store marks unavailable; keeping current versions")
				}
				return
			}
			v.Sync(m)
		})
	}()
}

// Content is bumped by any change to posts or their engagement.
func (v *Versions) Content() uint64 { return v.content.Load() }

// Stories is bumped by story and view changes.
func (v *Versions) Stories() uint64 { return v.stories.Load() }

// Scope is bumped when identity follows or unfollows someone.
func (v *Versions) Scope(identity string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.follows[identity] + v.graph.Load()
}

// Notifications is bumped when identity's notifications change.
func (v *Versions) Notifications(identity string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.notify[identity] + v.inbox.Load()
}
