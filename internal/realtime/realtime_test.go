package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FilterOrderAndUnsubscribe(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var got []string
	unsubA := bus.Subscribe(Filter{Entity: EntityPosts}, func(_ context.Context, e Event) {
		got = append(got, "a:"+e.RecordID)
	})
	bus.Subscribe(Filter{Entity: EntityPosts, Match: func(e Event) bool { return e.Key == "u1" }}, func(_ context.Context, e Event) {
		got = append(got, "b:"+e.RecordID)
	})

	bus.Publish(ctx, Event{Entity: EntityPosts, Op: OpInsert, RecordID: "p1", Key: "u1"})
	bus.Publish(ctx, Event{Entity: EntityPosts, Op: OpInsert, RecordID: "p2", Key: "u2"})
	bus.Publish(ctx, Event{Entity: EntityLikes, Op: OpInsert, RecordID: "l1", Key: "u1"})
	assert.Equal(t, []string{"a:p1", "b:p1", "a:p2"}, got)

	unsubA()
	unsubA() // idempotent
	got = nil
	bus.Publish(ctx, Event{Entity: EntityPosts, Op: OpDelete, RecordID: "p1", Key: "u1"})
	assert.Equal(t, []string{"b:p1"}, got)
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus()
	var calls atomic.Int32
	bus.Subscribe(Filter{}, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(Filter{}, func(context.Context, Event) { calls.Add(1) })

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), Event{Entity: EntityStories, Op: OpInsert})
	})
	assert.Equal(t, int32(1), calls.Load())
}

func TestVersions(t *testing.T) {
	bus := NewBus()
	v := NewVersions(bus)
	defer v.Close()
	ctx := context.Background()

	bus.Publish(ctx, Event{Entity: EntityLikes, Op: OpInsert})
	bus.Publish(ctx, Event{Entity: EntityComments, Op: OpInsert})
	bus.Publish(ctx, Event{Entity: EntityFollows, Op: OpInsert, Key: "u"})
	bus.Publish(ctx, Event{Entity: EntityStoryViews, Op: OpInsert})
	bus.Publish(ctx, Event{Entity: EntityNotifications, Op: OpInsert, Key: "r"})

	assert.Equal(t, uint64(2), v.Content())
	assert.Equal(t, uint64(1), v.Scope("u"))
	assert.Equal(t, uint64(0), v.Scope("other"))
	assert.Equal(t, uint64(1), v.Stories())
	assert.Equal(t, uint64(1), v.Notifications("r"))

	v.Close()
	bus.Publish(ctx, Event{Entity: EntityPosts, Op: OpInsert})
	assert.Equal(t, uint64(2), v.Content())
}

func TestPoll_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan struct{})
	go func() {
		Poll(ctx, 5*time.Millisecond, func(context.Context) {
			if n.Add(1) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Poll did not stop after cancel")
	}
	assert.GreaterOrEqual(t, n.Load(), int32(3))
}

func TestVersions_SyncBumpsChangedDomains(t *testing.T) {
	v := NewVersions(NewBus())
	defer v.Close()

	base := Marks{Content: "1@10", Stories: "0", Follows: "2@5", Notifications: "3@7/1"}
	v.Sync(base)
	assert.Zero(t, v.Content(), "the first sync is a baseline")

	v.Sync(base)
	assert.Zero(t, v.Content())

	next := base
	next.Content = "2@11"
	next.Follows = "1@5"
	v.Sync(next)
	assert.Equal(t, uint64(1), v.Content())
	assert.Equal(t, uint64(0), v.Stories())
	assert.Equal(t, uint64(1), v.Scope("anyone"), "graph marks move every identity")
	assert.Equal(t, uint64(0), v.Notifications("anyone"))

	next.Notifications = "3@7/0"
	v.Sync(next)
	assert.Equal(t, uint64(1), v.Notifications("r"))
}

func TestVersions_WatchRefreshesFromStore(t *testing.T) {
	v := NewVersions(NewBus())

	var mu sync.Mutex
	marks := Marks{Content: "a"}
	fail := false
	read := func(context.Context) (Marks, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return Marks{}, errors.New("database is locked")
		}
		return marks, nil
	}

	v.Watch(5*time.Millisecond, read)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, v.Content())

	// A write made elsewhere shows up only through the store.
	mu.Lock()
	marks.Content = "b"
	mu.Unlock()
	assert.Eventually(t, func() bool { return v.Content() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Read failures keep the counters where they are.
	mu.Lock()
	fail = true
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(1), v.Content())

	v.Close()
	mu.Lock()
	fail, marks.Content = false, "c"
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(1), v.Content(), "Close stops the watch loop")
}
