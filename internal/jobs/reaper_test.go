package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakePurger) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return f.n, f.err
}

func (f *fakePurger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestRunOnce_AppliesRetention(t *testing.T) {
	fp := &fakePurger{n: 3}
	r := NewReaper(fp, "", 2*time.Hour)
	fixed := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, fp.cutoffs, 1)
	assert.Equal(t, fixed.Add(-2*time.Hour), fp.cutoffs[0])
	assert.Equal(t, DefaultSchedule, r.Schedule)
}

func TestRunOnce_Error(t *testing.T) {
	fp := &fakePurger{err: errors.New("db down")}
	r := NewReaper(fp, DefaultSchedule, 0)
	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestStart_RunsOnSchedule(t *testing.T) {
	fp := &fakePurger{}
	r := NewReaper(fp, "@every 1s", 0)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	assert.Eventually(t, func() bool { return fp.calls() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestStart_BadSchedule(t *testing.T) {
	r := NewReaper(&fakePurger{}, "every now and then", 0)
	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `reaper schedule "every now and then"`)
	r.Stop(context.Background()) // no-op when never started
}
