// Package jobs runs periodic background work. The Reaper deletes stories
// whose visibility window ended more than a retention period ago; reads
// already hide them, so the reaper only reclaims storage.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/observability"
)

// DefaultSchedule runs the reaper hourly.
const DefaultSchedule = "@every 1h"

// Purger removes stories that expired at or before the given instant.
type Purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Reaper schedules Purger runs with cron.
type Reaper struct {
	Purger    Purger
	Schedule  string
	Retention time.Duration
	Timeout   time.Duration

	now  func() time.Time
	cron *cron.Cron
	log  zerolog.Logger
}

// NewReaper builds a reaper. An empty schedule uses DefaultSchedule.
func NewReaper(p Purger, schedule string, retention time.Duration) *Reaper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Reaper{
		Purger:    p,
		Schedule:  schedule,
		Retention: retention,
		Timeout:   time.Minute,
		now:       time.Now,
		log:       log.With().Str("component", "story_reaper").Logger(),
	}
}

// RunOnce purges stories with expires_at <= now - Retention and returns the
// number removed.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.Retention)
	n, err := r.Purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		r.log.Error().Err(err).Time("cutoff", cutoff).Msg("purge expired stories failed")
		return 0, err
	}
	observability.AddStoriesPurged(n)
	r.log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("purged expired stories")
	return n, nil
}

// Start registers the job and starts the scheduler. Overlapping runs are
// skipped. Stop must be called to release the scheduler goroutine.
func (r *Reaper) Start(ctx context.Context) error {
	sched, err := config.ParseSchedule(r.Schedule)
	if err != nil {
		return fmt.Errorf("reaper schedule %q: %w", r.Schedule, err)
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		defer cancel()
		_, _ = r.RunOnce(runCtx)
	}))
	r.cron = c
	c.Start()
	r.log.Info().Str("schedule", r.Schedule).Dur("retention", r.Retention).Msg("story reaper started")
	return nil
}

// Stop halts the scheduler and waits for a running purge to finish or ctx
// to expire.
func (r *Reaper) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
