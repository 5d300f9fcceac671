// Package observability wires tracing and domain metrics.
//
// This file holds the Prometheus collectors for feed aggregation, engagement
// writes, story purges and change events. Label sets are fixed and small:
//
//   - surface: home | explore | user | post
//   - kind:    like | follow | story_view
//   - entity/op: realtime entity name and INSERT/UPDATE/DELETE
//
// The collectors register with the default registry in init() so the
// router's /metrics handler exposes them alongside the HTTP collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	feedDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_aggregation_duration_seconds",
			Help:    "Time spent aggregating feed items.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"surface"},
	)

	feedItems = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_items_returned",
			Help:    "Number of items returned per feed request.",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"surface"},
	)

	feedDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_degraded_enrichments_total",
			Help: "Feed items served with a placeholder author profile.",
		},
	)

	conflictsAbsorbed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_conflicts_absorbed_total",
			Help: "Duplicate engagement writes absorbed as no-ops.",
		},
		[]string{"kind"},
	)

	storiesPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stories_purged_total",
			Help: "Expired stories removed by the reaper.",
		},
	)

	realtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Change events published on the in-process bus.",
		},
		[]string{"entity", "op"},
	)
)

func init() {
	prometheus.MustRegister(feedDuration, feedItems, feedDegraded, conflictsAbsorbed, storiesPurged, realtimeEvents)
}

// ObserveFeed records one aggregation for surface.
func ObserveFeed(surface string, started time.Time, items int) {
	feedDuration.WithLabelValues(surface).Observe(time.Since(started).Seconds())
	feedItems.WithLabelValues(surface).Observe(float64(items))
}

// IncDegraded counts n items served with a placeholder author.
func IncDegraded(n int) {
	if n > 0 {
		feedDegraded.Add(float64(n))
	}
}

// IncConflictAbsorbed counts a duplicate write of kind that was ignored.
func IncConflictAbsorbed(kind string) {
	conflictsAbsorbed.WithLabelValues(kind).Inc()
}

// AddStoriesPurged counts purged stories.
func AddStoriesPurged(n int64) {
	if n > 0 {
		storiesPurged.Add(float64(n))
	}
}

// IncRealtimeEvent counts a published change event.
func IncRealtimeEvent(entity, op string) {
	realtimeEvents.WithLabelValues(entity, op).Inc()
}
