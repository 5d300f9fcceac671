package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// recordSpans installs an in-memory tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

// spansByScope indexes ended span names by instrumentation scope.
func spansByScope(rec *tracetest.SpanRecorder) map[string][]string {
	out := map[string][]string{}
	for _, s := range rec.Ended() {
		scope := s.InstrumentationScope().Name
		out[scope] = append(out[scope], s.Name())
	}
	return out
}

func TestServices_EmitSpans(t *testing.T) {
	rec := recordSpans(t)
	db := newTestDB(t)
	mustProfile(t, db, "a", "alice")
	mustProfile(t, db, "b", "bob")
	ctx := context.Background()

	posts := NewPostService(db, nil, &memStore{})
	p, err := posts.Create(ctx, "a", "https://img/1.jpg", "hi")
	require.NoError(t, err)
	require.NoError(t, posts.Delete(ctx, p.ID, "a"))

	profiles := NewProfileService(db, nil)
	_, err = profiles.Get(ctx, "a")
	require.NoError(t, err)
	_, err = profiles.Search(ctx, "ali", 5)
	require.NoError(t, err)

	notes := NewNotificationService(db, nil)
	n, err := notes.Notify(ctx, "a", "b", domain.NotifyFollow, nil)
	require.NoError(t, err)
	require.NoError(t, notes.MarkRead(ctx, n.ID, "a"))
	_, err = notes.UnreadCount(ctx, "a")
	require.NoError(t, err)

	got := spansByScope(rec)
	assert.Equal(t, []string{"Create", "Delete"}, got["services/PostService"])
	assert.Equal(t, []string{"Get", "Search"}, got["services/ProfileService"])
	assert.Equal(t, []string{"Notify", "MarkRead", "UnreadCount"}, got["services/NotificationService"])

	for _, s := range rec.Ended() {
		if s.Name() != "Search" {
			continue
		}
		attrs := map[attribute.Key]attribute.Value{}
		for _, kv := range s.Attributes() {
			attrs[kv.Key] = kv.Value
		}
		assert.Equal(t, "ali", attrs["query"].AsString())
		assert.EqualValues(t, 1, attrs["results"].AsInt64())
	}
}
