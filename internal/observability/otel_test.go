package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tbourn/go-social-backend/internal/config"
)

func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	exp, res := newExporter, newResource
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
		newExporter, newResource = exp, res
	})
}

func inMemory(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	mem := tracetest.NewInMemoryExporter()
	newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) { return mem, nil }
	return mem
}

var enabled = config.OTELConfig{Enabled: true, Insecure: true, Endpoint: "localhost:4317", ServiceName: "social-test", SampleRatio: 1}

func TestSetupOTel_DisabledLeavesGlobals(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{}, "v0")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Same(t, before, otel.GetTracerProvider())
}

func TestSetupOTel_ExportsFeedSpans(t *testing.T) {
	keepGlobals(t)
	mem := inMemory(t)

	shutdown, err := SetupOTel(context.Background(), enabled, "v1.2.3")
	require.NoError(t, err)

	_, span := otel.Tracer("services/FeedService").Start(context.Background(), "HomeFeed")
	span.SetAttributes(attribute.String("viewer", "ada"))
	span.End()
	require.NoError(t, shutdown(context.Background()))

	spans := mem.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "HomeFeed", spans[0].Name)

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Resource.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "social-test", attrs["service.name"])
	assert.Equal(t, "v1.2.3", attrs["service.version"])
}

func TestSetupOTel_PropagatesTraceContext(t *testing.T) {
	keepGlobals(t)
	inMemory(t)

	shutdown, err := SetupOTel(context.Background(), enabled, "v1")
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := otel.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}

func TestSetupOTel_RealExporterBuilds(t *testing.T) {
	keepGlobals(t)
	for _, insecure := range []bool{true, false} {
		cfg := enabled
		cfg.Insecure = insecure
		shutdown, err := SetupOTel(context.Background(), cfg, "v1")
		require.NoError(t, err, "exporter connects lazily")
		_ = shutdown(context.Background())
	}
}

func TestSetupOTel_FailuresKeepGlobals(t *testing.T) {
	t.Run("exporter", func(t *testing.T) {
		keepGlobals(t)
		before := otel.GetTracerProvider()
		newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) {
			return nil, errors.New("no collector")
		}
		_, err := SetupOTel(context.Background(), enabled, "v0")
		require.EqualError(t, err, "no collector")
		assert.Same(t, before, otel.GetTracerProvider())
	})
	t.Run("resource", func(t *testing.T) {
		keepGlobals(t)
		before := otel.GetTracerProvider()
		inMemory(t)
		newResource = func(context.Context, string, string) (*resource.Resource, error) {
			return nil, errors.New("bad resource")
		}
		_, err := SetupOTel(context.Background(), enabled, "v0")
		require.EqualError(t, err, "bad resource")
		assert.Same(t, before, otel.GetTracerProvider())
	})
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, samplerFor(2).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "root:TraceIDRatioBased{0.25}")
}
