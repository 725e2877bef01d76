package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetup_Disabled(t *testing.T) {
	provider, shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, provider)

	_, span := Tracer(provider).Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	require.Contains(t, Sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, Sampler(1).Description(), "AlwaysOnSampler")
	require.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestTracer_RecordsSpans(t *testing.T) {
	provider := sdktrace.NewTracerProvider(sdktrace.WithSampler(Sampler(1)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	_, span := Tracer(provider).Start(context.Background(), "op")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}
