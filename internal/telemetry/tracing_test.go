package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Tests here replace process-wide providers and cannot run in parallel.

func TestInitTracingPropagatesContext(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), Config{SampleRatio: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, shutdown(context.Background())) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	require.True(t, span.SpanContext().IsSampled())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	require.Contains(t, carrier["traceparent"], span.SpanContext().TraceID().String())
}

func TestInitTracingZeroRatioDropsRoots(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, shutdown(context.Background())) })

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	require.False(t, span.SpanContext().IsSampled())
}

func TestInitTracingRejectsBadRatio(t *testing.T) {
	_, err := InitTracing(context.Background(), Config{SampleRatio: 1.5}, nil)
	require.Error(t, err)
}
