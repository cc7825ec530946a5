// Package telemetry configures OpenTelemetry tracing. Spans go to Cloud Trace
// when a project is set; otherwise they stay in process and only their
// context travels, e.g. into Pub/Sub message attributes.
package telemetry

import (
	"context"
	"fmt"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"
)

// DefaultServiceName labels spans when Config.ServiceName is empty.
const DefaultServiceName = "sitesnap"

// Config controls tracing.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	// ProjectID enables export to Cloud Trace.
	ProjectID string `mapstructure:"project_id"`
	// SampleRatio is the fraction of root spans kept, between 0 and 1.
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// InitTracing installs a global tracer provider and the W3C trace context
// and baggage propagators.
func InitTracing(ctx context.Context, cfg Config, logger *zap.Logger) (Shutdown, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("sample ratio %v must be between 0 and 1", cfg.SampleRatio)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if cfg.ProjectID != "" {
		exporter, err := texporter.New(texporter.WithProjectID(cfg.ProjectID))
		if err != nil {
			return nil, fmt.Errorf("create cloud trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("exporting traces to cloud trace", zap.String("project_id", cfg.ProjectID))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
