package telemetry

import (
	"context"
	"fmt"
	"os"

	"github.com/centrifugal/subclient/internal/build"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Config of client request tracing.
type Config struct {
	// ServiceName is used when OTEL_SERVICE_NAME is not set.
	ServiceName string
	// ClientID and Origin are attached to every span as resource attributes.
	ClientID string
	Origin   string
	// SampleRatio of root spans in [0, 1].
	SampleRatio float64
}

func (c Config) serviceName() string {
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		return name
	}
	if c.ServiceName != "" {
		return c.ServiceName
	}
	return "subclient"
}

func (c Config) resource() *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(c.serviceName()),
		attribute.String("version", build.Version),
	}
	if c.ClientID != "" {
		attrs = append(attrs, attribute.String("client.id", c.ClientID))
	}
	if c.Origin != "" {
		attrs = append(attrs, attribute.String("client.origin", c.Origin))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// SetupTracing installs global tracer provider exporting spans of client
// requests over OTLP HTTP. Exporter endpoint is configured with standard
// OTEL_EXPORTER_OTLP_* variables.
func SetupTracing(ctx context.Context, cfg Config) (*trace.TracerProvider, error) {
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("sample ratio must be in [0, 1], got %v", cfg.SampleRatio)
	}
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(cfg.resource()),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider, nil
}
