package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

const tracerName = "github.com/odvcencio/panel/pkg/engine"

// Span attributes recorded for engine jobs.
var (
	AttrPanelID   = attribute.Key("panel.id")
	AttrJobID     = attribute.Key("panel.job.id")
	AttrJobKind   = attribute.Key("panel.job.kind")
	AttrErrorCode = attribute.Key("panel.error.code")
)

// TracerProvider exports engine spans as JSON lines. It is never installed
// as the process-wide provider; callers hand Tracer() to the engine.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider writes spans to w.
func NewTracerProvider(serviceName, version string, w io.Writer) (*TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create trace exporter")
	}

	res := resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return &TracerProvider{provider: provider}, nil
}

// Tracer returns the engine tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.provider.Tracer(tracerName)
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(tracerName)
}
