// Package observability wraps OpenTelemetry tracing around the tick
// engine: one span per VM per tick, and one span per Run Hub request.
// Grounded on the teacher's internal/observability/telemetry.go, trimmed
// to the exporter this deployment actually ships spans to (none yet —
// see noopExporter) rather than the teacher's OTLP/HTTP collector.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps the OpenTelemetry TracerProvider.
type Provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var globalProvider = &Provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer("")}

// Init installs the global tracer provider. When enabled is false,
// Tracer() returns a no-op tracer and every StartSpan call is nearly
// free, so call sites never need their own enabled check.
func Init(enabled bool, serviceName string) {
	if !enabled {
		globalProvider = &Provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer("")}
		return
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&noopExporter{}),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	globalProvider = &Provider{tp: tp, tracer: tp.Tracer(serviceName), enabled: true}
}

// Shutdown flushes and stops the tracer provider, if Init ever started one.
func Shutdown(ctx context.Context) error {
	if globalProvider.tp == nil {
		return nil
	}
	return globalProvider.tp.Shutdown(ctx)
}

// Tracer returns the global tracer.
func Tracer() trace.Tracer { return globalProvider.tracer }

// Enabled reports whether a real (non-no-op) tracer is installed.
func Enabled() bool { return globalProvider.enabled }

// noopExporter discards every span. There's no collector endpoint wired
// into this deployment yet; spans are still worth producing since an
// exporter can be swapped in later without touching the call sites.
type noopExporter struct{}

func (e *noopExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return nil
}

func (e *noopExporter) Shutdown(ctx context.Context) error { return nil }
