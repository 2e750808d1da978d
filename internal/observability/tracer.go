package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new internal span with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError marks the span as failed.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Attribute keys for shardvm spans.
var (
	AttrVMID           = attribute.Key("shardvm.vm.id")
	AttrTick           = attribute.Key("shardvm.tick")
	AttrProcessCount   = attribute.Key("shardvm.process_count")
	AttrRunVMID        = attribute.Key("shardvm.run.vm_id")
	AttrRunPID         = attribute.Key("shardvm.run.pid")
	AttrRunTimedOut    = attribute.Key("shardvm.run.timed_out")
)
