package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span.
const TracerName = "adl"

var tracer = otel.Tracer(TracerName)

// SpanManager handles span lifecycle for runs, waves and node attempts.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts the root span of a run.
	StartRunSpan(ctx context.Context, target, runID string) (context.Context, trace.Span)

	// StartWaveSpan starts a child span covering one wave.
	StartWaveSpan(ctx context.Context, wave, size int) (context.Context, trace.Span)

	// StartNodeSpan starts a child span for one node attempt.
	StartNodeSpan(ctx context.Context, nodeID string, attempt int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, recording err if non-nil.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the span in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager using the global OTel tracer
// provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartRunSpan(ctx context.Context, target, runID string) (context.Context, trace.Span) {
	return StartRunSpan(ctx, target, runID)
}

func (m *otelSpanManager) StartWaveSpan(ctx context.Context, wave, size int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adl.wave",
		trace.WithAttributes(
			attribute.Int("wave.index", wave),
			attribute.Int("wave.size", size),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, nodeID string, attempt int) (context.Context, trace.Span) {
	return StartNodeSpan(ctx, nodeID, attempt)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartRunSpan starts the root span of a run with the global tracer.
func StartRunSpan(ctx context.Context, target, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adl.run",
		trace.WithAttributes(
			attribute.String("run.target", target),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartNodeSpan starts a node attempt span with the global tracer.
func StartNodeSpan(ctx context.Context, nodeID string, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adl.node",
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.Int("node.attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the span in ctx if it is recording.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
