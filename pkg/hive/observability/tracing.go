package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager shapes the executor's trace tree: one span per execution,
// a child span per node. NewSpanManager returns the OTel-backed
// implementation against the global tracer provider; NoopSpanManager
// disables tracing.
type SpanManager interface {
	// StartRunSpan opens the execution's root span.
	StartRunSpan(ctx context.Context, graphID, runID string) (context.Context, trace.Span)

	// StartNodeSpan opens a node span as a child of whatever span ctx
	// carries.
	StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span)

	// EndSpanWithError closes span, recording err when non-nil.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent annotates the span carried by ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// NewSpanManager returns the OTel-backed SpanManager. The tracer comes
// from the global provider; configure it with otel.SetTracerProvider
// before the runtime starts.
func NewSpanManager() SpanManager {
	return &spanManager{tracer: otel.Tracer("hive")}
}

type spanManager struct {
	tracer trace.Tracer
}

func (m *spanManager) StartRunSpan(ctx context.Context, graphID, runID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "hive.run",
		trace.WithAttributes(
			attribute.String("graph.name", graphID),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal))
}

func (m *spanManager) StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "hive.node."+nodeID,
		trace.WithAttributes(attribute.String("node.id", nodeID)),
		trace.WithSpanKind(trace.SpanKindInternal))
}

func (m *spanManager) EndSpanWithError(span trace.Span, err error) {
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

func (m *spanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
