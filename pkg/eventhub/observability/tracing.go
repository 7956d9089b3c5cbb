package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the eventhub tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("eventhub")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPublishSpan starts a span around one dispatch.
	StartPublishSpan(ctx context.Context, eventType string, handlers int) (context.Context, trace.Span)

	// StartTeardownSpan starts a span around a lifecycle teardown.
	StartTeardownSpan(ctx context.Context, sessionID, reason string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartPublishSpan starts a span around one dispatch.
func (m *otelSpanManager) StartPublishSpan(ctx context.Context, eventType string, handlers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventhub.publish",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.Int("event.handlers", handlers),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTeardownSpan starts a span around a lifecycle teardown.
func (m *otelSpanManager) StartTeardownSpan(ctx context.Context, sessionID, reason string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventhub.teardown",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("teardown.reason", reason),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
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

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
