package eventhub

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/typeindex"
)

// Hub addresses registries by event type instead of by variable.
//
// Every registry reached through a Hub shares the Hub's Coordinator, so
// hub.ClearAll resets all of them. The functions below are thin
// pass-throughs to the registry for E; code on a hot path should keep the
// *Registry returned by For and publish through it directly.
type Hub struct {
	coordinator *Coordinator
	types       *typeindex.Index

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubCoordinator sets the coordinator shared by the hub's registries.
// Default: a new Coordinator owned by the hub.
func WithHubCoordinator(c *Coordinator) HubOption {
	return func(h *Hub) {
		if c != nil {
			h.coordinator = c
		}
	}
}

// WithLogger sets the logger for the hub and the registries it creates.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMetrics sets the metrics recorder used by instrumented calls.
// Default: observability.NoopMetrics{}.
func WithMetrics(m observability.MetricsRecorder) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithTracing sets the span manager used by PublishContext.
// Default: observability.NoopSpanManager{}.
func WithTracing(s observability.SpanManager) HubOption {
	return func(h *Hub) {
		if s != nil {
			h.spans = s
		}
	}
}

// NewHub creates a hub with its own coordinator unless one is supplied.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		types:   typeindex.New(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.coordinator == nil {
		copts := []CoordinatorOption{WithCoordinatorMetrics(h.metrics)}
		if h.logger != nil {
			copts = append(copts, WithCoordinatorLogger(h.logger))
		}
		h.coordinator = NewCoordinator(copts...)
	}
	return h
}

// Coordinator returns the coordinator shared by the hub's registries.
func (h *Hub) Coordinator() *Coordinator {
	return h.coordinator
}

// Logger returns the hub's logger, which may be nil.
func (h *Hub) Logger() *slog.Logger {
	return h.logger
}

// Metrics returns the hub's metrics recorder.
func (h *Hub) Metrics() observability.MetricsRecorder {
	return h.metrics
}

// Spans returns the hub's span manager.
func (h *Hub) Spans() observability.SpanManager {
	return h.spans
}

// EventTypes returns the names of every event type the hub has seen, in
// first-use order.
func (h *Hub) EventTypes() []string {
	names := make([]string, 0, h.types.Len())
	h.types.Range(func(t reflect.Type, _ any) bool {
		names = append(names, t.String())
		return true
	})
	return names
}

// ClearAll removes every handler from every registry of the hub.
func (h *Hub) ClearAll() {
	h.coordinator.ClearAll()
}

// For returns the hub's registry for E, creating it on first use.
// Subscription changes on the registry, including those made through
// bindings and clears, are reported to the hub's metrics.
func For[E any](h *Hub) *Registry[E] {
	return typeindex.Lookup[E](h.types, func() *Registry[E] {
		return NewRegistry[E](
			WithCoordinator(h.coordinator),
			WithRegistryLogger(h.logger),
			WithSubscriptionHook(h.recordSubscription),
		)
	})
}

func (h *Hub) recordSubscription(eventType string, delta int) {
	h.metrics.RecordSubscription(context.Background(), eventType, delta)
}

// Subscribe registers handler for events of type E.
func Subscribe[E any](h *Hub, handler Handler[E]) error {
	return For[E](h).Subscribe(handler)
}

// Unsubscribe removes the oldest registration of handler for E.
func Unsubscribe[E any](h *Hub, handler Handler[E]) error {
	return For[E](h).Unsubscribe(handler)
}

// SubscribeAction registers a payload-free action for events of type E.
func SubscribeAction[E any](h *Hub, action Action) error {
	return For[E](h).SubscribeAction(action)
}

// UnsubscribeAction removes the oldest registration of action for E.
func UnsubscribeAction[E any](h *Hub, action Action) error {
	return For[E](h).UnsubscribeAction(action)
}

// Bind subscribes handler for E through a disposable Binding.
func Bind[E any](h *Hub, handler Handler[E]) (*Binding[E], error) {
	return For[E](h).Bind(handler)
}

// BindAction subscribes action for E through a disposable Binding.
func BindAction[E any](h *Hub, action Action) (*Binding[E], error) {
	return For[E](h).BindAction(action)
}

// Publish dispatches evt to the handlers registered for E.
func Publish[E any](h *Hub, evt E) error {
	return For[E](h).Publish(evt)
}

// Clear removes every handler registered for E.
func Clear[E any](h *Hub) {
	For[E](h).Clear()
}

// PublishContext is Publish with a trace span and metrics around the
// dispatch. A panicking handler is recorded on the span as a HandlerError
// and then re-raised.
func PublishContext[E any](ctx context.Context, h *Hub, evt E) (err error) {
	r := For[E](h)
	handlers := r.Len()

	_, span := h.spans.StartPublishSpan(ctx, r.EventType(), handlers)
	defer func() {
		if v := recover(); v != nil {
			h.spans.EndSpanWithError(span, &HandlerError{EventType: r.EventType(), Value: v})
			panic(v)
		}
		h.spans.EndSpanWithError(span, err)
	}()

	if err = r.Publish(evt); err != nil {
		return err
	}
	h.metrics.RecordPublish(ctx, r.EventType(), handlers)
	return nil
}
