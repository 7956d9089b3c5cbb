package observability

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records eventhub metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPublish records one dispatch and how many handlers it reached.
	RecordPublish(ctx context.Context, eventType string, handlers int)

	// RecordSubscription records a subscribe (delta > 0) or unsubscribe (delta < 0).
	RecordSubscription(ctx context.Context, eventType string, delta int)

	// RecordClearAll records a clear-all pass over the given number of registries.
	RecordClearAll(ctx context.Context, registries, failures int)

	// RecordTeardown records a lifecycle teardown and the handlers still registered.
	RecordTeardown(ctx context.Context, reason string, leaked int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	publishes      metric.Int64Counter
	fanout         metric.Int64Histogram
	subscriptions  metric.Int64UpDownCounter
	clearAlls      metric.Int64Counter
	resetFailures  metric.Int64Counter
	leakedHandlers metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventhub")

	publishes, err := meter.Int64Counter("eventhub.publish.count",
		metric.WithDescription("Number of published events"),
	)
	if err != nil {
		return nil, err
	}

	fanout, err := meter.Int64Histogram("eventhub.publish.handlers",
		metric.WithDescription("Handlers registered when an event was published"),
	)
	if err != nil {
		return nil, err
	}

	subscriptions, err := meter.Int64UpDownCounter("eventhub.subscriptions",
		metric.WithDescription("Live subscriptions made through instrumented paths"),
	)
	if err != nil {
		return nil, err
	}

	clearAlls, err := meter.Int64Counter("eventhub.clear_all.count",
		metric.WithDescription("Number of clear-all passes"),
	)
	if err != nil {
		return nil, err
	}

	resetFailures, err := meter.Int64Counter("eventhub.reset.failures",
		metric.WithDescription("Registry resets that panicked during clear-all"),
	)
	if err != nil {
		return nil, err
	}

	leakedHandlers, err := meter.Int64Histogram("eventhub.teardown.leaked_handlers",
		metric.WithDescription("Handlers still registered at teardown"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		publishes:      publishes,
		fanout:         fanout,
		subscriptions:  subscriptions,
		clearAlls:      clearAlls,
		resetFailures:  resetFailures,
		leakedHandlers: leakedHandlers,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordPublish records a dispatch.
func (m *otelMetrics) RecordPublish(ctx context.Context, eventType string, handlers int) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))
	m.publishes.Add(ctx, 1, attrs)
	m.fanout.Record(ctx, int64(handlers), attrs)
}

// RecordSubscription records a subscription change.
func (m *otelMetrics) RecordSubscription(ctx context.Context, eventType string, delta int) {
	m.subscriptions.Add(ctx, int64(delta),
		metric.WithAttributes(attribute.String("event_type", eventType)))
}

// RecordClearAll records a clear-all pass.
func (m *otelMetrics) RecordClearAll(ctx context.Context, registries, failures int) {
	m.clearAlls.Add(ctx, 1, metric.WithAttributes(attribute.Int("registries", registries)))
	if failures > 0 {
		m.resetFailures.Add(ctx, int64(failures))
	}
}

// RecordTeardown records a teardown.
func (m *otelMetrics) RecordTeardown(ctx context.Context, reason string, leaked int) {
	m.leakedHandlers.Record(ctx, int64(leaked),
		metric.WithAttributes(attribute.String("reason", reason)))
}
