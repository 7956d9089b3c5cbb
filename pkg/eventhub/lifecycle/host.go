// Package lifecycle owns process-wide hub creation and teardown.
//
// The dispatch core never needs a Host: registries and hubs work on their
// own. A Host adds the glue an application loop wants around them: a lazy
// singleton, scene-scoped bindings closed at teardown, leak reports for
// handlers nobody removed, and the configured reset policy.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/randalmurphal/eventhub/pkg/eventhub"
	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	"github.com/randalmurphal/eventhub/pkg/eventhub/leak"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
)

// ErrClosed indicates the host has been closed.
var ErrClosed = errors.New("lifecycle host closed")

// Report describes one teardown.
type Report struct {
	SessionID string
	Reason    string
	// Cleared is false when the reset policy kept handlers registered.
	Cleared bool
	// Closed is the number of scoped closers released before the snapshot.
	Closed int
	Leaks  []leak.Entry
}

// Leaked returns the total number of handlers still registered at teardown.
func (r *Report) Leaked() int {
	n := 0
	for _, e := range r.Leaks {
		n += e.Remaining
	}
	return n
}

// Host owns a hub, its leak store and the scoped closers of the current
// session.
type Host struct {
	settings config.Settings
	hub      *eventhub.Hub
	store    leak.Store
	logger   *slog.Logger

	mu        sync.Mutex
	sessionID string
	scoped    []io.Closer
	closed    bool
}

// Option configures a Host.
type Option func(*hostOptions)

type hostOptions struct {
	logger *slog.Logger
	store  leak.Store
	hub    *eventhub.Hub
}

// WithLogger sets the host logger. Default: a text logger on stderr at the
// configured level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *hostOptions) {
		o.logger = logger
	}
}

// WithStore overrides the leak store chosen by the settings.
func WithStore(s leak.Store) Option {
	return func(o *hostOptions) {
		o.store = s
	}
}

// WithHub supplies an existing hub instead of building one. By default the
// host builds a hub on eventhub.DefaultCoordinator.
func WithHub(h *eventhub.Hub) Option {
	return func(o *hostOptions) {
		o.hub = h
	}
}

// New builds a Host from settings.
func New(s config.Settings, opts ...Option) (*Host, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}

	var o hostOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: s.Level(),
		}))
	}

	if o.store == nil {
		store, err := openStore(s)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: %w", err)
		}
		o.store = store
	}

	if o.hub == nil {
		// Package-level registries join DefaultCoordinator, so the host's
		// teardown reaches them as well as the hub's own.
		hubOpts := []eventhub.HubOption{
			eventhub.WithHubCoordinator(eventhub.DefaultCoordinator),
			eventhub.WithLogger(o.logger),
		}
		if s.Metrics {
			hubOpts = append(hubOpts, eventhub.WithMetrics(observability.NewMetricsRecorder()))
		}
		if s.Tracing {
			hubOpts = append(hubOpts, eventhub.WithTracing(observability.NewSpanManager()))
		}
		o.hub = eventhub.NewHub(hubOpts...)
	}

	return &Host{
		settings:  s,
		hub:       o.hub,
		store:     o.store,
		logger:    o.logger,
		sessionID: uuid.NewString(),
	}, nil
}

func openStore(s config.Settings) (leak.Store, error) {
	switch s.LeakStore {
	case config.LeakStoreSQLite:
		return leak.NewSQLiteStore(s.LeakStorePath)
	default:
		return leak.NewMemoryStore(), nil
	}
}

// Hub returns the hub owned by the host.
func (h *Host) Hub() *eventhub.Hub {
	return h.hub
}

// Store returns the leak store.
func (h *Host) Store() leak.Store {
	return h.store
}

// Settings returns the settings the host was built with.
func (h *Host) Settings() config.Settings {
	return h.settings
}

// SessionID returns the ID of the current session. Each teardown starts
// a new session.
func (h *Host) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

// Scope registers c to be closed at the next teardown. Bindings are the
// usual closers: a binding scoped to the session releases its handlers
// before leaks are counted.
func (h *Host) Scope(c io.Closer) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scoped = append(h.scoped, c)
}

// Teardown ends the current session.
//
// It closes scoped closers, records every registry that still has handlers
// as a leak, and then clears all registries unless the reset policy is
// persist. Closer and store failures are combined into the returned error;
// the report is returned either way.
func (h *Host) Teardown(ctx context.Context, reason string) (*Report, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	sessionID := h.sessionID
	scoped := h.scoped
	h.scoped = nil
	h.sessionID = uuid.NewString()
	h.mu.Unlock()

	done := observability.TimedOperation()
	ctx, span := h.hub.Spans().StartTeardownSpan(ctx, sessionID, reason)

	var errs error
	for _, c := range scoped {
		if err := c.Close(); err != nil {
			observability.LogTeardownError(h.logger, sessionID, "close", err)
			errs = multierr.Append(errs, err)
		}
	}

	report := &Report{
		SessionID: sessionID,
		Reason:    reason,
		Closed:    len(scoped),
	}

	now := time.Now()
	for _, stat := range h.hub.Coordinator().Snapshot() {
		if stat.Handlers == 0 {
			continue
		}
		observability.LogLeak(h.logger, sessionID, stat.EventType, stat.Handlers)
		h.hub.Spans().AddSpanEvent(ctx, "leak",
			attribute.String("event.type", stat.EventType),
			attribute.Int("event.handlers", stat.Handlers),
		)
		report.Leaks = append(report.Leaks, leak.Entry{
			SessionID:  sessionID,
			Reason:     reason,
			EventType:  stat.EventType,
			Remaining:  stat.Handlers,
			RecordedAt: now,
		})
	}

	if err := h.store.Record(ctx, report.Leaks); err != nil {
		observability.LogTeardownError(h.logger, sessionID, "record", err)
		errs = multierr.Append(errs, fmt.Errorf("record leaks: %w", err))
	}

	if h.settings.ResetPolicy != config.ResetPersist {
		h.hub.ClearAll()
		report.Cleared = true
		h.hub.Spans().AddSpanEvent(ctx, "registries.cleared")
	}

	h.hub.Metrics().RecordTeardown(ctx, reason, report.Leaked())
	h.hub.Spans().EndSpanWithError(span, errs)
	observability.LogTeardown(h.logger, sessionID, reason, report.Leaked(), done())

	return report, errs
}

// Close releases scoped closers and the leak store. Handlers are left
// registered; call Teardown first for a clean shutdown. Safe to call more
// than once.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	scoped := h.scoped
	h.scoped = nil
	h.mu.Unlock()

	var errs error
	for _, c := range scoped {
		errs = multierr.Append(errs, c.Close())
	}
	return multierr.Append(errs, h.store.Close())
}

var (
	instanceMu sync.Mutex
	instance   *Host
)

// Instance returns the process-wide Host, creating it from config.Default()
// on first use. Default settings use the in-memory leak store, so creation
// cannot fail.
func Instance() *Host {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		h, err := New(config.Default())
		if err != nil {
			panic(fmt.Sprintf("lifecycle: default host: %v", err))
		}
		instance = h
	}
	return instance
}

// SetInstance replaces the process-wide Host and returns the previous one,
// which may be nil. Passing nil makes the next Instance call build a fresh
// default Host.
func SetInstance(h *Host) *Host {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	prev := instance
	instance = h
	return prev
}
