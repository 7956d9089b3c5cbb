package eventhub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
)

// Resetter is a store the Coordinator can reach during ClearAll.
// *Registry[E] implements Resetter for every E.
type Resetter interface {
	EventType() string
	Len() int
	Clear()
}

// RegistryStat describes one registered store at snapshot time.
type RegistryStat struct {
	EventType string
	Handlers  int
}

// Coordinator tracks every registry that has had a subscriber so a
// teardown can reset all of them without knowing their types.
//
// Registries join lazily on their first subscribe and are never removed.
type Coordinator struct {
	mu        sync.Mutex
	resetters []Resetter

	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger for reset failures.
// Default: slog.Default().
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithCoordinatorMetrics sets the metrics recorder.
// Default: observability.NoopMetrics{}.
func WithCoordinatorMetrics(m observability.MetricsRecorder) CoordinatorOption {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultCoordinator is the process-wide coordinator used by registries
// created without WithCoordinator.
var DefaultCoordinator = NewCoordinator()

// ClearAll resets every registry in the default coordinator.
func ClearAll() {
	DefaultCoordinator.ClearAll()
}

// Register adds r to the set reached by ClearAll.
// Registries call this themselves, once, on their first subscribe.
func (c *Coordinator) Register(r Resetter) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetters = append(c.resetters, r)
}

// RegisterFunc adds a bare reset callback.
func (c *Coordinator) RegisterFunc(fn func()) {
	if fn == nil {
		return
	}
	c.Register(resetFunc(fn))
}

// Len returns the number of registered stores.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resetters)
}

// Snapshot reports the live handler count of every registered store,
// in registration order.
func (c *Coordinator) Snapshot() []RegistryStat {
	stats := make([]RegistryStat, 0, c.Len())
	for _, r := range c.list() {
		stats = append(stats, RegistryStat{
			EventType: r.EventType(),
			Handlers:  r.Len(),
		})
	}
	return stats
}

// ClearAll resets every registered store in registration order.
//
// A reset that panics is logged and skipped; the remaining stores are
// still cleared. Failures are not reported to the caller.
func (c *Coordinator) ClearAll() {
	resetters := c.list()

	failures := 0
	for _, r := range resetters {
		if err := c.reset(r); err != nil {
			failures++
			observability.LogResetFailure(c.logger, err.EventType, err)
		}
	}

	observability.LogClearAll(c.logger, len(resetters), failures)
	c.metrics.RecordClearAll(context.Background(), len(resetters), failures)
}

func (c *Coordinator) reset(r Resetter) (failure *HandlerError) {
	defer func() {
		if v := recover(); v != nil {
			failure = &HandlerError{EventType: safeEventType(r), Value: v}
		}
	}()
	r.Clear()
	return nil
}

// list returns a copy so resets run without holding c.mu.
func (c *Coordinator) list() []Resetter {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Resetter, len(c.resetters))
	copy(out, c.resetters)
	return out
}

func safeEventType(r Resetter) (name string) {
	defer func() {
		if recover() != nil {
			name = "unknown"
		}
	}()
	return r.EventType()
}

// resetFunc adapts a callback registered with RegisterFunc.
type resetFunc func()

func (f resetFunc) EventType() string { return "func" }
func (f resetFunc) Len() int          { return 0 }
func (f resetFunc) Clear()            { f() }
