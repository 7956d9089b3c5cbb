package eventhub

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry holds the subscribers for one event type.
//
// A Registry is the type token for E: keep it in a package-level variable
// and publish through it directly, with no lookup on the hot path.
//
//	var Damaged = eventhub.NewRegistry[DamagedEvent]()
//
//	Damaged.Subscribe(eventhub.HandlerOf(onDamaged))
//	Damaged.Publish(DamagedEvent{Amount: 25, Source: "Fire"})
//
// Publish visits handlers from the most recently subscribed to the oldest.
// Handlers may subscribe and unsubscribe (on this or any registry) while
// being dispatched. Each Publish walks the list as it was when the call
// began; a removal while any dispatch is running swaps in a fresh copy of
// the list instead of shifting the one being walked, and marks the removed
// registration so no dispatch still holding it invokes it. Handlers
// subscribed during a Publish are first invoked by the next Publish.
//
// Registry is safe for concurrent use. Its lock is never held while a
// handler runs.
type Registry[E any] struct {
	mu      sync.Mutex
	slots   []*slot[E]
	actions []actionEntry[E]
	depth   int

	eventType   string
	nilable     bool
	coordinator *Coordinator
	logger      *slog.Logger
	onChange    func(eventType string, delta int)
	registered  sync.Once
}

// slot is one registration. Lists held by running dispatches share slots
// with the current list, so a removal is visible to all of them.
type slot[E any] struct {
	handler Handler[E]
	removed atomic.Bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	coordinator *Coordinator
	logger      *slog.Logger
	onChange    func(eventType string, delta int)
}

// WithCoordinator sets the coordinator the registry joins on its first
// subscribe. Default: DefaultCoordinator. Passing nil keeps the registry
// out of every ClearAll.
func WithCoordinator(c *Coordinator) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.coordinator = c
	}
}

// WithRegistryLogger sets the logger used for binding lifecycle messages.
// Default: none.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.logger = logger
	}
}

// WithSubscriptionHook sets a function called with the change in live
// subscriptions after every subscribe, unsubscribe and clear that changed
// the count. It runs outside the registry's lock. Default: none.
func WithSubscriptionHook(fn func(eventType string, delta int)) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.onChange = fn
	}
}

// NewRegistry creates an empty registry for events of type E.
func NewRegistry[E any](opts ...RegistryOption) *Registry[E] {
	cfg := registryConfig{coordinator: DefaultCoordinator}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := reflect.TypeFor[E]()
	return &Registry[E]{
		eventType:   t.String(),
		nilable:     nilableKind(t),
		coordinator: cfg.coordinator,
		logger:      cfg.logger,
		onChange:    cfg.onChange,
	}
}

// EventType returns the Go type name of E.
func (r *Registry[E]) EventType() string {
	return r.eventType
}

// Len returns the number of live subscriptions.
func (r *Registry[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Subscribe appends h. Subscribing the same handler twice registers it
// twice; each registration is invoked and removed independently.
func (r *Registry[E]) Subscribe(h Handler[E]) error {
	if !validIdentity(h) {
		return fmt.Errorf("subscribe %s: %w", r.eventType, ErrInvalidHandler)
	}
	r.mu.Lock()
	r.addLocked(h)
	r.mu.Unlock()

	r.changed(1)
	return nil
}

// Unsubscribe removes the oldest registration of h.
// It is a no-op if h is not registered.
func (r *Registry[E]) Unsubscribe(h Handler[E]) error {
	if !validIdentity(h) {
		return fmt.Errorf("unsubscribe %s: %w", r.eventType, ErrInvalidHandler)
	}
	r.mu.Lock()
	removed := r.removeLocked(h)
	r.mu.Unlock()

	if removed {
		r.changed(-1)
	}
	return nil
}

// SubscribeAction registers an Action that ignores the payload.
func (r *Registry[E]) SubscribeAction(a Action) error {
	if !validIdentity(a) {
		return fmt.Errorf("subscribe %s: %w", r.eventType, ErrInvalidHandler)
	}
	wrapper := &actionHandler[E]{action: a}

	r.mu.Lock()
	r.actions = append(r.actions, actionEntry[E]{action: a, wrapper: wrapper})
	r.addLocked(wrapper)
	r.mu.Unlock()

	r.changed(1)
	return nil
}

// UnsubscribeAction removes the oldest registration of a.
// It is a no-op if a is not registered.
func (r *Registry[E]) UnsubscribeAction(a Action) error {
	if !validIdentity(a) {
		return fmt.Errorf("unsubscribe %s: %w", r.eventType, ErrInvalidHandler)
	}
	r.mu.Lock()
	removed := false
	for i, entry := range r.actions {
		if entry.action == a {
			removed = r.removeLocked(entry.wrapper)
			r.actions = slices.Delete(r.actions, i, i+1)
			break
		}
	}
	r.mu.Unlock()

	if removed {
		r.changed(-1)
	}
	return nil
}

// Publish invokes every live handler with evt, newest first.
//
// A panicking handler propagates to the caller; handlers not yet visited
// are skipped for this call and the registry stays consistent.
func (r *Registry[E]) Publish(evt E) error {
	if r.nilable && isNilEvent(any(evt)) {
		return fmt.Errorf("publish %s: %w", r.eventType, ErrInvalidEvent)
	}

	r.mu.Lock()
	slots := r.slots
	if len(slots) == 0 {
		r.mu.Unlock()
		return nil
	}
	r.depth++
	r.mu.Unlock()

	defer r.endDispatch()

	for i := len(slots) - 1; i >= 0; i-- {
		if s := slots[i]; !s.removed.Load() {
			s.handler.Handle(evt)
		}
	}
	return nil
}

// Clear removes every handler and action.
func (r *Registry[E]) Clear() {
	r.mu.Lock()
	n := len(r.slots)
	for _, s := range r.slots {
		s.removed.Store(true)
	}
	if r.depth > 0 {
		r.slots = nil
	} else {
		clear(r.slots)
		r.slots = r.slots[:0]
	}
	clear(r.actions)
	r.actions = r.actions[:0]
	r.mu.Unlock()

	r.changed(-n)
}

// addLocked appends h. Caller holds r.mu. Appending never touches the
// part of the backing array a running dispatch is walking.
func (r *Registry[E]) addLocked(h Handler[E]) {
	r.slots = append(r.slots, &slot[E]{handler: h})
}

// removeLocked drops the oldest slot holding h. Caller holds r.mu.
func (r *Registry[E]) removeLocked(h Handler[E]) bool {
	i := slices.IndexFunc(r.slots, func(s *slot[E]) bool { return s.handler == h })
	if i < 0 {
		return false
	}
	r.slots[i].removed.Store(true)
	if r.depth > 0 {
		r.slots = slices.Concat(r.slots[:i], r.slots[i+1:])
	} else {
		r.slots = slices.Delete(r.slots, i, i+1)
	}
	return true
}

// changed joins the coordinator on the first subscribe and reports the
// change to the subscription hook. Caller does not hold r.mu.
func (r *Registry[E]) changed(delta int) {
	if delta > 0 && r.coordinator != nil {
		r.registered.Do(r.register)
	}
	if delta != 0 && r.onChange != nil {
		r.onChange(r.eventType, delta)
	}
}

func (r *Registry[E]) register() {
	r.coordinator.Register(r)
}

func (r *Registry[E]) endDispatch() {
	r.mu.Lock()
	r.depth--
	r.mu.Unlock()
}
