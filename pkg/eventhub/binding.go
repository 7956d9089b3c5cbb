package eventhub

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
)

// bindingEntry is one subscription owned by a Binding. Exactly one of
// handler and action is set.
type bindingEntry[E any] struct {
	handler Handler[E]
	action  Action
}

func (e bindingEntry[E]) unsubscribe(r *Registry[E]) {
	if e.action != nil {
		_ = r.UnsubscribeAction(e.action)
		return
	}
	_ = r.Unsubscribe(e.handler)
}

// Binding owns one or more subscriptions on a registry and removes all of
// them exactly once when disposed.
//
//	b, err := Damaged.Bind(eventhub.HandlerOf(onDamaged))
//	if err != nil {
//	    return err
//	}
//	defer b.Dispose()
//
// After Dispose, Add and Remove are silently ignored and further Dispose
// calls do nothing.
type Binding[E any] struct {
	id       string
	registry *Registry[E]

	mu       sync.Mutex
	primary  *bindingEntry[E]
	extra    []bindingEntry[E]
	disposed bool
}

// Bind subscribes h and returns a Binding that owns the subscription.
func (r *Registry[E]) Bind(h Handler[E]) (*Binding[E], error) {
	if err := r.Subscribe(h); err != nil {
		return nil, err
	}
	return newBinding(r, bindingEntry[E]{handler: h}), nil
}

// BindAction subscribes a and returns a Binding that owns the subscription.
func (r *Registry[E]) BindAction(a Action) (*Binding[E], error) {
	if err := r.SubscribeAction(a); err != nil {
		return nil, err
	}
	return newBinding(r, bindingEntry[E]{action: a}), nil
}

func newBinding[E any](r *Registry[E], primary bindingEntry[E]) *Binding[E] {
	return &Binding[E]{
		id:       uuid.NewString(),
		registry: r,
		primary:  &primary,
	}
}

// ID returns the binding's unique identifier.
func (b *Binding[E]) ID() string {
	return b.id
}

// Disposed reports whether Dispose has run.
func (b *Binding[E]) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

// Len returns the number of subscriptions still owned by the binding.
func (b *Binding[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.extra)
	if b.primary != nil {
		n++
	}
	return n
}

// Add subscribes h and tracks it for disposal.
func (b *Binding[E]) Add(h Handler[E]) error {
	if !validIdentity(h) {
		return fmt.Errorf("bind %s: %w", b.registry.eventType, ErrInvalidHandler)
	}
	return b.track(bindingEntry[E]{handler: h}, func() error {
		return b.registry.Subscribe(h)
	})
}

// AddAction subscribes a and tracks it for disposal.
func (b *Binding[E]) AddAction(a Action) error {
	if !validIdentity(a) {
		return fmt.Errorf("bind %s: %w", b.registry.eventType, ErrInvalidHandler)
	}
	return b.track(bindingEntry[E]{action: a}, func() error {
		return b.registry.SubscribeAction(a)
	})
}

func (b *Binding[E]) track(entry bindingEntry[E], subscribe func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return nil
	}
	if err := subscribe(); err != nil {
		return err
	}
	b.extra = append(b.extra, entry)
	return nil
}

// Remove unsubscribes h if it was subscribed through this binding.
// It is a no-op if h is not tracked or the binding is disposed.
func (b *Binding[E]) Remove(h Handler[E]) error {
	if !validIdentity(h) {
		return fmt.Errorf("unbind %s: %w", b.registry.eventType, ErrInvalidHandler)
	}
	b.untrack(func(e bindingEntry[E]) bool {
		return e.action == nil && e.handler == h
	})
	return nil
}

// RemoveAction unsubscribes a if it was subscribed through this binding.
func (b *Binding[E]) RemoveAction(a Action) error {
	if !validIdentity(a) {
		return fmt.Errorf("unbind %s: %w", b.registry.eventType, ErrInvalidHandler)
	}
	b.untrack(func(e bindingEntry[E]) bool {
		return e.action != nil && e.action == a
	})
	return nil
}

func (b *Binding[E]) untrack(match func(bindingEntry[E]) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return
	}
	if b.primary != nil && match(*b.primary) {
		b.primary.unsubscribe(b.registry)
		b.primary = nil
		return
	}
	for i, e := range b.extra {
		if match(e) {
			e.unsubscribe(b.registry)
			b.extra = slices.Delete(b.extra, i, i+1)
			return
		}
	}
}

// Dispose unsubscribes every handler owned by the binding. Safe to call
// more than once.
func (b *Binding[E]) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return
	}
	b.disposed = true

	n := len(b.extra)
	if b.primary != nil {
		b.primary.unsubscribe(b.registry)
		b.primary = nil
		n++
	}
	for _, e := range b.extra {
		e.unsubscribe(b.registry)
	}
	b.extra = nil

	observability.LogBindingDisposed(b.registry.logger, b.id, b.registry.eventType, n)
}

// Close implements io.Closer. It always returns nil.
func (b *Binding[E]) Close() error {
	b.Dispose()
	return nil
}
