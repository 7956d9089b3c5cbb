// Package typeindex maps Go types to per-type values.
//
// Hub uses an Index to find the registry for an event type when callers
// address registries by type parameter instead of holding them directly.
package typeindex

import (
	"reflect"
	"sync"
)

// Index is a thread-safe map from reflect.Type to a value.
// It uses sync.RWMutex since lookups vastly outnumber insertions.
type Index struct {
	mu      sync.RWMutex
	entries map[reflect.Type]any
	order   []reflect.Type
}

// New creates an empty index.
func New() *Index {
	return &Index{
		entries: make(map[reflect.Type]any),
	}
}

// Get returns the value stored for t and whether it exists.
func (x *Index) Get(t reflect.Type) (any, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	v, ok := x.entries[t]
	return v, ok
}

// Len returns the number of stored types.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Range calls fn for each entry in insertion order until fn returns false.
//
// Range iterates over a snapshot, so fn may call GetOrCreate without
// deadlocking; entries added during iteration are not visited.
func (x *Index) Range(fn func(reflect.Type, any) bool) {
	x.mu.RLock()
	types := make([]reflect.Type, len(x.order))
	copy(types, x.order)
	values := make([]any, len(types))
	for i, t := range types {
		values[i] = x.entries[t]
	}
	x.mu.RUnlock()

	for i, t := range types {
		if !fn(t, values[i]) {
			return
		}
	}
}

// GetOrCreate returns the value for t, creating it with factory if absent.
// The factory runs at most once per type, even under concurrent access.
func (x *Index) GetOrCreate(t reflect.Type, factory func() any) any {
	if v, ok := x.Get(t); ok {
		return v
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if v, ok := x.entries[t]; ok {
		return v
	}

	v := factory()
	x.entries[t] = v
	x.order = append(x.order, t)
	return v
}

// Lookup returns the value for T, creating it with factory if absent.
// It panics if the stored value is not a V, which means two callers used
// the same type key for different value kinds.
func Lookup[T, V any](x *Index, factory func() V) V {
	v := x.GetOrCreate(reflect.TypeFor[T](), func() any { return factory() })
	return v.(V)
}
