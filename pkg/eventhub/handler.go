package eventhub

import "reflect"

// Handler receives events of type E.
//
// Handlers are matched for removal by identity: two handlers are the same
// only if their interface values compare equal. Implementations should use
// pointer receivers; a handler whose dynamic type is not comparable is
// rejected with ErrInvalidHandler.
type Handler[E any] interface {
	Handle(evt E)
}

// Action is a handler that does not need the event payload.
type Action interface {
	Invoke()
}

// funcHandler gives a plain function a stable identity.
type funcHandler[E any] struct {
	fn func(E)
}

func (h *funcHandler[E]) Handle(evt E) {
	h.fn(evt)
}

// HandlerOf wraps fn as a Handler. Each call returns a distinct handler,
// so keep the returned value to unsubscribe later.
// Returns nil if fn is nil.
func HandlerOf[E any](fn func(E)) Handler[E] {
	if fn == nil {
		return nil
	}
	return &funcHandler[E]{fn: fn}
}

type funcAction struct {
	fn func()
}

func (a *funcAction) Invoke() {
	a.fn()
}

// ActionOf wraps fn as an Action. Like HandlerOf, each call returns a new
// identity. Returns nil if fn is nil.
func ActionOf(fn func()) Action {
	if fn == nil {
		return nil
	}
	return &funcAction{fn: fn}
}

// actionHandler is the Handler actually stored for a subscribed Action.
type actionHandler[E any] struct {
	action Action
}

func (h *actionHandler[E]) Handle(E) {
	h.action.Invoke()
}

// actionEntry pairs a caller's Action with the wrapper stored in the
// registry, so the action can be removed by its original reference.
type actionEntry[E any] struct {
	action  Action
	wrapper *actionHandler[E]
}

// validIdentity reports whether v can be stored and later matched with ==.
func validIdentity(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	if !t.Comparable() {
		return false
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return !reflect.ValueOf(v).IsNil()
	}
	return true
}

// nilableKind reports whether values of t can be nil and must be checked
// before dispatch.
func nilableKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func,
		reflect.Interface, reflect.UnsafePointer:
		return true
	}
	return false
}

func isNilEvent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
