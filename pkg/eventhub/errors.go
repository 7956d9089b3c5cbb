package eventhub

import (
	"errors"
	"fmt"
)

// Sentinel errors for subscription and dispatch.
var (
	// ErrInvalidHandler indicates a nil handler or action, or one whose
	// dynamic type cannot be compared for identity.
	ErrInvalidHandler = errors.New("invalid handler")

	// ErrInvalidEvent indicates Publish was called with a nil event of a
	// nilable event type (pointer, map, chan, func or interface).
	ErrInvalidEvent = errors.New("invalid event")
)

// HandlerError wraps a panic raised by a handler or a registry reset.
//
// Publish never produces a HandlerError: a panicking handler propagates
// to the publisher unchanged. HandlerError is what the Coordinator logs
// when it isolates a failing reset, and what instrumented dispatch
// records on its span before re-panicking.
type HandlerError struct {
	// EventType is the Go type name of the registry involved.
	EventType string
	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %s panicked: %v", e.EventType, e.Value)
}

// Unwrap returns the panic value when it is itself an error.
func (e *HandlerError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
