// Package leak stores teardown reports about handlers that were still
// registered when a session ended.
//
// Entries describe subscribers, never event payloads.
package leak

import (
	"context"
	"errors"
	"time"
)

// Store persists leak entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record stores entries from one teardown.
	// Recording an empty slice is a no-op.
	Record(ctx context.Context, entries []Entry) error

	// List returns every entry for a session, in recording order.
	// Returns empty slice (not error) if the session has no entries.
	List(ctx context.Context, sessionID string) ([]Entry, error)

	// Sessions returns the IDs of sessions with at least one entry,
	// oldest first.
	Sessions(ctx context.Context) ([]string, error)

	// Purge removes every entry for a session.
	// Returns nil if the session has no entries.
	Purge(ctx context.Context, sessionID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Entry is one registry that still had handlers at a teardown.
type Entry struct {
	SessionID  string
	Reason     string
	EventType  string
	Remaining  int
	RecordedAt time.Time
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("leak store closed")
