package leak

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory leak store.
// Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string][]Entry // sessionID -> entries
	sessions []string
	closed   bool
}

// NewMemoryStore creates a new in-memory leak store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]Entry),
	}
}

// Record implements Store.
func (m *MemoryStore) Record(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	for _, e := range entries {
		if _, ok := m.entries[e.SessionID]; !ok {
			m.sessions = append(m.sessions, e.SessionID)
		}
		m.entries[e.SessionID] = append(m.entries[e.SessionID], e)
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, sessionID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	stored := m.entries[sessionID]
	out := make([]Entry, len(stored))
	copy(out, stored)
	return out, nil
}

// Sessions implements Store.
func (m *MemoryStore) Sessions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	out := make([]string, len(m.sessions))
	copy(out, m.sessions)
	return out, nil
}

// Purge implements Store.
func (m *MemoryStore) Purge(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if _, ok := m.entries[sessionID]; !ok {
		return nil
	}
	delete(m.entries, sessionID)
	for i, id := range m.sessions {
		if id == sessionID {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			break
		}
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	m.sessions = nil
	return nil
}

// Len returns the total number of entries across all sessions.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries {
		count += len(e)
	}
	return count
}
