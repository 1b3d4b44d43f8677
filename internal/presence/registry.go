// Package presence tracks which users hold a live realtime connection and
// tells their online friends when that changes.
package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Entry is one userID → connectionID mapping.
type Entry struct {
	UserID       uuid.UUID `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
}

// Registry maps each online user to their single current connection.
// A newer Register for the same user replaces the older mapping.
type Registry interface {
	// Register maps userID to connID and returns the connection it
	// replaced, or "" if there was none. The replaced connection is not
	// notified; that is the caller's job.
	Register(ctx context.Context, userID uuid.UUID, connID string) (evicted string, err error)

	// Unregister removes userID's mapping. Removing an absent user is a no-op.
	Unregister(ctx context.Context, userID uuid.UUID) error

	// Release removes userID's mapping only if it still points at connID,
	// and reports whether it did.
	Release(ctx context.Context, userID uuid.UUID, connID string) (bool, error)

	Lookup(ctx context.Context, userID uuid.UUID) (connID string, ok bool, err error)

	// Snapshot returns every current mapping.
	Snapshot(ctx context.Context) ([]Entry, error)
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[uuid.UUID]string)}
}

func (r *MemoryRegistry) Register(_ context.Context, userID uuid.UUID, connID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[userID]
	r.conns[userID] = connID
	if prev == connID {
		return "", nil
	}
	return prev, nil
}

func (r *MemoryRegistry) Unregister(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, userID)
	return nil
}

func (r *MemoryRegistry) Release(_ context.Context, userID uuid.UUID, connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[userID]; !ok || cur != connID {
		return false, nil
	}
	delete(r.conns, userID)
	return true, nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, userID uuid.UUID) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.conns[userID]
	return connID, ok, nil
}

func (r *MemoryRegistry) Snapshot(_ context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.conns))
	for userID, connID := range r.conns {
		entries = append(entries, Entry{UserID: userID, ConnectionID: connID})
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID.String() < entries[j].UserID.String()
	})
}

var _ Registry = (*MemoryRegistry)(nil)
