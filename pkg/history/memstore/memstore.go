// Package memstore provides a bounded in-memory history store.
//
// Each session keeps a sliding window of its most recent exchanges; once the
// window is full, the oldest exchange falls off. Nothing survives a process
// restart and Similar always comes back empty; this is the store for
// deployments that want conversation context without a database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/taiwalabs/taiwa/pkg/history"
)

// DefaultCapacity is the per-session window size used when no capacity is
// configured.
const DefaultCapacity = 256

// Ensure Store implements history.Store at compile time.
var _ history.Store = (*Store)(nil)

// Store is an in-memory history.Store. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	sessions map[string][]history.Exchange
	nextID   int64
}

// Option is a functional option for Store.
type Option func(*Store)

// WithCapacity sets the per-session window size. Values below one fall back
// to DefaultCapacity.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		sessions: make(map[string][]history.Exchange),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Append implements history.Store. It assigns the exchange an ID, stamps a
// zero At with the current time, and trims the session window to capacity.
func (s *Store) Append(_ context.Context, ex history.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ex.ID = s.nextID
	if ex.At.IsZero() {
		ex.At = time.Now()
	}

	entries := append(s.sessions[ex.SessionID], ex)
	if len(entries) > s.capacity {
		entries = entries[len(entries)-s.capacity:]
	}
	s.sessions[ex.SessionID] = entries
	return nil
}

// Recent implements history.Store. It returns a copy of up to n of the
// session's most recent exchanges, oldest first.
func (s *Store) Recent(_ context.Context, sessionID string, n int) ([]history.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[sessionID]
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]history.Exchange, len(entries))
	copy(out, entries)
	return out, nil
}

// Similar implements history.Store. The in-memory store has no semantic
// recall, so it always returns an empty slice.
func (s *Store) Similar(_ context.Context, _ string, _ int) ([]history.Exchange, error) {
	return []history.Exchange{}, nil
}

// Close implements history.Store. It drops all sessions.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string][]history.Exchange)
	return nil
}

// Len returns the number of exchanges currently held for the session.
func (s *Store) Len(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID])
}
