// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// Sessions live only as long as the process, and only the most recently
// used MAX_SESSIONS of them are kept.
//
// Characteristics:
//   - Backed by a size-bounded LRU; the least recently used session is
//     evicted (and closed) when the store is full.
//   - Concurrency-safe: the LRU is internally locked.
//   - Get returns ErrNotFound for unknown or evicted ids.

package store

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/robalobadob/applegame/internal/session"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for game sessions.
type Store interface {
	// Save persists or updates a session.
	Save(ctx context.Context, s *session.Session) error

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*session.Session, error)

	// Each calls fn for every stored session.
	Each(fn func(*session.Session))

	// Len reports how many sessions are stored.
	Len() int
}

// memory is an LRU-backed Store implementation.
type memory struct {
	sessions *lru.Cache[string, *session.Session]
}

// NewMemoryStore constructs an in-memory Store holding at most size sessions.
func NewMemoryStore(size int) (Store, error) {
	c, err := lru.NewWithEvict(size, func(_ string, s *session.Session) {
		s.Close()
	})
	if err != nil {
		return nil, err
	}
	return &memory{sessions: c}, nil
}

// Save adds or updates the session.
func (m *memory) Save(ctx context.Context, s *session.Session) error {
	m.sessions.Add(s.ID, s)
	return nil
}

// Get looks up a session by ID and marks it as recently used.
func (m *memory) Get(ctx context.Context, id string) (*session.Session, error) {
	if s, ok := m.sessions.Get(id); ok {
		return s, nil
	}
	return nil, ErrNotFound
}

// Each visits a point-in-time list of sessions without touching recency.
func (m *memory) Each(fn func(*session.Session)) {
	for _, s := range m.sessions.Values() {
		fn(s)
	}
}

// Len reports how many sessions are stored.
func (m *memory) Len() int { return m.sessions.Len() }
