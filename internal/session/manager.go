package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/heraldlabs/herald/internal/logging"
)

// Manager owns the in-memory session map in front of a Store. Each session
// key has a single live *Session; concurrent turns for the same key must be
// serialized by the caller (one runner per conversation), the manager only
// guards the map itself.
type Manager struct {
	store Store

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager over store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for key, loading it from the store
// or creating it on first use. The same pointer is returned for repeated
// calls with the same key.
func (m *Manager) GetOrCreate(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[key]; ok {
		return sess, nil
	}

	sess, err := m.store.GetSession(ctx, key)
	if errors.Is(err, ErrNotFound) {
		sess = NewSession(key)
		if err := m.store.PutSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to create session %s: %w", key, err)
		}
		L_info("session: created", "key", key, "id", sess.ID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}

	m.sessions[key] = sess
	return sess, nil
}

// Save persists the session through the store.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if err := m.store.PutSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.Key, err)
	}
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
