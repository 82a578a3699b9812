package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no session exists for a key.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session storage backends.
// Implementations: SQLiteStore (primary), JSONStore (file-per-session).
type Store interface {
	GetSession(ctx context.Context, key string) (*Session, error)
	PutSession(ctx context.Context, s *Session) error
	ListSessions(ctx context.Context) ([]SessionInfo, error)

	Close() error
	Migrate() error
}

// SessionInfo is a lightweight summary for listing.
type SessionInfo struct {
	Key             string
	ID              string
	UpdatedAt       time.Time
	CompactionCount int
	TotalTokens     int
}

// StoreConfig configures the storage backend.
type StoreConfig struct {
	Type string // "sqlite" or "json"
	Path string // Database file path or sessions directory

	// SQLite specific
	WALMode     bool // Enable WAL mode (default: true)
	BusyTimeout int  // Busy timeout in ms (default: 5000)
}

// NewStore creates a storage backend based on config.
func NewStore(cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case "json":
		return NewJSONStore(cfg)
	default:
		return NewSQLiteStore(cfg)
	}
}
