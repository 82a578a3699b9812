package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/heraldlabs/herald/internal/logging"
)

// JSONStore implements Store with one JSON file per session under a
// directory. Useful for debugging and trivially greppable state; SQLite is
// the production backend.
type JSONStore struct {
	dir string
}

// NewJSONStore creates a JSON file store rooted at cfg.Path.
func NewJSONStore(cfg StoreConfig) (*JSONStore, error) {
	if err := os.MkdirAll(cfg.Path, 0750); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	L_info("jsonstore: opened", "dir", cfg.Path)
	return &JSONStore{dir: cfg.Path}, nil
}

// fileFor maps a session key to its on-disk path. Keys contain ":" which is
// not portable in filenames.
func (s *JSONStore) fileFor(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_").Replace(key)
	return filepath.Join(s.dir, name+".json")
}

// GetSession reads a session file.
func (s *JSONStore) GetSession(_ context.Context, key string) (*Session, error) {
	data, err := os.ReadFile(s.fileFor(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", key, err)
	}
	return &sess, nil
}

// PutSession writes a session file atomically (write temp, rename).
func (s *JSONStore) PutSession(_ context.Context, sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	path := s.fileFor(sess.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// ListSessions scans the directory.
func (s *JSONStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var infos []SessionInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			L_warn("jsonstore: skipping unreadable session file", "file", e.Name(), "error", err)
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			L_warn("jsonstore: skipping malformed session file", "file", e.Name(), "error", err)
			continue
		}
		infos = append(infos, SessionInfo{
			Key:             sess.Key,
			ID:              sess.ID,
			UpdatedAt:       sess.UpdatedAt,
			CompactionCount: sess.CompactionCount,
			TotalTokens:     sess.TotalTokens,
		})
	}
	return infos, nil
}

// Migrate is a no-op for the JSON backend.
func (s *JSONStore) Migrate() error { return nil }

// Close is a no-op for the JSON backend.
func (s *JSONStore) Close() error { return nil }
