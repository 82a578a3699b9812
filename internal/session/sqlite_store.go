package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/heraldlabs/herald/internal/logging"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config StoreConfig
}

// Schema version for migrations
const currentSchemaVersion = 2

// NewSQLiteStore opens (or creates) the database at cfg.Path and runs
// migrations.
func NewSQLiteStore(cfg StoreConfig) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.WALMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			L_warn("sqlite: failed to enable WAL mode", "error", err)
		}
	}

	timeout := cfg.BusyTimeout
	if timeout == 0 {
		timeout = 5000
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeout)); err != nil {
		L_warn("sqlite: failed to set busy_timeout", "error", err)
	}

	store := &SQLiteStore{db: db, config: cfg}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	L_info("sqlite: store opened", "path", cfg.Path)
	return store, nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		// Table doesn't exist, start from scratch
		version = 0
	}

	if version >= currentSchemaVersion {
		L_debug("sqlite: schema up to date", "version", version)
		return nil
	}

	L_info("sqlite: migrating schema", "from", version, "to", currentSchemaVersion)

	migrations := []func(*sql.DB) error{
		migrateV1,
		migrateV2,
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		L_debug("sqlite: applied migration", "version", i+1)
	}

	return nil
}

// migrateV1 creates the initial schema
func migrateV1(db *sql.DB) error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO schema_version (version, applied_at) VALUES (1, ?);

	-- Sessions table
	CREATE TABLE IF NOT EXISTS sessions (
		key TEXT PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,

		-- Execution metadata
		model TEXT DEFAULT '',
		context_tokens INTEGER DEFAULT 0,

		-- Counters
		compaction_count INTEGER DEFAULT 0,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		total_tokens INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`

	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// migrateV2 adds provider and prompt-cache token columns
func migrateV2(db *sql.DB) error {
	schema := `
	ALTER TABLE sessions ADD COLUMN provider TEXT DEFAULT '';
	ALTER TABLE sessions ADD COLUMN cache_read_tokens INTEGER DEFAULT 0;
	ALTER TABLE sessions ADD COLUMN cache_write_tokens INTEGER DEFAULT 0;

	INSERT INTO schema_version (version, applied_at) VALUES (2, ?);
	`

	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// GetSession retrieves a session by key.
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, id, created_at, updated_at,
		       model, provider, context_tokens,
		       compaction_count, input_tokens, output_tokens,
		       cache_read_tokens, cache_write_tokens, total_tokens
		FROM sessions WHERE key = ?`, key)

	var sess Session
	var created, updated int64
	err := row.Scan(&sess.Key, &sess.ID, &created, &updated,
		&sess.Model, &sess.Provider, &sess.ContextTokens,
		&sess.CompactionCount, &sess.InputTokens, &sess.OutputTokens,
		&sess.CacheReadTokens, &sess.CacheWriteTokens, &sess.TotalTokens)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	sess.CreatedAt = time.Unix(created, 0)
	sess.UpdatedAt = time.Unix(updated, 0)
	return &sess, nil
}

// PutSession inserts or replaces a session row.
func (s *SQLiteStore) PutSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, id, created_at, updated_at,
			model, provider, context_tokens,
			compaction_count, input_tokens, output_tokens,
			cache_read_tokens, cache_write_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			updated_at = excluded.updated_at,
			model = excluded.model,
			provider = excluded.provider,
			context_tokens = excluded.context_tokens,
			compaction_count = excluded.compaction_count,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cache_read_tokens = excluded.cache_read_tokens,
			cache_write_tokens = excluded.cache_write_tokens,
			total_tokens = excluded.total_tokens`,
		sess.Key, sess.ID, sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
		sess.Model, sess.Provider, sess.ContextTokens,
		sess.CompactionCount, sess.InputTokens, sess.OutputTokens,
		sess.CacheReadTokens, sess.CacheWriteTokens, sess.TotalTokens)
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

// ListSessions returns summaries of all sessions, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, id, updated_at, compaction_count, total_tokens
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var updated int64
		if err := rows.Scan(&info.Key, &info.ID, &updated, &info.CompactionCount, &info.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		info.UpdatedAt = time.Unix(updated, 0)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
