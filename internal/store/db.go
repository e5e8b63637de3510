package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// DBFileName is the database file inside the data directory.
const DBFileName = "pagegenie.db"

// schemaVersion is bumped when the schema below changes incompatibly.
const schemaVersion = 1

// DB is the SQLite store shared by chunks, documents, versions and runs.
// It is safe for concurrent use.
type DB struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// validateIntegrity checks an existing database file before it is opened.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens or creates the database at path. An empty path opens an
// in-memory database, used by tests.
func Open(path string) (*DB, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		// A corrupted database is not cleared automatically: it holds the
		// only copy of archived page versions.
		if err := validateIntegrity(path); err != nil {
			slog.Error("store_integrity_failed", slog.String("path", path), slog.String("error", err.Error()))
			return nil, fmt.Errorf("store at %s failed integrity check: %w", path, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &DB{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- AUTOINCREMENT keeps row IDs from being reused after a slug is
	-- replaced; the HNSW and Bleve indexes key on them.
	CREATE TABLE IF NOT EXISTS chunks (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		slug        TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		path        TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL,
		tokens      TEXT NOT NULL,
		embedding   BLOB,
		dims        INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL,
		UNIQUE (slug, chunk_index)
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		tokens,
		slug UNINDEXED,
		chunk_index UNINDEXED,
		tokenize = 'porter unicode61'
	);

	CREATE TABLE IF NOT EXISTS documents (
		slug         TEXT PRIMARY KEY,
		content      TEXT NOT NULL,
		last_version INTEGER NOT NULL DEFAULT 0,
		updated_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_versions (
		slug       TEXT NOT NULL REFERENCES documents(slug) ON DELETE CASCADE,
		version    INTEGER NOT NULL,
		content    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (slug, version)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id               TEXT PRIMARY KEY,
		question         TEXT NOT NULL,
		retrieval_method TEXT NOT NULL,
		page_slug        TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		error_code       TEXT NOT NULL DEFAULT '',
		error_message    TEXT NOT NULL DEFAULT '',
		warning          TEXT NOT NULL DEFAULT '',
		chunk_refs       TEXT NOT NULL DEFAULT '[]',
		num_chunks       INTEGER NOT NULL DEFAULT 0,
		embed_ms         REAL,
		retrieve_ms      REAL,
		rerank_ms        REAL,
		generate_ms      REAL,
		answer_preview   TEXT NOT NULL DEFAULT '',
		saved            INTEGER NOT NULL DEFAULT 0,
		version_label    TEXT NOT NULL DEFAULT '',
		created_at       INTEGER NOT NULL,
		finished_at      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return err
	}
	if version == 0 {
		_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		return err
	}
	if version != schemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", version, schemaVersion)
	}
	return nil
}

// Path returns the database file path, empty for in-memory databases.
func (s *DB) Path() string {
	return s.path
}

// Meta returns a stored metadata value, or "" when unset.
func (s *DB) Meta(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a metadata value.
func (s *DB) SetMeta(ctx context.Context, key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *DB) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (s *DB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != "" {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Debug("wal_checkpoint_failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}
