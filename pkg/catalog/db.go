// Package catalog persists everything the discovery engine learns:
// archived captures, per-search resume cursors, the request audit log,
// and media candidates extracted from fetched pages. It is backed by a
// single SQLite file so a run can be interrupted and resumed at any
// point.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS captures (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    original_url  TEXT NOT NULL,
    timestamp     TEXT NOT NULL,
    archive_url   TEXT NOT NULL,
    discovered_at TEXT NOT NULL,
    fetched       INTEGER NOT NULL DEFAULT 0,
    fetched_at    TEXT,
    content_hash  TEXT,
    content_path  TEXT,
    fetch_error   TEXT,
    analyzed      INTEGER NOT NULL DEFAULT 0,
    relevant      INTEGER NOT NULL DEFAULT 0,
    notes         TEXT,
    UNIQUE (original_url, timestamp)
);

CREATE TABLE IF NOT EXISTS capture_sources (
    capture_id    INTEGER NOT NULL REFERENCES captures(id) ON DELETE CASCADE,
    phrase        TEXT NOT NULL,
    method        TEXT NOT NULL,
    discovered_at TEXT NOT NULL,
    UNIQUE (capture_id, phrase, method)
);

CREATE TABLE IF NOT EXISTS search_cursors (
    phrase     TEXT NOT NULL,
    method     TEXT NOT NULL,
    token      TEXT NOT NULL DEFAULT '',
    completed  INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (phrase, method)
);

CREATE TABLE IF NOT EXISTS request_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    url          TEXT NOT NULL,
    context      TEXT NOT NULL,
    status_code  INTEGER NOT NULL,
    outcome      TEXT NOT NULL,
    duration_ms  INTEGER NOT NULL,
    requested_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_log_requested_at ON request_log(requested_at);

CREATE TABLE IF NOT EXISTS media_candidates (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    capture_id INTEGER NOT NULL REFERENCES captures(id) ON DELETE CASCADE,
    url        TEXT NOT NULL,
    kind       TEXT NOT NULL,
    found_at   TEXT NOT NULL,
    UNIQUE (capture_id, url)
);
`

// Open opens (creating if necessary) the catalog database at path and
// applies the schema. Parent directories are created as needed.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("catalog: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}

	return db, nil
}

// OpenMemory opens an in-memory catalog database for testing. Each
// connection to ":memory:" is a separate database, so the pool is
// pinned to one connection. The database is closed via t.Cleanup.
func OpenMemory(t testing.TB) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("catalog.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
