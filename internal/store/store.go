// Package store provides SQLite-backed persistence for chapters, notes,
// and elaboration references.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chapters (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notes (
	id          TEXT PRIMARY KEY,
	chapter_id  TEXT NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL DEFAULT 'text',
	title       TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	caption     TEXT NOT NULL DEFAULT '',
	elaboration TEXT,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_chapter ON notes(chapter_id);

CREATE TABLE IF NOT EXISTS note_references (
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	rank    INTEGER NOT NULL,
	title   TEXT NOT NULL DEFAULT '',
	url     TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	UNIQUE(note_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_refs_note ON note_references(note_id);
`

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
