// Package checkpoint provides SQLite-backed local snapshots of serialized
// notebook documents, written before each save attempt so a failed save
// never loses work.
package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	server     TEXT NOT NULL,
	notebook   TEXT NOT NULL,
	document   BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_identity ON checkpoints(server, notebook, id);
`

// Meta describes one stored snapshot.
type Meta struct {
	ID        int64
	Server    string
	Notebook  string
	Size      int
	CreatedAt time.Time
}

// Storer defines the checkpoint operations. Consumers should depend on this
// interface rather than the concrete *Store to facilitate testing.
type Storer interface {
	Put(server, notebook string, document []byte) error
	Latest(server, notebook string) ([]byte, time.Time, error)
	List(server, notebook string, limit int) ([]Meta, error)
	Prune(server, notebook string, keep int) error
	Close() error
}

// Verify *Store satisfies Storer at compile time.
var _ Storer = (*Store)(nil)

// Store wraps a sql.DB with checkpoint operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("checkpoint: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("checkpoint: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Put stores one snapshot.
func (s *Store) Put(server, notebook string, document []byte) error {
	_, err := s.conn.Exec(
		`INSERT INTO checkpoints (server, notebook, document) VALUES (?, ?, ?)`,
		server, notebook, document)
	if err != nil {
		return fmt.Errorf("checkpoint: put: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for (server, notebook).
func (s *Store) Latest(server, notebook string) ([]byte, time.Time, error) {
	row := s.conn.QueryRow(
		`SELECT document, created_at FROM checkpoints
		 WHERE server = ? AND notebook = ? ORDER BY id DESC LIMIT 1`,
		server, notebook)
	var doc []byte
	var created time.Time
	if err := row.Scan(&doc, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, fmt.Errorf("checkpoint for %s/%s: %w", server, notebook, apperr.ErrNotFound)
		}
		return nil, time.Time{}, fmt.Errorf("checkpoint: latest: %w", err)
	}
	return doc, created, nil
}

// List returns snapshot metadata, newest first.
func (s *Store) List(server, notebook string, limit int) ([]Meta, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(
		`SELECT id, server, notebook, length(document), created_at FROM checkpoints
		 WHERE server = ? AND notebook = ? ORDER BY id DESC LIMIT ?`,
		server, notebook, limit)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.Server, &m.Notebook, &m.Size, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("checkpoint: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots for (server, notebook).
func (s *Store) Prune(server, notebook string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.conn.Exec(
		`DELETE FROM checkpoints WHERE server = ? AND notebook = ? AND id NOT IN (
			SELECT id FROM checkpoints WHERE server = ? AND notebook = ?
			ORDER BY id DESC LIMIT ?
		)`,
		server, notebook, server, notebook, keep)
	if err != nil {
		return fmt.Errorf("checkpoint: prune: %w", err)
	}
	return nil
}
