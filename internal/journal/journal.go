// Package journal provides an append-only SQLite log of notable core events:
// episodes opened and closed, timer fires, check-ins, achievements. The
// entity store is the record of truth; the journal exists for the API's
// recent-events feed and for debugging after the fact.
package journal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Journal wraps a SQLite connection for event logging.
type Journal struct {
	conn *sqlx.DB
}

// Entry is one logged event.
type Entry struct {
	ID       int64  `db:"id" json:"id"`
	EntityID string `db:"entity_id" json:"entity_id"`
	Kind     string `db:"kind" json:"kind"`
	Detail   string `db:"detail" json:"detail"`
	At       string `db:"at" json:"at"` // RFC3339Nano
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{conn: conn}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_id);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// Append logs one event. Failures are logged, not returned — the journal is
// supplementary and must never block a state transition. Safe on a nil
// journal so callers can run without one.
func (j *Journal) Append(entityID, kind, detail string) {
	if j == nil {
		return
	}
	at := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := j.conn.Exec(
		"INSERT INTO events (entity_id, kind, detail, at) VALUES (?, ?, ?, ?)",
		entityID, kind, detail, at,
	)
	if err != nil {
		slog.Warn("journal append failed", "entity", entityID, "kind", kind, "error", err)
	}
}

// Recent returns the most recent limit events, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	var entries []Entry
	err := j.conn.Select(&entries,
		"SELECT id, entity_id, kind, detail, at FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	return entries, nil
}

// RecentForEntity returns the most recent limit events for one entity,
// newest first.
func (j *Journal) RecentForEntity(entityID string, limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	var entries []Entry
	err := j.conn.Select(&entries,
		"SELECT id, entity_id, kind, detail, at FROM events WHERE entity_id = ? ORDER BY id DESC LIMIT ?",
		entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal recent for %s: %w", entityID, err)
	}
	return entries, nil
}
