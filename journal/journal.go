// Package journal keeps a local SQLite log of operator actions.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-admin-console/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_actions_at ON actions(at);
`

// Journal is an append-only action log.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path. ":memory:" keeps it
// in memory.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection keeps an in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one entry. A zero At is stamped with the current time.
func (j *Journal) Record(ctx context.Context, entry models.ActionEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO actions (at, action, target, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		entry.At.UTC().Format(time.RFC3339Nano), entry.Action, entry.Target, entry.Outcome, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.ActionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, action, target, outcome, detail FROM actions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	entries := make([]models.ActionEntry, 0, limit)
	for rows.Next() {
		var entry models.ActionEntry
		var at string
		if err := rows.Scan(&entry.ID, &at, &entry.Action, &entry.Target, &entry.Outcome, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		entry.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse action time %q: %w", at, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
