package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/curbz/cognition/internal/cognition"
)

var ErrNotConfigured = errors.New("journal is not configured")

// Config locates the journal database. An empty path disables the journal.
type Config struct {
	Path string `yaml:"path" env:"JOURNAL_PATH"`
}

// Entry is one stored cycle event.
type Entry struct {
	ID       int64
	Cycle    uint64
	Time     time.Time
	Kind     string
	Source   string
	From     string
	To       string
	Severity string
	Text     string
}

// Journal persists phase transitions, conflict transitions and statuses
// to SQLite for post-flight review.
type Journal struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle    INTEGER NOT NULL,
	at       INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	source   TEXT NOT NULL,
	from_s   TEXT NOT NULL DEFAULT '',
	to_s     TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL DEFAULT '',
	text     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_cycle ON events (cycle);
`

// Open opens the journal database and creates its schema.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (j *Journal) Close() error {
	if j == nil || j.sqlDB == nil {
		return nil
	}
	return j.sqlDB.Close()
}

// RecordEvents stores a cycle's events in one transaction.
func (j *Journal) RecordEvents(ctx context.Context, events []cognition.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j == nil || j.sqlDB == nil {
		return ErrNotConfigured
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := j.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO events (cycle, at, kind, source, from_s, to_s, severity, text)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		sev := ""
		if e.Kind == cognition.EventStatus {
			sev = e.Severity.String()
		}
		if _, err := stmt.ExecContext(ctx,
			int64(e.Cycle),
			e.Time.UTC().UnixMilli(),
			string(e.Kind),
			e.Source,
			e.From,
			e.To,
			sev,
			e.Text,
		); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListEvents lists newest-first journal entries.
func (j *Journal) ListEvents(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if j == nil || j.sqlDB == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := j.sqlDB.QueryContext(ctx, `
SELECT id, cycle, at, kind, source, from_s, to_s, severity, text
FROM events
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e     Entry
			cycle int64
			at    int64
		)
		if err := rows.Scan(&e.ID, &cycle, &at, &e.Kind, &e.Source, &e.From, &e.To, &e.Severity, &e.Text); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Cycle = uint64(cycle)
		e.Time = time.UnixMilli(at).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}
