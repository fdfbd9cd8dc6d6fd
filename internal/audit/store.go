// Package audit provides a SQLite-backed log of tool invocations made through
// the gateway: which tool was executed against which server, for how long,
// and with what outcome.
//
// Recording is best-effort by contract: the gateway logs and drops a failed
// write rather than failing the caller's request. The log is an operator
// aid, not a source of truth.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Outcome values stored per invocation. Error outcomes carry the taxonomy
// kind, never a parsed message fragment.
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport_error"
	OutcomeProtocol  = "protocol_error"
)

// Entry is one recorded tool invocation.
type Entry struct {
	ID         string
	Server     string
	Tool       string
	SessionID  string
	Outcome    string
	Detail     string
	DurationMS int64
	CreatedAt  time.Time
}

// Store wraps the audit database connection.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the audit database at dbPath and applies all
// pending migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	// SQLite is single-writer by design. A single shared connection lets
	// database/sql serialize concurrent writers instead of them fighting for
	// file locks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit: set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one invocation entry. Missing ID and CreatedAt fields are
// filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, server, tool, session_id, outcome, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Server, e.Tool, e.SessionID, e.Outcome, e.Detail, e.DurationMS, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first, capped at limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server, tool, session_id, outcome, detail, duration_ms, created_at
		FROM tool_calls
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.Server, &e.Tool, &e.SessionID, &e.Outcome, &e.Detail, &e.DurationMS, &created); err != nil {
			return nil, fmt.Errorf("audit: recent scan: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent rows: %w", err)
	}
	return entries, nil
}

// migrate applies all embedded migration files, in filename order, that have
// a version greater than the current schema version.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("audit: create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("audit: read schema version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("audit: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			return fmt.Errorf("audit: migration %s has no numeric version prefix", name)
		}
		if version <= current {
			continue
		}
		ddl, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("audit: read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(ddl)); err != nil {
			return fmt.Errorf("audit: apply migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("audit: mark migration %s: %w", name, err)
		}
	}
	return nil
}
