package violationlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"proctor/internal/config"
	"proctor/internal/violation"
)

// Store persists violation entries in SQLite so the audit trail outlives the
// daemon process. It implements Sink.
type Store struct {
	db   *sql.DB
	path string
}

// SessionSummary aggregates the stored entries of one session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Entries   int       `json:"entries"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the violation database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Write inserts one entry. Entries are keyed by (session, seq), so rewriting
// an already stored entry is a no-op.
func (s *Store) Write(ctx context.Context, entry Entry) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO violations (session_id, seq, kind, message, recorded_at)
             VALUES (?, ?, ?, ?, ?)`,
			entry.SessionID,
			entry.Seq,
			entry.Kind.String(),
			entry.Message,
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
		return nil
	})
}

// ReadAll returns every stored entry, ordered by insertion.
func (s *Store) ReadAll(ctx context.Context) ([]Entry, error) {
	return s.query(ctx,
		`SELECT session_id, seq, kind, message, recorded_at FROM violations ORDER BY id`)
}

// ReadSession returns the entries of one session in sequence order.
func (s *Store) ReadSession(ctx context.Context, sessionID string) ([]Entry, error) {
	return s.query(ctx,
		`SELECT session_id, seq, kind, message, recorded_at FROM violations
         WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
}

// Sessions summarizes stored sessions, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(1), MIN(recorded_at), MAX(recorded_at), MIN(id) AS first_id
         FROM violations GROUP BY session_id ORDER BY first_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			summary     SessionSummary
			first, last string
			firstID     int64
		)
		if err := rows.Scan(&summary.SessionID, &summary.Entries, &first, &last, &firstID); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		summary.First = parseTimestamp(first)
		summary.Last = parseTimestamp(last)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry     Entry
			kindName  string
			timestamp string
		)
		if err := rows.Scan(&entry.SessionID, &entry.Seq, &kindName, &entry.Message, &timestamp); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		kind, err := violation.ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("decode violation kind: %w", err)
		}
		entry.Kind = kind
		entry.Timestamp = parseTimestamp(timestamp)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return out, nil
}

func parseTimestamp(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
