// Package ledger records pairing attempts in a local SQLite database.
// It never stores pairing codes, credentials or upload URLs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Outcome labels stored in the outcome column
const (
	OutcomePending   = "pending"
	OutcomeExported  = "exported"
	OutcomeFailed    = "export_failed"
	OutcomeLoggedOut = "logged_out"
	OutcomeCodeError = "code_error"
	OutcomeAbandoned = "abandoned"
	OutcomeCancelled = "cancelled"
)

// ErrNotFound is returned when an attempt id is unknown
var ErrNotFound = errors.New("attempt not found")

// Attempt is one row of the ledger
type Attempt struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	Phone        string     `json:"phone"`
	StartedAt    time.Time  `json:"started_at"`
	CodeIssuedAt *time.Time `json:"code_issued_at,omitempty"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Outcome      string     `json:"outcome"`
	Provider     string     `json:"provider,omitempty"`
	Restarts     int        `json:"restarts"`
	BundleDigest string     `json:"bundle_digest,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Finish describes how an attempt ended
type Finish struct {
	Outcome      string
	Provider     string
	Restarts     int
	BundleDigest string
	Err          error
}

// Recorder is what the pairing pipeline writes to
type Recorder interface {
	Start(ctx context.Context, sessionID, phone string) (string, error)
	MarkCodeIssued(ctx context.Context, id string) error
	MarkOpened(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, f Finish) error
	Recent(ctx context.Context, limit int) ([]Attempt, error)
	Close() error
}

// NewID returns a fresh attempt id
func NewID() string {
	return uuid.NewString()
}

// Nop is a Recorder that keeps nothing; it still hands out ids
type Nop struct{}

func (Nop) Start(ctx context.Context, sessionID, phone string) (string, error) { return NewID(), nil }
func (Nop) MarkCodeIssued(ctx context.Context, id string) error { return nil }
func (Nop) MarkOpened(ctx context.Context, id string) error { return nil }
func (Nop) Finish(ctx context.Context, id string, f Finish) error { return nil }
func (Nop) Recent(ctx context.Context, limit int) ([]Attempt, error) { return nil, nil }
func (Nop) Close() error { return nil }

// Store handles SQLite operations for attempts
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and creates) the ledger database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    phone TEXT NOT NULL,
    started_at TEXT NOT NULL,
    code_issued_at TEXT,
    opened_at TEXT,
    finished_at TEXT,
    outcome TEXT NOT NULL,
    provider TEXT,
    restarts INTEGER DEFAULT 0,
    bundle_digest TEXT,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id);
`
	_, err := s.db.Exec(schema)
	return err
}

// Start inserts a pending attempt and returns its id
func (s *Store) Start(ctx context.Context, sessionID, phone string) (string, error) {
	id := NewID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, session_id, phone, started_at, outcome) VALUES (?, ?, ?, ?, ?)`,
		id, sessionID, phone, formatTime(s.now()), OutcomePending)
	if err != nil {
		return "", fmt.Errorf("insert attempt: %w", err)
	}
	return id, nil
}

// MarkCodeIssued stamps the first time a pairing code went out
func (s *Store) MarkCodeIssued(ctx context.Context, id string) error {
	return s.stamp(ctx, id, `UPDATE attempts SET code_issued_at = COALESCE(code_issued_at, ?) WHERE id = ?`)
}

// MarkOpened stamps the first time the connection opened
func (s *Store) MarkOpened(ctx context.Context, id string) error {
	return s.stamp(ctx, id, `UPDATE attempts SET opened_at = COALESCE(opened_at, ?) WHERE id = ?`)
}

func (s *Store) stamp(ctx context.Context, id, query string) error {
	res, err := s.db.ExecContext(ctx, query, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	return expectOne(res, id)
}

// Finish records the final outcome of an attempt
func (s *Store) Finish(ctx context.Context, id string, f Finish) error {
	var errText sql.NullString
	if f.Err != nil {
		errText = sql.NullString{String: f.Err.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET finished_at = ?, outcome = ?, provider = ?, restarts = ?, bundle_digest = ?, error = ? WHERE id = ?`,
		formatTime(s.now()), f.Outcome, nullString(f.Provider), f.Restarts, nullString(f.BundleDigest), errText, id)
	if err != nil {
		return fmt.Errorf("finish attempt: %w", err)
	}
	return expectOne(res, id)
}

// Recent returns the newest attempts first
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, phone, started_at, code_issued_at, opened_at, finished_at,
       outcome, provider, restarts, bundle_digest, error
FROM attempts
ORDER BY started_at DESC, rowid DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a                            Attempt
			started                      string
			codeIssued, opened, finished sql.NullString
			provider, digest, errText    sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Phone, &started, &codeIssued, &opened, &finished,
			&a.Outcome, &provider, &a.Restarts, &digest, &errText); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}

		a.StartedAt = parseTime(started)
		a.CodeIssuedAt = parseNullTime(codeIssued)
		a.OpenedAt = parseNullTime(opened)
		a.FinishedAt = parseNullTime(finished)
		a.Provider = provider.String
		a.BundleDigest = digest.String
		a.Error = errText.String

		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

var (
	_ Recorder = (*Store)(nil)
	_ Recorder = Nop{}
)
