// Package journal persists committed store mutations to SQLite. It is an
// optional collaborator: the store core never depends on it; a journal is
// attached from the outside through OnChange subscriptions.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on snapshots (session_id, seq)
const currentSchemaVersion = 1

// Journal provides durable storage for committed mutations.
// Uses SQLite with WAL mode for concurrent read access.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path.
// Applies required pragmas and migrations automatically; safe to call
// multiple times on the same path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		// New databases get this from schema.sql; databases created
		// before v1 need the index added explicitly.
		_, err := db.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_session_seq
			ON snapshots(session_id, seq)
		`)
		if err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// BeginSession creates a new journal session and returns its token.
func (j *Journal) BeginSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx, `INSERT INTO sessions (id) VALUES (?)`, id)
	if err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}
	return id, nil
}

// Sessions lists all session tokens, oldest first.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ChangeRecord is one journaled mutation.
type ChangeRecord struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Field     string `json:"field"`
	Path      string `json:"path"`
	Value     string `json:"value"` // canonical JSON of the committed value
}

// RecordChange inserts a change record. Uses ON CONFLICT DO NOTHING on
// (session_id, seq) for idempotency - duplicate sequence numbers within a
// session are silently ignored.
func (j *Journal) RecordChange(ctx context.Context, rec ChangeRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO changes (session_id, seq, field, path, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, rec.SessionID, rec.Seq, rec.Field, rec.Path, rec.Value)
	if err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

// Changes returns a session's change records ordered by seq.
func (j *Journal) Changes(ctx context.Context, sessionID string) ([]ChangeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id, seq, field, path, value
		FROM changes
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var recs []ChangeRecord
	for rows.Next() {
		var rec ChangeRecord
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &rec.Field, &rec.Path, &rec.Value); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	if recs == nil {
		recs = []ChangeRecord{}
	}
	return recs, nil
}

// SaveSnapshot stores a whole-state snapshot (canonical JSON) at seq.
func (j *Journal) SaveSnapshot(ctx context.Context, sessionID string, seq int64, state string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, seq, state)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, sessionID, seq, state)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the highest-seq snapshot for a session.
// Returns sql.ErrNoRows when the session has no snapshots.
func (j *Journal) LatestSnapshot(ctx context.Context, sessionID string) (state string, seq int64, err error) {
	err = j.db.QueryRowContext(ctx, `
		SELECT state, seq FROM snapshots
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, sessionID).Scan(&state, &seq)
	if err != nil {
		return "", 0, err
	}
	return state, seq, nil
}

// LastSeq returns the highest change seq recorded for a session.
// Used to resume a session's logical clock from the correct position.
func (j *Journal) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM changes WHERE session_id = ?
	`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
