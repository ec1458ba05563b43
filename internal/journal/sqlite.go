// ABOUTME: SQLite implementation of the Journal interface using modernc.org/sqlite
// ABOUTME: Creates the schema on open; values and snapshots are stored as JSON, local changes keyed by ULID

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/tree"
)

// defaultListLimit applies when callers pass limit <= 0.
const defaultListLimit = 100

// SQLiteJournal implements Journal using SQLite
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteJournal opens (or creates) the journal at path.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	logger := slog.Default().With("component", "journal")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &SQLiteJournal{db: db, logger: logger}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("journal initialized", "path", path)
	return j, nil
}

func (j *SQLiteJournal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS local_changes (
			id TEXT PRIMARY KEY, -- ULID, sorts in append order
			db_path TEXT NOT NULL,
			local_path TEXT NOT NULL,
			action TEXT NOT NULL,
			value_json TEXT,
			timestamp_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_local_changes_db_path ON local_changes(db_path);

		CREATE TABLE IF NOT EXISTS action_failures (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			milestone TEXT NOT NULL,
			message TEXT NOT NULL,
			stack TEXT NOT NULL DEFAULT '',
			failed_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			subtree TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := j.db.Exec(schema)
	return err
}

// AppendLocalChange stores a local change at the end of the journal.
func (j *SQLiteJournal) AppendLocalChange(ctx context.Context, change event.LocalChange) error {
	var value sql.NullString
	if change.Value != nil {
		b, err := json.Marshal(change.Value)
		if err != nil {
			return fmt.Errorf("encoding value: %w", err)
		}
		value = sql.NullString{String: string(b), Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO local_changes (id, db_path, local_path, action, value_json, timestamp_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ulid.Make().String(), change.DBPath, change.LocalPath, string(change.Action), value, change.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting local change: %w", err)
	}
	return nil
}

// ListLocalChanges returns the most recent changes, oldest first.
func (j *SQLiteJournal) ListLocalChanges(ctx context.Context, limit int) ([]event.LocalChange, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT db_path, local_path, action, value_json, timestamp_ms FROM (
			SELECT * FROM local_changes ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying local changes: %w", err)
	}
	defer rows.Close()

	var out []event.LocalChange
	for rows.Next() {
		var (
			lc     event.LocalChange
			action string
			value  sql.NullString
		)
		if err := rows.Scan(&lc.DBPath, &lc.LocalPath, &action, &value, &lc.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning local change: %w", err)
		}
		lc.Action = event.Action(action)
		if value.Valid {
			if err := json.Unmarshal([]byte(value.String), &lc.Value); err != nil {
				return nil, fmt.Errorf("decoding value: %w", err)
			}
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// RecordFailure stores a failed lifecycle callback. ID and FailedAt are filled in when empty.
func (j *SQLiteJournal) RecordFailure(ctx context.Context, f *ActionFailure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO action_failures (id, name, milestone, message, stack, failed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.ID, f.Name, f.Milestone, f.Message, f.Stack, f.FailedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting action failure: %w", err)
	}
	return nil
}

// ListFailures returns the most recent failures, newest first.
func (j *SQLiteJournal) ListFailures(ctx context.Context, limit int) ([]*ActionFailure, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, name, milestone, message, stack, failed_at
		FROM action_failures
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying action failures: %w", err)
	}
	defer rows.Close()

	var out []*ActionFailure
	for rows.Next() {
		f := &ActionFailure{}
		var failedAtStr string
		if err := rows.Scan(&f.ID, &f.Name, &f.Milestone, &f.Message, &f.Stack, &failedAtStr); err != nil {
			return nil, fmt.Errorf("scanning action failure: %w", err)
		}
		f.FailedAt, err = time.Parse(time.RFC3339Nano, failedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing failed_at: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveSnapshot replaces the stored snapshot of a subtree.
func (j *SQLiteJournal) SaveSnapshot(ctx context.Context, subtree string, state tree.State) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO snapshots (subtree, state_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(subtree) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at
	`, subtree, string(b), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot of a subtree.
func (j *SQLiteJournal) LoadSnapshot(ctx context.Context, subtree string) (tree.State, error) {
	var raw string
	err := j.db.QueryRowContext(ctx, `SELECT state_json FROM snapshots WHERE subtree = ?`, subtree).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return decodeState(raw)
}

// LoadSnapshots returns every stored snapshot keyed by subtree.
func (j *SQLiteJournal) LoadSnapshots(ctx context.Context) (map[string]tree.State, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT subtree, state_json FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tree.State)
	for rows.Next() {
		var subtree, raw string
		if err := rows.Scan(&subtree, &raw); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		s, err := decodeState(raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", subtree, err)
		}
		out[subtree] = s
	}
	return out, rows.Err()
}

func decodeState(raw string) (tree.State, error) {
	var s tree.State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
