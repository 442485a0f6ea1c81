// ABOUTME: SQLite archive of reconciled threads using modernc.org/sqlite
// ABOUTME: Persists state snapshots so a hub restart serves threads without replaying engines

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/2389/chorus/internal/schema"
)

// ErrThreadNotFound is returned when a requested thread does not exist.
var ErrThreadNotFound = errors.New("thread not found")

// ErrReportNotFound is returned when a thread has no parity report yet.
var ErrReportNotFound = errors.New("parity report not found")

// ThreadRecord is one archived thread: its registry metadata plus the latest
// reconciled state snapshot.
type ThreadRecord struct {
	ID          string
	WorkspaceID string
	Engine      string
	Name        string
	State       schema.State
	CreatedAtMs int64
	UpdatedAtMs int64
}

// Archive is the SQLite-backed persistence layer.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewArchive opens (or creates) the archive database at the given path. The
// schema is created automatically, WAL mode is enabled, and parent
// directories are created if needed.
func NewArchive(path string, logger *slog.Logger) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps readers unblocked while ingest writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	a := &Archive{
		db:     db,
		logger: logger.With("component", "store"),
	}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	a.logger.Info("archive initialized", "path", path)
	return a, nil
}

// createSchema creates the tables if they don't exist.
func (a *Archive) createSchema() error {
	ddl := `
		CREATE TABLE IF NOT EXISTS threads (
			id            TEXT PRIMARY KEY,
			workspace_id  TEXT NOT NULL,
			engine        TEXT NOT NULL,
			name          TEXT NOT NULL,
			state_json    TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_threads_workspace
			ON threads(workspace_id, updated_at_ms DESC);

		CREATE TABLE IF NOT EXISTS events (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			engine    TEXT NOT NULL,
			op        TEXT NOT NULL,
			event_id  TEXT NOT NULL DEFAULT '',
			turn_id   TEXT NOT NULL DEFAULT '',
			ts_ms     INTEGER NOT NULL,
			payload   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_thread_seq
			ON events(thread_id, seq);

		CREATE TABLE IF NOT EXISTS parity_reports (
			thread_id     TEXT PRIMARY KEY,
			checked_at_ms INTEGER NOT NULL,
			diffs_json    TEXT NOT NULL
		);
	`
	if _, err := a.db.Exec(ddl); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveThread upserts a thread record, replacing any previous snapshot.
func (a *Archive) SaveThread(ctx context.Context, rec ThreadRecord) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	query := `
		INSERT INTO threads (id, workspace_id, engine, name, state_json, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id  = excluded.workspace_id,
			engine        = excluded.engine,
			name          = excluded.name,
			state_json    = excluded.state_json,
			updated_at_ms = excluded.updated_at_ms
	`
	_, err = a.db.ExecContext(ctx, query,
		rec.ID,
		rec.WorkspaceID,
		rec.Engine,
		rec.Name,
		string(stateJSON),
		rec.CreatedAtMs,
		rec.UpdatedAtMs,
	)
	if err != nil {
		return fmt.Errorf("upserting thread: %w", err)
	}

	a.logger.Debug("saved thread snapshot",
		"thread_id", rec.ID,
		"workspace_id", rec.WorkspaceID,
		"items", len(rec.State.Items),
	)
	return nil
}

// GetThread loads one archived thread with its state snapshot.
func (a *Archive) GetThread(ctx context.Context, id string) (ThreadRecord, error) {
	query := `
		SELECT id, workspace_id, engine, name, state_json, created_at_ms, updated_at_ms
		FROM threads
		WHERE id = ?
	`

	var rec ThreadRecord
	var stateJSON string
	err := a.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.WorkspaceID,
		&rec.Engine,
		&rec.Name,
		&stateJSON,
		&rec.CreatedAtMs,
		&rec.UpdatedAtMs,
	)
	if err == sql.ErrNoRows {
		return ThreadRecord{}, ErrThreadNotFound
	}
	if err != nil {
		return ThreadRecord{}, fmt.Errorf("querying thread: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return ThreadRecord{}, fmt.Errorf("unmarshaling state: %w", err)
	}
	return rec, nil
}

// ListThreads returns a workspace's threads newest-updated first. Snapshots
// are not loaded; State is left zero so sidebar listings stay cheap.
func (a *Archive) ListThreads(ctx context.Context, workspaceID string) ([]ThreadRecord, error) {
	query := `
		SELECT id, workspace_id, engine, name, created_at_ms, updated_at_ms
		FROM threads
		WHERE workspace_id = ?
		ORDER BY updated_at_ms DESC
	`
	rows, err := a.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var recs []ThreadRecord
	for rows.Next() {
		var rec ThreadRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.WorkspaceID,
			&rec.Engine,
			&rec.Name,
			&rec.CreatedAtMs,
			&rec.UpdatedAtMs,
		); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread rows: %w", err)
	}
	return recs, nil
}

// DeleteThread removes a thread, its event ledger, and its parity report.
func (a *Archive) DeleteThread(ctx context.Context, id string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("deleting thread events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM parity_reports WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("deleting parity report: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrThreadNotFound
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
