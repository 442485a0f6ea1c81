// ABOUTME: Append-only ledger of normalized engine events plus per-thread parity reports
// ABOUTME: Ledger rows keep the raw payload so a thread can be re-reduced through its adapter

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// EventRecord is one ledger row. Payload holds the raw engine notification
// exactly as it arrived; re-reducing a thread maps it back through the
// engine's adapter.
type EventRecord struct {
	Seq      int64
	ThreadID string
	Engine   string
	Op       string
	EventID  string
	TurnID   string
	TsMs     int64
	Payload  []byte
}

// ParityReport is the latest realtime-versus-history comparison for a
// thread. An empty Diffs means the two surfaces agreed.
type ParityReport struct {
	ThreadID    string
	CheckedAtMs int64
	Diffs       []string
}

// AppendEvent appends one event to the thread's ledger and returns its
// sequence number.
func (a *Archive) AppendEvent(ctx context.Context, rec EventRecord) (int64, error) {
	query := `
		INSERT INTO events (thread_id, engine, op, event_id, turn_id, ts_ms, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := a.db.ExecContext(ctx, query,
		rec.ThreadID,
		rec.Engine,
		rec.Op,
		rec.EventID,
		rec.TurnID,
		rec.TsMs,
		string(rec.Payload),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading event seq: %w", err)
	}
	return seq, nil
}

// EventsForThread reads ledger rows after the given sequence number, oldest
// first. Pass afterSeq 0 to read from the beginning. Limit defaults to 100
// and caps at 500.
func (a *Archive) EventsForThread(ctx context.Context, threadID string, afterSeq int64, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT seq, thread_id, engine, op, event_id, turn_id, ts_ms, payload
		FROM events
		WHERE thread_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`
	rows, err := a.db.QueryContext(ctx, query, threadID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var recs []EventRecord
	for rows.Next() {
		var rec EventRecord
		var payload string
		if err := rows.Scan(
			&rec.Seq,
			&rec.ThreadID,
			&rec.Engine,
			&rec.Op,
			&rec.EventID,
			&rec.TurnID,
			&rec.TsMs,
			&payload,
		); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		rec.Payload = []byte(payload)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return recs, nil
}

// EventCount reports how many ledger rows a thread has.
func (a *Archive) EventCount(ctx context.Context, threadID string) (int64, error) {
	var n int64
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE thread_id = ?`, threadID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// SaveParityReport upserts the thread's latest parity report. Each check
// replaces the previous one; only the most recent comparison matters.
func (a *Archive) SaveParityReport(ctx context.Context, report ParityReport) error {
	diffs := report.Diffs
	if diffs == nil {
		diffs = []string{}
	}
	diffsJSON, err := json.Marshal(diffs)
	if err != nil {
		return fmt.Errorf("marshaling diffs: %w", err)
	}

	query := `
		INSERT INTO parity_reports (thread_id, checked_at_ms, diffs_json)
		VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			checked_at_ms = excluded.checked_at_ms,
			diffs_json    = excluded.diffs_json
	`
	if _, err := a.db.ExecContext(ctx, query, report.ThreadID, report.CheckedAtMs, string(diffsJSON)); err != nil {
		return fmt.Errorf("upserting parity report: %w", err)
	}
	return nil
}

// LatestParityReport loads the thread's most recent parity report.
func (a *Archive) LatestParityReport(ctx context.Context, threadID string) (ParityReport, error) {
	query := `
		SELECT thread_id, checked_at_ms, diffs_json
		FROM parity_reports
		WHERE thread_id = ?
	`

	var report ParityReport
	var diffsJSON string
	err := a.db.QueryRowContext(ctx, query, threadID).Scan(
		&report.ThreadID,
		&report.CheckedAtMs,
		&diffsJSON,
	)
	if err == sql.ErrNoRows {
		return ParityReport{}, ErrReportNotFound
	}
	if err != nil {
		return ParityReport{}, fmt.Errorf("querying parity report: %w", err)
	}

	if err := json.Unmarshal([]byte(diffsJSON), &report.Diffs); err != nil {
		return ParityReport{}, fmt.Errorf("unmarshaling diffs: %w", err)
	}
	return report, nil
}
