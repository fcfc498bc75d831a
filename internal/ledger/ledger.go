// Package ledger provides an append-only history of sequence runs.
// It is for auditing only; nothing reads it back to resume work.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dokzlo13/cubehook/internal/dispatch"
)

// Entry represents a single run in the ledger
type Entry struct {
	ID         int64
	EventID    string
	Kind       string
	Result     string
	Steps      int
	Fields     map[string]string
	ReceivedAt time.Time
	StartedAt  time.Time
	Duration   time.Duration
}

// Ledger provides append-only run logging
type Ledger struct {
	db *sql.DB
}

var _ dispatch.Recorder = (*Ledger)(nil)

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends a finished run.
func (l *Ledger) Record(ctx context.Context, run dispatch.Run) error {
	var fieldsJSON []byte
	if len(run.Fields) > 0 {
		var err error
		fieldsJSON, err = json.Marshal(run.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sequence_runs (event_id, kind, result, steps, fields, received_at, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.EventID,
		run.Kind,
		run.Result.String(),
		run.Steps,
		string(fieldsJSON),
		run.ReceivedAt.UTC().UnixMilli(),
		run.StartedAt.UTC().UnixMilli(),
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_id, kind, result, steps, fields, received_at, started_at, duration_ms
		FROM sequence_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// ByKind returns the latest runs of one command kind, newest first
func (l *Ledger) ByKind(ctx context.Context, kind string, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_id, kind, result, steps, fields, received_at, started_at, duration_ms
		FROM sequence_runs
		WHERE kind = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.ExecContext(ctx, `
		DELETE FROM sequence_runs WHERE started_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var fields sql.NullString
		var receivedAt, startedAt, durationMS int64

		err := rows.Scan(
			&entry.ID, &entry.EventID, &entry.Kind, &entry.Result, &entry.Steps,
			&fields, &receivedAt, &startedAt, &durationMS,
		)
		if err != nil {
			return nil, err
		}

		entry.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		entry.StartedAt = time.UnixMilli(startedAt).UTC()
		entry.Duration = time.Duration(durationMS) * time.Millisecond

		if fields.Valid && fields.String != "" {
			entry.Fields = make(map[string]string)
			if err := json.Unmarshal([]byte(fields.String), &entry.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
