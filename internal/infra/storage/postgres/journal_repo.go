package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/storage"
)

type callRow struct {
	ID           string    `db:"id"`
	Method       string    `db:"method"`
	Endpoint     string    `db:"endpoint"`
	Attempts     int       `db:"attempts"`
	Rotations    int       `db:"rotations"`
	Outcome      string    `db:"outcome"`
	ErrorKind    string    `db:"error_kind"`
	ErrorMessage string    `db:"error_message"`
	DurationMS   int64     `db:"duration_ms"`
	StartedAt    time.Time `db:"started_at"`
}

func toRow(rec *domain.CallRecord) callRow {
	return callRow{
		ID:           rec.ID,
		Method:       rec.Method,
		Endpoint:     rec.Endpoint,
		Attempts:     rec.Attempts,
		Rotations:    rec.Rotations,
		Outcome:      string(rec.Outcome),
		ErrorKind:    rec.ErrorKind,
		ErrorMessage: rec.ErrorMessage,
		DurationMS:   rec.Duration.Milliseconds(),
		StartedAt:    rec.StartedAt.UTC(),
	}
}

func (r callRow) toRecord() domain.CallRecord {
	return domain.CallRecord{
		ID:           r.ID,
		Method:       r.Method,
		Endpoint:     r.Endpoint,
		Attempts:     r.Attempts,
		Rotations:    r.Rotations,
		Outcome:      domain.CallOutcome(r.Outcome),
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		Duration:     time.Duration(r.DurationMS) * time.Millisecond,
		StartedAt:    r.StartedAt,
	}
}

// JournalRepo implements storage.CallJournal using PostgreSQL.
type JournalRepo struct {
	db *DB
}

// NewJournalRepo creates a new PostgreSQL call journal.
func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Record inserts a call record. Re-recording the same ID is a no-op.
func (r *JournalRepo) Record(ctx context.Context, rec *domain.CallRecord) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO call_journal (
			id, method, endpoint, attempts, rotations, outcome,
			error_kind, error_message, duration_ms, started_at
		) VALUES (
			:id, :method, :endpoint, :attempts, :rotations, :outcome,
			:error_kind, :error_message, :duration_ms, :started_at
		)
		ON CONFLICT (id) DO NOTHING`, toRow(rec))
	if err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	return nil
}

// Recent returns the newest records first.
func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	if limit <= 0 {
		limit = storage.DefaultRecentLimit
	}

	var rows []callRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, method, endpoint, attempts, rotations, outcome,
		       error_kind, error_message, duration_ms, started_at
		FROM call_journal
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}

	records := make([]domain.CallRecord, len(rows))
	for i, row := range rows {
		records[i] = row.toRecord()
	}
	return records, nil
}

// DeleteOlderThan removes records started before cutoff.
func (r *JournalRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM call_journal WHERE started_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune calls: %w", err)
	}
	return res.RowsAffected()
}
