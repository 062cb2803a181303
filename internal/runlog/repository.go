package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists run records. Append-only: records are created
// once per run and never mutated; retention pruning is the only
// delete path.
// ⭐ SSOT: 실행 기록 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new run-record repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes one run record.
func (r *Repository) Append(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO monitor.run_records (
			instrument_id, symbol, started_at, finished_at,
			status, skip_reason, mode, manual,
			rule_output, ai_output, detail,
			signal, prev_signal, urgency,
			is_alert, suppressed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		rec.InstrumentID, rec.Symbol, rec.StartedAt, rec.FinishedAt,
		rec.Status, rec.SkipReason, rec.Mode, rec.Manual,
		rec.RuleOutput, rec.AIOutput, rec.Detail,
		rec.Signal, rec.PrevSignal, rec.Urgency,
		rec.IsAlert, rec.Suppressed,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to append run record: %w", err)
	}

	return nil
}

// Latest returns the most recent record for an instrument, ordered by
// completion time. Returns (nil, nil) when no record exists yet; the
// caller defaults the last known signal to WAIT in that case.
func (r *Repository) Latest(ctx context.Context, instrumentID int64) (*Record, error) {
	query := `
		SELECT
			id, instrument_id, symbol, started_at, finished_at,
			status, skip_reason, mode, manual,
			rule_output, ai_output, detail,
			signal, prev_signal, urgency,
			is_alert, suppressed
		FROM monitor.run_records
		WHERE instrument_id = $1
		ORDER BY finished_at DESC, id DESC
		LIMIT 1
	`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, instrumentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest run record: %w", err)
	}

	return rec, nil
}

// ListRecent returns the latest n records for an instrument, newest first.
func (r *Repository) ListRecent(ctx context.Context, instrumentID int64, n int) ([]Record, error) {
	query := `
		SELECT
			id, instrument_id, symbol, started_at, finished_at,
			status, skip_reason, mode, manual,
			rule_output, ai_output, detail,
			signal, prev_signal, urgency,
			is_alert, suppressed
		FROM monitor.run_records
		WHERE instrument_id = $1
		ORDER BY finished_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, instrumentID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run records: %w", err)
	}

	return records, nil
}

// PruneBefore deletes records older than cutoff. Retention
// housekeeping; returns the number of rows removed.
func (r *Repository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM monitor.run_records WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune run records: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.InstrumentID, &rec.Symbol, &rec.StartedAt, &rec.FinishedAt,
		&rec.Status, &rec.SkipReason, &rec.Mode, &rec.Manual,
		&rec.RuleOutput, &rec.AIOutput, &rec.Detail,
		&rec.Signal, &rec.PrevSignal, &rec.Urgency,
		&rec.IsAlert, &rec.Suppressed,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
