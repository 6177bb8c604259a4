package db

import (
	"fmt"
	"time"
)

const insertBatchSummary = `
	INSERT INTO batch_summaries (
		batch_id, kind, job_count, opened_at, flushed_at, elapsed_ms, faults, ledger_error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// CreateBatchSummary inserts one batch summary
func (tx *Tx) CreateBatchSummary(summary *BatchSummary) error {
	_, err := tx.Exec(insertBatchSummary,
		summary.BatchID,
		summary.Kind,
		summary.JobCount,
		summary.OpenedAt.UTC(),
		summary.FlushedAt.UTC(),
		summary.ElapsedMs,
		summary.Faults,
		summary.LedgerError,
	)
	return err
}

// CreateBatchSummaries inserts summaries in a single transaction
func (db *DB) CreateBatchSummaries(summaries []BatchSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	return db.WithTransaction(func(tx *Tx) error {
		for i := range summaries {
			if err := tx.CreateBatchSummary(&summaries[i]); err != nil {
				return fmt.Errorf("failed to insert batch %s: %w", summaries[i].BatchID, err)
			}
		}
		return nil
	})
}

// GetBatchSummary retrieves a batch summary by ID
func (db *DB) GetBatchSummary(batchID string) (*BatchSummary, error) {
	query := `
		SELECT batch_id, kind, job_count, opened_at, flushed_at, elapsed_ms, faults, ledger_error
		FROM batch_summaries
		WHERE batch_id = ?
	`

	var s BatchSummary
	err := db.QueryRow(query, batchID).Scan(
		&s.BatchID,
		&s.Kind,
		&s.JobCount,
		&s.OpenedAt,
		&s.FlushedAt,
		&s.ElapsedMs,
		&s.Faults,
		&s.LedgerError,
	)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &s, nil
}

// GetBatchSummaries retrieves batches flushed in [startTime, endTime), oldest first
func (db *DB) GetBatchSummaries(startTime, endTime time.Time) ([]BatchSummary, error) {
	query := `
		SELECT batch_id, kind, job_count, opened_at, flushed_at, elapsed_ms, faults, ledger_error
		FROM batch_summaries
		WHERE flushed_at >= ? AND flushed_at < ?
		ORDER BY flushed_at ASC
	`

	rows, err := db.Query(query, startTime.UTC(), endTime.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []BatchSummary{}
	for rows.Next() {
		var s BatchSummary
		err := rows.Scan(
			&s.BatchID,
			&s.Kind,
			&s.JobCount,
			&s.OpenedAt,
			&s.FlushedAt,
			&s.ElapsedMs,
			&s.Faults,
			&s.LedgerError,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// CountBatchSummaries returns the number of stored batch summaries
func (db *DB) CountBatchSummaries() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM batch_summaries").Scan(&count)
	return count, err
}
