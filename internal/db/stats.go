package db

import "time"

// CreateBatchStats inserts batch statistics for one kind
func (db *DB) CreateBatchStats(stats *BatchStats) error {
	query := `
		INSERT INTO batch_stats (
			stats_period_id, kind, start_time, end_time, batches, jobs,
			min_batch_size, max_batch_size, avg_batch_size, max_elapsed_ms,
			faults, ledger_errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		stats.StatsPeriodID,
		stats.Kind,
		stats.StartTime.UTC(),
		stats.EndTime.UTC(),
		stats.Batches,
		stats.Jobs,
		stats.MinBatchSize,
		stats.MaxBatchSize,
		stats.AvgBatchSize,
		stats.MaxElapsedMs,
		stats.Faults,
		stats.LedgerErrors,
	)
	return err
}

// GetBatchStats retrieves batch stats for a time range
func (db *DB) GetBatchStats(startTime, endTime time.Time) ([]BatchStats, error) {
	query := `
		SELECT stats_period_id, kind, start_time, end_time, batches, jobs,
			min_batch_size, max_batch_size, avg_batch_size, max_elapsed_ms,
			faults, ledger_errors
		FROM batch_stats
		WHERE start_time >= ? AND end_time <= ?
		ORDER BY start_time ASC, kind ASC
	`

	rows, err := db.Query(query, startTime.UTC(), endTime.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []BatchStats{}
	for rows.Next() {
		var s BatchStats
		err := rows.Scan(
			&s.StatsPeriodID,
			&s.Kind,
			&s.StartTime,
			&s.EndTime,
			&s.Batches,
			&s.Jobs,
			&s.MinBatchSize,
			&s.MaxBatchSize,
			&s.AvgBatchSize,
			&s.MaxElapsedMs,
			&s.Faults,
			&s.LedgerErrors,
		)
		if err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// CreateLagStats inserts lag statistics for a period
func (db *DB) CreateLagStats(stats *LagStats) error {
	query := `
		INSERT INTO lag_stats (
			stats_period_id, start_time, end_time, reports, max_delta_ms, total_delta_ms
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		stats.StatsPeriodID,
		stats.StartTime.UTC(),
		stats.EndTime.UTC(),
		stats.Reports,
		stats.MaxDeltaMs,
		stats.TotalDeltaMs,
	)
	return err
}

// GetLagStats retrieves lag stats for a time range
func (db *DB) GetLagStats(startTime, endTime time.Time) ([]LagStats, error) {
	query := `
		SELECT stats_period_id, start_time, end_time, reports, max_delta_ms, total_delta_ms
		FROM lag_stats
		WHERE start_time >= ? AND end_time <= ?
		ORDER BY start_time ASC
	`

	rows, err := db.Query(query, startTime.UTC(), endTime.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []LagStats{}
	for rows.Next() {
		var s LagStats
		if err := rows.Scan(
			&s.StatsPeriodID,
			&s.StartTime,
			&s.EndTime,
			&s.Reports,
			&s.MaxDeltaMs,
			&s.TotalDeltaMs,
		); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// CreateRequestStats inserts request statistics for one outcome
func (db *DB) CreateRequestStats(stats *RequestStats) error {
	query := `
		INSERT INTO request_stats (
			stats_period_id, outcome, start_time, end_time, requests, avg_latency_ms, max_latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		stats.StatsPeriodID,
		stats.Outcome,
		stats.StartTime.UTC(),
		stats.EndTime.UTC(),
		stats.Requests,
		stats.AvgLatencyMs,
		stats.MaxLatencyMs,
	)
	return err
}

// GetRequestStats retrieves request stats for a time range
func (db *DB) GetRequestStats(startTime, endTime time.Time) ([]RequestStats, error) {
	query := `
		SELECT stats_period_id, outcome, start_time, end_time, requests, avg_latency_ms, max_latency_ms
		FROM request_stats
		WHERE start_time >= ? AND end_time <= ?
		ORDER BY start_time ASC, outcome ASC
	`

	rows, err := db.Query(query, startTime.UTC(), endTime.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []RequestStats{}
	for rows.Next() {
		var s RequestStats
		if err := rows.Scan(
			&s.StatsPeriodID,
			&s.Outcome,
			&s.StartTime,
			&s.EndTime,
			&s.Requests,
			&s.AvgLatencyMs,
			&s.MaxLatencyMs,
		); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
