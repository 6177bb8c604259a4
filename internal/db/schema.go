package db

import "time"

// BatchSummary represents one flushed batch
type BatchSummary struct {
	BatchID     string
	Kind        string
	JobCount    int
	OpenedAt    time.Time
	FlushedAt   time.Time
	ElapsedMs   int64
	Faults      int
	LedgerError *string
}

// BatchStats represents batching metrics for one kind over a stats period
type BatchStats struct {
	StatsPeriodID string
	Kind          string
	StartTime     time.Time
	EndTime       time.Time
	Batches       int
	Jobs          int
	MinBatchSize  *int
	MaxBatchSize  *int
	AvgBatchSize  *float64
	MaxElapsedMs  *int64
	Faults        int
	LedgerErrors  int
}

// LagStats represents scheduling lag reports over a stats period
type LagStats struct {
	StatsPeriodID string
	StartTime     time.Time
	EndTime       time.Time
	Reports       int
	MaxDeltaMs    *int64
	TotalDeltaMs  int64
}

// RequestStats represents handled requests of one outcome over a stats period
type RequestStats struct {
	StatsPeriodID string
	Outcome       string
	StartTime     time.Time
	EndTime       time.Time
	Requests      int
	AvgLatencyMs  *float64
	MaxLatencyMs  *int64
}
