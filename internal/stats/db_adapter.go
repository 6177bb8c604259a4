package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/db"
)

// DBAdapter adapts db.DB to implement DatabaseWriter interface
type DBAdapter struct {
	db interface {
		CreateBatchStats(stats *db.BatchStats) error
		CreateLagStats(stats *db.LagStats) error
		CreateRequestStats(stats *db.RequestStats) error
	}
}

// NewDBAdapter creates a new database adapter
func NewDBAdapter(database *db.DB) *DBAdapter {
	return &DBAdapter{db: database}
}

// Helper functions to convert values to pointers
func intPtr(i int) *int {
	return &i
}

func int64Ptr(i int64) *int64 {
	return &i
}

func float64Ptr(f float64) *float64 {
	return &f
}

// sortedKeys keeps writes in a stable order
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteBatchStats implements DatabaseWriter for db.DB
func (a *DBAdapter) WriteBatchStats(periodID string, startTime, endTime time.Time, stats map[string]*BatchStatsAccumulator) error {
	for _, kind := range sortedKeys(stats) {
		data := stats[kind]
		minSize, maxSize, avgSize := calculateMinMaxAvgInt(data.BatchSizes)

		row := &db.BatchStats{
			StatsPeriodID: periodID,
			Kind:          kind,
			StartTime:     startTime,
			EndTime:       endTime,
			Batches:       data.Batches,
			Jobs:          data.Jobs,
			MinBatchSize:  intPtr(minSize),
			MaxBatchSize:  intPtr(maxSize),
			AvgBatchSize:  float64Ptr(avgSize),
			MaxElapsedMs:  int64Ptr(data.MaxElapsed.Milliseconds()),
			Faults:        data.Faults,
			LedgerErrors:  data.LedgerErrors,
		}
		if err := a.db.CreateBatchStats(row); err != nil {
			return fmt.Errorf("failed to write batch stats for %s: %w", kind, err)
		}
	}
	return nil
}

// WriteLagStats implements DatabaseWriter for db.DB
func (a *DBAdapter) WriteLagStats(periodID string, startTime, endTime time.Time, data *LagStatsAccumulator) error {
	_, maxDelta, _ := calculateMinMaxAvgDuration(data.Deltas)

	return a.db.CreateLagStats(&db.LagStats{
		StatsPeriodID: periodID,
		StartTime:     startTime,
		EndTime:       endTime,
		Reports:       data.Reports,
		MaxDeltaMs:    int64Ptr(maxDelta.Milliseconds()),
		TotalDeltaMs:  data.Total().Milliseconds(),
	})
}

// WriteRequestStats implements DatabaseWriter for db.DB
func (a *DBAdapter) WriteRequestStats(periodID string, startTime, endTime time.Time, stats map[string]*RequestStatsAccumulator) error {
	for _, outcome := range sortedKeys(stats) {
		data := stats[outcome]
		_, maxLatency, avgLatency := calculateMinMaxAvgDuration(data.Latencies)

		row := &db.RequestStats{
			StatsPeriodID: periodID,
			Outcome:       outcome,
			StartTime:     startTime,
			EndTime:       endTime,
			Requests:      data.Requests,
			AvgLatencyMs:  float64Ptr(float64(avgLatency.Microseconds()) / 1000),
			MaxLatencyMs:  int64Ptr(maxLatency.Milliseconds()),
		}
		if err := a.db.CreateRequestStats(row); err != nil {
			return fmt.Errorf("failed to write request stats for %s: %w", outcome, err)
		}
	}
	return nil
}
