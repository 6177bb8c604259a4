package syncer

import (
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/batch"
)

// SummaryRecord is the persisted form of one flushed batch
type SummaryRecord struct {
	BatchID     string    `json:"batch_id"`
	Kind        string    `json:"kind"`
	JobCount    int       `json:"job_count"`
	OpenedAt    time.Time `json:"opened_at"`
	FlushedAt   time.Time `json:"flushed_at"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	Faults      int       `json:"faults"`
	LedgerError string    `json:"ledger_error,omitempty"`
}

// RecordFromSummary converts a flush summary into a record
func RecordFromSummary(summary batch.Summary) SummaryRecord {
	record := SummaryRecord{
		BatchID:   summary.BatchID,
		Kind:      summary.Kind.String(),
		JobCount:  summary.JobCount,
		OpenedAt:  summary.OpenedAt,
		FlushedAt: summary.FlushedAt,
		ElapsedMs: summary.ElapsedMs(),
		Faults:    summary.Faults,
	}
	if summary.LedgerErr != nil {
		record.LedgerError = summary.LedgerErr.Error()
	}
	return record
}

// Stats provides current syncer statistics
type Stats struct {
	BufferedSummaries int
	WrittenSummaries  int64
	FailedWrites      int64
	DroppedSummaries  int64
}
