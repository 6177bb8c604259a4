package stats

import (
	"github.com/livinlefevreloca/fastadapter/internal/batch"
	"github.com/livinlefevreloca/fastadapter/internal/lagprobe"
	"github.com/livinlefevreloca/fastadapter/internal/router"
)

// ObserveBatch records a flushed batch. Never blocks the flushing goroutine.
func (sc *StatsCollector) ObserveBatch(summary batch.Summary) {
	sc.TrySend(StatsMessage{
		Source:    StatsSourceBatch,
		Timestamp: summary.FlushedAt,
		Data: &BatchStatsData{
			Kind:         summary.Kind.String(),
			JobCount:     summary.JobCount,
			Elapsed:      summary.Elapsed,
			Faults:       summary.Faults,
			LedgerFailed: summary.LedgerErr != nil,
		},
	})
}

// ObserveLag records a lag report
func (sc *StatsCollector) ObserveLag(report lagprobe.Report) {
	sc.TrySend(StatsMessage{
		Source:    StatsSourceLag,
		Timestamp: report.End,
		Data:      &LagStatsData{Delta: report.Delta},
	})
}

// ObserveRequest records a handled request
func (sc *StatsCollector) ObserveRequest(record router.Record) {
	sc.TrySend(StatsMessage{
		Source:    StatsSourceRouter,
		Timestamp: sc.now(),
		Data: &RequestStatsData{
			Outcome: record.Outcome.String(),
			Latency: record.Latency,
		},
	})
}
