package stats

import "time"

// StatsSource identifies which component sent the stats
type StatsSource int

const (
	StatsSourceBatch StatsSource = iota
	StatsSourceLag
	StatsSourceRouter
)

func (s StatsSource) String() string {
	switch s {
	case StatsSourceBatch:
		return "batch"
	case StatsSourceLag:
		return "lag"
	case StatsSourceRouter:
		return "router"
	default:
		return "unknown"
	}
}

// StatsMessage is the container for all stats messages
type StatsMessage struct {
	Source    StatsSource
	Timestamp time.Time
	Data      interface{} // Actual type depends on Source
}

// BatchStatsData describes one flushed batch
type BatchStatsData struct {
	Kind         string
	JobCount     int
	Elapsed      time.Duration
	Faults       int
	LedgerFailed bool
}

// LagStatsData describes one scheduling lag report
type LagStatsData struct {
	Delta time.Duration
}

// RequestStatsData describes one handled request
type RequestStatsData struct {
	Outcome string
	Latency time.Duration
}

// BatchStatsAccumulator accumulates batch statistics for one kind
type BatchStatsAccumulator struct {
	Batches      int
	Jobs         int
	Faults       int
	LedgerErrors int
	MaxElapsed   time.Duration

	// Samples for min/max/avg calculations
	BatchSizes []int
}

// Add adds batch stats data to the accumulator
func (acc *BatchStatsAccumulator) Add(data *BatchStatsData) {
	acc.Batches++
	acc.Jobs += data.JobCount
	acc.Faults += data.Faults
	if data.LedgerFailed {
		acc.LedgerErrors++
	}
	if data.Elapsed > acc.MaxElapsed {
		acc.MaxElapsed = data.Elapsed
	}
	acc.BatchSizes = append(acc.BatchSizes, data.JobCount)
}

// LagStatsAccumulator accumulates lag reports
type LagStatsAccumulator struct {
	Reports int
	Deltas  []time.Duration
}

// Add adds a lag report to the accumulator
func (acc *LagStatsAccumulator) Add(data *LagStatsData) {
	acc.Reports++
	acc.Deltas = append(acc.Deltas, data.Delta)
}

// Total returns the summed lag of all reports
func (acc *LagStatsAccumulator) Total() time.Duration {
	var total time.Duration
	for _, d := range acc.Deltas {
		total += d
	}
	return total
}

// Reset clears the accumulator
func (acc *LagStatsAccumulator) Reset() {
	acc.Reports = 0
	acc.Deltas = make([]time.Duration, 0)
}

// RequestStatsAccumulator accumulates requests of one outcome
type RequestStatsAccumulator struct {
	Requests  int
	Latencies []time.Duration
}

// Add adds a handled request to the accumulator
func (acc *RequestStatsAccumulator) Add(data *RequestStatsData) {
	acc.Requests++
	acc.Latencies = append(acc.Latencies, data.Latency)
}
