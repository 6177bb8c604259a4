package stats

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/fastadapter/internal/inbox"
)

// DatabaseWriter interface for database operations
type DatabaseWriter interface {
	WriteBatchStats(periodID string, startTime, endTime time.Time, stats map[string]*BatchStatsAccumulator) error
	WriteLagStats(periodID string, startTime, endTime time.Time, data *LagStatsAccumulator) error
	WriteRequestStats(periodID string, startTime, endTime time.Time, stats map[string]*RequestStatsAccumulator) error
}

// StatsCollector aggregates batch, lag and request statistics per period and
// writes them through a DatabaseWriter
type StatsCollector struct {
	db     DatabaseWriter
	inbox  *inbox.Inbox[StatsMessage]
	config Config
	logger *slog.Logger
	now    func() time.Time

	// Mutex protects all mutable fields below
	mu sync.Mutex

	// Current stats period tracking. segmentStart moves on every flush so
	// rows written within one period never overlap.
	currentPeriod   string
	periodStartTime time.Time
	segmentStart    time.Time

	// Accumulators for current segment
	batchStats   map[string]*BatchStatsAccumulator
	lagStats     *LagStatsAccumulator
	requestStats map[string]*RequestStatsAccumulator

	// Message counter for threshold-based flushing
	messageCount int

	// Shutdown coordination
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector(config Config, db DatabaseWriter, logger *slog.Logger) (*StatsCollector, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	sc := &StatsCollector{
		db:           db,
		inbox:        inbox.New[StatsMessage](config.InboxBufferSize, config.InboxSendTimeout, logger),
		config:       config,
		logger:       logger,
		now:          time.Now,
		batchStats:   make(map[string]*BatchStatsAccumulator),
		lagStats:     &LagStatsAccumulator{},
		requestStats: make(map[string]*RequestStatsAccumulator),
		done:         make(chan struct{}),
	}
	sc.startNewPeriod()
	return sc, nil
}

// Start begins the stats collection loop
func (sc *StatsCollector) Start() {
	sc.logger.Info("starting stats collector",
		"flush_interval", sc.config.FlushInterval,
		"period_duration", sc.config.PeriodDuration)

	sc.wg.Add(1)
	go sc.run()
}

// Stop gracefully shuts down the stats collector, processing buffered messages
// and flushing what remains
func (sc *StatsCollector) Stop() error {
	var stopErr error
	sc.stopOnce.Do(func() {
		sc.logger.Info("stopping stats collector")

		// Step 1: Stop the loop
		close(sc.done)
		sc.wg.Wait()

		// Step 2: Refuse new messages and drain what is buffered
		sc.inbox.Close()
		for msg := range sc.inbox.C() {
			sc.inbox.MarkReceived()
			sc.processMessage(msg)
		}

		// Step 3: Final flush
		if err := sc.flush(); err != nil {
			sc.logger.Error("final flush failed", "error", err)
			stopErr = err
			return
		}

		sc.logger.Info("stats collector stopped")
	})
	return stopErr
}

// Send sends a stats message to the collector, waiting at most the inbox timeout
func (sc *StatsCollector) Send(msg StatsMessage) bool {
	return sc.inbox.Send(msg)
}

// TrySend sends a stats message only if the inbox has room.
// Used from latency-sensitive paths that must never wait on stats.
func (sc *StatsCollector) TrySend(msg StatsMessage) bool {
	return sc.inbox.TrySend(msg)
}

// InboxStats returns the collector's inbox statistics
func (sc *StatsCollector) InboxStats() inbox.Stats {
	return sc.inbox.GetStats()
}

// CurrentPeriod returns the current stats period ID
func (sc *StatsCollector) CurrentPeriod() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.currentPeriod
}

// run is the main stats collection loop
func (sc *StatsCollector) run() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sc.done:
			sc.logger.Debug("shutdown signal received")
			return

		case <-ticker.C:
			sc.logger.Debug("flush timer triggered")
			if err := sc.flush(); err != nil {
				sc.logger.Error("flush failed", "error", err)
			}
			sc.rollPeriodIfExpired()

		case msg, ok := <-sc.inbox.C():
			if !ok {
				return
			}
			sc.inbox.MarkReceived()
			sc.processMessage(msg)

			sc.mu.Lock()
			shouldFlush := sc.messageCount >= sc.config.FlushThreshold
			sc.mu.Unlock()

			if shouldFlush {
				if err := sc.flush(); err != nil {
					sc.logger.Error("threshold flush failed", "error", err)
				}
			}
			sc.rollPeriodIfExpired()
		}
	}
}

// processMessage routes a message to the appropriate accumulator
func (sc *StatsCollector) processMessage(msg StatsMessage) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	switch msg.Source {
	case StatsSourceBatch:
		data, ok := msg.Data.(*BatchStatsData)
		if !ok {
			sc.logger.Error("invalid batch stats data type")
			return
		}
		acc, ok := sc.batchStats[data.Kind]
		if !ok {
			acc = &BatchStatsAccumulator{}
			sc.batchStats[data.Kind] = acc
		}
		acc.Add(data)

	case StatsSourceLag:
		data, ok := msg.Data.(*LagStatsData)
		if !ok {
			sc.logger.Error("invalid lag stats data type")
			return
		}
		sc.lagStats.Add(data)

	case StatsSourceRouter:
		data, ok := msg.Data.(*RequestStatsData)
		if !ok {
			sc.logger.Error("invalid request stats data type")
			return
		}
		acc, ok := sc.requestStats[data.Outcome]
		if !ok {
			acc = &RequestStatsAccumulator{}
			sc.requestStats[data.Outcome] = acc
		}
		acc.Add(data)

	default:
		sc.logger.Error("unknown stats source", "source", msg.Source)
		return
	}

	sc.messageCount++
}

// flush writes current stats to database and resets accumulators
func (sc *StatsCollector) flush() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Don't flush if no data collected
	if sc.messageCount == 0 {
		return nil
	}

	sc.logger.Debug("flushing stats to database",
		"period", sc.currentPeriod,
		"messages", sc.messageCount)

	segmentEnd := sc.now()

	if len(sc.batchStats) > 0 {
		if err := sc.db.WriteBatchStats(sc.currentPeriod, sc.segmentStart, segmentEnd, sc.batchStats); err != nil {
			return fmt.Errorf("write batch stats failed: %w", err)
		}
	}

	if sc.lagStats.Reports > 0 {
		if err := sc.db.WriteLagStats(sc.currentPeriod, sc.segmentStart, segmentEnd, sc.lagStats); err != nil {
			return fmt.Errorf("write lag stats failed: %w", err)
		}
	}

	if len(sc.requestStats) > 0 {
		if err := sc.db.WriteRequestStats(sc.currentPeriod, sc.segmentStart, segmentEnd, sc.requestStats); err != nil {
			return fmt.Errorf("write request stats failed: %w", err)
		}
	}

	// Reset accumulators and counter
	sc.batchStats = make(map[string]*BatchStatsAccumulator)
	sc.lagStats.Reset()
	sc.requestStats = make(map[string]*RequestStatsAccumulator)
	sc.messageCount = 0
	sc.segmentStart = segmentEnd

	sc.logger.Debug("flush complete")
	return nil
}

// rollPeriodIfExpired flushes and starts a new period once the current one has run its length
func (sc *StatsCollector) rollPeriodIfExpired() {
	sc.mu.Lock()
	expired := sc.now().Sub(sc.periodStartTime) >= sc.config.PeriodDuration
	sc.mu.Unlock()

	if !expired {
		return
	}

	if err := sc.flush(); err != nil {
		sc.logger.Error("period flush failed", "error", err)
	}
	sc.startNewPeriod()
}

// startNewPeriod starts a new stats period
func (sc *StatsCollector) startNewPeriod() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	now := sc.now()
	sc.currentPeriod = generatePeriodID()
	sc.periodStartTime = now
	sc.segmentStart = now
	sc.logger.Debug("started new period", "period", sc.currentPeriod)
}

// generatePeriodID generates a unique period ID
func generatePeriodID() string {
	return "period-" + uuid.NewString()
}

// Helper functions for min/max/avg calculations

func calculateMinMaxAvgInt(values []int) (min, max int, avg float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	min = values[0]
	max = values[0]
	sum := 0

	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	avg = float64(sum) / float64(len(values))
	return min, max, avg
}

func calculateMinMaxAvgDuration(values []time.Duration) (min, max, avg time.Duration) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	min = values[0]
	max = values[0]
	var sum time.Duration

	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	avg = sum / time.Duration(len(values))
	return min, max, avg
}
