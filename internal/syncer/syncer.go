package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/batch"
)

// Syncer buffers batch summaries and hands them to a SummaryWriter from a
// background goroutine, so flushing queues never wait on storage
type Syncer struct {
	// Configuration
	config Config
	logger *slog.Logger
	writer SummaryWriter

	// Mutex protects the buffer and the closed flag
	mu         sync.Mutex
	buffer     []SummaryRecord
	lastFlush  time.Time
	closed     bool
	writeQueue chan []SummaryRecord

	// Counters
	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	// Control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	flusherWg    sync.WaitGroup // Interval flusher
	writerWg     sync.WaitGroup // Background writer
}

// NewSyncer creates a new syncer with the specified configuration
func NewSyncer(config Config, writer SummaryWriter, logger *slog.Logger) (*Syncer, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if writer == nil {
		return nil, fmt.Errorf("writer is required")
	}

	return &Syncer{
		config:     config,
		logger:     logger,
		writer:     writer,
		buffer:     make([]SummaryRecord, 0, config.FlushThreshold),
		lastFlush:  time.Now(),
		writeQueue: make(chan []SummaryRecord, config.ChannelSize),
		shutdown:   make(chan struct{}),
	}, nil
}

// Start launches the background writer and the interval flusher
func (s *Syncer) Start() {
	s.writerWg.Add(1)
	go s.runWriter()

	s.flusherWg.Add(1)
	go s.runFlusher()
}

// Observe buffers a flush summary, flushing once the size threshold is reached.
// Safe to register as a batch.Observer.
func (s *Syncer) Observe(summary batch.Summary) {
	if err := s.BufferSummary(RecordFromSummary(summary)); err != nil {
		s.logger.Warn("dropping batch summary",
			"batch_id", summary.BatchID,
			"error", err)
		return
	}

	if s.GetStats().BufferedSummaries >= s.config.FlushThreshold {
		if err := s.Flush(); err != nil {
			s.logger.Warn("threshold flush failed", "error", err)
		}
	}
}

// BufferSummary adds a record to the buffer.
// Returns error if the buffer is full or the syncer has shut down.
func (s *Syncer) BufferSummary(record SummaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.dropped.Add(1)
		return fmt.Errorf("syncer is shut down")
	}

	if len(s.buffer) >= s.config.MaxBufferedSummaries {
		s.dropped.Add(1)
		return fmt.Errorf("summary buffer at maximum size: %d", s.config.MaxBufferedSummaries)
	}

	s.buffer = append(s.buffer, record)
	return nil
}

// Flush hands every buffered record to the background writer as one batch.
// Returns error if the write queue is full; the records stay buffered.
func (s *Syncer) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Syncer) flushLocked() error {
	if len(s.buffer) == 0 {
		return nil
	}

	select {
	case s.writeQueue <- s.buffer:
		// Successfully queued
	default:
		return fmt.Errorf("write queue full, %d summaries buffered", len(s.buffer))
	}

	s.buffer = make([]SummaryRecord, 0, s.config.FlushThreshold)
	s.lastFlush = time.Now()
	return nil
}

// GetStats returns current syncer statistics
func (s *Syncer) GetStats() Stats {
	s.mu.Lock()
	buffered := len(s.buffer)
	s.mu.Unlock()

	return Stats{
		BufferedSummaries: buffered,
		WrittenSummaries:  s.written.Load(),
		FailedWrites:      s.failed.Load(),
		DroppedSummaries:  s.dropped.Load(),
	}
}

// GetConfig returns the syncer configuration
func (s *Syncer) GetConfig() Config {
	return s.config
}

// GetLastFlushTime returns the timestamp of the last successful flush
func (s *Syncer) GetLastFlushTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFlush
}

// runFlusher flushes on the configured interval until shutdown
func (s *Syncer) runFlusher() {
	defer s.flusherWg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Warn("interval flush failed", "error", err)
			}
		}
	}
}

// runWriter writes queued batches until the queue is closed and drained
func (s *Syncer) runWriter() {
	defer s.writerWg.Done()

	for records := range s.writeQueue {
		_ = s.write(records)
	}

	s.logger.Debug("summary writer shut down")
}

func (s *Syncer) write(records []SummaryRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	if err := s.writer.WriteSummaries(ctx, records); err != nil {
		s.failed.Add(1)
		s.logger.Error("failed to write batch summaries",
			"count", len(records),
			"first_batch_id", records[0].BatchID,
			"error", err)
		return err
	}

	s.written.Add(int64(len(records)))
	s.logger.Debug("wrote batch summaries", "count", len(records))
	return nil
}

// Shutdown performs graceful shutdown ensuring all buffered summaries are written
func (s *Syncer) Shutdown() error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("starting syncer shutdown")

		// Step 1: Stop the interval flusher
		close(s.shutdown)
		s.flusherWg.Wait()

		// Step 2: Final flush, then refuse new records and close the queue
		s.mu.Lock()
		s.logger.Debug("performing final flush", "summaries", len(s.buffer))
		if err := s.flushLocked(); err != nil {
			s.logger.Warn("write queue full on shutdown", "error", err)
		}
		remaining := s.buffer
		s.buffer = nil
		s.closed = true
		close(s.writeQueue)
		s.mu.Unlock()

		// Step 3: Wait for the writer to drain the queue. Anything still queued
		// (writer never started) is written here.
		s.writerWg.Wait()
		for records := range s.writeQueue {
			_ = s.write(records)
		}

		// Step 4: Write what did not fit in the queue
		if len(remaining) > 0 {
			shutdownErr = s.write(remaining)
		}

		s.logger.Info("syncer shutdown complete")
	})
	return shutdownErr
}
