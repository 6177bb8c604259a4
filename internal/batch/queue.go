package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger receives each flushed batch as one logical unit
type Ledger interface {
	CommitBatch(ctx context.Context, kind Kind, batchID string, payloads [][]byte) error
}

// noopLedger accepts every batch without doing anything
type noopLedger struct{}

func (noopLedger) CommitBatch(context.Context, Kind, string, [][]byte) error {
	return nil
}

// Queue holds the pending jobs of one kind.
//
// State machine:
//
//	push:  EMPTY -> OPEN   (arm timer)
//	push:  OPEN  -> OPEN   (timer untouched)
//	flush: OPEN  -> EMPTY  (disarm timer, dispatch jobs)
//
// The timer is armed iff the queue is OPEN, and at most one timer is outstanding.
type Queue struct {
	kind    Kind
	window  time.Duration
	clock   Clock
	ledger  Ledger
	logger  *slog.Logger
	onFlush func(Summary)

	// Mutex protects all mutable fields below
	mu         sync.Mutex
	state      queueState
	jobs       []*Job
	openedAt   time.Time
	batchID    string
	timer      Timer
	generation uint64 // Incremented on every EMPTY -> OPEN transition
}

func newQueue(kind Kind, window time.Duration, clock Clock, ledger Ledger, logger *slog.Logger, onFlush func(Summary)) *Queue {
	return &Queue{
		kind:    kind,
		window:  window,
		clock:   clock,
		ledger:  ledger,
		logger:  logger.With("kind", kind.String()),
		onFlush: onFlush,
		state:   queueEmpty,
	}
}

// Kind returns the operation kind this queue batches
func (q *Queue) Kind() Kind {
	return q.kind
}

// push appends a job, arming the flush timer if the queue was empty. Never blocks.
func (q *Queue) push(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = append(q.jobs, job)

	if q.state == queueOpen {
		return
	}

	q.generation++
	generation := q.generation
	q.state = queueOpen
	q.openedAt = q.clock.Now()
	q.batchID = uuid.NewString()
	q.timer = q.clock.AfterFunc(q.window, func() {
		q.flushGeneration(generation)
	})

	q.logger.Debug("batch opened",
		"batch_id", q.batchID,
		"generation", generation)
}

// Flush flushes the open batch immediately, if there is one.
// Returns false when the queue was empty.
func (q *Queue) Flush() (Summary, bool) {
	return q.flush(func(uint64) bool { return true })
}

// flushGeneration is the timer callback. A timer armed for an earlier batch that was
// already flushed by another trigger is a no-op.
func (q *Queue) flushGeneration(generation uint64) (Summary, bool) {
	return q.flush(func(current uint64) bool { return current == generation })
}

func (q *Queue) flush(match func(generation uint64) bool) (Summary, bool) {
	// Step 1: Capture and reset under the lock
	q.mu.Lock()
	if q.state != queueOpen || !match(q.generation) {
		q.mu.Unlock()
		return Summary{}, false
	}

	now := q.clock.Now()
	jobs := q.jobs
	summary := Summary{
		BatchID:   q.batchID,
		Kind:      q.kind,
		JobCount:  len(jobs),
		OpenedAt:  q.openedAt,
		FlushedAt: now,
		Elapsed:   now.Sub(q.openedAt),
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.jobs = nil
	q.openedAt = time.Time{}
	q.batchID = ""
	q.timer = nil
	q.state = queueEmpty
	q.mu.Unlock()

	// Step 2: Hand the batch to the ledger as one unit
	payloads := make([][]byte, len(jobs))
	for i, job := range jobs {
		payloads[i] = job.Payload
	}
	if err := q.commit(summary.BatchID, payloads); err != nil {
		summary.LedgerErr = err
		q.logger.Error("ledger rejected batch",
			"batch_id", summary.BatchID,
			"job_count", summary.JobCount,
			"error", err)
	}

	q.logger.Info(fmt.Sprintf("batched %d jobs in %dms", summary.JobCount, summary.ElapsedMs()),
		"batch_id", summary.BatchID,
		"job_count", summary.JobCount,
		"elapsed_ms", summary.ElapsedMs())

	// Step 3: Complete every job in insertion order
	released := summary
	for _, job := range jobs {
		if !q.complete(job, released) {
			summary.Faults++
		}
	}

	// Step 4: Report the summary
	if q.onFlush != nil {
		q.onFlush(summary)
	}

	return summary, true
}

// commit hands payloads to the ledger. A panicking ledger is reported as an
// error so the batch's jobs still complete.
func (q *Queue) commit(batchID string, payloads [][]byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger panicked: %v", r)
		}
	}()
	return q.ledger.CommitBatch(context.Background(), q.kind, batchID, payloads)
}

// complete fires one job's handle and continuation. A panicking continuation is
// logged and does not affect the remaining jobs of the batch.
func (q *Queue) complete(job *Job, summary Summary) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job completion panicked",
				"batch_id", summary.BatchID,
				"panic", r)
			ok = false
		}
	}()

	if !job.completion.fulfill(summary) {
		q.logger.Error("job completed twice", "batch_id", summary.BatchID)
		return false
	}

	if job.then != nil {
		job.then(summary)
	}
	return true
}

// Snapshot returns a point-in-time view of the queue
func (q *Queue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueSnapshot{
		Kind:       q.kind,
		Pending:    len(q.jobs),
		OpenedAt:   q.openedAt,
		TimerArmed: q.timer != nil,
		Generation: q.generation,
	}
}
