package batch

import (
	"log/slog"
	"sync"
)

// Observer is notified with the summary of every flush
type Observer func(Summary)

// Scheduler owns one queue per kind and the coalescing window shared by both
type Scheduler struct {
	// Configuration
	config Config
	logger *slog.Logger
	clock  Clock

	// State
	queues map[Kind]*Queue

	// Observers are called from flush goroutines
	observersMu sync.RWMutex
	observers   []Observer
}

// NewScheduler creates a scheduler with validated configuration.
// A nil clock uses the system clock; a nil ledger accepts every batch.
func NewScheduler(config Config, clock Clock, ledger Ledger, logger *slog.Logger) (*Scheduler, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	if clock == nil {
		clock = SystemClock{}
	}
	if ledger == nil {
		ledger = noopLedger{}
	}

	s := &Scheduler{
		config: config,
		logger: logger,
		clock:  clock,
		queues: make(map[Kind]*Queue, len(Kinds)),
	}

	for _, kind := range Kinds {
		s.queues[kind] = newQueue(kind, config.Window, clock, ledger, logger, s.notify)
	}

	return s, nil
}

// AddObserver registers a function to receive every flush summary
func (s *Scheduler) AddObserver(observer Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, observer)
}

// SubmitCreate enqueues a create-transfer payload
func (s *Scheduler) SubmitCreate(payload []byte) *Completion {
	return s.Submit(KindCreate, payload)
}

// SubmitAccept enqueues an accept-transfer payload
func (s *Scheduler) SubmitAccept(payload []byte) *Completion {
	return s.Submit(KindAccept, payload)
}

// Submit enqueues a payload on the queue for kind and returns its completion handle.
// Submission always succeeds; the payload is copied and never interpreted.
func (s *Scheduler) Submit(kind Kind, payload []byte) *Completion {
	return s.SubmitFunc(kind, payload, nil)
}

// SubmitFunc is Submit with a continuation run right after the handle fires.
// Continuations run in enqueue order on the flushing goroutine and must not block.
func (s *Scheduler) SubmitFunc(kind Kind, payload []byte, then func(Summary)) *Completion {
	queue, ok := s.queues[kind]
	if !ok {
		// Unknown kinds are a programming error
		panic("batch: no queue for kind " + kind.String())
	}

	job := &Job{
		Payload:    append([]byte(nil), payload...),
		Kind:       kind,
		EnqueuedAt: s.clock.Now(),
		completion: newCompletion(),
		then:       then,
	}

	queue.push(job)
	return job.completion
}

// Drain flushes every open queue immediately and returns the summaries of the
// batches it flushed
func (s *Scheduler) Drain() []Summary {
	summaries := make([]Summary, 0, len(Kinds))
	for _, kind := range Kinds {
		if summary, ok := s.queues[kind].Flush(); ok {
			summaries = append(summaries, summary)
		}
	}

	s.logger.Info("scheduler drained", "batches", len(summaries))
	return summaries
}

// Queue returns the queue for kind
func (s *Scheduler) Queue(kind Kind) *Queue {
	return s.queues[kind]
}

// Snapshot returns a point-in-time view of the queue for kind
func (s *Scheduler) Snapshot(kind Kind) QueueSnapshot {
	return s.queues[kind].Snapshot()
}

// GetConfig returns the scheduler configuration
func (s *Scheduler) GetConfig() Config {
	return s.config
}

// notify fans a summary out to every observer
func (s *Scheduler) notify(summary Summary) {
	s.observersMu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.observersMu.RUnlock()

	for _, observer := range observers {
		s.safeObserve(observer, summary)
	}
}

func (s *Scheduler) safeObserve(observer Observer, summary Summary) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("flush observer panicked",
				"batch_id", summary.BatchID,
				"panic", r)
		}
	}()
	observer(summary)
}
