package batch

import (
	"time"
)

// Kind identifies which operation a queue batches
type Kind int

const (
	KindCreate Kind = iota // Create a transfer
	KindAccept             // Accept (commit) a transfer
)

// Kinds lists every kind the scheduler owns a queue for
var Kinds = []Kind{KindCreate, KindAccept}

// String returns a human-readable representation of the kind
func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindAccept:
		return "accept"
	default:
		return "unknown"
	}
}

// queueState is the state of a single queue's state machine
type queueState int

const (
	queueEmpty queueState = iota // No pending jobs, no timer
	queueOpen                    // Pending jobs, exactly one armed timer
)

// String returns a human-readable representation of the queue state
func (s queueState) String() string {
	switch s {
	case queueEmpty:
		return "empty"
	case queueOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Summary describes one completed flush
type Summary struct {
	BatchID   string
	Kind      Kind
	JobCount  int
	OpenedAt  time.Time
	FlushedAt time.Time
	Elapsed   time.Duration
	Faults    int   // Completions that panicked
	LedgerErr error // Error returned by the ledger hook, if any
}

// ElapsedMs returns the batch wait time in whole milliseconds
func (s Summary) ElapsedMs() int64 {
	return s.Elapsed.Milliseconds()
}

// QueueSnapshot is a point-in-time view of a queue, used by tests and diagnostics
type QueueSnapshot struct {
	Kind       Kind
	Pending    int
	OpenedAt   time.Time
	TimerArmed bool
	Generation uint64
}
