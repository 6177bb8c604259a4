package inbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Inbox is a typed, bounded message channel with timeout-aware sends.
// Sends after Close are dropped rather than panicking.
type Inbox[T any] struct {
	ch      chan T
	timeout time.Duration
	logger  *slog.Logger
	stats   *Stats

	// closeMu guards ch against sends racing Close
	closeMu sync.RWMutex
	closed  bool
}

// Stats tracks inbox usage
type Stats struct {
	TotalSent     int64
	TotalReceived int64
	TimeoutCount  int64
	DroppedCount  int64
	MaxDepthSeen  int64
}

// New creates a new inbox with the specified buffer size and send timeout
func New[T any](bufferSize int, timeout time.Duration, logger *slog.Logger) *Inbox[T] {
	return &Inbox[T]{
		ch:      make(chan T, bufferSize),
		timeout: timeout,
		logger:  logger,
		stats:   &Stats{},
	}
}

// Send sends a message, waiting at most the configured timeout.
// Returns false if the timeout elapsed or the inbox is closed.
func (ib *Inbox[T]) Send(msg T) bool {
	ctx, cancel := context.WithTimeout(context.Background(), ib.timeout)
	defer cancel()
	return ib.SendContext(ctx, msg)
}

// SendContext sends a message, waiting until ctx is done
func (ib *Inbox[T]) SendContext(ctx context.Context, msg T) bool {
	ib.closeMu.RLock()
	defer ib.closeMu.RUnlock()

	if ib.closed {
		atomic.AddInt64(&ib.stats.DroppedCount, 1)
		return false
	}

	select {
	case ib.ch <- msg:
		ib.sent()
		return true
	case <-ctx.Done():
		atomic.AddInt64(&ib.stats.TimeoutCount, 1)
		ib.logger.Warn("inbox send timeout",
			"timeout", ib.timeout,
			"current_depth", len(ib.ch))
		return false
	}
}

// TrySend sends a message only if there is room right now
func (ib *Inbox[T]) TrySend(msg T) bool {
	ib.closeMu.RLock()
	defer ib.closeMu.RUnlock()

	if ib.closed {
		atomic.AddInt64(&ib.stats.DroppedCount, 1)
		return false
	}

	select {
	case ib.ch <- msg:
		ib.sent()
		return true
	default:
		atomic.AddInt64(&ib.stats.DroppedCount, 1)
		return false
	}
}

func (ib *Inbox[T]) sent() {
	atomic.AddInt64(&ib.stats.TotalSent, 1)

	depth := int64(len(ib.ch))
	for {
		seen := atomic.LoadInt64(&ib.stats.MaxDepthSeen)
		if depth <= seen || atomic.CompareAndSwapInt64(&ib.stats.MaxDepthSeen, seen, depth) {
			return
		}
	}
}

// TryReceive attempts to receive a message without blocking
// Returns the message and true if available, zero value and false otherwise
func (ib *Inbox[T]) TryReceive() (T, bool) {
	select {
	case msg, ok := <-ib.ch:
		if ok {
			atomic.AddInt64(&ib.stats.TotalReceived, 1)
		}
		return msg, ok
	default:
		var zero T
		return zero, false
	}
}

// Receive blocks until a message is available.
// Returns false once the inbox is closed and drained.
func (ib *Inbox[T]) Receive() (T, bool) {
	msg, ok := <-ib.ch
	if ok {
		atomic.AddInt64(&ib.stats.TotalReceived, 1)
	}
	return msg, ok
}

// C exposes the receive side for use in select loops.
// Callers should follow a receive with MarkReceived.
func (ib *Inbox[T]) C() <-chan T {
	return ib.ch
}

// MarkReceived records a message taken through C
func (ib *Inbox[T]) MarkReceived() {
	atomic.AddInt64(&ib.stats.TotalReceived, 1)
}

// GetStats returns a copy of the current inbox statistics
func (ib *Inbox[T]) GetStats() Stats {
	return Stats{
		TotalSent:     atomic.LoadInt64(&ib.stats.TotalSent),
		TotalReceived: atomic.LoadInt64(&ib.stats.TotalReceived),
		TimeoutCount:  atomic.LoadInt64(&ib.stats.TimeoutCount),
		DroppedCount:  atomic.LoadInt64(&ib.stats.DroppedCount),
		MaxDepthSeen:  atomic.LoadInt64(&ib.stats.MaxDepthSeen),
	}
}

// Len returns the current number of messages in the inbox
func (ib *Inbox[T]) Len() int {
	return len(ib.ch)
}

// Close closes the inbox channel. Buffered messages can still be received.
func (ib *Inbox[T]) Close() {
	ib.closeMu.Lock()
	defer ib.closeMu.Unlock()

	if ib.closed {
		return
	}
	ib.closed = true
	close(ib.ch)
}
