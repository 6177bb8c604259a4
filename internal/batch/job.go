package batch

import (
	"context"
	"sync/atomic"
	"time"
)

// Job pairs one caller's payload with its completion handle
type Job struct {
	Payload    []byte
	Kind       Kind
	EnqueuedAt time.Time

	completion *Completion
	then       func(Summary) // Optional continuation, run after the handle fires
}

// Completion is a single-fire completion handle.
// Only the first call to fulfill has any effect.
type Completion struct {
	fired   atomic.Bool
	done    chan struct{}
	summary Summary
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// fulfill records the batch summary and releases every waiter.
// Returns false if the handle had already been fulfilled.
func (c *Completion) fulfill(summary Summary) bool {
	if !c.fired.CompareAndSwap(false, true) {
		return false
	}
	c.summary = summary
	close(c.done)
	return true
}

// Done returns a channel closed once the job's batch has flushed
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Fired reports whether the handle has been fulfilled
func (c *Completion) Fired() bool {
	return c.fired.Load()
}

// Summary returns the summary of the batch that carried this job.
// Only meaningful after Done is closed.
func (c *Completion) Summary() Summary {
	<-c.done
	return c.summary
}

// Wait blocks until the batch flushes or ctx is done
func (c *Completion) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-c.done:
		return c.summary, nil
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}
