package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/testutil"
)

// =============================================================================
// Test Helpers
// =============================================================================

// testClock adapts testutil.MockClock to the Clock interface
type testClock struct {
	*testutil.MockClock
}

func (c testClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.MockClock.AfterFunc(d, f)
}

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingLedger struct {
	mu        sync.Mutex
	batches   [][]string
	err       error
	panicWith interface{}
}

func (l *recordingLedger) CommitBatch(_ context.Context, _ Kind, _ string, payloads [][]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := make([]string, len(payloads))
	for i, p := range payloads {
		batch[i] = string(p)
	}
	l.batches = append(l.batches, batch)
	if l.panicWith != nil {
		panic(l.panicWith)
	}
	return l.err
}

type harness struct {
	clock     testClock
	logger    *testutil.TestLogger
	scheduler *Scheduler
	ledger    *recordingLedger

	mu        sync.Mutex
	summaries []Summary
	completed []string
}

func newHarness(t *testing.T, window time.Duration) *harness {
	t.Helper()

	h := &harness{
		clock:  testClock{testutil.NewMockClock(testEpoch)},
		logger: testutil.NewTestLogger(),
		ledger: &recordingLedger{},
	}

	scheduler, err := NewScheduler(Config{Window: window}, h.clock, h.ledger, h.logger.Logger())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	scheduler.AddObserver(func(s Summary) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.summaries = append(h.summaries, s)
	})
	h.scheduler = scheduler
	return h
}

// submit enqueues payload and records its completion order
func (h *harness) submit(kind Kind, payload string) *Completion {
	return h.scheduler.SubmitFunc(kind, []byte(payload), func(Summary) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.completed = append(h.completed, payload)
	})
}

func (h *harness) getSummaries() []Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]Summary, len(h.summaries))
	copy(result, h.summaries)
	return result
}

func (h *harness) getCompleted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]string, len(h.completed))
	copy(result, h.completed)
	return result
}

func assertInvariant(t *testing.T, h *harness, kind Kind) {
	t.Helper()
	snap := h.scheduler.Snapshot(kind)
	if snap.TimerArmed != (snap.Pending > 0) {
		t.Errorf("%s queue: timer_armed=%v with %d pending jobs", kind, snap.TimerArmed, snap.Pending)
	}
	if snap.Pending == 0 && !snap.OpenedAt.IsZero() {
		t.Errorf("%s queue: empty queue has opened_at %v", kind, snap.OpenedAt)
	}
}

func assertOrder(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected completions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("completion %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

// =============================================================================
// Coalescing Tests
// =============================================================================

// TestScheduler_CoalescesWithinWindow verifies that submissions within one window flush together in order.
func TestScheduler_CoalescesWithinWindow(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	handles := make([]*Completion, 0, 5)
	for i := 0; i < 5; i++ {
		handles = append(handles, h.submit(KindCreate, fmt.Sprintf("job-%d", i)))
		h.clock.Advance(9 * time.Millisecond)
	}

	// 45ms elapsed, nothing flushed yet
	h.clock.Advance(4 * time.Millisecond)
	for i, handle := range handles {
		if handle.Fired() {
			t.Fatalf("job %d completed before the window elapsed", i)
		}
	}

	h.clock.Advance(1 * time.Millisecond)

	summaries := h.getSummaries()
	if len(summaries) != 1 {
		t.Fatalf("expected exactly 1 flush, got %d", len(summaries))
	}
	if summaries[0].JobCount != 5 {
		t.Errorf("expected 5 jobs in batch, got %d", summaries[0].JobCount)
	}
	if summaries[0].Elapsed != 50*time.Millisecond {
		t.Errorf("expected elapsed 50ms, got %v", summaries[0].Elapsed)
	}
	if summaries[0].ElapsedMs() != 50 {
		t.Errorf("expected elapsed_ms 50, got %d", summaries[0].ElapsedMs())
	}

	assertOrder(t, h.getCompleted(), "job-0", "job-1", "job-2", "job-3", "job-4")
	for i, handle := range handles {
		if !handle.Fired() {
			t.Errorf("job %d never completed", i)
		}
		if handle.Summary().BatchID != summaries[0].BatchID {
			t.Errorf("job %d carried batch %s, expected %s", i, handle.Summary().BatchID, summaries[0].BatchID)
		}
	}
}

// TestScheduler_SpacedSubmissionsFlushSeparately verifies that submissions more than W apart get their own batch.
func TestScheduler_SpacedSubmissionsFlushSeparately(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		h.submit(KindAccept, fmt.Sprintf("job-%d", i))
		h.clock.Advance(60 * time.Millisecond)
	}

	summaries := h.getSummaries()
	if len(summaries) != 3 {
		t.Fatalf("expected 3 flushes, got %d", len(summaries))
	}
	for i, s := range summaries {
		if s.JobCount != 1 {
			t.Errorf("batch %d: expected 1 job, got %d", i, s.JobCount)
		}
		if s.Kind != KindAccept {
			t.Errorf("batch %d: expected kind accept, got %s", i, s.Kind)
		}
	}

	seen := make(map[string]bool)
	for _, s := range summaries {
		if seen[s.BatchID] {
			t.Errorf("batch id %s reused", s.BatchID)
		}
		seen[s.BatchID] = true
	}
}

// TestScheduler_CreateScenario verifies t1@0 and t2@10 with W=50 flush once at 50 in order.
func TestScheduler_CreateScenario(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	h.submit(KindCreate, `{"id":"t1"}`)
	h.clock.Advance(10 * time.Millisecond)
	h.submit(KindCreate, `{"id":"t2"}`)
	h.clock.Advance(39 * time.Millisecond)

	if len(h.getSummaries()) != 0 {
		t.Fatal("expected no flush before t=50")
	}

	h.clock.Advance(1 * time.Millisecond)

	summaries := h.getSummaries()
	if len(summaries) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(summaries))
	}
	if !summaries[0].FlushedAt.Equal(testEpoch.Add(50 * time.Millisecond)) {
		t.Errorf("expected flush at t=50ms, got %v", summaries[0].FlushedAt.Sub(testEpoch))
	}
	assertOrder(t, h.getCompleted(), `{"id":"t1"}`, `{"id":"t2"}`)
}

// =============================================================================
// State Machine Tests
// =============================================================================

// TestQueue_ArmedIffNonEmpty verifies the timer invariant after every push and flush.
func TestQueue_ArmedIffNonEmpty(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	assertInvariant(t, h, KindCreate)

	for round := 0; round < 3; round++ {
		for i := 0; i < 4; i++ {
			h.submit(KindCreate, fmt.Sprintf("r%d-j%d", round, i))
			assertInvariant(t, h, KindCreate)

			if pending := h.clock.PendingTimers(); pending != 1 {
				t.Fatalf("expected exactly 1 outstanding timer, got %d", pending)
			}
			h.clock.Advance(5 * time.Millisecond)
		}

		h.clock.Advance(50 * time.Millisecond)
		assertInvariant(t, h, KindCreate)

		if pending := h.clock.PendingTimers(); pending != 0 {
			t.Fatalf("expected no outstanding timers after flush, got %d", pending)
		}
	}

	if got := len(h.getSummaries()); got != 3 {
		t.Errorf("expected 3 flushes, got %d", got)
	}
}

// TestQueue_PushDuringFlushStartsNewBatch verifies a push issued while a batch dispatches joins the next batch.
func TestQueue_PushDuringFlushStartsNewBatch(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	var late *Completion
	h.scheduler.SubmitFunc(KindCreate, []byte("first"), func(Summary) {
		late = h.submit(KindCreate, "late")
	})
	h.submit(KindCreate, "second")

	h.clock.Advance(50 * time.Millisecond)

	summaries := h.getSummaries()
	if len(summaries) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(summaries))
	}
	if summaries[0].JobCount != 2 {
		t.Errorf("expected first batch to hold 2 jobs, got %d", summaries[0].JobCount)
	}
	if late == nil {
		t.Fatal("continuation did not run")
	}
	if late.Fired() {
		t.Fatal("job pushed during flush was included in that flush")
	}

	snap := h.scheduler.Snapshot(KindCreate)
	if snap.Pending != 1 || !snap.TimerArmed {
		t.Fatalf("expected a new open batch with 1 job, got pending=%d armed=%v", snap.Pending, snap.TimerArmed)
	}
	if !snap.OpenedAt.Equal(testEpoch.Add(50 * time.Millisecond)) {
		t.Errorf("expected new window to open at t=50ms, got %v", snap.OpenedAt.Sub(testEpoch))
	}

	h.clock.Advance(50 * time.Millisecond)
	if !late.Fired() {
		t.Error("late job never completed")
	}
	if got := len(h.getSummaries()); got != 2 {
		t.Errorf("expected 2 flushes, got %d", got)
	}
}

// TestScheduler_KindsAreIndependent verifies create and accept queues keep separate windows.
func TestScheduler_KindsAreIndependent(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	create := h.submit(KindCreate, "c1")
	h.clock.Advance(30 * time.Millisecond)
	accept := h.submit(KindAccept, "a1")

	h.clock.Advance(20 * time.Millisecond)
	if !create.Fired() {
		t.Error("create job should flush at t=50ms")
	}
	if accept.Fired() {
		t.Error("accept job flushed with the create batch")
	}
	assertInvariant(t, h, KindAccept)

	h.clock.Advance(30 * time.Millisecond)
	if !accept.Fired() {
		t.Error("accept job should flush at t=80ms")
	}

	summaries := h.getSummaries()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 flushes, got %d", len(summaries))
	}
	if summaries[0].Kind != KindCreate || summaries[1].Kind != KindAccept {
		t.Errorf("unexpected flush kinds: %s then %s", summaries[0].Kind, summaries[1].Kind)
	}
}

// TestQueue_ExternalFlushIgnoresStaleTimer verifies a timer from an already flushed batch cannot flush the next one early.
func TestQueue_ExternalFlushIgnoresStaleTimer(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	h.submit(KindCreate, "a")
	h.clock.Advance(10 * time.Millisecond)

	if _, ok := h.scheduler.Queue(KindCreate).Flush(); !ok {
		t.Fatal("expected external flush to flush the open batch")
	}
	assertInvariant(t, h, KindCreate)

	h.clock.Advance(10 * time.Millisecond)
	next := h.submit(KindCreate, "b")

	// Original deadline (t=50) passes without flushing the new batch
	h.clock.Advance(30 * time.Millisecond)
	if next.Fired() {
		t.Fatal("stale timer flushed the next batch early")
	}

	// New deadline is t=70
	h.clock.Advance(20 * time.Millisecond)
	if !next.Fired() {
		t.Fatal("expected second batch to flush at t=70ms")
	}

	if _, ok := h.scheduler.Queue(KindCreate).Flush(); ok {
		t.Error("flushing an empty queue should report false")
	}
}

// =============================================================================
// Completion Tests
// =============================================================================

// TestQueue_PanickingCompletionIsIsolated verifies one faulty completion does not stop the rest.
func TestQueue_PanickingCompletionIsIsolated(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	h.submit(KindCreate, "before")
	h.scheduler.SubmitFunc(KindCreate, []byte("boom"), func(Summary) {
		panic("completion failed")
	})
	after := h.submit(KindCreate, "after")

	h.clock.Advance(50 * time.Millisecond)

	assertOrder(t, h.getCompleted(), "before", "after")
	if !after.Fired() {
		t.Error("job after the panic never completed")
	}

	summaries := h.getSummaries()
	if len(summaries) != 1 || summaries[0].Faults != 1 {
		t.Fatalf("expected one summary with 1 fault, got %+v", summaries)
	}
	if !h.logger.HasMessage("ERROR", "job completion panicked") {
		t.Error("expected panic to be logged")
	}
}

// TestCompletion_FulfilledOnce verifies the handle ignores a second fulfillment.
func TestCompletion_FulfilledOnce(t *testing.T) {
	c := newCompletion()

	if !c.fulfill(Summary{BatchID: "first"}) {
		t.Fatal("first fulfill should succeed")
	}
	if c.fulfill(Summary{BatchID: "second"}) {
		t.Fatal("second fulfill should be rejected")
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	if c.Summary().BatchID != "first" {
		t.Errorf("expected summary of first fulfillment, got %s", c.Summary().BatchID)
	}
}

// TestCompletion_WaitHonorsContext verifies Wait returns the context error for an unfired handle.
func TestCompletion_WaitHonorsContext(t *testing.T) {
	c := newCompletion()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

// =============================================================================
// Ledger and Drain Tests
// =============================================================================

// TestQueue_LedgerReceivesBatchInOrder verifies the ledger sees each batch once with ordered payloads.
func TestQueue_LedgerReceivesBatchInOrder(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	h.submit(KindAccept, "x")
	h.submit(KindAccept, "y")
	h.clock.Advance(50 * time.Millisecond)

	h.ledger.mu.Lock()
	defer h.ledger.mu.Unlock()
	if len(h.ledger.batches) != 1 {
		t.Fatalf("expected 1 ledger batch, got %d", len(h.ledger.batches))
	}
	assertOrder(t, h.ledger.batches[0], "x", "y")
}

// TestQueue_LedgerErrorStillCompletesJobs verifies ledger failures are recorded but never surfaced to jobs.
func TestQueue_LedgerErrorStillCompletesJobs(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	h.ledger.err = errors.New("ledger unavailable")

	handle := h.submit(KindCreate, "x")
	h.clock.Advance(50 * time.Millisecond)

	if !handle.Fired() {
		t.Fatal("job should complete despite ledger error")
	}
	summaries := h.getSummaries()
	if len(summaries) != 1 || summaries[0].LedgerErr == nil {
		t.Fatalf("expected ledger error in summary, got %+v", summaries)
	}
	if !h.logger.HasMessage("ERROR", "ledger rejected batch") {
		t.Error("expected ledger error to be logged")
	}
}

// TestQueue_LedgerPanicStillCompletesJobs verifies a panicking ledger neither strands
// the batch's jobs nor escapes the flush.
func TestQueue_LedgerPanicStillCompletesJobs(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	h.ledger.panicWith = "ledger down"

	first := h.submit(KindCreate, "t1")
	second := h.submit(KindCreate, "t2")
	h.clock.Advance(50 * time.Millisecond)

	if !first.Fired() || !second.Fired() {
		t.Fatal("every job should complete despite the ledger panic")
	}
	assertOrder(t, h.getCompleted(), "t1", "t2")
	assertInvariant(t, h, KindCreate)

	summaries := h.getSummaries()
	if len(summaries) != 1 || summaries[0].LedgerErr == nil {
		t.Fatalf("expected ledger panic recorded in summary, got %+v", summaries)
	}
	if summaries[0].Faults != 0 {
		t.Errorf("ledger panic should not count as a job fault, got %d", summaries[0].Faults)
	}
	if !h.logger.HasMessage("ERROR", "ledger rejected batch") {
		t.Error("expected ledger panic to be logged")
	}

	// The queue keeps working afterwards
	h.ledger.panicWith = nil
	third := h.submit(KindCreate, "t3")
	h.clock.Advance(50 * time.Millisecond)
	if !third.Fired() {
		t.Error("queue should flush normally after a ledger panic")
	}
}

// TestScheduler_DrainFlushesOpenQueues verifies Drain releases every pending job immediately.
func TestScheduler_DrainFlushesOpenQueues(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	create := h.submit(KindCreate, "c")
	accept := h.submit(KindAccept, "a")

	summaries := h.scheduler.Drain()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 drained batches, got %d", len(summaries))
	}
	if !create.Fired() || !accept.Fired() {
		t.Error("drain should complete all pending jobs")
	}
	if h.clock.PendingTimers() != 0 {
		t.Errorf("expected drain to disarm timers, %d remain", h.clock.PendingTimers())
	}

	// Old deadlines pass without a second flush
	h.clock.Advance(100 * time.Millisecond)
	if got := len(h.getSummaries()); got != 2 {
		t.Errorf("expected 2 flushes total, got %d", got)
	}
}

// TestScheduler_PayloadIsCopied verifies the enqueued payload is immune to caller mutation.
func TestScheduler_PayloadIsCopied(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	payload := []byte("original")
	h.scheduler.SubmitCreate(payload)
	copy(payload, "mutated!")

	h.clock.Advance(50 * time.Millisecond)

	h.ledger.mu.Lock()
	defer h.ledger.mu.Unlock()
	if got := h.ledger.batches[0][0]; got != "original" {
		t.Errorf("expected ledger to see original payload, got %s", got)
	}
}

// TestNewScheduler_InvalidWindow verifies a non-positive window is rejected.
func TestNewScheduler_InvalidWindow(t *testing.T) {
	logger := testutil.NewTestLogger()

	if _, err := NewScheduler(Config{Window: 0}, nil, nil, logger.Logger()); err == nil {
		t.Error("expected error for zero window")
	}
	if _, err := NewScheduler(Config{Window: -time.Millisecond}, nil, nil, logger.Logger()); err == nil {
		t.Error("expected error for negative window")
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

// TestScheduler_ConcurrentSubmitters verifies no job is lost or completed twice under real timers.
func TestScheduler_ConcurrentSubmitters(t *testing.T) {
	logger := testutil.NewTestLogger()
	scheduler, err := NewScheduler(Config{Window: 2 * time.Millisecond}, nil, nil, logger.Logger())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	var (
		mu        sync.Mutex
		completed = make(map[string]int)
		flushed   int
	)
	scheduler.AddObserver(func(s Summary) {
		mu.Lock()
		defer mu.Unlock()
		flushed += s.JobCount
	})

	const goroutines = 8
	const perGoroutine = 250

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				kind := Kinds[(g+i)%len(Kinds)]
				id := fmt.Sprintf("%d-%d", g, i)
				handle := scheduler.SubmitFunc(kind, []byte(id), func(Summary) {
					mu.Lock()
					defer mu.Unlock()
					completed[id]++
				})
				if i%50 == 0 {
					<-handle.Done()
				}
			}
		}(g)
	}
	wg.Wait()

	total := goroutines * perGoroutine
	testutil.WaitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == total && flushed == total
	}, 2*time.Second, "waiting for all jobs to complete")

	mu.Lock()
	defer mu.Unlock()
	for id, count := range completed {
		if count != 1 {
			t.Errorf("job %s completed %d times", id, count)
		}
	}

	for _, kind := range Kinds {
		snap := scheduler.Snapshot(kind)
		if snap.Pending != 0 || snap.TimerArmed {
			t.Errorf("%s queue not empty after all flushes: %+v", kind, snap)
		}
	}
}
