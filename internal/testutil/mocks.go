package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Recorder captures values written by a component under test.
// Wrap it in a package-local type to satisfy that package's writer interface.
type Recorder[T any] struct {
	mu         sync.Mutex
	items      []T
	calls      int
	writeError error
	writeDelay time.Duration
}

func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{
		items: make([]T, 0),
	}
}

func (r *Recorder[T]) SetWriteError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeError = err
}

func (r *Recorder[T]) SetWriteDelay(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeDelay = delay
}

// Record stores items unless a write error is configured
func (r *Recorder[T]) Record(items ...T) error {
	r.mu.Lock()
	delay := r.writeDelay
	r.calls++
	r.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writeError != nil {
		return r.writeError
	}

	r.items = append(r.items, items...)
	return nil
}

func (r *Recorder[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]T, len(r.items))
	copy(result, r.items)
	return result
}

func (r *Recorder[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Recorder[T]) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *Recorder[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make([]T, 0)
	r.calls = 0
}

// MockClock provides controllable time for testing.
// Timers armed with AfterFunc only fire from Advance or Set.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*MockTimer
}

// MockTimer is a timer armed on a MockClock
type MockTimer struct {
	clock    *MockClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
	}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// AfterFunc arms a timer that runs fn once the clock reaches now+d
func (m *MockClock) AfterFunc(d time.Duration, fn func()) *MockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer := &MockTimer{
		clock:    m,
		deadline: m.current.Add(d),
		fn:       fn,
	}
	m.timers = append(m.timers, timer)
	return timer
}

// Advance moves the clock forward, firing due timers in deadline order.
// Timers run synchronously on the caller's goroutine with the clock set to their deadline.
func (m *MockClock) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to t, firing due timers in deadline order
func (m *MockClock) Set(t time.Time) {
	for {
		m.mu.Lock()
		next := m.nextDueLocked(t)
		if next == nil {
			m.current = t
			m.mu.Unlock()
			return
		}
		next.fired = true
		if next.deadline.After(m.current) {
			m.current = next.deadline
		}
		m.mu.Unlock()

		next.fn()
	}
}

// nextDueLocked returns the earliest live timer due at or before t
func (m *MockClock) nextDueLocked(t time.Time) *MockTimer {
	live := m.timers[:0]
	for _, timer := range m.timers {
		if !timer.stopped && !timer.fired {
			live = append(live, timer)
		}
	}
	m.timers = live

	sort.SliceStable(m.timers, func(i, j int) bool {
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})

	if len(m.timers) == 0 || m.timers[0].deadline.After(t) {
		return nil
	}
	return m.timers[0]
}

// PendingTimers returns the number of armed timers that have neither fired nor been stopped
func (m *MockClock) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, timer := range m.timers {
		if !timer.stopped && !timer.fired {
			count++
		}
	}
	return count
}

// Stop disarms the timer. Returns false if it already fired or was stopped.
func (t *MockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// TestLogger provides a logger that captures logs for testing
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

func NewTestLogger() *TestLogger {
	return &TestLogger{
		entries: make([]LogEntry, 0),
	}
}

func (l *TestLogger) log(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Level:   level,
		Message: msg,
		Fields:  make(map[string]interface{}),
	}

	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key := fmt.Sprintf("%v", fields[i])
			entry.Fields[key] = fields[i+1]
		}
	}

	l.entries = append(l.entries, entry)
}

func (l *TestLogger) GetEntries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

func (l *TestLogger) GetEntriesByLevel(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, 0)
	for _, entry := range l.entries {
		if entry.Level == level {
			result = append(result, entry)
		}
	}
	return result
}

// HasMessage reports whether any entry at level carries msg
func (l *TestLogger) HasMessage(level, msg string) bool {
	for _, entry := range l.GetEntriesByLevel(level) {
		if entry.Message == msg {
			return true
		}
	}
	return false
}

func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]LogEntry, 0)
}

func (l *TestLogger) HasError() bool {
	return len(l.GetEntriesByLevel("ERROR")) > 0
}

func (l *TestLogger) HasWarning() bool {
	return len(l.GetEntriesByLevel("WARN")) > 0
}

// Logger returns a *slog.Logger that writes to this TestLogger
func (l *TestLogger) Logger() *slog.Logger {
	return slog.New(&testLogHandler{logger: l})
}

// testLogHandler implements slog.Handler for TestLogger
type testLogHandler struct {
	logger *TestLogger
	attrs  []slog.Attr
	groups []string
}

func (h *testLogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	msg := r.Message

	// Collect all attributes
	fields := make([]interface{}, 0, r.NumAttrs()*2)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, a.Key, a.Value.Any())
		return true
	})

	// Add handler-level attributes
	for _, attr := range h.attrs {
		fields = append(fields, attr.Key, attr.Value.Any())
	}

	h.logger.log(level, msg, fields...)
	return nil
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &testLogHandler{
		logger: h.logger,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *testLogHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name
	return &testLogHandler{
		logger: h.logger,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// WaitFor waits for a condition to be true with timeout
func WaitFor(t TestingT, condition func() bool, timeout time.Duration, msgAndArgs ...interface{}) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		<-ticker.C
		if time.Now().After(deadline) {
			t.Errorf("timeout waiting for condition: %v", msgAndArgs)
			return false
		}
	}
}

// TestingT is a minimal interface for testing
type TestingT interface {
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}
