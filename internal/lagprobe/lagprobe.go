// Package lagprobe reports stalls of the Go scheduler by watching how late a
// short periodic ticker fires.
package lagprobe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/validate"
)

// Config defines the probe cadence and reporting threshold
type Config struct {
	Enabled   bool          `toml:"enabled"`
	Interval  time.Duration `toml:"interval" validate:"gt=0"`
	Threshold time.Duration `toml:"threshold" validate:"gt=0"`
}

// DefaultConfig returns a 5ms probe that reports stalls longer than 10ms
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Interval:  5 * time.Millisecond,
		Threshold: 10 * time.Millisecond,
	}
}

// validateConfig validates configuration against its struct tags
func validateConfig(config Config) error {
	return validate.Struct(config)
}

// Report describes one stall. Start is when the tick was due, End when it ran.
type Report struct {
	Start time.Time
	End   time.Time
	Delta time.Duration
}

// Probe measures tick lateness and reports stalls to observers
type Probe struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	observersMu sync.RWMutex
	observers   []func(Report)
}

// New creates a probe with validated configuration
func New(config Config, logger *slog.Logger) (*Probe, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return &Probe{
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// AddObserver registers a function to receive every report
func (p *Probe) AddObserver(observer func(Report)) {
	p.observersMu.Lock()
	defer p.observersMu.Unlock()
	p.observers = append(p.observers, observer)
}

// Run ticks until ctx is done. Always returns nil.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.logger.Debug("lag probe started",
		"interval", p.config.Interval,
		"threshold", p.config.Threshold)

	last := p.now()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("lag probe stopped")
			return nil
		case <-ticker.C:
			// The tick value is its scheduled time; lateness is measured at receive
			now := p.now()
			p.Observe(last, now)
			last = now
		}
	}
}

// Observe checks one tick that ran at now after the previous one at last
func (p *Probe) Observe(last, now time.Time) (Report, bool) {
	due := last.Add(p.config.Interval)
	delta := now.Sub(due)
	if delta <= p.config.Threshold {
		return Report{}, false
	}

	report := Report{Start: due, End: now, Delta: delta}
	p.logger.Warn(fmt.Sprintf("runtime blocked for %dms", delta.Milliseconds()),
		"start", due,
		"end", now,
		"delta_ms", delta.Milliseconds())

	p.observersMu.RLock()
	observers := make([]func(Report), len(p.observers))
	copy(observers, p.observers)
	p.observersMu.RUnlock()

	for _, observer := range observers {
		observer(report)
	}
	return report, true
}
