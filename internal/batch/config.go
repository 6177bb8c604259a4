package batch

import (
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/validate"
)

// Config defines the coalescing policy shared by both queues
type Config struct {
	// Time from a queue's first pending job to its flush
	Window time.Duration `toml:"window" validate:"gt=0"`
}

// DefaultConfig returns the latency-oriented batching defaults
func DefaultConfig() Config {
	return Config{
		Window: 50 * time.Millisecond,
	}
}

// validateConfig validates configuration against its struct tags
func validateConfig(config Config) error {
	return validate.Struct(config)
}
