package stats

import (
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/validate"
)

// Config defines configuration for the stats collector
type Config struct {
	// Inbox configuration
	InboxBufferSize  int           `toml:"inbox_buffer_size" validate:"gt=0"`
	InboxSendTimeout time.Duration `toml:"inbox_send_timeout" validate:"gt=0"`

	// Flush configuration
	FlushInterval  time.Duration `toml:"flush_interval" validate:"gt=0"`
	FlushThreshold int           `toml:"flush_threshold" validate:"gt=0"`

	// Stats period configuration
	PeriodDuration time.Duration `toml:"period_duration" validate:"gt=0"`
}

// DefaultConfig returns default stats collector configuration
func DefaultConfig() Config {
	return Config{
		InboxBufferSize:  4096,
		InboxSendTimeout: 100 * time.Millisecond,
		FlushInterval:    30 * time.Second,
		FlushThreshold:   1000,
		PeriodDuration:   5 * time.Minute,
	}
}

// validateConfig validates configuration against its struct tags
func validateConfig(config Config) error {
	return validate.Struct(config)
}
