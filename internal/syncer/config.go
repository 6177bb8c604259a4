package syncer

import (
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/validate"
)

// Config defines configuration for the syncer's summary write buffering
type Config struct {
	// Maximum buffered summaries before new ones are dropped
	MaxBufferedSummaries int `toml:"max_buffered_summaries" validate:"gt=0"`

	// Channel buffer size, in write batches
	ChannelSize int `toml:"channel_size" validate:"gt=0"`

	// Summary flushing - dual mechanism (size OR time triggers flush)
	FlushThreshold int           `toml:"flush_threshold" validate:"gt=0,ltefield=MaxBufferedSummaries"`
	FlushInterval  time.Duration `toml:"flush_interval" validate:"gt=0"`

	// Upper bound on a single write to every sink
	WriteTimeout time.Duration `toml:"write_timeout" validate:"gt=0"`
}

// DefaultConfig returns syncer configuration defaults
func DefaultConfig() Config {
	return Config{
		MaxBufferedSummaries: 10000,
		ChannelSize:          64,
		FlushThreshold:       100,
		FlushInterval:        1 * time.Second,
		WriteTimeout:         5 * time.Second,
	}
}

// validateConfig validates configuration against its struct tags
func validateConfig(config Config) error {
	return validate.Struct(config)
}
