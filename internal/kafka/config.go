package kafka

import (
	"fmt"
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/validate"
)

// Config is the configuration for the summary publisher
type Config struct {
	Enabled         bool          `toml:"enabled"`
	Brokers         []string      `toml:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic           string        `toml:"topic" validate:"required_if=Enabled true"`
	ClientID        string        `toml:"client_id"`
	MaxMessageBytes int           `toml:"max_message_bytes" validate:"gte=0"`
	Timeout         time.Duration `toml:"timeout" validate:"gte=0"`
	MaxRetries      int           `toml:"max_retries" validate:"gte=0"`
	RetryBackoff    time.Duration `toml:"retry_backoff" validate:"gte=0"`
}

// DefaultConfig returns a disabled publisher configuration
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Brokers:         []string{"127.0.0.1:9092"},
		Topic:           "fastadapter.batches",
		ClientID:        "fastadapter",
		MaxMessageBytes: 1000000,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    100 * time.Millisecond,
	}
}

// validateConfig validates publisher configuration and returns error if invalid
func validateConfig(config Config) error {
	if !config.Enabled {
		return fmt.Errorf("kafka publisher is disabled")
	}
	return validate.Struct(config)
}
