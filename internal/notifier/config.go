package notifier

import (
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/validate"
)

// Config defines the downstream parties and how they are reached
type Config struct {
	// host:port of the party told about created transfers
	PayeeAddress string `toml:"payee_address" validate:"required,hostname_port"`

	// host:port of the party told about committed transfers
	PayerAddress string `toml:"payer_address" validate:"required,hostname_port"`

	// Path used for every payee notification
	PayeePath string `toml:"payee_path" validate:"required,startswith=/"`

	// Zero waits for the downstream party indefinitely
	Timeout time.Duration `toml:"timeout" validate:"gte=0"`

	// Idle keep-alive connections kept per downstream party
	MaxIdleConnsPerHost int `toml:"max_idle_conns_per_host" validate:"gte=0"`
}

// DefaultConfig returns the local payee and payer addresses
func DefaultConfig() Config {
	return Config{
		PayeeAddress:        "127.0.0.1:3333",
		PayerAddress:        "127.0.0.1:7777",
		PayeePath:           "/transfers",
		Timeout:             0,
		MaxIdleConnsPerHost: 64,
	}
}

// validateConfig validates configuration against its struct tags
func validateConfig(config Config) error {
	return validate.Struct(config)
}
