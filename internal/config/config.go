package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/livinlefevreloca/fastadapter/internal/batch"
	"github.com/livinlefevreloca/fastadapter/internal/db"
	"github.com/livinlefevreloca/fastadapter/internal/kafka"
	"github.com/livinlefevreloca/fastadapter/internal/lagprobe"
	"github.com/livinlefevreloca/fastadapter/internal/logging"
	"github.com/livinlefevreloca/fastadapter/internal/notifier"
	"github.com/livinlefevreloca/fastadapter/internal/router"
	"github.com/livinlefevreloca/fastadapter/internal/stats"
	"github.com/livinlefevreloca/fastadapter/internal/syncer"
	"github.com/livinlefevreloca/fastadapter/internal/validate"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FASTADAPTER_"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig    `toml:"server"`
	Batch    batch.Config    `toml:"batch"`
	Router   router.Config   `toml:"router"`
	Notifier notifier.Config `toml:"notifier"`
	Database db.Config       `toml:"database"`
	Syncer   syncer.Config   `toml:"syncer"`
	Stats    stats.Config    `toml:"stats"`
	Lag      lagprobe.Config `toml:"lag"`
	Kafka    kafka.Config    `toml:"kafka"`
	Logging  logging.Config  `toml:"logging"`
}

// ServerConfig holds inbound HTTP listener settings
type ServerConfig struct {
	Address           string        `toml:"address" validate:"required"`
	Port              int           `toml:"port" validate:"gte=1,lte=65535"`
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout" validate:"gt=0"`
}

// ListenAddr returns the host:port the server binds
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           "0.0.0.0",
			Port:              3000,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Batch:    batch.DefaultConfig(),
		Router:   router.DefaultConfig(),
		Notifier: notifier.DefaultConfig(),
		Database: db.DefaultConfig(),
		Syncer:   syncer.DefaultConfig(),
		Stats:    stats.DefaultConfig(),
		Lag:      lagprobe.DefaultConfig(),
		Kafka:    kafka.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// Parse TOML file
	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Environment variables, after loading envFile (if specified)
// 4. Command-line flags (handled by caller)
func LoadConfig(configPath, envFile string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load from file if specified
	if configPath != "" {
		fileConfig, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	// Existing environment variables win over the env file
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := ApplyEnv(config, os.LookupEnv); err != nil {
		return nil, err
	}

	return config, nil
}

// envBinding maps one environment variable onto a config field
type envBinding struct {
	key   string
	apply func(c *Config, value string) error
}

var envBindings = []envBinding{
	{"SERVER_ADDRESS", func(c *Config, v string) error { c.Server.Address = v; return nil }},
	{"SERVER_PORT", func(c *Config, v string) error { return setInt(&c.Server.Port, v) }},
	{"SERVER_SHUTDOWN_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Server.ShutdownTimeout, v) }},
	{"BATCH_WINDOW", func(c *Config, v string) error { return setDuration(&c.Batch.Window, v) }},
	{"ROUTER_CREATE_PATH", func(c *Config, v string) error { c.Router.CreatePath = v; return nil }},
	{"ROUTER_ACCEPT_MIN_PATH_LENGTH", func(c *Config, v string) error { return setInt(&c.Router.AcceptMinPathLength, v) }},
	{"ROUTER_MALFORMED_POLICY", func(c *Config, v string) error { c.Router.MalformedPolicy = v; return nil }},
	{"NOTIFIER_PAYEE_ADDRESS", func(c *Config, v string) error { c.Notifier.PayeeAddress = v; return nil }},
	{"NOTIFIER_PAYER_ADDRESS", func(c *Config, v string) error { c.Notifier.PayerAddress = v; return nil }},
	{"NOTIFIER_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Notifier.Timeout, v) }},
	{"DATABASE_DSN", func(c *Config, v string) error { c.Database.DSN = v; return nil }},
	{"LAG_ENABLED", func(c *Config, v string) error { return setBool(&c.Lag.Enabled, v) }},
	{"KAFKA_ENABLED", func(c *Config, v string) error { return setBool(&c.Kafka.Enabled, v) }},
	{"KAFKA_BROKERS", func(c *Config, v string) error { c.Kafka.Brokers = splitList(v); return nil }},
	{"KAFKA_TOPIC", func(c *Config, v string) error { c.Kafka.Topic = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
	{"LOG_FILE", func(c *Config, v string) error { c.Logging.File = v; return nil }},
}

// ApplyEnv overrides config fields from FASTADAPTER_* variables found by lookup
func ApplyEnv(config *Config, lookup func(string) (string, bool)) error {
	for _, binding := range envBindings {
		value, ok := lookup(EnvPrefix + binding.key)
		if !ok {
			continue
		}
		if err := binding.apply(config, value); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, binding.key, err)
		}
	}
	return nil
}

func setInt(field *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*field = n
	return nil
}

func setDuration(field *time.Duration, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*field = d
	return nil
}

func setBool(field *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	*field = b
	return nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Per-section rules, the same tags each component's constructor checks
	if err := validate.Struct(c); err != nil {
		return err
	}

	// Rules spanning sections
	if c.Lag.Enabled && c.Lag.Threshold < c.Lag.Interval {
		return fmt.Errorf("lag threshold (%v) must be at least the probe interval (%v)", c.Lag.Threshold, c.Lag.Interval)
	}
	if c.Notifier.Timeout > 0 && c.Notifier.Timeout < c.Batch.Window {
		return fmt.Errorf("notifier timeout (%v) must not be shorter than the batch window (%v)", c.Notifier.Timeout, c.Batch.Window)
	}
	return nil
}
