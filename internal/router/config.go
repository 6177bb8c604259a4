package router

import "github.com/livinlefevreloca/fastadapter/internal/validate"

// Malformed payload policies
const (
	// PolicyDrop closes the connection without a response
	PolicyDrop = "drop"
	// PolicyReject answers 400 with an empty body
	PolicyReject = "reject"
)

// Config defines how inbound requests are classified
type Config struct {
	// Request URI that creates a transfer
	CreatePath string `toml:"create_path" validate:"required,startswith=/"`

	// Request URIs longer than this accept a transfer
	AcceptMinPathLength int `toml:"accept_min_path_length" validate:"gte=0"`

	// What to do with a body that is not JSON
	MalformedPolicy string `toml:"malformed_policy" validate:"oneof=drop reject"`
}

// DefaultConfig returns the transfer API routing defaults
func DefaultConfig() Config {
	return Config{
		CreatePath:          "/transfers",
		AcceptMinPathLength: 36,
		MalformedPolicy:     PolicyDrop,
	}
}

// validateConfig validates configuration against its struct tags
func validateConfig(config Config) error {
	return validate.Struct(config)
}
