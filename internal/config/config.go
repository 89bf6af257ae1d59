// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers a YAML file and env vars on top.
// - Validation errors wrap ErrInvalidConfig, loader errors wrap ErrLoadConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Default provider endpoints. Both point at the same public random-number
// API and ignore the user id; set {user_id} in the URL to route per user.
const (
	DefaultEquifaxURL  = "http://www.randomnumberapi.com/api/v1.0/random?min=100&max=1000"
	DefaultExperianURL = "http://www.randomnumberapi.com/api/v1.0/random?min=100&max=1000"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Mode is the default batch mode: sequential or concurrent.
	Mode string `koanf:"mode"`

	// UserIDs is the default batch for the one-shot runner.
	UserIDs []int `koanf:"user_ids"`

	// MaxConcurrency bounds concurrent batches with a worker pool; 0 means one goroutine per user.
	MaxConcurrency int `koanf:"max_concurrency"`

	// MaxBatchSize caps POST /batches.
	MaxBatchSize int `koanf:"max_batch_size"`

	// BatchHistorySize is how many finished batches stay queryable.
	BatchHistorySize int `koanf:"batch_history_size"`

	// RequestTimeoutMS bounds a single provider request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// EquifaxURL and ExperianURL are the two provider endpoint templates.
	EquifaxURL  string `koanf:"equifax_url"`
	ExperianURL string `koanf:"experian_url"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		Mode:             "concurrent",
		UserIDs:          []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		MaxConcurrency:   0,
		MaxBatchSize:     1000,
		BatchHistorySize: 100,
		RequestTimeoutMS: 10_000,
		EquifaxURL:       DefaultEquifaxURL,
		ExperianURL:      DefaultExperianURL,
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Validate checks the fields that have no usable zero value.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.RequestTimeoutMS <= 0:
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	case c.MaxConcurrency < 0:
		return fmt.Errorf("%w: max_concurrency must not be negative", ErrInvalidConfig)
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("%w: max_batch_size must be positive", ErrInvalidConfig)
	case c.BatchHistorySize <= 0:
		return fmt.Errorf("%w: batch_history_size must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.EquifaxURL) == "" || strings.TrimSpace(c.ExperianURL) == "":
		return fmt.Errorf("%w: provider urls must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	switch strings.ToLower(c.Mode) {
	case "sequential", "concurrent":
	default:
		return fmt.Errorf("%w: mode must be sequential or concurrent, got %q", ErrInvalidConfig, c.Mode)
	}
	return nil
}
