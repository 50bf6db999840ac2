// Package config provides file, environment, and default configuration for
// the symdict CLI.
package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Log level names accepted by the log_level setting.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Default configuration values.
const (
	DefaultLogLevel             = LogLevelInfo
	DefaultLogJSON              = false
	DefaultEnvironment          = ""
	DefaultOTLPEndpoint         = ""
	DefaultOTLPInsecure         = false
	DefaultDiagAddr             = ""
	DefaultHibernationThreshold = 1000
	DefaultShards               = 1
	DefaultCaseSensitive        = false
)

// Config is the top-level configuration for the symdict CLI.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	// LogLevel is the minimum log severity: debug, info, warn, or error.
	LogLevel string `mapstructure:"log_level"`

	// Environment is the deployment environment reported in telemetry.
	Environment string `mapstructure:"environment"`

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// DiagAddr is the listen address for the diagnostics HTTP server.
	// Empty disables the server.
	DiagAddr string `mapstructure:"diag_addr"`

	// HibernationThreshold is the minimum node count before an idle
	// dictionary arena is compressed. Zero compresses unconditionally.
	HibernationThreshold int `mapstructure:"hibernation_threshold"`

	// Shards is the number of independent allocator shards.
	Shards int `mapstructure:"shards"`

	// LogJSON enables JSON-formatted log output.
	LogJSON bool `mapstructure:"log_json"`

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool `mapstructure:"otlp_insecure"`

	// CaseSensitive is the default key comparison mode for commands
	// that do not set it explicitly.
	CaseSensitive bool `mapstructure:"case_sensitive"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidLogLevel indicates log_level is not one of debug, info, warn, error.
	ErrInvalidLogLevel = errors.New("log_level must be one of debug, info, warn, error")
	// ErrInvalidShardCount indicates shards is not positive.
	ErrInvalidShardCount = errors.New("shards must be positive")
	// ErrInvalidHibernation indicates hibernation_threshold is negative.
	ErrInvalidHibernation = errors.New("hibernation_threshold must be non-negative")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Shards <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShardCount, c.Shards)
	}

	if c.HibernationThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHibernation, c.HibernationThreshold)
	}

	return nil
}

// SlogLevel maps the configured log level name to its slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
