// Package observability wires OpenTelemetry tracing and metrics plus
// slog-based structured logging for the symdict tooling.
package observability

import (
	"log/slog"
	"time"
)

// AppMode names how the binary was launched.
type AppMode string

const (
	// ModeCLI marks one-shot command invocations.
	ModeCLI AppMode = "cli"
	// ModeServe is the long-running mode with the diagnostics server attached.
	ModeServe AppMode = "serve"
)

const (
	defaultServiceName = "symdict"

	// defaultShutdownTimeout bounds the provider flush on exit.
	defaultShutdownTimeout = 5 * time.Second
)

// Config selects how telemetry is wired at startup. Start from
// DefaultConfig and override fields as needed.
type Config struct {
	// ServiceName and ServiceVersion identify the binary in the OTel
	// resource attributes.
	ServiceName    string
	ServiceVersion string

	// Environment tags telemetry with the deployment environment, for
	// example "production" or "dev".
	Environment string

	// Mode records how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the collector gRPC address, such as "localhost:4317".
	// Leaving it empty keeps the trace and metric providers no-op.
	OTLPEndpoint string

	// OTLPHeaders carry extra gRPC metadata to the collector, usually
	// authentication tokens.
	OTLPHeaders map[string]string

	// OTLPInsecure turns TLS off for the collector connection.
	OTLPInsecure bool

	// LogLevel is the minimum slog severity that gets emitted.
	LogLevel slog.Level

	// LogJSON switches log output from text to JSON.
	LogJSON bool

	// ShutdownTimeout bounds how long Shutdown waits for exporters to
	// flush. Zero and negative values fall back to the default.
	ShutdownTimeout time.Duration
}

// DefaultConfig is the zero-config baseline: CLI mode, info-level text logs,
// and no export.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
