// Package commands implements CLI command handlers for symdict.
package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/symdict/pkg/config"
	"github.com/Sumatoshi-tech/symdict/pkg/observability"
	"github.com/Sumatoshi-tech/symdict/pkg/version"
)

// Root span duration classes, recorded as a span attribute so traces can be
// filtered by how long a command ran.
const (
	durationClassFast   = "fast"
	durationClassNormal = "normal"
	durationClassSlow   = "slow"

	durationClassFastLimit   = 10 * time.Second
	durationClassNormalLimit = time.Minute
)

type configLoader func(path string) (*config.Config, error)

type observabilityInitializer func(cfg observability.Config) (observability.Providers, error)

// App carries the loaded configuration and telemetry providers shared by all
// subcommands. It is populated by the root command's bootstrap hook.
type App struct {
	cfg       *config.Config
	providers observability.Providers
	metrics   *observability.DictMetrics

	configPath string
	logLevel   string
	logJSON    bool
	quiet      bool

	loadConfig        configLoader
	initObservability observabilityInitializer
}

// NewRootCommand creates the symdict root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	return newRootCommandWithDeps(config.Load, observability.Init)
}

func newRootCommandWithDeps(loadConfig configLoader, initObservability observabilityInitializer) *cobra.Command {
	app := &App{
		loadConfig:        loadConfig,
		initObservability: initObservability,
	}

	cmd := &cobra.Command{
		Use:   "symdict",
		Short: "Symdict - ordered symbol dictionary tool",
		Long: `Symdict builds ordered dictionaries of byte-string keys backed by
red-black trees and answers queries against them.

Commands:
  lookup    Build a dictionary from key input and resolve query keys
  tree      Verify tree shape and print a colored structure dump
  stats     Report dictionary statistics
  bench     Benchmark sharded dictionary inserts
  render    Render the tree as a standalone HTML chart`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.bootstrap,
	}

	cmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Config file path (default: .symdict.yaml in CWD or $HOME)")
	cmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().BoolVar(&app.logJSON, "log-json", false, "Emit JSON-formatted logs")
	cmd.PersistentFlags().BoolVarP(&app.quiet, "quiet", "q", false, "Suppress progress output")

	cmd.AddCommand(NewLookupCommand(app))
	cmd.AddCommand(NewTreeCommand(app))
	cmd.AddCommand(NewStatsCommand(app))
	cmd.AddCommand(NewBenchCommand(app))
	cmd.AddCommand(NewRenderCommand(app))

	return cmd
}

// bootstrap loads the configuration and initializes observability before any
// subcommand runs.
func (app *App) bootstrap(cmd *cobra.Command, _ []string) error {
	cfg, err := app.loadConfig(app.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = app.logLevel

		err = cfg.Validate()
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON = app.logJSON
	}

	app.cfg = cfg

	providers, err := app.initObservability(buildObservabilityConfig(cfg))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	app.providers = providers

	if providers.Meter != nil {
		metrics, merr := observability.NewDictMetrics(providers.Meter)
		if merr != nil {
			app.shutdownProviders()

			return fmt.Errorf("create dictionary metrics: %w", merr)
		}

		app.metrics = metrics
	}

	return nil
}

// buildObservabilityConfig maps the CLI configuration onto the telemetry
// configuration, with the standard OTEL_EXPORTER_OTLP_* variables as
// fallbacks for deployments that configure the collector via environment.
func buildObservabilityConfig(cfg *config.Config) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Environment
	obsCfg.LogLevel = cfg.SlogLevel()
	obsCfg.LogJSON = cfg.LogJSON
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.OTLPInsecure

	if obsCfg.OTLPEndpoint == "" {
		obsCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	if headers := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); headers != "" {
		obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(headers)
	}

	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		obsCfg.OTLPInsecure = true
	}

	return obsCfg
}

// runOp wraps a command body in the root span and flushes telemetry on exit.
// Shutdown runs even when the body fails.
func (app *App) runOp(cmd *cobra.Command, opName string, body func(ctx context.Context) error) error {
	defer app.shutdownProviders()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	startedAt := time.Now()

	ctx, span := app.tracer().Start(ctx, opName)

	err := body(ctx)

	span.SetAttributes(
		attribute.Bool("error", err != nil),
		attribute.String("symdict.duration_class", durationClass(time.Since(startedAt))),
	)
	span.End()

	return err
}

func (app *App) shutdownProviders() {
	if app.providers.Shutdown == nil {
		return
	}

	err := app.providers.Shutdown(context.Background())
	if err != nil {
		app.logger().Warn("observability shutdown failed", slog.Any("error", err))
	}
}

// tracer returns the command tracer, falling back to a no-op tracer when
// observability was initialized without one.
func (app *App) tracer() trace.Tracer {
	if app.providers.Tracer != nil {
		return app.providers.Tracer
	}

	return nooptrace.NewTracerProvider().Tracer("symdict")
}

// logger returns the structured logger, falling back to a discard logger.
func (app *App) logger() *slog.Logger {
	if app.providers.Logger != nil {
		return app.providers.Logger
	}

	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func (app *App) isSilent(cmd *cobra.Command) bool {
	if app.quiet {
		return true
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return false
	}

	return quiet
}

func (app *App) progressf(cmd *cobra.Command, format string, args ...any) {
	if app.isSilent(cmd) {
		return
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "progress: "+format+"\n", args...)
}

// caseSensitive resolves the effective comparison mode: an explicit flag
// wins, otherwise the configured default applies.
func (app *App) caseSensitive(cmd *cobra.Command, flagValue bool) bool {
	if cmd.Flags().Changed("sensitive") {
		return flagValue
	}

	if app.cfg != nil {
		return app.cfg.CaseSensitive
	}

	return flagValue
}

func (app *App) hibernationThreshold() int {
	if app.cfg != nil {
		return app.cfg.HibernationThreshold
	}

	return config.DefaultHibernationThreshold
}

func (app *App) shardCount() int {
	if app.cfg != nil && app.cfg.Shards > 0 {
		return app.cfg.Shards
	}

	return config.DefaultShards
}

func (app *App) diagAddr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if app.cfg != nil {
		return app.cfg.DiagAddr
	}

	return ""
}

func durationClass(d time.Duration) string {
	switch {
	case d < durationClassFastLimit:
		return durationClassFast
	case d < durationClassNormalLimit:
		return durationClassNormal
	default:
		return durationClassSlow
	}
}
