package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName scopes the tracer and meter handed out by Init.
const instrumentationName = "symdict"

// Providers bundles what Init hands back to the application.
type Providers struct {
	// Tracer creates spans under the symdict instrumentation scope.
	Tracer trace.Tracer

	// Meter creates instruments under the symdict instrumentation scope.
	Meter metric.Meter

	// Logger writes structured records stamped with the active span.
	Logger *slog.Logger

	// Shutdown flushes pending telemetry. Call it before process exit.
	Shutdown func(ctx context.Context) error
}

// Init wires OpenTelemetry tracing and metrics plus structured logging from
// cfg. Without an OTLP endpoint the providers are no-ops and Shutdown has
// nothing to flush.
func Init(cfg Config) (Providers, error) {
	set, err := newProviderSet(cfg)
	if err != nil {
		return Providers{}, err
	}

	set.install()

	return Providers{
		Tracer:   set.traces.Tracer(instrumentationName),
		Meter:    set.metrics.Meter(instrumentationName),
		Logger:   newLogger(cfg),
		Shutdown: set.shutdownWithin(cfg.ShutdownTimeout),
	}, nil
}

// providerSet carries the built SDK providers and their shutdown hooks.
// No-op providers register no hooks, so shutting them down does nothing.
type providerSet struct {
	cfg     Config
	traces  trace.TracerProvider
	metrics metric.MeterProvider
	hooks   []func(ctx context.Context) error
}

func newProviderSet(cfg Config) (*providerSet, error) {
	set := &providerSet{cfg: cfg}
	if err := set.start(context.Background()); err != nil {
		return nil, err
	}

	return set, nil
}

// start picks no-op providers when no OTLP endpoint is configured and
// otherwise wires providers backed by OTLP gRPC exporters.
func (ps *providerSet) start(ctx context.Context) error {
	if ps.cfg.OTLPEndpoint == "" {
		ps.traces = tracenoop.NewTracerProvider()
		ps.metrics = metricnoop.NewMeterProvider()

		return nil
	}

	res, err := processResource(ctx, ps.cfg)
	if err != nil {
		return fmt.Errorf("telemetry resource: %w", err)
	}

	if err := ps.startTraces(ctx, res); err != nil {
		return err
	}

	if err := ps.startMetrics(ctx, res); err != nil {
		return errors.Join(err, ps.shutdownAll(ctx))
	}

	return nil
}

func (ps *providerSet) startTraces(ctx context.Context, res *resource.Resource) error {
	exporter, err := otlptracegrpc.New(ctx, ps.traceOptions()...)
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}

	provider := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(res),
	)
	ps.onShutdown(provider.Shutdown)
	ps.traces = provider

	return nil
}

func (ps *providerSet) startMetrics(ctx context.Context, res *resource.Resource) error {
	exporter, err := otlpmetricgrpc.New(ctx, ps.metricOptions()...)
	if err != nil {
		return fmt.Errorf("metric exporter: %w", err)
	}

	provider := metricsdk.NewMeterProvider(
		metricsdk.WithReader(metricsdk.NewPeriodicReader(exporter)),
		metricsdk.WithResource(res),
	)
	ps.onShutdown(provider.Shutdown)
	ps.metrics = provider

	return nil
}

func (ps *providerSet) traceOptions() []otlptracegrpc.Option {
	options := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(ps.cfg.OTLPEndpoint)}

	if ps.cfg.OTLPInsecure {
		options = append(options, otlptracegrpc.WithInsecure())
	}

	if len(ps.cfg.OTLPHeaders) > 0 {
		options = append(options, otlptracegrpc.WithHeaders(ps.cfg.OTLPHeaders))
	}

	return options
}

func (ps *providerSet) metricOptions() []otlpmetricgrpc.Option {
	options := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(ps.cfg.OTLPEndpoint)}

	if ps.cfg.OTLPInsecure {
		options = append(options, otlpmetricgrpc.WithInsecure())
	}

	if len(ps.cfg.OTLPHeaders) > 0 {
		options = append(options, otlpmetricgrpc.WithHeaders(ps.cfg.OTLPHeaders))
	}

	return options
}

// install registers the providers and W3C trace context propagation globally.
func (ps *providerSet) install() {
	otel.SetTracerProvider(ps.traces)
	otel.SetMeterProvider(ps.metrics)

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	)
	otel.SetTextMapPropagator(propagator)
}

func (ps *providerSet) onShutdown(hook func(ctx context.Context) error) {
	ps.hooks = append(ps.hooks, hook)
}

func (ps *providerSet) shutdownAll(ctx context.Context) error {
	errs := make([]error, 0, len(ps.hooks))
	for _, stop := range ps.hooks {
		errs = append(errs, stop(ctx))
	}

	return errors.Join(errs...)
}

// shutdownWithin caps every shutdown hook with timeout, falling back to
// the package default when timeout is unset.
func (ps *providerSet) shutdownWithin(timeout time.Duration) func(ctx context.Context) error {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return func(parent context.Context) error {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		return ps.shutdownAll(ctx)
	}
}

// processResource describes this process for exported telemetry. Optional
// attributes are left out when their config field is unset.
func processResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	kvs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	optional := []attribute.KeyValue{
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("app.mode", string(cfg.Mode)),
	}
	for _, kv := range optional {
		if kv.Value.AsString() != "" {
			kvs = append(kvs, kv)
		}
	}

	return resource.New(ctx, resource.WithAttributes(kvs...))
}

func newLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(NewTracingHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode))
}

// ParseOTLPHeaders parses "key=value,key=value" OTLP header strings, trimming
// whitespace around keys and values. Nil is returned when nothing parses.
func ParseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)

	for entry := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if len(headers) == 0 {
		return nil
	}

	return headers
}
