package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Attribute keys stamped on log records.
const (
	logKeyTraceID = "trace_id"
	logKeySpanID  = "span_id"
	logKeyService = "service"
	logKeyEnv     = "env"
	logKeyMode    = "mode"
)

// TracingHandler decorates an [slog.Handler] with OpenTelemetry correlation:
// records logged with an active span in their context gain trace_id and
// span_id attributes. Service identity attributes are attached once at
// construction.
type TracingHandler struct {
	slog.Handler
}

// NewTracingHandler builds a TracingHandler around base. The identity
// attributes (service, mode and, when non-empty, env) are pushed into base
// up front so later WithGroup calls cannot nest them under a group.
func NewTracingHandler(base slog.Handler, service, env string, mode AppMode) *TracingHandler {
	identity := []slog.Attr{
		slog.String(logKeyService, service),
		slog.String(logKeyMode, string(mode)),
	}

	if env != "" {
		identity = append(identity, slog.String(logKeyEnv, env))
	}

	return &TracingHandler{Handler: base.WithAttrs(identity)}
}

// Handle stamps the record with the span context, if any, and delegates.
func (th *TracingHandler) Handle(ctx context.Context, rec slog.Record) error {
	span := trace.SpanContextFromContext(ctx)
	if span.IsValid() {
		rec.AddAttrs(
			slog.String(logKeyTraceID, span.TraceID().String()),
			slog.String(logKeySpanID, span.SpanID().String()),
		)
	}

	err := th.Handler.Handle(ctx, rec)
	if err != nil {
		return fmt.Errorf("log handler: %w", err)
	}

	return nil
}

// WithAttrs rewraps so the derived handler keeps injecting trace context.
func (th *TracingHandler) WithAttrs(extra []slog.Attr) slog.Handler {
	return &TracingHandler{Handler: th.Handler.WithAttrs(extra)}
}

// WithGroup rewraps so the derived handler keeps injecting trace context.
func (th *TracingHandler) WithGroup(group string) slog.Handler {
	return &TracingHandler{Handler: th.Handler.WithGroup(group)}
}
