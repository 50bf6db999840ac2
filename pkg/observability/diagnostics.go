package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const diagnosticsReadHeaderTimeout = 5 * time.Second

// DiagnosticsServer is the operational HTTP sidecar: liveness at /healthz,
// readiness at /readyz and a Prometheus scrape endpoint at /metrics.
type DiagnosticsServer struct {
	httpServer *http.Server
	boundAddr  net.Addr
}

// NewDiagnosticsServer listens on addr and serves the diagnostics endpoints
// until Close. Readiness checks run per request in the order given.
func NewDiagnosticsServer(addr string, checks ...ReadyCheck) (*DiagnosticsServer, error) {
	routes, err := diagnosticsRoutes(checks)
	if err != nil {
		return nil, err
	}

	var listenCfg net.ListenConfig

	listener, err := listenCfg.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("diagnostics listen on %s: %w", addr, err)
	}

	ds := &DiagnosticsServer{
		httpServer: &http.Server{
			Handler:           routes,
			ReadHeaderTimeout: diagnosticsReadHeaderTimeout,
		},
		boundAddr: listener.Addr(),
	}

	go ds.serve(listener)

	return ds, nil
}

func diagnosticsRoutes(checks []ReadyCheck) (http.Handler, error) {
	scrape, err := PrometheusHandler()
	if err != nil {
		return nil, fmt.Errorf("metrics endpoint: %w", err)
	}

	routes := http.NewServeMux()
	routes.Handle("/healthz", HealthHandler())
	routes.Handle("/readyz", ReadyHandler(checks...))
	routes.Handle("/metrics", scrape)

	return routes, nil
}

func (ds *DiagnosticsServer) serve(listener net.Listener) {
	err := ds.httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Warn("diagnostics server failed", slog.Any("error", err))
	}
}

// Addr returns the bound listen address. Useful when addr requested an
// ephemeral port.
func (ds *DiagnosticsServer) Addr() string {
	return ds.boundAddr.String()
}

// Close drains in-flight requests and stops the server.
func (ds *DiagnosticsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	err := ds.httpServer.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("stop diagnostics server: %w", err)
	}

	return nil
}
