package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// ReadyCheck probes one subsystem for readiness. A nil error means the
// subsystem can serve; the error otherwise describes what is still missing.
type ReadyCheck func(ctx context.Context) error

// Probe bodies are fixed, the status code carries the signal.
const (
	probeBodyOK          = `{"status":"ok"}`
	probeBodyUnavailable = `{"status":"unavailable"}`
)

// HealthHandler returns the /healthz liveness handler. It reports HTTP 200
// with {"status":"ok"} unconditionally.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, probeBodyOK)
	})
}

// ReadyHandler returns the /readyz readiness handler. Checks run in order on
// each request and the first failure yields HTTP 503 with
// {"status":"unavailable"}. With no checks the endpoint always reports ready.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		for _, ready := range checks {
			if err := ready(req.Context()); err != nil {
				writeProbe(w, http.StatusServiceUnavailable, probeBodyUnavailable)

				return
			}
		}

		writeProbe(w, http.StatusOK, probeBodyOK)
	})
}

func writeProbe(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, err := io.WriteString(w, body)
	if err != nil {
		slog.Debug("probe response write failed", slog.Any("error", err))
	}
}
