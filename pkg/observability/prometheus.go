package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusHandler builds the /metrics scrape endpoint. OTel instruments are
// bridged into a private Prometheus registry next to the standard Go runtime
// and process collectors. The registry is private per call, so building a
// second handler never trips duplicate collector registration.
func PrometheusHandler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bridge, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus bridge: %w", err)
	}

	// The bridge is a metric reader and collects nothing until a MeterProvider
	// is attached to it. The reader registration keeps the provider reachable.
	_ = metricsdk.NewMeterProvider(metricsdk.WithReader(bridge))

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}), nil
}
