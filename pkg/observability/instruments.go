package observability

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// instrumentSet creates OTel instruments against one meter and collects
// every creation failure, so constructors declare their whole instrument
// block and check a single joined error at the end.
type instrumentSet struct {
	meter    metric.Meter
	failures []error
}

func newInstrumentSet(mt metric.Meter) *instrumentSet {
	return &instrumentSet{meter: mt}
}

// Err joins every creation failure seen so far, nil when all succeeded.
func (s *instrumentSet) Err() error {
	return errors.Join(s.failures...)
}

// counter creates an Int64Counter instrument.
func (s *instrumentSet) counter(name, desc, unit string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.record(name, err)

	return c
}

// histogram creates a Float64Histogram instrument with optional explicit bucket boundaries.
func (s *instrumentSet) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	options := []metric.Float64HistogramOption{
		metric.WithDescription(desc), metric.WithUnit(unit),
	}
	if len(bounds) != 0 {
		options = append(options, metric.WithExplicitBucketBoundaries(bounds...))
	}

	h, err := s.meter.Float64Histogram(name, options...)
	s.record(name, err)

	return h
}

// upDownCounter creates an Int64UpDownCounter instrument.
func (s *instrumentSet) upDownCounter(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.record(name, err)

	return c
}

func (s *instrumentSet) record(name string, err error) {
	if err != nil {
		s.failures = append(s.failures, fmt.Errorf("create %s: %w", name, err))
	}
}
