package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/symdict/pkg/observability"
)

// newRecordedMetrics backs a DictMetrics with a manual reader so a test can
// flush and inspect what was recorded.
func newRecordedMetrics(t *testing.T) (*observability.DictMetrics, *metricsdk.ManualReader) {
	t.Helper()

	reader := metricsdk.NewManualReader()
	provider := metricsdk.NewMeterProvider(metricsdk.WithReader(reader))

	metrics, err := observability.NewDictMetrics(provider.Meter("symdict-test"))
	require.NoError(t, err)

	return metrics, reader
}

func gatherMetrics(t *testing.T, reader *metricsdk.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var collected metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(t.Context(), &collected))

	return collected
}

func metricByName(collected metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range collected.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name == name {
				return metric, true
			}
		}
	}

	return metricdata.Metrics{}, false
}

func requireMetric(t *testing.T, collected metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	metric, ok := metricByName(collected, name)
	require.True(t, ok, "metric %s was not exported", name)

	return metric
}

func TestDictMetrics_RecordInsert_Accepted(t *testing.T) {
	t.Parallel()

	metrics, reader := newRecordedMetrics(t)
	ctx := t.Context()

	metrics.RecordInsert(ctx, true)

	collected := gatherMetrics(t, reader)
	requireMetric(t, collected, "symdict.inserts.total")
	requireMetric(t, collected, "symdict.nodes.live")
}

func TestDictMetrics_RecordInsert_Duplicate(t *testing.T) {
	t.Parallel()

	metrics, reader := newRecordedMetrics(t)
	ctx := t.Context()

	metrics.RecordInsert(ctx, false)

	collected := gatherMetrics(t, reader)
	requireMetric(t, collected, "symdict.duplicates.total")

	_, ok := metricByName(collected, "symdict.nodes.live")
	assert.False(t, ok, "a duplicate must not register a live node")
}

func TestDictMetrics_RecordLookup_HitAttribute(t *testing.T) {
	t.Parallel()

	metrics, reader := newRecordedMetrics(t)
	ctx := t.Context()

	metrics.RecordLookup(ctx, true)
	metrics.RecordLookup(ctx, false)
	metrics.RecordLookup(ctx, false)

	collected := gatherMetrics(t, reader)
	lookups := requireMetric(t, collected, "symdict.lookups.total")

	sum, ok := lookups.Data.(metricdata.Sum[int64])
	require.True(t, ok, "lookups must export as a counter sum")
	require.Len(t, sum.DataPoints, 2, "hits and misses should be separate series")

	for _, point := range sum.DataPoints {
		hit, found := point.Attributes.Value(attribute.Key("hit"))
		require.True(t, found, "datapoint missing the hit attribute")

		want := int64(2)
		if hit.AsBool() {
			want = 1
		}

		assert.Equal(t, want, point.Value)
	}
}

func TestDictMetrics_RecordRebalance(t *testing.T) {
	t.Parallel()

	metrics, reader := newRecordedMetrics(t)
	ctx := t.Context()

	metrics.RecordRebalance(ctx, 3, 7)

	collected := gatherMetrics(t, reader)
	requireMetric(t, collected, "symdict.rotations.total")
	requireMetric(t, collected, "symdict.recolorings.total")
}

func TestDictMetrics_RecordHibernation(t *testing.T) {
	t.Parallel()

	metrics, reader := newRecordedMetrics(t)
	ctx := t.Context()

	metrics.RecordHibernation(ctx)

	collected := gatherMetrics(t, reader)
	requireMetric(t, collected, "symdict.hibernations.total")
}

func TestDictMetrics_RecordBatch_HistogramBuckets(t *testing.T) {
	t.Parallel()

	metrics, reader := newRecordedMetrics(t)
	ctx := t.Context()

	metrics.RecordBatch(ctx, time.Millisecond*250)

	collected := gatherMetrics(t, reader)
	duration := requireMetric(t, collected, "symdict.insert.batch.duration.seconds")

	histo, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "batch duration must export as a histogram")
	require.NotEmpty(t, histo.DataPoints)

	wantBounds := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	assert.Equal(t, wantBounds, histo.DataPoints[0].Bounds)
}

func TestDictMetrics_RecordTeardown_DrainsLiveNodes(t *testing.T) {
	t.Parallel()

	metrics, reader := newRecordedMetrics(t)
	ctx := t.Context()

	metrics.RecordInsert(ctx, true)
	metrics.RecordInsert(ctx, true)
	metrics.RecordInsert(ctx, true)
	metrics.RecordTeardown(ctx, 3)

	collected := gatherMetrics(t, reader)
	nodes := requireMetric(t, collected, "symdict.nodes.live")

	sum, ok := nodes.Data.(metricdata.Sum[int64])
	require.True(t, ok, "live nodes must export as a counter sum")
	require.NotEmpty(t, sum.DataPoints)
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestNewDictMetrics_WithNoopMeter(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, providers.Shutdown(context.Background()))
	})

	metrics, err := observability.NewDictMetrics(providers.Meter)
	require.NoError(t, err)
	assert.NotNil(t, metrics)

	// Recording against the no-op meter must not panic.
	metrics.RecordInsert(context.Background(), true)
	metrics.RecordBatch(context.Background(), time.Millisecond)
}

func TestDictMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var metrics *observability.DictMetrics

	ctx := t.Context()

	// All recording methods must be no-ops on a nil receiver.
	metrics.RecordInsert(ctx, true)
	metrics.RecordLookup(ctx, false)
	metrics.RecordRebalance(ctx, 1, 1)
	metrics.RecordHibernation(ctx)
	metrics.RecordBatch(ctx, time.Second)
	metrics.RecordTeardown(ctx, 1)
}
