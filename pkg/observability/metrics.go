package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricInsertsTotal     = "symdict.inserts.total"
	metricDuplicatesTotal  = "symdict.duplicates.total"
	metricLookupsTotal     = "symdict.lookups.total"
	metricRotationsTotal   = "symdict.rotations.total"
	metricRecoloringsTotal = "symdict.recolorings.total"
	metricHibernations     = "symdict.hibernations.total"
	metricBatchDuration    = "symdict.insert.batch.duration.seconds"
	metricNodesLive        = "symdict.nodes.live"

	attrHit = "hit"
)

// batchBucketBoundaries covers 1ms to 60s for insert batches that range from
// a handful of keys to multi-million key benchmark loads.
var batchBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// DictMetrics holds the OTel instruments for dictionary activity.
// All recording methods are safe on a nil receiver, so callers running
// without a meter can simply pass nil around.
type DictMetrics struct {
	insertsTotal     metric.Int64Counter
	duplicatesTotal  metric.Int64Counter
	lookupsTotal     metric.Int64Counter
	rotationsTotal   metric.Int64Counter
	recoloringsTotal metric.Int64Counter
	hibernations     metric.Int64Counter
	batchDuration    metric.Float64Histogram
	nodesLive        metric.Int64UpDownCounter
}

// NewDictMetrics creates dictionary metric instruments from the given meter.
func NewDictMetrics(mt metric.Meter) (*DictMetrics, error) {
	set := newInstrumentSet(mt)

	dm := &DictMetrics{
		insertsTotal:     set.counter(metricInsertsTotal, "Total number of accepted insertions", "{insert}"),
		duplicatesTotal:  set.counter(metricDuplicatesTotal, "Total number of rejected duplicate keys", "{insert}"),
		lookupsTotal:     set.counter(metricLookupsTotal, "Total number of key lookups", "{lookup}"),
		rotationsTotal:   set.counter(metricRotationsTotal, "Total number of rebalancing rotations", "{rotation}"),
		recoloringsTotal: set.counter(metricRecoloringsTotal, "Total number of rebalancing recolorings", "{recoloring}"),
		hibernations:     set.counter(metricHibernations, "Total number of allocator hibernation cycles", "{cycle}"),
		batchDuration:    set.histogram(metricBatchDuration, "Insert batch duration in seconds", "s", batchBucketBoundaries...),
		nodesLive:        set.upDownCounter(metricNodesLive, "Number of live dictionary nodes", "{node}"),
	}

	err := set.Err()
	if err != nil {
		return nil, err
	}

	return dm, nil
}

// RecordInsert records one insertion attempt. Accepted inserts bump the
// insert counter and the live node gauge; duplicates bump the duplicate counter.
func (dm *DictMetrics) RecordInsert(ctx context.Context, inserted bool) {
	if dm == nil {
		return
	}

	if inserted {
		dm.insertsTotal.Add(ctx, 1)
		dm.nodesLive.Add(ctx, 1)

		return
	}

	dm.duplicatesTotal.Add(ctx, 1)
}

// RecordLookup records one lookup with its hit/miss outcome.
func (dm *DictMetrics) RecordLookup(ctx context.Context, hit bool) {
	if dm == nil {
		return
	}

	dm.lookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool(attrHit, hit)))
}

// RecordRebalance records rotation and recoloring deltas taken from tree
// statistics after a batch of insertions.
func (dm *DictMetrics) RecordRebalance(ctx context.Context, rotations, recolorings int64) {
	if dm == nil {
		return
	}

	dm.rotationsTotal.Add(ctx, rotations)
	dm.recoloringsTotal.Add(ctx, recolorings)
}

// RecordHibernation counts one completed hibernate or boot cycle.
func (dm *DictMetrics) RecordHibernation(ctx context.Context) {
	if dm == nil {
		return
	}

	dm.hibernations.Add(ctx, 1)
}

// RecordBatch records the wall-clock duration of one bulk insert.
func (dm *DictMetrics) RecordBatch(ctx context.Context, duration time.Duration) {
	if dm == nil {
		return
	}

	dm.batchDuration.Record(ctx, duration.Seconds())
}

// RecordTeardown moves the live node gauge down by the number of released nodes.
func (dm *DictMetrics) RecordTeardown(ctx context.Context, nodes int64) {
	if dm == nil {
		return
	}

	dm.nodesLive.Add(ctx, -nodes)
}
