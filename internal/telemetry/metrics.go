package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// BridgeMetricsMeterName is the name used for the reconciliation metrics meter
	BridgeMetricsMeterName = "github.com/stacklok/toolhive-registry-bridge/bridge"
)

// BridgeMetrics holds the OpenTelemetry instruments for reconciliation and eviction
type BridgeMetrics struct {
	ticksTotal         metric.Int64Counter
	tickDuration       metric.Float64Histogram
	operationsTotal    metric.Int64Counter
	snapshotInstances  metric.Int64Gauge
	malformedRecords   metric.Int64Gauge
	evictionRounds     metric.Int64Counter
	evictionCandidates metric.Int64Gauge
	evictionsTotal     metric.Int64Counter
}

// NewBridgeMetrics creates a new BridgeMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewBridgeMetrics(provider metric.MeterProvider) (*BridgeMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(BridgeMetricsMeterName)
	m := &BridgeMetrics{}
	var err error

	if m.ticksTotal, err = meter.Int64Counter(
		"thv_bridge_ticks_total",
		metric.WithDescription("Number of reconciliation ticks"),
		metric.WithUnit("{tick}"),
	); err != nil {
		return nil, err
	}

	if m.tickDuration, err = meter.Float64Histogram(
		"thv_bridge_tick_duration_seconds",
		metric.WithDescription("Duration of reconciliation ticks in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	); err != nil {
		return nil, err
	}

	if m.operationsTotal, err = meter.Int64Counter(
		"thv_bridge_operations_total",
		metric.WithDescription("Number of operations applied to the local registry"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}

	if m.snapshotInstances, err = meter.Int64Gauge(
		"thv_bridge_snapshot_instances",
		metric.WithDescription("Number of instances in the last retained snapshot"),
		metric.WithUnit("{instance}"),
	); err != nil {
		return nil, err
	}

	if m.malformedRecords, err = meter.Int64Gauge(
		"thv_bridge_malformed_records",
		metric.WithDescription("Number of source records skipped in the last pull"),
		metric.WithUnit("{record}"),
	); err != nil {
		return nil, err
	}

	if m.evictionRounds, err = meter.Int64Counter(
		"thv_bridge_eviction_rounds_total",
		metric.WithDescription("Number of eviction rounds"),
		metric.WithUnit("{round}"),
	); err != nil {
		return nil, err
	}

	if m.evictionCandidates, err = meter.Int64Gauge(
		"thv_bridge_eviction_candidates",
		metric.WithDescription("Number of eviction candidates at the start of the last round"),
		metric.WithUnit("{instance}"),
	); err != nil {
		return nil, err
	}

	if m.evictionsTotal, err = meter.Int64Counter(
		"thv_bridge_evictions_total",
		metric.WithDescription("Number of evictions attempted"),
		metric.WithUnit("{instance}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTick records a finished tick. instances and malformed are only recorded for ticks
// that pulled a snapshot.
func (m *BridgeMetrics) RecordTick(
	ctx context.Context, channel string, duration time.Duration, success, pulled bool, instances, malformed int,
) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.Bool("success", success),
	)
	m.ticksTotal.Add(ctx, 1, attrs)
	m.tickDuration.Record(ctx, duration.Seconds(), attrs)

	if pulled {
		channelAttr := metric.WithAttributes(attribute.String("channel", channel))
		m.snapshotInstances.Record(ctx, int64(instances), channelAttr)
		m.malformedRecords.Record(ctx, int64(malformed), channelAttr)
	}
}

// RecordOperation records one operation applied to the sink
func (m *BridgeMetrics) RecordOperation(ctx context.Context, channel, kind string, success bool) {
	if m == nil {
		return
	}

	m.operationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	))
}

// RecordEvictionRound records one eviction round
func (m *BridgeMetrics) RecordEvictionRound(
	ctx context.Context, strategy string, queued, evicted, failed int, success bool,
) {
	if m == nil {
		return
	}

	strategyAttr := attribute.String("strategy", strategy)
	m.evictionRounds.Add(ctx, 1, metric.WithAttributes(strategyAttr, attribute.Bool("success", success)))
	m.evictionCandidates.Record(ctx, int64(queued), metric.WithAttributes(strategyAttr))
	if evicted > 0 {
		m.evictionsTotal.Add(ctx, int64(evicted), metric.WithAttributes(strategyAttr, attribute.Bool("success", true)))
	}
	if failed > 0 {
		m.evictionsTotal.Add(ctx, int64(failed), metric.WithAttributes(strategyAttr, attribute.Bool("success", false)))
	}
}
