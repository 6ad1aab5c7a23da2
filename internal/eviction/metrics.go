package eviction

import (
	"context"

	"github.com/stacklok/toolhive-registry-bridge/internal/telemetry"
)

// MetricsObserver reports eviction rounds to telemetry
type MetricsObserver struct {
	metrics  *telemetry.BridgeMetrics
	strategy string
}

var _ RoundObserver = (*MetricsObserver)(nil)

// NewMetricsObserver creates a RoundObserver recording rounds of a queue using strategy
func NewMetricsObserver(metrics *telemetry.BridgeMetrics, strategy Strategy) *MetricsObserver {
	return &MetricsObserver{metrics: metrics, strategy: strategy.Name()}
}

// EvictionRound records the round. A round that could not read the registry size or
// had a failed eviction is recorded as unsuccessful.
func (o *MetricsObserver) EvictionRound(ctx context.Context, result RoundResult) {
	o.metrics.RecordEvictionRound(ctx, o.strategy,
		result.Queued, len(result.Evicted), result.Failed,
		result.Err == nil && result.Failed == 0)
}
