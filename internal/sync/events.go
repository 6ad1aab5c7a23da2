package sync

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/toolhive-registry-bridge/internal/status"
	"github.com/stacklok/toolhive-registry-bridge/internal/telemetry"
)

// TickResult summarizes one completed tick
type TickResult struct {
	// Duration is measured on the channel's scheduler clock
	Duration time.Duration
	// Instances is the size of the snapshot retained after the tick
	Instances int
	// Malformed counts descriptors skipped in this pull
	Malformed int
	// Operations counts operation outcomes of this tick
	Operations status.OperationCounts
}

// Events is the metrics contract of a channel. Calls are fire-and-forget: implementations
// must not block, and panics are recovered by the caller.
type Events interface {
	// TickSucceeded is emitted after a tick in which the pull and every operation succeeded
	TickSucceeded(ctx context.Context, channel string, result TickResult)

	// TickFailed is emitted after a tick whose pull failed or in which an operation failed.
	// result is zero-valued except for Duration when the pull failed.
	TickFailed(ctx context.Context, channel string, result TickResult, err error)

	// OperationApplied is emitted once per operation applied to the sink, with a nil err
	// on success
	OperationApplied(ctx context.Context, channel string, kind OperationKind, err error)
}

// NopEvents discards every event
type NopEvents struct{}

var _ Events = NopEvents{}

// TickSucceeded does nothing
func (NopEvents) TickSucceeded(context.Context, string, TickResult) {}

// TickFailed does nothing
func (NopEvents) TickFailed(context.Context, string, TickResult, error) {}

// OperationApplied does nothing
func (NopEvents) OperationApplied(context.Context, string, OperationKind, error) {}

// MetricsEvents records channel events as OpenTelemetry metrics
type MetricsEvents struct {
	metrics *telemetry.BridgeMetrics
}

var _ Events = (*MetricsEvents)(nil)

// NewMetricsEvents creates Events backed by metrics. A nil metrics records nothing.
func NewMetricsEvents(metrics *telemetry.BridgeMetrics) *MetricsEvents {
	return &MetricsEvents{metrics: metrics}
}

// TickSucceeded records a successful tick and the retained snapshot size
func (e *MetricsEvents) TickSucceeded(ctx context.Context, channel string, result TickResult) {
	e.metrics.RecordTick(ctx, channel, result.Duration, true, true, result.Instances, result.Malformed)
}

// TickFailed records a failed tick. Snapshot gauges are only updated when the pull succeeded.
func (e *MetricsEvents) TickFailed(ctx context.Context, channel string, result TickResult, err error) {
	var syncErr *Error
	pulled := !errors.As(err, &syncErr) || syncErr.Kind != ErrorKindSourceUnavailable
	e.metrics.RecordTick(ctx, channel, result.Duration, false, pulled, result.Instances, result.Malformed)
}

// OperationApplied records one sink operation
func (e *MetricsEvents) OperationApplied(ctx context.Context, channel string, kind OperationKind, err error) {
	e.metrics.RecordOperation(ctx, channel, string(kind), err == nil)
}
