package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-registry-bridge/internal/clock"
	"github.com/stacklok/toolhive-registry-bridge/internal/eviction"
	"github.com/stacklok/toolhive-registry-bridge/internal/otel"
	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
	"github.com/stacklok/toolhive-registry-bridge/internal/sources"
	"github.com/stacklok/toolhive-registry-bridge/internal/status"
)

// CandidateQueue is the part of eviction.Queue a channel uses
type CandidateQueue interface {
	MarkCandidate(owner eviction.Owner, rec registry.InstanceRecord)
	CancelCandidate(id string) bool
}

// Channel reconciles one source into a sink on a fixed-rate tick
type Channel struct {
	name        string
	id          string
	source      sources.Source
	sink        sink.Sink
	scheduler   clock.Scheduler
	interval    time.Duration
	pullTimeout time.Duration
	queue       CandidateQueue
	events      Events
	tracer      trace.Tracer
	persistence status.StatusPersistence

	mu       gosync.Mutex
	state    status.ChannelPhase
	ctx      context.Context
	cancel   clock.Cancel
	previous *registry.Snapshot
	status   status.ChannelStatus
}

var _ eviction.Owner = (*Channel)(nil)

// ChannelOption configures a Channel
type ChannelOption func(*Channel)

// WithEvictionQueue routes removals through q instead of unregistering them directly
func WithEvictionQueue(q CandidateQueue) ChannelOption {
	return func(c *Channel) {
		c.queue = q
	}
}

// WithEvents sets the receiver of metrics events
func WithEvents(e Events) ChannelOption {
	return func(c *Channel) {
		if e != nil {
			c.events = e
		}
	}
}

// WithTracer sets the tracer used for tick spans
func WithTracer(t trace.Tracer) ChannelOption {
	return func(c *Channel) {
		c.tracer = t
	}
}

// WithStatusPersistence saves the channel status after every state change
func WithStatusPersistence(p status.StatusPersistence) ChannelOption {
	return func(c *Channel) {
		c.persistence = p
	}
}

// WithPullTimeout bounds each pull. A pull that exceeds it fails the tick.
func WithPullTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.pullTimeout = d
	}
}

// NewChannel creates an Idle channel
func NewChannel(
	name string,
	src sources.Source,
	s sink.Sink,
	scheduler clock.Scheduler,
	interval time.Duration,
	opts ...ChannelOption,
) (*Channel, error) {
	if name == "" {
		return nil, fmt.Errorf("channel name is required")
	}
	if src == nil || s == nil || scheduler == nil {
		return nil, fmt.Errorf("channel %s: source, sink and scheduler are required", name)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("channel %s: refresh interval must be greater than zero", name)
	}

	id := uuid.NewString()
	c := &Channel{
		name:      name,
		id:        id,
		source:    src,
		sink:      s,
		scheduler: scheduler,
		interval:  interval,
		events:    NopEvents{},
		state:     status.ChannelPhaseIdle,
		status: status.ChannelStatus{
			Name:  name,
			ID:    id,
			Phase: status.ChannelPhaseIdle,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the configured channel name
func (c *Channel) Name() string {
	return c.name
}

// ID returns the identifier of this channel instance
func (c *Channel) ID() string {
	return c.id
}

// State returns the current lifecycle state
func (c *Channel) State() status.ChannelPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a copy of the channel status
func (c *Channel) Status() status.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Retained returns the snapshot the next tick will diff against, nil before the first
// successful pull
func (c *Channel) Retained() *registry.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous
}

// Connect moves an Idle channel to Connected and schedules the first tick immediately.
// Ticks run with ctx; Close does not cancel it so an in-flight tick can finish.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != status.ChannelPhaseIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("channel %s cannot connect from state %s", c.name, state)
	}
	c.ctx = ctx
	c.setStateLocked(status.ChannelPhaseConnected)
	c.cancel = c.scheduler.Schedule(0, c.tick)
	snapshot := c.status
	c.mu.Unlock()

	slog.Info("Channel connected",
		"channel", c.name,
		"id", c.id,
		"refresh_interval", c.interval)
	c.saveStatus(ctx, &snapshot)
	return nil
}

// Close cancels the pending tick and moves the channel to Closed. An in-flight tick
// completes but schedules nothing further. Closing twice is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == status.ChannelPhaseClosed {
		c.mu.Unlock()
		return nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.setStateLocked(status.ChannelPhaseClosed)
	snapshot := c.status
	ctx := c.ctx
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	slog.Info("Channel closed", "channel", c.name, "id", c.id)
	c.saveStatus(context.WithoutCancel(ctx), &snapshot)
	return nil
}

// Evict applies a removal the eviction queue authorized. It returns eviction.ErrReappeared
// and leaves the instance registered when the retained snapshot holds it again, including
// when a tick brings it back while the removal is running.
func (c *Channel) Evict(ctx context.Context, rec registry.InstanceRecord) error {
	attrs := append(otel.InstanceAttributes(rec.ID, string(OperationUnregister)),
		otel.AttrChannelName.String(c.name),
		otel.AttrChannelID.String(c.id),
	)
	ctx, span := otel.StartSpan(ctx, c.tracer, "bridge.evict", trace.WithAttributes(attrs...))
	defer span.End()
	logger := logr.FromContextOrDiscard(ctx).WithValues("channel", c.name, "instance", rec.ID)
	if _, ok := c.Retained().Get(rec.ID); ok {
		logger.Info("Instance reappeared, eviction skipped")
		return eviction.ErrReappeared
	}

	op := Operation{Kind: OperationUnregister, Record: rec}
	err := c.safeApply(ctx, op)
	c.emitOperation(ctx, op.Kind, err)
	c.countEviction(op.Kind, err)
	if err != nil {
		otel.RecordError(span, err)
		return sinkOperationFailed(op, err)
	}

	// Ticks publish their snapshot before applying it, so a tick that re-registered the
	// instance before this removal landed is visible here
	current, ok := c.Retained().Get(rec.ID)
	if !ok {
		logger.Info("Evicted instance")
		return nil
	}
	restore := Operation{Kind: OperationRegister, Record: current}
	err = c.safeApply(ctx, restore)
	c.emitOperation(ctx, restore.Kind, err)
	c.countEviction(restore.Kind, err)
	if err != nil {
		otel.RecordError(span, err)
		logger.Error(err, "Failed to restore instance that reappeared during eviction")
	} else {
		logger.Info("Instance reappeared during eviction, restored")
	}
	return eviction.ErrReappeared
}

func (c *Channel) countEviction(kind OperationKind, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err != nil:
		c.status.TotalOperations.Failed++
	case kind == OperationRegister:
		c.status.TotalOperations.Registered++
	default:
		c.status.TotalOperations.Unregistered++
	}
}

func (c *Channel) setStateLocked(phase status.ChannelPhase) {
	c.state = phase
	c.status.Phase = phase
}

// tick runs one reconciliation pass and schedules the next one at start+interval
func (c *Channel) tick() {
	c.mu.Lock()
	if c.state == status.ChannelPhaseClosed {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.cancel = nil
	c.mu.Unlock()

	start := c.scheduler.Now()
	c.reconcile(ctx, start)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == status.ChannelPhaseClosed {
		return
	}
	if ctx.Err() != nil {
		slog.Info("Channel context done, no further ticks", "channel", c.name)
		return
	}
	delay := max(c.interval-c.scheduler.Now().Sub(start), 0)
	c.cancel = c.scheduler.Schedule(delay, c.tick)
}

func (c *Channel) reconcile(ctx context.Context, start time.Time) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "bridge.tick",
		trace.WithAttributes(
			otel.AttrChannelName.String(c.name),
			otel.AttrChannelID.String(c.id),
		),
	)
	defer span.End()
	logger := logr.FromContextOrDiscard(ctx).WithValues("channel", c.name)

	current, malformed, err := c.pull(ctx, logger)
	if err != nil {
		otel.RecordError(span, err)
		c.finishTick(ctx, logger, TickResult{Duration: c.scheduler.Now().Sub(start)}, start, err)
		return
	}

	// The snapshot advances before the operations run, and even when some of them fail.
	// Evictions racing with this tick check it to avoid removing reappeared instances.
	c.mu.Lock()
	previous := c.previous
	c.previous = current
	c.mu.Unlock()

	ops := Diff(previous, current)
	counts, opErr := c.apply(ctx, logger, ops)

	span.SetAttributes(
		otel.AttrSnapshotSize.Int(current.Len()),
		otel.AttrResultCount.Int(len(ops)),
	)
	otel.RecordError(span, opErr)

	result := TickResult{
		Duration:   c.scheduler.Now().Sub(start),
		Instances:  current.Len(),
		Malformed:  malformed,
		Operations: counts,
	}
	c.finishTick(ctx, logger, result, start, opErr)
}

// pull lists the source and maps descriptors into a snapshot. Malformed descriptors are
// skipped; when one still names an identifier from the retained snapshot, the retained
// record is carried over so the pass neither updates nor removes it. For repeated
// identifiers the first valid record wins.
func (c *Channel) pull(ctx context.Context, logger logr.Logger) (*registry.Snapshot, int, error) {
	pullCtx := ctx
	if c.pullTimeout > 0 {
		var cancel context.CancelFunc
		pullCtx, cancel = context.WithTimeout(ctx, c.pullTimeout)
		defer cancel()
	}

	descriptors, err := c.source.ListInstances(pullCtx)
	if err == nil && pullCtx.Err() != nil {
		err = pullCtx.Err()
	}
	if err != nil {
		return nil, 0, sourceUnavailable(c.source.Name(), err)
	}

	c.mu.Lock()
	previous := c.previous
	c.mu.Unlock()

	builder := registry.NewSnapshotBuilder(len(descriptors))
	var rejected []*Error
	for _, d := range descriptors {
		rec, err := d.Record()
		if err == nil && !builder.Add(rec) {
			err = fmt.Errorf("duplicate instance identifier")
		}
		if err != nil {
			rejected = append(rejected, malformedRecord(d.ID(), err))
		}
	}

	for _, r := range rejected {
		logger.Info("Skipping malformed record", "instance", r.InstanceID, "error", r.Err.Error())
		if r.InstanceID == "" || builder.Has(r.InstanceID) {
			continue
		}
		if prev, ok := previous.Get(r.InstanceID); ok {
			builder.Add(prev)
		}
	}

	return builder.Build(), len(rejected), nil
}

func (c *Channel) apply(ctx context.Context, logger logr.Logger, ops []Operation) (status.OperationCounts, error) {
	var (
		counts status.OperationCounts
		errs   []error
	)

	for _, op := range ops {
		if c.queue != nil {
			if op.Kind == OperationUnregister {
				c.queue.MarkCandidate(c, op.Record)
				counts.Deferred++
				logger.V(1).Info("Queued eviction candidate", "instance", op.Record.ID)
				continue
			}
			c.queue.CancelCandidate(op.Record.ID)
		}

		err := c.safeApply(ctx, op)
		c.emitOperation(ctx, op.Kind, err)
		if err != nil {
			counts.Failed++
			errs = append(errs, sinkOperationFailed(op, err))
			trace.SpanFromContext(ctx).AddEvent("operation failed",
				trace.WithAttributes(otel.InstanceAttributes(op.Record.ID, string(op.Kind))...))
			logger.Error(err, "Operation failed", "operation", op.String())
			continue
		}

		switch op.Kind {
		case OperationRegister:
			counts.Registered++
		case OperationUpdate:
			counts.Updated++
		case OperationUnregister:
			counts.Unregistered++
		}
		logger.V(1).Info("Applied operation", "operation", op.String())
	}

	return counts, errors.Join(errs...)
}

// safeApply applies op, turning a panicking sink into an error
func (c *Channel) safeApply(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return op.Apply(ctx, c.sink)
}

func (c *Channel) finishTick(ctx context.Context, logger logr.Logger, result TickResult, start time.Time, err error) {
	c.mu.Lock()
	st := &c.status
	st.LastAttempt = &start
	st.LastOperations = result.Operations
	st.TotalOperations = st.TotalOperations.Add(result.Operations)
	st.MalformedCount = result.Malformed
	st.InstanceCount = c.previous.Len()

	phase := status.ChannelPhaseActive
	if err != nil {
		phase = status.ChannelPhaseDegraded
		st.ConsecutiveFailures++
		st.Message = err.Error()
	} else {
		st.LastSuccess = &start
		st.ConsecutiveFailures = 0
		st.Message = fmt.Sprintf("Reconciled %d instances", result.Instances)
	}
	if c.state != status.ChannelPhaseClosed {
		c.setStateLocked(phase)
	}
	snapshot := *st
	c.mu.Unlock()

	if err != nil {
		logger.Error(err, "Tick failed",
			"consecutive_failures", snapshot.ConsecutiveFailures,
			"duration", result.Duration)
		c.emit(func(e Events) { e.TickFailed(ctx, c.name, result, err) })
	} else {
		logger.Info("Tick completed",
			"instances", result.Instances,
			"registered", result.Operations.Registered,
			"updated", result.Operations.Updated,
			"unregistered", result.Operations.Unregistered,
			"deferred", result.Operations.Deferred,
			"malformed", result.Malformed,
			"duration", result.Duration)
		c.emit(func(e Events) { e.TickSucceeded(ctx, c.name, result) })
	}

	c.saveStatus(ctx, &snapshot)
}

func (c *Channel) emitOperation(ctx context.Context, kind OperationKind, err error) {
	c.emit(func(e Events) { e.OperationApplied(ctx, c.name, kind, err) })
}

// emit calls fn with the channel's events receiver. Events never affect control flow.
func (c *Channel) emit(fn func(Events)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Metrics event handler panicked", "channel", c.name, "panic", r)
		}
	}()
	fn(c.events)
}

func (c *Channel) saveStatus(ctx context.Context, st *status.ChannelStatus) {
	if c.persistence == nil {
		return
	}
	if err := c.persistence.SaveStatus(ctx, c.name, st); err != nil {
		slog.Warn("Failed to persist channel status", "channel", c.name, "error", err)
	}
}
