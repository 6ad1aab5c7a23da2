package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/toolhive-registry-bridge/internal/clock"
	"github.com/stacklok/toolhive-registry-bridge/internal/config"
	"github.com/stacklok/toolhive-registry-bridge/internal/eviction"
	"github.com/stacklok/toolhive-registry-bridge/internal/status"
	pkgsync "github.com/stacklok/toolhive-registry-bridge/internal/sync"
)

// Coordinator manages the reconciliation channels and eviction rounds of a bridge
type Coordinator interface {
	// Start connects every channel and schedules eviction rounds.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator and closes every channel
	Stop() error

	// Statuses returns a snapshot of every channel status, in configuration order
	Statuses() []status.ChannelStatus
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	channels  []*pkgsync.Channel
	scheduler clock.Scheduler
	config    *config.Config

	queue         *eviction.Queue
	roundInterval time.Duration

	// Lifecycle management
	mu          sync.Mutex
	cancelFunc  context.CancelFunc
	cancelRound clock.Cancel
	done        chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithEvictionQueue enables eviction rounds against q
func WithEvictionQueue(q *eviction.Queue) Option {
	return func(c *defaultCoordinator) {
		c.queue = q
	}
}

// New creates a new coordinator for already constructed channels
func New(
	channels []*pkgsync.Channel,
	scheduler clock.Scheduler,
	cfg *config.Config,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		channels:      channels,
		scheduler:     scheduler,
		config:        cfg,
		roundInterval: getRoundInterval(cfg.Eviction),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins reconciliation on every channel
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting bridge coordinator",
		"bridge", c.config.GetBridgeName(),
		"channel_count", len(c.channels),
		"eviction", c.queue != nil)

	// Create cancellable context for this coordinator
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		close(c.done)
		slog.Info("Bridge coordinator shut down")
	}()

	for i, ch := range c.channels {
		if err := ch.Connect(coordCtx); err != nil {
			c.closeChannels(c.channels[:i])
			return fmt.Errorf("failed to connect channel %s: %w", ch.Name(), err)
		}
	}

	if c.queue != nil {
		slog.Info("Scheduling eviction rounds",
			"strategy", c.queue.Strategy().Name(),
			"round_interval", c.roundInterval)
		c.scheduleRound(coordCtx)
	}

	<-coordCtx.Done()
	slog.Info("Bridge coordinator stopping")

	c.mu.Lock()
	if c.cancelRound != nil {
		c.cancelRound()
		c.cancelRound = nil
	}
	c.mu.Unlock()
	c.closeChannels(c.channels)
	return nil
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping bridge coordinator")
		cancel()
		// Wait for coordinator to finish
		<-c.done
	}
	return nil
}

// Statuses returns the status of every channel
func (c *defaultCoordinator) Statuses() []status.ChannelStatus {
	out := make([]status.ChannelStatus, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch.Status())
	}
	return out
}

// scheduleRound schedules the next eviction round one round interval from now
func (c *defaultCoordinator) scheduleRound(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	c.cancelRound = c.scheduler.Schedule(c.roundInterval, func() {
		if ctx.Err() != nil {
			return
		}
		c.queue.EvictNow(ctx)
		c.scheduleRound(ctx)
	})
}

func (c *defaultCoordinator) closeChannels(channels []*pkgsync.Channel) {
	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			slog.Error("Error closing channel", "channel", ch.Name(), "error", err)
		}
	}
}
