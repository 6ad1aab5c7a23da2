package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stacklok/toolhive-registry-bridge/internal/eviction"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
	pkgsync "github.com/stacklok/toolhive-registry-bridge/internal/sync"
	"github.com/stacklok/toolhive-registry-bridge/internal/sync/coordinator"
	"github.com/stacklok/toolhive-registry-bridge/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator drives the channels and eviction rounds
	Coordinator coordinator.Coordinator

	// Channels are the reconciliation channels, in configuration order
	Channels []*pkgsync.Channel

	// Sink is the local registry every channel writes into
	Sink sink.Sink

	// EvictionQueue is nil when eviction is disabled
	EvictionQueue *eviction.Queue

	// Telemetry is set when the app created its own providers
	Telemetry *telemetry.Telemetry

	closeSink   sink.CloseFunc
	releaseOnce sync.Once
}

// release closes the sink connections and flushes telemetry. Safe to call more than once.
func (c *AppComponents) release(ctx context.Context) {
	c.releaseOnce.Do(func() {
		if c.closeSink != nil {
			c.closeSink()
		}
		if c.Telemetry != nil {
			if err := c.Telemetry.Shutdown(ctx); err != nil {
				slog.Warn("Failed to shut down telemetry", "error", err)
			}
		}
	})
}
