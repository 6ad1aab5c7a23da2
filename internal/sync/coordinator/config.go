package coordinator

import (
	"log/slog"
	"time"

	"github.com/stacklok/toolhive-registry-bridge/internal/config"
)

// getRoundInterval extracts the eviction round interval from the eviction configuration
func getRoundInterval(eviction *config.EvictionConfig) time.Duration {
	if eviction != nil && eviction.RoundInterval != "" {
		if interval, err := time.ParseDuration(eviction.RoundInterval); err == nil && interval > 0 {
			return interval
		}
		slog.Warn("Invalid eviction round interval, using default",
			"interval", eviction.RoundInterval,
			"default", "1m")
	}

	// Default to 1 minute if no valid interval
	return time.Minute
}
