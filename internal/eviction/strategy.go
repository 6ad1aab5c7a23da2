package eviction

import (
	"fmt"
	"math"

	"github.com/stacklok/toolhive-registry-bridge/internal/config"
)

// Strategy decides how many queued candidates may be evicted in one round
type Strategy interface {
	// Name identifies the strategy in logs and telemetry
	Name() string

	// Allowed returns how many of queueSize candidates may be evicted from a registry
	// currently holding registrySize instances. The result is within [0, queueSize].
	Allowed(queueSize, registrySize int) int
}

// Unconditional evicts every candidate each round
type Unconditional struct{}

// Name returns "unconditional"
func (Unconditional) Name() string {
	return config.EvictionStrategyUnconditional
}

// Allowed returns queueSize
func (Unconditional) Allowed(queueSize, _ int) int {
	return max(queueSize, 0)
}

// PercentageGuarded never evicts more than Percentage of the registered instances per round
type PercentageGuarded struct {
	// Percentage is a fraction in (0, 1]
	Percentage float64
}

// Name returns "percentageGuarded"
func (PercentageGuarded) Name() string {
	return config.EvictionStrategyPercentageGuarded
}

// Allowed returns min(queueSize, ceil(Percentage × registrySize))
func (p PercentageGuarded) Allowed(queueSize, registrySize int) int {
	if queueSize <= 0 || registrySize <= 0 || p.Percentage <= 0 {
		return 0
	}
	// The epsilon keeps products such as 0.3 × 10 from rounding up to 4
	budget := int(math.Ceil(p.Percentage*float64(registrySize) - 1e-9))
	return min(queueSize, budget)
}

// NewStrategy returns the strategy selected in configuration
func NewStrategy(cfg *config.EvictionConfig) (Strategy, error) {
	if cfg == nil {
		return Unconditional{}, nil
	}

	switch cfg.GetStrategy() {
	case config.EvictionStrategyUnconditional:
		return Unconditional{}, nil
	case config.EvictionStrategyPercentageGuarded:
		if cfg.Percentage <= 0 || cfg.Percentage > 1 {
			return nil, fmt.Errorf("eviction percentage must be in (0, 1], got %v", cfg.Percentage)
		}
		return PercentageGuarded{Percentage: cfg.Percentage}, nil
	default:
		return nil, fmt.Errorf("unsupported eviction strategy %q", cfg.Strategy)
	}
}
