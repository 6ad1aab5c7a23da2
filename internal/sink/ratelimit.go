package sink

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// rateLimitedSink throttles writes with a token bucket
type rateLimitedSink struct {
	next    Sink
	limiter *rate.Limiter
}

// rateLimitedReadWriter keeps the read side of the wrapped sink reachable. Reads are not throttled.
type rateLimitedReadWriter struct {
	*rateLimitedSink
	Reader
}

// WithRateLimit wraps s so that each operation waits for a token. Burst defaults to 1.
func WithRateLimit(s Sink, perSecond float64, burst int) Sink {
	if burst < 1 {
		burst = 1
	}
	limited := &rateLimitedSink{
		next:    s,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
	if r, ok := AsReader(s); ok {
		return &rateLimitedReadWriter{rateLimitedSink: limited, Reader: r}
	}
	return limited
}

func (s *rateLimitedSink) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (s *rateLimitedSink) Register(ctx context.Context, rec registry.InstanceRecord) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.next.Register(ctx, rec)
}

func (s *rateLimitedSink) Update(ctx context.Context, rec registry.InstanceRecord, changes registry.ChangeSet) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.next.Update(ctx, rec, changes)
}

func (s *rateLimitedSink) Unregister(ctx context.Context, rec registry.InstanceRecord) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.next.Unregister(ctx, rec)
}
