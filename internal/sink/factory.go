package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/stacklok/toolhive-registry-bridge/internal/config"
	"github.com/stacklok/toolhive-registry-bridge/internal/db"
)

const (
	connectMaxTries   = 5
	connectMaxElapsed = 30 * time.Second
)

// CloseFunc releases the connections held by a sink
type CloseFunc func()

// NewFromConfig connects to the configured sink and wraps it with the configured rate limit.
// Connections are verified with a retried ping before the sink is returned.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Sink, CloseFunc, error) {
	var (
		s       Sink
		closeFn CloseFunc
		err     error
	)

	switch cfg.GetSinkType() {
	case config.SinkTypeMemory:
		s, closeFn = NewMemorySink(), func() {}
	case config.SinkTypeEtcd:
		s, closeFn, err = openEtcd(ctx, cfg.Sink.Etcd)
	case config.SinkTypeRedis:
		s, closeFn, err = openRedis(ctx, cfg.Sink.Redis)
	case config.SinkTypePostgres:
		s, closeFn, err = openPostgres(ctx, cfg.Database)
	default:
		return nil, nil, fmt.Errorf("unsupported sink type %q", cfg.GetSinkType())
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.Sink != nil && cfg.Sink.RateLimit != nil {
		s = WithRateLimit(s, cfg.Sink.RateLimit.PerSecond, cfg.Sink.RateLimit.Burst)
	}

	slog.Info("Sink initialized", "type", cfg.GetSinkType())
	return s, closeFn, nil
}

// retryConnect retries op with exponential backoff until it succeeds or the retry budget runs out
func retryConnect(ctx context.Context, target string, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(connectMaxTries),
		backoff.WithMaxElapsedTime(connectMaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Sink connection failed, retrying", "target", target, "error", err, "retry_in", next)
		}),
	)
	return err
}

func openEtcd(ctx context.Context, cfg *config.EtcdConfig) (Sink, CloseFunc, error) {
	password, err := cfg.GetPassword()
	if err != nil {
		return nil, nil, err
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.GetDialTimeout(),
		Username:    cfg.Username,
		Password:    password,
		Context:     ctx,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	s := NewEtcdSink(client, cfg.Prefix)
	err = retryConnect(ctx, "etcd", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.GetDialTimeout())
		defer cancel()
		_, err := s.Count(pingCtx)
		return err
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return s, func() {
		if err := client.Close(); err != nil {
			slog.Error("Error closing etcd client", "error", err)
		}
	}, nil
}

func openRedis(ctx context.Context, cfg *config.RedisConfig) (Sink, CloseFunc, error) {
	password, err := cfg.GetPassword()
	if err != nil {
		return nil, nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: password,
		DB:       cfg.DB,
	})

	if err := retryConnect(ctx, "redis", func() error { return client.Ping(ctx).Err() }); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisSink(client, cfg.Prefix), func() {
		if err := client.Close(); err != nil {
			slog.Error("Error closing redis client", "error", err)
		}
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.DatabaseConfig) (Sink, CloseFunc, error) {
	// Configuration errors are not worth retrying
	if _, err := db.PoolConfig(cfg); err != nil {
		return nil, nil, err
	}

	var s *PostgresSink
	var closeFn CloseFunc
	err := retryConnect(ctx, "postgres", func() error {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		s = NewPostgresSink(pool)
		closeFn = pool.Close
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return s, closeFn, nil
}
