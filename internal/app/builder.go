package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/toolhive-registry-bridge/internal/api"
	v1 "github.com/stacklok/toolhive-registry-bridge/internal/api/v1"
	"github.com/stacklok/toolhive-registry-bridge/internal/clock"
	"github.com/stacklok/toolhive-registry-bridge/internal/config"
	"github.com/stacklok/toolhive-registry-bridge/internal/eviction"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
	"github.com/stacklok/toolhive-registry-bridge/internal/sources"
	"github.com/stacklok/toolhive-registry-bridge/internal/status"
	pkgsync "github.com/stacklok/toolhive-registry-bridge/internal/sync"
	"github.com/stacklok/toolhive-registry-bridge/internal/sync/coordinator"
	"github.com/stacklok/toolhive-registry-bridge/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	channelTracerName = "github.com/stacklok/toolhive-registry-bridge/sync"
)

// BridgeAppOptions is a function that configures the bridge app builder
type BridgeAppOptions func(*bridgeAppConfig) error

// bridgeAppConfig collects the builder inputs.
// Component overrides exist for testing; production wiring derives everything from config.
type bridgeAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	sourceFactory sources.SourceFactory
	sink          sink.Sink
	scheduler     clock.Scheduler
	telemetry     *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...BridgeAppOptions) (*bridgeAppConfig, error) {
	cfg := &bridgeAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewBridgeApp wires the bridge from its configuration
func NewBridgeApp(
	ctx context.Context,
	opts ...BridgeAppOptions,
) (*BridgeApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	components := &AppComponents{}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			components.release(ctx)
		}
	}()

	tel := cfg.telemetry
	if tel == nil {
		tel, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		components.Telemetry = tel
	}

	if cfg.sink == nil {
		cfg.sink, components.closeSink, err = sink.NewFromConfig(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create sink: %w", err)
		}
	}
	components.Sink = cfg.sink

	if cfg.scheduler == nil {
		cfg.scheduler = clock.NewScheduler(nil)
	}

	metrics, err := telemetry.NewBridgeMetrics(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge metrics: %w", err)
	}

	components.EvictionQueue, err = buildEvictionQueue(cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build eviction queue: %w", err)
	}

	components.Channels, err = buildChannels(cfg, tel, metrics, components.EvictionQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to build channels: %w", err)
	}

	var coordOpts []coordinator.Option
	if components.EvictionQueue != nil {
		coordOpts = append(coordOpts, coordinator.WithEvictionQueue(components.EvictionQueue))
	}
	components.Coordinator = coordinator.New(components.Channels, cfg.scheduler, cfg.config, coordOpts...)

	httpServer, err := buildHTTPServer(cfg, components, tel)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &BridgeApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) BridgeAppOptions {
	return func(cfg *bridgeAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) BridgeAppOptions {
	return func(cfg *bridgeAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) BridgeAppOptions {
	return func(cfg *bridgeAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithSourceFactory allows injecting a custom source factory (for testing)
func WithSourceFactory(f sources.SourceFactory) BridgeAppOptions {
	return func(cfg *bridgeAppConfig) error {
		cfg.sourceFactory = f
		return nil
	}
}

// WithSink allows injecting an already connected sink (for testing).
// The caller keeps ownership of its connections.
func WithSink(s sink.Sink) BridgeAppOptions {
	return func(cfg *bridgeAppConfig) error {
		cfg.sink = s
		return nil
	}
}

// WithScheduler sets the scheduler driving ticks and eviction rounds
func WithScheduler(s clock.Scheduler) BridgeAppOptions {
	return func(cfg *bridgeAppConfig) error {
		cfg.scheduler = s
		return nil
	}
}

// WithTelemetry uses already initialized providers. The caller is responsible for shutting them down.
func WithTelemetry(t *telemetry.Telemetry) BridgeAppOptions {
	return func(cfg *bridgeAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// buildEvictionQueue returns nil when eviction is disabled
func buildEvictionQueue(b *bridgeAppConfig, metrics *telemetry.BridgeMetrics) (*eviction.Queue, error) {
	if !b.config.Eviction.IsEnabled() {
		slog.Info("Eviction disabled, removals are applied immediately")
		return nil, nil
	}

	strategy, err := eviction.NewStrategy(b.config.Eviction)
	if err != nil {
		return nil, err
	}

	size := func(context.Context) (int, error) {
		return 0, eviction.ErrNoSize
	}
	if reader, ok := sink.AsReader(b.sink); ok {
		size = reader.Count
	} else {
		slog.Warn("Sink cannot report its size, guarded eviction rounds will not evict",
			"strategy", strategy.Name())
	}

	q := eviction.NewQueue(strategy, size,
		eviction.WithRoundObserver(eviction.NewMetricsObserver(metrics, strategy)))

	slog.Info("Eviction queue initialized",
		"strategy", strategy.Name(),
		"round_interval", b.config.Eviction.GetRoundInterval())
	return q, nil
}

// buildChannels creates one Idle channel per configured channel
func buildChannels(
	b *bridgeAppConfig,
	tel *telemetry.Telemetry,
	metrics *telemetry.BridgeMetrics,
	queue *eviction.Queue,
) ([]*pkgsync.Channel, error) {
	if b.sourceFactory == nil {
		b.sourceFactory = sources.NewSourceFactory()
	}

	common := []pkgsync.ChannelOption{
		pkgsync.WithEvents(pkgsync.NewMetricsEvents(metrics)),
		pkgsync.WithTracer(tel.Tracer(channelTracerName)),
	}
	if queue != nil {
		common = append(common, pkgsync.WithEvictionQueue(queue))
	}
	if path := b.config.GetStatusPath(); path != "" {
		common = append(common, pkgsync.WithStatusPersistence(status.NewFileStatusPersistence(path)))
		slog.Info("Channel status persistence enabled", "path", path)
	}

	channels := make([]*pkgsync.Channel, 0, len(b.config.Channels))
	for i := range b.config.Channels {
		chCfg := &b.config.Channels[i]

		src, err := b.sourceFactory.CreateSource(chCfg)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", chCfg.Name, err)
		}

		opts := append([]pkgsync.ChannelOption{pkgsync.WithPullTimeout(chCfg.GetPullTimeout())}, common...)
		ch, err := pkgsync.NewChannel(chCfg.Name, src, b.sink, b.scheduler, chCfg.GetRefreshInterval(), opts...)
		if err != nil {
			return nil, err
		}

		slog.Info("Channel configured",
			"channel", chCfg.Name,
			"channel_id", ch.ID(),
			"source", src.Name(),
			"refresh_interval", chCfg.GetRefreshInterval())
		channels = append(channels, ch)
	}
	return channels, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	b *bridgeAppConfig,
	components *AppComponents,
	tel *telemetry.Telemetry,
) (*http.Server, error) {
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Telemetry goes first so rejected and timed out requests are still observed
	telemetryMw, err := telemetry.HTTPMiddleware(tel.TracerProvider(), tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry middleware: %w", err)
	}
	middlewares := append([]func(http.Handler) http.Handler{telemetryMw}, b.middlewares...)

	reader, _ := sink.AsReader(components.Sink)
	var candidates v1.CandidateLister
	if components.EvictionQueue != nil {
		candidates = components.EvictionQueue
	}
	routes := v1.NewRoutes(components.Coordinator, reader, candidates)

	serverOpts := []api.ServerOption{api.WithMiddlewares(middlewares...)}
	if h := tel.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
		slog.Info("Prometheus metrics endpoint enabled", "path", "/metrics")
	}

	server := &http.Server{
		Addr:         b.address,
		Handler:      api.NewServer(routes, serverOpts...),
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
