package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// collectorEndpoint starts a fake OTLP collector accepting every export
func collectorEndpoint(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		config           *Config
		expectNoOpTracer bool
		expectNoOpMeter  bool
		expectHandler    bool
		errorContains    string
	}{
		{
			name:             "no-op telemetry when no config provided",
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name:             "no-op telemetry when disabled",
			config:           &Config{Enabled: false, Metrics: &MetricsConfig{Enabled: true}},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "no-op providers when tracing and metrics disabled",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: false},
				Metrics: &MetricsConfig{Enabled: false},
			},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "prometheus exporter exposes a handler",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, Exporter: MetricsExporterPrometheus},
			},
			expectNoOpTracer: true,
			expectHandler:    true,
		},
		{
			name: "error for invalid sampling",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
			},
			errorContains: "invalid telemetry configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			var opts []Option
			if tt.config != nil {
				opts = append(opts, WithTelemetryConfig(tt.config))
			}
			tel, err := New(ctx, opts...)
			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { require.NoError(t, tel.Shutdown(ctx)) })

			_, noopTracer := tel.TracerProvider().(tracenoop.TracerProvider)
			assert.Equal(t, tt.expectNoOpTracer, noopTracer)
			_, noopMeter := tel.MeterProvider().(noop.MeterProvider)
			assert.Equal(t, tt.expectNoOpMeter, noopMeter)
			assert.Equal(t, tt.expectHandler, tel.MetricsHandler() != nil)
			assert.NotNil(t, tel.Tracer("test"))
			assert.NotNil(t, tel.Meter("test"))
		})
	}
}

func TestTelemetry_PrometheusHandlerServesBridgeMetrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tel, err := New(ctx, WithTelemetryConfig(&Config{
		Enabled: true,
		Metrics: &MetricsConfig{Enabled: true, Exporter: MetricsExporterPrometheus},
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	metrics, err := NewBridgeMetrics(tel.MeterProvider())
	require.NoError(t, err)
	metrics.RecordTick(ctx, "east", 150*time.Millisecond, true, true, 12, 0)

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "thv_bridge_ticks_total")
	assert.Contains(t, string(body), `channel="east"`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTelemetry_Shutdown(t *testing.T) {
	t.Parallel()

	t.Run("no-op telemetry shutdown is idempotent", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		tel, err := newNoOpTelemetry(ctx)
		require.NoError(t, err)

		require.NoError(t, tel.Shutdown(ctx))
		require.NoError(t, tel.Shutdown(ctx))
	})

	t.Run("SDK providers shut down", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		tel, err := New(ctx, WithTelemetryConfig(&Config{
			Enabled:  true,
			Endpoint: collectorEndpoint(t),
			Insecure: true,
			Tracing:  &TracingConfig{Enabled: true, Sampling: 1.0},
			Metrics:  &MetricsConfig{Enabled: true},
		}))
		require.NoError(t, err)

		_, okTracer := tel.TracerProvider().(*sdktrace.TracerProvider)
		assert.True(t, okTracer, "expected SDK tracer provider")
		_, okMeter := tel.MeterProvider().(*sdkmetric.MeterProvider)
		assert.True(t, okMeter, "expected SDK meter provider")
		assert.Nil(t, tel.MetricsHandler())

		require.NoError(t, tel.Shutdown(ctx))
	})
}
