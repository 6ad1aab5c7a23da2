package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		prefixed string
		legacy   string
		want     slog.Level
	}{
		{name: "unset", want: slog.LevelInfo},
		{name: "debug", prefixed: "debug", want: slog.LevelDebug},
		{name: "upper case", prefixed: "WARN", want: slog.LevelWarn},
		{name: "warning alias", prefixed: "warning", want: slog.LevelWarn},
		{name: "error", prefixed: "error", want: slog.LevelError},
		{name: "invalid", prefixed: "loud", want: slog.LevelInfo},
		{name: "legacy fallback", legacy: "debug", want: slog.LevelDebug},
		{name: "prefixed wins", prefixed: "error", legacy: "debug", want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("THV_BRIDGE_LOG_LEVEL", tt.prefixed)
			t.Setenv("LOG_LEVEL", tt.legacy)
			assert.Equal(t, tt.want, getLogLevel())
		})
	}
}

func TestTraceHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(&traceHandler{Handler: slog.NewJSONHandler(&buf, nil)}).With("component", "test")

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span")
	span.End()

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, span.SpanContext().TraceID().String(), record["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), record["span_id"])
	assert.Equal(t, "test", record["component"])

	buf.Reset()
	logger.InfoContext(context.Background(), "outside span")
	assert.Contains(t, buf.String(), "outside span")
	assert.NotContains(t, buf.String(), "trace_id")
}
