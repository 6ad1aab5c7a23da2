package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newTestTracerProvider creates a tracer provider with in-memory exporter for testing.
func newTestTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, trace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestStartSpan_NilTracer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resultCtx, span := StartSpan(ctx, nil, "test.operation")

	// Should return valid context and no-op span without panicking
	require.NotNil(t, resultCtx)
	require.NotNil(t, span)
	assert.False(t, span.SpanContext().IsValid(), "nil tracer should return no-op span")

	// End should not panic
	assert.NotPanics(t, func() { span.End() })
}

func TestStartSpan_ValidTracer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  map[attribute.Key]string
	}{
		{
			name:  "tick span",
			attrs: []attribute.KeyValue{AttrChannelName.String("legacy-east"), AttrChannelID.String("c-1")},
			want:  map[attribute.Key]string{"bridge.channel": "legacy-east", "bridge.channel_id": "c-1"},
		},
		{
			name:  "eviction span",
			attrs: append(InstanceAttributes("i-42", "unregister"), AttrChannelName.String("legacy-east")),
			want: map[attribute.Key]string{
				"instance.id":    "i-42",
				"operation.kind": "unregister",
				"bridge.channel": "legacy-east",
			},
		},
		{
			name: "no attributes",
			want: map[attribute.Key]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter, tp := newTestTracerProvider(t)
			resultCtx, span := StartSpan(context.Background(), tp.Tracer("test-tracer"), "bridge.test",
				trace.WithAttributes(tt.attrs...))
			require.NotNil(t, resultCtx)
			assert.True(t, span.SpanContext().IsValid())
			assert.Equal(t, span.SpanContext(), trace.SpanContextFromContext(resultCtx))
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "bridge.test", spans[0].Name)

			got := map[attribute.Key]string{}
			for _, attr := range spans[0].Attributes {
				got[attr.Key] = attr.Value.Emit()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInstanceAttributes(t *testing.T) {
	t.Parallel()

	attrs := InstanceAttributes("i-1", "register")
	require.Len(t, attrs, 2)
	assert.Equal(t, AttrInstanceID, attrs[0].Key)
	assert.Equal(t, "i-1", attrs[0].Value.AsString())
	assert.Equal(t, AttrOperationKind, attrs[1].Key)
	assert.Equal(t, "register", attrs[1].Value.AsString())
}

func TestRecordError_NilSafety(t *testing.T) {
	t.Parallel()

	testErr := errors.New("test error")

	// All nil combinations should not panic
	assert.NotPanics(t, func() { RecordError(nil, testErr) }, "nil span should not panic")
	assert.NotPanics(t, func() { RecordError(nil, nil) }, "both nil should not panic")

	// Nil error with valid span should not record error
	exporter, tp := newTestTracerProvider(t)
	tracer := tp.Tracer("test-tracer")
	_, span := tracer.Start(context.Background(), "test")

	RecordError(span, nil)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code, "nil error should not set error status")
	assert.Empty(t, spans[0].Events, "nil error should not record events")
}

func TestRecordError_RecordsErrorCorrectly(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)
	tracer := tp.Tracer("test-tracer")
	_, span := tracer.Start(context.Background(), "test.operation")

	testErr := errors.New("redis sink unreachable")
	RecordError(span, testErr)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	// Verify error status uses generic message
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "operation failed", spans[0].Status.Description)

	// Verify exception event was recorded with actual error
	var hasException bool
	for _, event := range spans[0].Events {
		if event.Name == "exception" {
			hasException = true
			break
		}
	}
	assert.True(t, hasException, "should record exception event")
}
