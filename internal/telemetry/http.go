package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// HTTPInstrumentationName names the HTTP tracer and meter
	HTTPInstrumentationName = "github.com/stacklok/toolhive-registry-bridge/http"

	// unknownRoute replaces unmatched paths to keep attribute cardinality bounded
	unknownRoute = "unknown_route"
)

// httpInstruments holds the OpenTelemetry instruments for the status API
type httpInstruments struct {
	tracer          trace.Tracer
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
}

// HTTPMiddleware creates middleware that traces each API request and records its duration
// and count, keyed by the chi route pattern. Nil providers are skipped.
func HTTPMiddleware(tp trace.TracerProvider, mp metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	inst := &httpInstruments{}
	if tp != nil {
		inst.tracer = tp.Tracer(HTTPInstrumentationName)
	}

	if mp != nil {
		meter := mp.Meter(HTTPInstrumentationName)
		var err error
		inst.requestDuration, err = meter.Float64Histogram(
			"thv_bridge_http_request_duration_seconds",
			metric.WithDescription("Duration of HTTP requests in seconds"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
		}
		inst.requestsTotal, err = meter.Int64Counter(
			"thv_bridge_http_requests_total",
			metric.WithDescription("Total number of HTTP requests"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request counter: %w", err)
		}
	}

	if inst.tracer == nil && inst.requestsTotal == nil {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	return inst.wrap, nil
}

func (h *httpInstruments) wrap(next http.Handler) http.Handler {
	propagator := otel.GetTextMapPropagator()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var span trace.Span
		if h.tracer != nil {
			ctx = propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
			ctx, span = h.tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()
		}

		next.ServeHTTP(ww, r.WithContext(ctx))

		// The pattern is only known once chi has routed the request
		route := routePattern(r)
		statusCode := ww.Status()

		if span != nil {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCode(statusCode),
			)
			if statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(statusCode))
			}
		}

		if h.requestsTotal != nil {
			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status_code", strconv.Itoa(statusCode)),
			)
			h.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			h.requestsTotal.Add(ctx, 1, attrs)
		}
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unknownRoute
}
