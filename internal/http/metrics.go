package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/cadasto/openehr-assistant-mcp/internal/http"

// HTTPMetrics records request counts, latency and response sizes of the
// HTTP host. MCP traffic is labeled by endpoint and whether the request
// carried a session.
type HTTPMetrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	responseSize   metric.Int64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates metrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error

	if m.requestsTotal, err = m.meter.Int64Counter(
		"openehr.mcp.http.requests_total",
		metric.WithDescription("HTTP requests by method, endpoint, status and session presence"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	if m.requestDur, err = m.meter.Float64Histogram(
		"openehr.mcp.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds. Streaming MCP responses count until the stream closes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	); err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	if m.responseSize, err = m.meter.Int64Histogram(
		"openehr.mcp.http.response_size_bytes",
		metric.WithDescription("HTTP response body size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(256, 1024, 4096, 16384, 65536, 262144, 1048576),
	); err != nil {
		m.logger.Warn("failed to create response size histogram", zap.Error(err))
	}

	if m.activeRequests, err = m.meter.Int64UpDownCounter(
		"openehr.mcp.http.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests, including open MCP streams"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()
			hasSession := req.Header.Get(HeaderMCPSessionID) != ""

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
				defer m.activeRequests.Add(ctx, -1)
			}

			err := next(c)
			if err != nil {
				// Let echo write the error so the recorded status is final.
				c.Error(err)
			}

			attrs := metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
				attribute.Bool("session", hasSession),
			)
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.responseSize != nil {
				m.responseSize.Record(ctx, c.Response().Size, attrs)
			}
			return nil
		}
	}
}

// normalizePath maps a route path onto a metric label. Routes are fixed, so
// only unmatched requests need folding.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
