package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPMetrics records request count, latency and in-flight requests per
// route pattern. A nil meter, or one that rejects the instruments, disables it.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	passthrough := func(c *gin.Context) { c.Next() }
	if meter == nil {
		return passthrough
	}

	total, err := meter.Int64Counter("http_server_request_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return passthrough
	}
	duration, err := meter.Float64Histogram("http_server_request_duration_seconds",
		metric.WithDescription("HTTP request latency distribution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpDurationBuckets...))
	if err != nil {
		return passthrough
	}
	active, err := meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return passthrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		active.Add(ctx, 1)
		defer active.Add(ctx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := attribute.String("http.method", c.Request.Method)
		routeAttr := attribute.String("http.route", route)
		duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(method, routeAttr))

		attrs := []attribute.KeyValue{method, routeAttr, attribute.Int("http.status_code", c.Writer.Status())}
		if tid, ok := GetTenantID(c); ok {
			attrs = append(attrs, attribute.String(telemetry.AttrTenantID, tid.String()))
		}
		total.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
