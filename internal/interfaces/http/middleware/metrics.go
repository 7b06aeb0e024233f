package middleware

import (
	"time"

	"github.com/erp/retailcore/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsConfig configures request metrics.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	ServiceName   string
	Enabled       bool
}

var sizeBuckets = []float64{128, 512, 1024, 4096, 16384, 65536, 262144, 1048576}

type httpMetrics struct {
	requests     *telemetry.Counter
	duration     *telemetry.Histogram
	requestSize  *telemetry.Histogram
	responseSize *telemetry.Histogram
	inFlight     metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	m := &httpMetrics{}
	var err error
	if m.requests, err = telemetry.NewCounter(meter, "http_server_request_total", "HTTP requests by route and status", "{request}"); err != nil {
		return nil, err
	}
	if m.duration, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.requestSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "HTTP request body size",
		Unit:        "By",
		Boundaries:  sizeBuckets,
	}); err != nil {
		return nil, err
	}
	if m.responseSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size",
		Unit:        "By",
		Boundaries:  sizeBuckets,
	}); err != nil {
		return nil, err
	}
	m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Requests being served"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPMetrics records request count, latency, body sizes and in-flight
// requests. Routes are labelled by pattern to bound cardinality.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || !cfg.MeterProvider.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	m, err := newHTTPMetrics(cfg.MeterProvider.Meter("http.server"))
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(route),
		}
		m.duration.RecordDuration(ctx, time.Since(start), attrs...)
		if n := c.Request.ContentLength; n > 0 {
			m.requestSize.Record(ctx, float64(n), attrs...)
		}
		if n := c.Writer.Size(); n > 0 {
			m.responseSize.Record(ctx, float64(n), attrs...)
		}

		attrs = append(attrs, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))
		if operator := GetOperatorID(c); operator != "" {
			attrs = append(attrs, telemetry.AttrOperatorID.String(operator))
		}
		m.requests.Inc(ctx, attrs...)
	}
}
