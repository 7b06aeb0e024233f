package middleware

import (
	"net/http"

	"github.com/erp/retailcore/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the server span middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// TracingWithConfig starts a server span per request via otelgin. The span
// is named after the matched route, not the raw path.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// TracingAttributeInjector copies the operator onto the server span. It
// belongs after the operator middleware.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			telemetry.SetAttributes(span,
				"request_id", requestID(c),
				string(telemetry.AttrOperatorID), GetOperatorID(c),
			)
		}
		c.Next()
	}
}

// SpanErrorMarker marks the server span failed for 4xx and 5xx responses
// and records the domain error code when the handler set one.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		status := c.Writer.Status()
		if !span.IsRecording() || status < http.StatusBadRequest {
			return
		}
		span.SetStatus(codes.Error, http.StatusText(status))
		telemetry.SetAttribute(span, string(telemetry.AttrHTTPStatusCode), status)
		if len(c.Errors) > 0 {
			telemetry.SetAttribute(span, "error.message", c.Errors.Last().Error())
		}
	}
}
