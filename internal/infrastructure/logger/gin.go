package logger

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// GinRequestIDKey is where the request id middleware leaves the id.
	GinRequestIDKey = "request_id"
	// OperatorHeader carries the operator running a till request.
	OperatorHeader = "X-Operator-ID"
)

// AccessLogConfig tunes GinMiddleware.
type AccessLogConfig struct {
	// SkipPaths are served without an access log line, e.g. probes.
	SkipPaths []string
}

// GinMiddleware stores a request-scoped logger in the request context and
// writes one access log line per request, leveled by status.
func GinMiddleware(base *zap.Logger, cfgs ...AccessLogConfig) gin.HandlerFunc {
	var cfg AccessLogConfig
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		ctx, l := WithRequestID(req.Context(), base, c.GetString(GinRequestIDKey))
		if op := req.Header.Get(OperatorHeader); op != "" {
			ctx, _ = WithOperatorID(ctx, l, op)
		}
		c.Request = req.WithContext(ctx)

		c.Next()

		if slices.Contains(cfg.SkipPaths, req.URL.Path) {
			return
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if req.URL.RawQuery != "" {
			fields = append(fields, zap.String("query", req.URL.RawQuery))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		Ctx(c.Request.Context(), base).Log(statusLevel(status), "HTTP Request", fields...)
	}
}

func statusLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

// Recovery turns a handler panic into a 500 and logs it with its stack.
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			base.Error("Panic recovered",
				zap.String("request_id", c.GetString(GinRequestIDKey)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stacktrace"))
			c.AbortWithStatus(http.StatusInternalServerError)
		}()
		c.Next()
	}
}
