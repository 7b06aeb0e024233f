package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

// Context keys. Their string values double as log field names.
const (
	LoggerKey      contextKey = "logger"
	RequestIDKey   contextKey = "request_id"
	OperatorIDKey  contextKey = "operator_id"
	OperationIDKey contextKey = "operation_id" // step log entry of the running protocol
)

var scopedKeys = [...]contextKey{RequestIDKey, OperatorIDKey, OperationIDKey}

func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext returns the logger stored by WithContext, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

func WithRequestID(ctx context.Context, logger *zap.Logger, id string) (context.Context, *zap.Logger) {
	return scoped(ctx, logger, RequestIDKey, id)
}

func WithOperatorID(ctx context.Context, logger *zap.Logger, id string) (context.Context, *zap.Logger) {
	return scoped(ctx, logger, OperatorIDKey, id)
}

func WithOperationID(ctx context.Context, logger *zap.Logger, id string) (context.Context, *zap.Logger) {
	return scoped(ctx, logger, OperationIDKey, id)
}

// scoped stores value under key and returns a logger carrying it as a
// field; the logger is also stored so FromContext sees it.
func scoped(ctx context.Context, logger *zap.Logger, key contextKey, value string) (context.Context, *zap.Logger) {
	l := logger.With(zap.String(string(key), value))
	return WithContext(context.WithValue(ctx, key, value), l), l
}

func GetRequestID(ctx context.Context) string   { return value(ctx, RequestIDKey) }
func GetOperatorID(ctx context.Context) string  { return value(ctx, OperatorIDKey) }
func GetOperationID(ctx context.Context) string { return value(ctx, OperationIDKey) }

func value(ctx context.Context, key contextKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// GetTraceID is empty when ctx carries no valid span.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// Ctx returns base enriched with the trace and the scoped identifiers of
// ctx. Use it for loggers built before the request that log inside one.
func Ctx(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()))
	}
	for _, key := range scopedKeys {
		if v := value(ctx, key); v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	return base.With(fields...)
}
