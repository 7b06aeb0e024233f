package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig tunes the SQL logger.
type GormConfig struct {
	Level gormlogger.LogLevel
	// SlowThreshold of zero disables slow query warnings.
	SlowThreshold time.Duration
	// LogNotFound logs gorm.ErrRecordNotFound as an error. Repositories map
	// it to domain not-found errors, so it is off by default.
	LogNotFound bool
}

func DefaultGormConfig(level string) GormConfig {
	return GormConfig{Level: MapGormLogLevel(level), SlowThreshold: 200 * time.Millisecond}
}

// GormLogger routes gorm's logging through zap. Statement logs carry the
// request, operation and trace identifiers found on the query context.
type GormLogger struct {
	log *zap.Logger
	cfg GormConfig
}

func NewGormLogger(log *zap.Logger, cfg GormConfig) *GormLogger {
	return &GormLogger{log: log.Named("gorm"), cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.cfg.Level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, args)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, args)
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, args)
}

func (l *GormLogger) printf(ctx context.Context, at gormlogger.LogLevel, lvl zapcore.Level, msg string, args []any) {
	if l.cfg.Level < at {
		return
	}
	l.log.With(queryFields(ctx)...).Sugar().Logf(lvl, msg, args...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		lvl zapcore.Level
		msg string
	)
	switch {
	case err != nil:
		if l.cfg.Level < gormlogger.Error || (!l.cfg.LogNotFound && errors.Is(err, gormlogger.ErrRecordNotFound)) {
			return
		}
		lvl, msg = zapcore.ErrorLevel, "SQL Error"
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold:
		if l.cfg.Level < gormlogger.Warn {
			return
		}
		lvl, msg = zapcore.WarnLevel, "Slow SQL"
	default:
		if l.cfg.Level < gormlogger.Info {
			return
		}
		lvl, msg = zapcore.DebugLevel, "SQL Query"
	}

	sql, rows := fc()
	fields := append(queryFields(ctx),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if lvl == zapcore.WarnLevel {
		fields = append(fields, zap.Duration("threshold", l.cfg.SlowThreshold))
	}
	l.log.Log(lvl, msg, fields...)
}

func queryFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	for _, kv := range [...]struct{ key, val string }{
		{"request_id", GetRequestID(ctx)},
		{"operation_id", GetOperationID(ctx)},
		{"trace_id", GetTraceID(ctx)},
	} {
		if kv.val != "" {
			fields = append(fields, zap.String(kv.key, kv.val))
		}
	}
	return fields
}

// MapGormLogLevel translates the application log level. Unknown levels
// fall back to warn.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	}
	return gormlogger.Warn
}
