package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls database instrumentation.
type DBConfig struct {
	Tracing            bool          // register otelgorm spans
	Metrics            bool          // record query and pool metrics
	LogFullSQL         bool          // keep bound variables in span statements
	DBSystem           string        // db.system attribute, e.g. "postgres"
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

// DBInstrumentation is a GORM plugin that times every statement, marks slow
// or failed ones on the active span and records query metrics.
type DBInstrumentation struct {
	config DBConfig
	logger *zap.Logger

	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	poolConns      *Gauge
	poolConnsMax   *Gauge

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// InstrumentDB registers tracing and metrics on db according to cfg.
// Call Stop on the result to end pool stats collection.
func InstrumentDB(db *gorm.DB, meters *MeterProvider, cfg DBConfig, logger *zap.Logger) (*DBInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}
	p := &DBInstrumentation{config: cfg, logger: logger, stop: make(chan struct{})}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics {
		if err := p.createInstruments(meters); err != nil {
			return nil, err
		}
	}
	if !cfg.Tracing && !cfg.Metrics {
		return p, nil
	}
	if err := db.Use(p); err != nil {
		return nil, err
	}
	if cfg.Metrics {
		if err := p.startPoolStats(db); err != nil {
			return nil, err
		}
	}

	logger.Info("Database instrumentation registered",
		zap.Bool("tracing", cfg.Tracing),
		zap.Bool("metrics", cfg.Metrics),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return p, nil
}

func (p *DBInstrumentation) createInstruments(meters *MeterProvider) error {
	meter := meters.Meter("db.client")
	var err error
	if p.queryTotal, err = NewCounter(meter, "db_query_total", "Database queries by operation", "{query}"); err != nil {
		return err
	}
	if p.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return err
	}
	if p.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the configured threshold", "{query}"); err != nil {
		return err
	}
	if p.poolConns, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return err
	}
	p.poolConnsMax, err = NewGauge(meter, "db_pool_connections_max", "Maximum open connections", "{connection}")
	return err
}

// Name implements gorm.Plugin.
func (p *DBInstrumentation) Name() string {
	return "retailcore:db_instrumentation"
}

type statementStartKey struct{}

// Initialize implements gorm.Plugin.
func (p *DBInstrumentation) Initialize(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		tx.Statement.Context = context.WithValue(ctx, statementStartKey{}, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) { p.observe(tx, operation) }
	}

	cb := db.Callback()
	hooks := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
		op     string
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "INSERT"},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "SELECT"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "UPDATE"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "DELETE"},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register, ""},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, ""},
	}
	for _, h := range hooks {
		if err := h.before("retailcore:before_"+h.name, before); err != nil {
			return err
		}
		if err := h.after("retailcore:after_"+h.name, after(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *DBInstrumentation) observe(tx *gorm.DB, operation string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	if operation == "" {
		operation = sqlOperation(tx.Statement.SQL.String())
	}
	var elapsed time.Duration
	if start, ok := ctx.Value(statementStartKey{}).(time.Time); ok {
		elapsed = time.Since(start)
	}
	slow := elapsed > p.config.SlowQueryThreshold
	table := tx.Statement.Table

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
		if table != "" {
			span.SetAttributes(attribute.String("db.sql.table", table))
		}
		if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			span.RecordError(tx.Error)
			span.SetStatus(codes.Error, tx.Error.Error())
		}
		if slow {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}

	if p.queryTotal == nil {
		return
	}
	p.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	p.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(operation))
	if slow {
		if table == "" {
			table = "unknown"
		}
		p.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

func sqlOperation(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

func (p *DBInstrumentation) startPoolStats(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	record := func() {
		ctx := context.Background()
		stats := sqlDB.Stats()
		p.poolConnsMax.Record(ctx, int64(stats.MaxOpenConnections))
		p.poolConns.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
		p.poolConns.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
		p.poolConns.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
	}

	// sample once up front; the ticker only refreshes
	record()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.config.PoolStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				record()
			case <-p.stop:
				return
			}
		}
	}()
	return nil
}

// Stop ends pool stats collection. Safe to call more than once.
func (p *DBInstrumentation) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()
	})
}
