// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BusinessMetrics provides business metrics for the retail engine.
// It tracks sales, payments, reversals, shift closings and stock health.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	saleTotal           *Counter
	saleAmountTotal     *Counter
	paymentTotal        *Counter
	paymentAmountTotal  *Counter
	reversalTotal       *Counter
	shiftClosedTotal    *Counter
	discrepancyTotal    *Counter
	unknownOutcomeTotal *Counter

	// Histogram of absolute cash mismatches at closing
	shiftMismatch *Histogram

	// Gauge metrics (point-in-time values)
	activeShifts      *Gauge
	pendingOperations *Gauge
	lowStockCount     *Gauge
	negativeStock     *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	stockProvider StockMetricsProvider
}

// StockMetricsProvider provides stock data for periodic metrics collection.
// This interface keeps the telemetry layer independent of the stock domain.
type StockMetricsProvider interface {
	// LowStockCount returns the number of stock keys at or below their reorder point
	LowStockCount(ctx context.Context) (int64, error)

	// NegativeStockCount returns the number of stock keys with a negative balance
	NegativeStockCount(ctx context.Context) (int64, error)
}

// BusinessMetricsConfig holds configuration for business metrics.
type BusinessMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	StockProvider   StockMetricsProvider
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		stockProvider: cfg.StockProvider,
	}

	counters := []struct {
		dst         **Counter
		name        string
		description string
		unit        string
	}{
		{&bm.saleTotal, "retail_sale_total", "Total number of sale documents committed", "{documents}"},
		{&bm.saleAmountTotal, "retail_sale_amount_total", "Total sale amount in minor currency units", "{cents}"},
		{&bm.paymentTotal, "retail_payment_total", "Total number of payments received", "{payments}"},
		{&bm.paymentAmountTotal, "retail_payment_amount_total", "Total payment amount in minor currency units", "{cents}"},
		{&bm.reversalTotal, "retail_reversal_total", "Total number of reversed sale documents", "{documents}"},
		{&bm.shiftClosedTotal, "retail_shift_closed_total", "Total number of closed shifts", "{shifts}"},
		{&bm.discrepancyTotal, "retail_discrepancy_total", "Total number of logged discrepancies", "{records}"},
		{&bm.unknownOutcomeTotal, "retail_unknown_outcome_total", "Protocols whose commit outcome could not be determined", "{operations}"},
	}

	var err error
	for _, c := range counters {
		*c.dst, err = NewCounter(cfg.Meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
	}

	bm.shiftMismatch, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "retail_shift_mismatch_amount",
		Description: "Absolute cash mismatch at shift closing",
		Unit:        "{currency}",
		Boundaries:  []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})
	if err != nil {
		return nil, err
	}

	gauges := []struct {
		dst         **Gauge
		name        string
		description string
		unit        string
	}{
		{&bm.activeShifts, "retail_active_shifts", "Number of shifts currently open", "{shifts}"},
		{&bm.pendingOperations, "retail_pending_operations", "Step log entries left PENDING past the reconcile threshold", "{operations}"},
		{&bm.lowStockCount, "retail_low_stock_count", "Number of stock keys at or below their reorder point", "{items}"},
		{&bm.negativeStock, "retail_negative_stock_count", "Number of stock keys with a negative balance", "{items}"},
	}
	for _, g := range gauges {
		*g.dst, err = NewGauge(cfg.Meter, g.name, g.description, g.unit)
		if err != nil {
			return nil, err
		}
	}

	return bm, nil
}

// =============================================================================
// Sale Metrics
// =============================================================================

// ReversalKind labels how a sale document was reversed.
type ReversalKind string

const (
	ReversalReplace ReversalKind = "replace"
	ReversalReverse ReversalKind = "reverse"
	ReversalReturn  ReversalKind = "return"
)

// toCents converts an amount to minor currency units.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// RecordSale records a committed sale document and its total.
func (bm *BusinessMetrics) RecordSale(ctx context.Context, status string, total decimal.Decimal) {
	bm.saleTotal.Inc(ctx, AttrSaleStatus.String(status))
	bm.saleAmountTotal.Add(ctx, toCents(total), AttrSaleStatus.String(status))
}

// RecordPayment records one payment line by method.
func (bm *BusinessMetrics) RecordPayment(ctx context.Context, method string, amount decimal.Decimal) {
	bm.paymentTotal.Inc(ctx, AttrPaymentMethod.String(method))
	bm.paymentAmountTotal.Add(ctx, toCents(amount), AttrPaymentMethod.String(method))
}

// RecordReversal records a reversed sale document.
func (bm *BusinessMetrics) RecordReversal(ctx context.Context, kind ReversalKind) {
	bm.reversalTotal.Inc(ctx, AttrReversalKind.String(string(kind)))
}

// RecordUnknownOutcome records a protocol that ended with an unknown commit outcome.
func (bm *BusinessMetrics) RecordUnknownOutcome(ctx context.Context, operation string) {
	bm.unknownOutcomeTotal.Inc(ctx, AttrOperation.String(operation))
}

// =============================================================================
// Shift Metrics
// =============================================================================

// RecordShiftClosed records a shift closing and the size of its cash mismatch.
func (bm *BusinessMetrics) RecordShiftClosed(ctx context.Context, forced bool, mismatch decimal.Decimal) {
	forcedAttr := AttrForced.String(strconv.FormatBool(forced))
	bm.shiftClosedTotal.Inc(ctx, forcedAttr)
	bm.shiftMismatch.Record(ctx, mismatch.Abs().InexactFloat64(), forcedAttr)
}

// RecordDiscrepancy records a logged discrepancy by kind.
func (bm *BusinessMetrics) RecordDiscrepancy(ctx context.Context, kind string) {
	bm.discrepancyTotal.Inc(ctx, AttrDiscrepancyKind.String(kind))
}

// SetActiveShifts records the number of open shifts.
func (bm *BusinessMetrics) SetActiveShifts(count int64) {
	bm.activeShifts.Record(context.Background(), count)
}

// SetPendingOperations records the number of stale PENDING step log entries.
func (bm *BusinessMetrics) SetPendingOperations(count int64) {
	bm.pendingOperations.Record(context.Background(), count)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of stock gauges.
// It collects every interval (default: 5 minutes) and is non-blocking;
// use Stop() to stop collection.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go bm.runPeriodicCollection(ctx, interval)
	})
}

func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bm.collectStockMetrics(ctx)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic business metrics collection")
			return
		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping periodic business metrics collection")
			return
		case <-ticker.C:
			bm.collectStockMetrics(ctx)
		}
	}
}

func (bm *BusinessMetrics) collectStockMetrics(ctx context.Context) {
	if bm.stockProvider == nil {
		bm.logger.Debug("No stock provider configured, skipping stock metrics collection")
		return
	}

	if count, err := bm.stockProvider.LowStockCount(ctx); err != nil {
		bm.logger.Warn("Failed to get low stock count", zap.Error(err))
	} else {
		bm.lowStockCount.Record(ctx, count)
	}

	if count, err := bm.stockProvider.NegativeStockCount(ctx); err != nil {
		bm.logger.Warn("Failed to get negative stock count", zap.Error(err))
	} else {
		bm.negativeStock.Record(ctx, count)
	}
}

// Stop stops the periodic collection.
func (bm *BusinessMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBusinessMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
