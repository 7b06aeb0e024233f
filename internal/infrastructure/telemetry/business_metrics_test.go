package telemetry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/retailcore/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNewBusinessMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
	})

	require.NoError(t, err)
	require.NotNil(t, bm)
}

func TestNewBusinessMetrics_NilMeter(t *testing.T) {
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  nil,
		Logger: zap.NewNop(),
	})

	require.Error(t, err)
	assert.Nil(t, bm)
	assert.Equal(t, "NewBusinessMetrics: meter cannot be nil", err.Error())
}

// counterValue sums every data point of an int64 counter
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func newRecordingMetrics(t *testing.T) (*telemetry.BusinessMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  provider.Meter("test"),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return bm, reader
}

func TestBusinessMetrics_RecordSale(t *testing.T) {
	bm, reader := newRecordingMetrics(t)
	ctx := context.Background()

	bm.RecordSale(ctx, "PAID", decimal.NewFromInt(150))
	bm.RecordSale(ctx, "PARTIAL", decimal.RequireFromString("19.99"))

	assert.Equal(t, int64(2), counterValue(t, reader, "retail_sale_total"))
	assert.Equal(t, int64(16999), counterValue(t, reader, "retail_sale_amount_total"))
}

func TestBusinessMetrics_RecordPayment(t *testing.T) {
	bm, reader := newRecordingMetrics(t)
	ctx := context.Background()

	bm.RecordPayment(ctx, "cash", decimal.NewFromInt(100))
	bm.RecordPayment(ctx, "card", decimal.RequireFromString("50.5"))

	assert.Equal(t, int64(2), counterValue(t, reader, "retail_payment_total"))
	assert.Equal(t, int64(15050), counterValue(t, reader, "retail_payment_amount_total"))
}

func TestBusinessMetrics_ReversalsAndFailures(t *testing.T) {
	bm, reader := newRecordingMetrics(t)
	ctx := context.Background()

	bm.RecordReversal(ctx, telemetry.ReversalReverse)
	bm.RecordReversal(ctx, telemetry.ReversalReplace)
	bm.RecordReversal(ctx, telemetry.ReversalReturn)
	bm.RecordUnknownOutcome(ctx, "create_sale")
	bm.RecordDiscrepancy(ctx, "SHIFT_CLOSING")

	assert.Equal(t, int64(3), counterValue(t, reader, "retail_reversal_total"))
	assert.Equal(t, int64(1), counterValue(t, reader, "retail_unknown_outcome_total"))
	assert.Equal(t, int64(1), counterValue(t, reader, "retail_discrepancy_total"))
}

func TestBusinessMetrics_RecordShiftClosed(t *testing.T) {
	bm, reader := newRecordingMetrics(t)
	ctx := context.Background()

	bm.RecordShiftClosed(ctx, false, decimal.NewFromInt(-30))
	bm.RecordShiftClosed(ctx, true, decimal.Zero)

	assert.Equal(t, int64(2), counterValue(t, reader, "retail_shift_closed_total"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "retail_shift_mismatch_amount" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			var sum float64
			for _, dp := range hist.DataPoints {
				sum += dp.Sum
			}
			assert.InDelta(t, 30.0, sum, 0.0001)
			found = true
		}
	}
	assert.True(t, found, "mismatch histogram should be recorded")
}

func TestBusinessMetrics_Gauges(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	// Should not panic
	bm.SetActiveShifts(3)
	bm.SetPendingOperations(0)
}

type mockStockProvider struct {
	lowStock int64
	negative int64
	err      error
	calls    atomic.Int32
}

func (m *mockStockProvider) LowStockCount(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	return m.lowStock, nil
}

func (m *mockStockProvider) NegativeStockCount(ctx context.Context) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.negative, nil
}

func TestBusinessMetrics_PeriodicCollection(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	provider := &mockStockProvider{lowStock: 5, negative: 1}

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:         meter,
		Logger:        zap.NewNop(),
		StockProvider: provider,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start periodic collection with short interval for testing
	bm.StartPeriodicCollection(ctx, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		return provider.calls.Load() >= 2
	}, time.Second, 10*time.Millisecond)

	bm.Stop()
}

func TestBusinessMetrics_PeriodicCollection_ProviderError(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	provider := &mockStockProvider{err: errors.New("database unavailable")}

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:         meter,
		Logger:        zap.NewNop(),
		StockProvider: provider,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Errors are logged, collection keeps running
	bm.StartPeriodicCollection(ctx, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		return provider.calls.Load() >= 2
	}, time.Second, 10*time.Millisecond)
	bm.Stop()
}

func TestBusinessMetrics_PeriodicCollection_NoProvider(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Should not panic with no stock provider
	bm.StartPeriodicCollection(ctx, 50*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	bm.Stop()
}

func TestBusinessMetrics_Stop_Idempotent(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	// Calling Stop multiple times should not panic
	bm.Stop()
	bm.Stop()
	bm.Stop()
}

func TestBusinessMetrics_StartPeriodicCollection_OnlyOnce(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	provider := &mockStockProvider{}
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:         meter,
		Logger:        zap.NewNop(),
		StockProvider: provider,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Calling StartPeriodicCollection multiple times should only start once
	bm.StartPeriodicCollection(ctx, time.Hour)
	bm.StartPeriodicCollection(ctx, time.Millisecond)
	bm.StartPeriodicCollection(ctx, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	bm.Stop()
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestReversalKind_Values(t *testing.T) {
	assert.Equal(t, telemetry.ReversalKind("replace"), telemetry.ReversalReplace)
	assert.Equal(t, telemetry.ReversalKind("reverse"), telemetry.ReversalReverse)
	assert.Equal(t, telemetry.ReversalKind("return"), telemetry.ReversalReturn)
}

func TestMetricsError_Error(t *testing.T) {
	err := &telemetry.MetricsError{
		Op:  "TestOperation",
		Err: "test error message",
	}

	assert.Equal(t, "TestOperation: test error message", err.Error())
}
