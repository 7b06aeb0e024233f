//go:build integration

package persistence_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	appacct "github.com/erp/retailcore/internal/application/accounting"
	appsales "github.com/erp/retailcore/internal/application/sales"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/erp/retailcore/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Row locks only exist on PostgreSQL, so the concurrent paths are exercised here.
func TestPostgres_ConcurrentProtocols(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	e := testutil.NewEngineOn(t, testutil.NewPostgresDB(t))
	ctx := context.Background()

	t.Run("one serial sells once", func(t *testing.T) {
		item := e.NewItem(t, true, 0)
		e.ReceiveUnits(t, item, testutil.Dec("100"), testutil.Dec("150"), "PG-SN-1")
		sh, drawer := e.OpenShift(t, testutil.Dec("0"))

		const workers = 5
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			won  int
			errs []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := e.Sales.CreateSale(ctx, appsales.CreateSaleRequest{
					ShiftID: sh.ID,
					Lines: []appsales.SaleLineInput{{
						ItemID:    item,
						Quantity:  testutil.Dec("1"),
						UnitPrice: testutil.Dec("150"),
						Serials:   []string{"PG-SN-1"},
					}},
					Payments: []appsales.PaymentInput{{Method: "cash", Amount: testutil.Dec("150")}},
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					won++
					return
				}
				errs = append(errs, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, won)
		for _, err := range errs {
			assert.True(t,
				errors.Is(err, stock.ErrSerialNotAvailable) || errors.Is(err, shared.ErrConcurrencyConflict),
				"unexpected error: %v", err)
		}
		assert.Equal(t, stock.UnitSold, e.Unit(t, "PG-SN-1").Status)
		assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("150")))
		require.NoError(t, stock.VerifyChain(e.Entries(t, item)))
	})

	t.Run("concurrent sales deduct one batch without lost updates", func(t *testing.T) {
		item := e.NewItem(t, false, 0)
		batchID := e.ReceiveBatch(t, item, testutil.Dec("20"), testutil.Dec("5"), testutil.Dec("8"))
		sh, drawer := e.OpenShift(t, testutil.Dec("0"))

		const workers = 10
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			sold int64
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := e.Sales.CreateSale(ctx, appsales.CreateSaleRequest{
					ShiftID: sh.ID,
					Lines: []appsales.SaleLineInput{{
						ItemID:    item,
						Quantity:  testutil.Dec("1"),
						UnitPrice: testutil.Dec("8"),
						BatchID:   &batchID,
					}},
					Payments: []appsales.PaymentInput{{Method: "cash", Amount: testutil.Dec("8")}},
				})
				if err != nil {
					assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
					return
				}
				mu.Lock()
				sold++
				mu.Unlock()
			}()
		}
		wg.Wait()
		require.Positive(t, sold)

		batches := e.Batches(t, item)
		require.Len(t, batches, 1)
		b := batches[0]
		assert.True(t, b.SoldQty.Equal(decimal.NewFromInt(sold)), "sold %s, want %d", b.SoldQty, sold)
		assert.True(t, b.AvailableQty.Equal(decimal.NewFromInt(20-sold)), "available %s", b.AvailableQty)
		require.NoError(t, b.CheckInvariant())

		entries := e.Entries(t, item)
		require.NoError(t, stock.VerifyChain(entries))
		assert.Len(t, entries, int(sold)+1)
		assert.True(t, entries[len(entries)-1].ClosingBalance.Equal(b.AvailableQty))
		assert.True(t, e.Balance(t, drawer.ID).Equal(decimal.NewFromInt(8*sold)))
	})

	t.Run("concurrent postings serialize on the account row", func(t *testing.T) {
		drawer := e.NewDrawer(t)

		const workers = 10
		var wg sync.WaitGroup
		errCh := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := e.Accounts.PostTransaction(ctx, appacct.PostTransactionRequest{
					AccountID: drawer.ID,
					Amount:    testutil.Dec("5"),
					Type:      accounting.TransactionDeposit,
					Reason:    fmt.Sprintf("float %d", i),
				})
				errCh <- err
			}(i)
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			require.NoError(t, err)
		}

		assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("50")))
		txs := e.Transactions(t, drawer.ID)
		require.Len(t, txs, workers)
		seen := make(map[int]bool, workers)
		for _, tx := range txs {
			assert.False(t, seen[tx.Sequence], "duplicate sequence %d", tx.Sequence)
			seen[tx.Sequence] = true
		}

		verified, err := e.Accounts.VerifyAccount(ctx, drawer.ID)
		require.NoError(t, err)
		assert.True(t, verified.Consistent)
	})

	t.Run("reconciler is clean", func(t *testing.T) {
		report, err := e.Reconcile.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.Discrepancies())
	})
}
