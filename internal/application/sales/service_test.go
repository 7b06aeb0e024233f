package sales_test

import (
	"context"
	"testing"
	"time"

	appsales "github.com/erp/retailcore/internal/application/sales"
	appshift "github.com/erp/retailcore/internal/application/shift"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/erp/retailcore/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cashSale(shiftID, itemID uuid.UUID, qty, price decimal.Decimal, serials ...string) appsales.CreateSaleRequest {
	return appsales.CreateSaleRequest{
		ShiftID: shiftID,
		Lines: []appsales.SaleLineInput{{
			ItemID:    itemID,
			Quantity:  qty,
			UnitPrice: price,
			Serials:   serials,
		}},
		Payments: []appsales.PaymentInput{{Method: "cash", Amount: qty.Mul(price)}},
	}
}

func closeAt(actual string) appshift.CloseShiftRequest {
	return appshift.CloseShiftRequest{ActualCash: testutil.Dec(actual)}
}

func reopen(drawerID uuid.UUID, startCash string) appshift.OpenShiftRequest {
	return appshift.OpenShiftRequest{
		OperatorID:      uuid.New(),
		DrawerAccountID: drawerID,
		StartCash:       testutil.Dec(startCash),
	}
}

func TestCreateSale_SerializedCashSaleAndReversal(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()

	item := e.NewItem(t, true, 12)
	e.ReceiveUnits(t, item, testutil.Dec("100"), testutil.Dec("150"), "SN-1")
	sh, drawer := e.OpenShift(t, testutil.Dec("100"))

	sale, err := e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("1"), testutil.Dec("150"), "SN-1"))
	require.NoError(t, err)

	assert.Equal(t, sales.StatusPaid, sale.Status)
	assert.True(t, sale.TotalAmount.Equal(testutil.Dec("150")))
	assert.True(t, sale.Lines[0].UnitCost.Equal(testutil.Dec("100")))
	assert.Equal(t, 12, sale.Lines[0].WarrantyMonths)

	unit := e.Unit(t, "SN-1")
	assert.Equal(t, stock.UnitSold, unit.Status)
	require.NotNil(t, unit.SoldDocumentID)
	assert.Equal(t, sale.ID, *unit.SoldDocumentID)

	entries := e.Entries(t, item)
	require.Len(t, entries, 2)
	assert.Equal(t, stock.MovementSaleOut, entries[1].MovementType)
	assert.True(t, entries[1].Quantity.Equal(testutil.Dec("-1")))
	assert.Equal(t, "SN-1", entries[1].UnitIdentifier)
	assert.True(t, entries[1].ClosingBalance.IsZero())

	assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("250")))
	shiftAfterSale, err := e.Shifts.GetShift(ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, shiftAfterSale.CashSales.Equal(testutil.Dec("150")))
	assert.Equal(t, 1, shiftAfterSale.SaleCount)

	require.NoError(t, e.Sales.ReverseSale(ctx, sale.ID, "customer changed mind"))

	reversed, err := e.Sales.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusReversed, reversed.Status)
	assert.Equal(t, "customer changed mind", reversed.Reason)
	assert.NotNil(t, reversed.ClosedAt)

	unit = e.Unit(t, "SN-1")
	assert.Equal(t, stock.UnitAvailable, unit.Status)
	assert.Nil(t, unit.SoldDocumentID)
	assert.False(t, unit.PreviouslySold)

	entries = e.Entries(t, item)
	require.Len(t, entries, 3)
	assert.Equal(t, stock.MovementReversalIn, entries[2].MovementType)
	assert.True(t, entries[2].Quantity.Equal(testutil.Dec("1")))
	assert.True(t, entries[2].ClosingBalance.Equal(testutil.Dec("1")))
	require.NoError(t, stock.VerifyChain(entries))

	assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("100")))
	txs := e.Transactions(t, drawer.ID)
	require.Len(t, txs, 3)
	payment, reversal := txs[1], txs[2]
	assert.Equal(t, accounting.TransactionDeposit, payment.Type)
	assert.Equal(t, accounting.SettlementSettled, payment.Settlement)
	assert.Equal(t, accounting.TransactionWithdrawal, reversal.Type)
	assert.True(t, reversal.Amount.Equal(payment.Amount))
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, payment.ID, *reversal.ReversalOf)

	shiftAfterReverse, err := e.Shifts.GetShift(ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, shiftAfterReverse.CashSales.IsZero())
}

func TestCreateSale_CreditGate(t *testing.T) {
	// Each customer first takes 90 on credit through a service line
	setup := func(t *testing.T, e *testutil.Engine, shiftID uuid.UUID, limit *decimal.Decimal) (uuid.UUID, *accounting.Account) {
		customerID, account := e.NewCustomer(t, limit)
		_, err := e.Sales.CreateSale(context.Background(), appsales.CreateSaleRequest{
			CustomerID: &customerID,
			ShiftID:    shiftID,
			Services:   []appsales.ServiceLineInput{{Description: "repair", Amount: testutil.Dec("90")}},
		})
		require.NoError(t, err)
		require.True(t, e.Balance(t, account.ID).Equal(testutil.Dec("-90")))
		return customerID, account
	}
	creditSale := func(customerID, shiftID uuid.UUID, due string) appsales.CreateSaleRequest {
		return appsales.CreateSaleRequest{
			CustomerID: &customerID,
			ShiftID:    shiftID,
			Services:   []appsales.ServiceLineInput{{Description: "install", Amount: testutil.Dec(due)}},
		}
	}

	e := testutil.NewEngine(t)
	ctx := context.Background()
	sh, _ := e.OpenShift(t, decimal.Zero)

	t.Run("due within limit is accepted", func(t *testing.T) {
		customerID, account := setup(t, e, sh.ID, testutil.DecPtr("100"))
		sale, err := e.Sales.CreateSale(ctx, creditSale(customerID, sh.ID, "10"))
		require.NoError(t, err)
		assert.Equal(t, sales.StatusUnpaid, sale.Status)
		assert.True(t, e.Balance(t, account.ID).Equal(testutil.Dec("-100")))

		txs := e.Transactions(t, account.ID)
		require.Len(t, txs, 2)
		assert.Equal(t, accounting.SettlementCredit, txs[1].Settlement)
	})

	t.Run("due past limit is rejected", func(t *testing.T) {
		customerID, account := setup(t, e, sh.ID, testutil.DecPtr("100"))
		_, err := e.Sales.CreateSale(ctx, creditSale(customerID, sh.ID, "11"))
		assert.ErrorIs(t, err, accounting.ErrCreditLimitExceeded)
		assert.True(t, e.Balance(t, account.ID).Equal(testutil.Dec("-90")))
	})

	t.Run("zero limit is cash only", func(t *testing.T) {
		customerID, _ := e.NewCustomer(t, testutil.DecPtr("0"))
		_, err := e.Sales.CreateSale(ctx, creditSale(customerID, sh.ID, "1"))
		assert.ErrorIs(t, err, accounting.ErrCashOnlyCustomer)
	})

	t.Run("nil limit never rejects", func(t *testing.T) {
		customerID, account := setup(t, e, sh.ID, nil)
		_, err := e.Sales.CreateSale(ctx, creditSale(customerID, sh.ID, "100000"))
		require.NoError(t, err)
		assert.True(t, e.Balance(t, account.ID).Equal(testutil.Dec("-100090")))
	})

	t.Run("partial payment only checks the unpaid part", func(t *testing.T) {
		customerID, account := setup(t, e, sh.ID, testutil.DecPtr("100"))
		req := creditSale(customerID, sh.ID, "50")
		req.Payments = []appsales.PaymentInput{{Method: "card", Amount: testutil.Dec("40")}}
		sale, err := e.Sales.CreateSale(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, sales.StatusPartiallyPaid, sale.Status)
		assert.True(t, sale.DueAmount.Equal(testutil.Dec("10")))
		assert.True(t, e.Balance(t, account.ID).Equal(testutil.Dec("-100")))
	})
}

func TestCreateSale_SplitTender(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, false, 0)
	e.ReceiveBatch(t, item, testutil.Dec("10"), testutil.Dec("4"), testutil.Dec("10"))
	sh, drawer := e.OpenShift(t, testutil.Dec("20"))

	sale, err := e.Sales.CreateSale(ctx, appsales.CreateSaleRequest{
		ShiftID:  sh.ID,
		Lines:    []appsales.SaleLineInput{{ItemID: item, Quantity: testutil.Dec("3"), UnitPrice: testutil.Dec("10")}},
		Payments: []appsales.PaymentInput{{Method: "cash", Amount: testutil.Dec("12")}, {Method: "Card", Amount: testutil.Dec("18")}},
	})
	require.NoError(t, err)

	assert.Equal(t, sales.StatusPaid, sale.Status)
	require.Len(t, sale.Payments, 2)
	assert.Equal(t, drawer.ID, sale.Payments[0].AccountID)
	assert.True(t, sale.Payments[0].Cash)
	assert.Equal(t, e.CompanyAccount.ID, sale.Payments[1].AccountID)
	assert.False(t, sale.Payments[1].Cash)

	assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("32")))
	assert.True(t, e.Balance(t, e.CompanyAccount.ID).Equal(testutil.Dec("18")))

	got, err := e.Shifts.GetShift(ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, got.CashSales.Equal(testutil.Dec("12")))
	assert.True(t, got.CalculatedEndCash.Equal(testutil.Dec("32")))
}

func TestCreateSale_Validation(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, false, 0)
	e.ReceiveBatch(t, item, testutil.Dec("5"), testutil.Dec("1"), testutil.Dec("2"))
	sh, _ := e.OpenShift(t, decimal.Zero)

	tests := []struct {
		name    string
		mutate  func(*appsales.CreateSaleRequest)
		wantErr error
	}{
		{"no lines", func(r *appsales.CreateSaleRequest) { r.Lines = nil }, shared.ErrInvalidInput},
		{"no shift", func(r *appsales.CreateSaleRequest) { r.ShiftID = uuid.Nil }, shared.ErrInvalidInput},
		{"underpaid walk-in", func(r *appsales.CreateSaleRequest) { r.Payments[0].Amount = testutil.Dec("3") }, shared.ErrInvalidInput},
		{"overpaid walk-in", func(r *appsales.CreateSaleRequest) { r.Payments[0].Amount = testutil.Dec("5") }, shared.ErrInvalidInput},
		{"unknown tender", func(r *appsales.CreateSaleRequest) { r.Payments[0].Method = "bitcoin" }, shared.ErrInvalidInput},
		{"serials on batch item", func(r *appsales.CreateSaleRequest) { r.Lines[0].Serials = []string{"X"} }, shared.ErrInvalidInput},
		{"unknown shift", func(r *appsales.CreateSaleRequest) { r.ShiftID = uuid.New() }, shared.ErrNotFound},
		{"unknown item", func(r *appsales.CreateSaleRequest) { r.Lines[0].ItemID = uuid.New() }, shared.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cashSale(sh.ID, item, testutil.Dec("2"), testutil.Dec("2"))
			tt.mutate(&req)
			_, err := e.Sales.CreateSale(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	level, err := e.Stock.StockLevel(ctx, item, nil)
	require.NoError(t, err)
	assert.True(t, level.Available.Equal(testutil.Dec("5")), "rejected sales must not move stock")
}

func TestCreateSale_SerialRules(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, true, 0)
	e.ReceiveUnits(t, item, testutil.Dec("10"), testutil.Dec("20"), "A", "B")
	sh, _ := e.OpenShift(t, decimal.Zero)

	_, err := e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("2"), testutil.Dec("20"), "A", "A"))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	_, err = e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("2"), testutil.Dec("20"), "A"))
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("1"), testutil.Dec("20"), "A"))
	require.NoError(t, err)

	// A and B together: A is already sold so neither unit may move
	_, err = e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("2"), testutil.Dec("20"), "B", "A"))
	assert.ErrorIs(t, err, stock.ErrSerialNotAvailable)
	assert.Equal(t, stock.UnitAvailable, e.Unit(t, "B").Status)
}

func TestCreateSale_BatchOversellAndExactRestore(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, false, 0)

	older := e.ReceiveBatch(t, item, testutil.Dec("3"), testutil.Dec("4"), testutil.Dec("10"))
	require.NoError(t, e.DB.Model(&stock.BatchStock{}).
		Where("batch_id = ?", older).
		Update("received_at", time.Now().Add(-time.Hour)).Error)
	newer := e.ReceiveBatch(t, item, testutil.Dec("2"), testutil.Dec("6"), testutil.Dec("10"))
	sh, _ := e.OpenShift(t, decimal.Zero)

	before := e.Batches(t, item)
	require.Len(t, before, 2)
	require.Equal(t, older, before[0].BatchID)

	sale, err := e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("7"), testutil.Dec("10")))
	require.NoError(t, err)

	line := sale.Lines[0]
	require.Len(t, line.Allocations, 2)
	assert.Equal(t, older, line.Allocations[0].BatchID)
	assert.True(t, line.Allocations[0].Requested.Equal(testutil.Dec("3")))
	assert.Equal(t, newer, line.Allocations[1].BatchID)
	assert.True(t, line.Allocations[1].Requested.Equal(testutil.Dec("4")))
	assert.True(t, line.Allocations[1].Shortfall.Equal(testutil.Dec("2")))
	// (3*4 + 4*6) / 7
	assert.True(t, line.UnitCost.Equal(testutil.Dec("5.1429")), "got %s", line.UnitCost)

	sold := e.Batches(t, item)
	for _, b := range sold {
		assert.False(t, b.AvailableQty.IsNegative())
		assert.NoError(t, b.CheckInvariant())
	}
	assert.True(t, sold[1].AdjustmentQty.Equal(testutil.Dec("2")))

	oversells := e.Discrepancies(t, audit.DiscrepancyStockOversell)
	require.Len(t, oversells, 1)
	assert.Equal(t, newer, oversells[0].SubjectID)

	require.NoError(t, e.Sales.ReverseSale(ctx, sale.ID, "voided"))

	after := e.Batches(t, item)
	require.Len(t, after, 2)
	for i := range before {
		assert.Equal(t, before[i].BatchID, after[i].BatchID)
		assert.Equal(t, before[i].PurchasedQty.String(), after[i].PurchasedQty.String())
		assert.Equal(t, before[i].AvailableQty.String(), after[i].AvailableQty.String())
		assert.Equal(t, before[i].SoldQty.String(), after[i].SoldQty.String())
		assert.Equal(t, before[i].AdjustmentQty.String(), after[i].AdjustmentQty.String())
		assert.NoError(t, after[i].CheckInvariant())
	}

	entries := e.Entries(t, item)
	require.NoError(t, stock.VerifyChain(entries))
	last := entries[len(entries)-1]
	assert.Equal(t, stock.MovementAdjustmentOut, last.MovementType)
	assert.True(t, last.ClosingBalance.Equal(testutil.Dec("5")))
}

func TestCreateSale_IdempotentReplay(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, false, 0)
	e.ReceiveBatch(t, item, testutil.Dec("10"), testutil.Dec("1"), testutil.Dec("5"))
	sh, drawer := e.OpenShift(t, decimal.Zero)

	req := cashSale(sh.ID, item, testutil.Dec("2"), testutil.Dec("5"))
	req.IdempotencyKey = "till-1-receipt-42"

	first, err := e.Sales.CreateSale(ctx, req)
	require.NoError(t, err)
	second, err := e.Sales.CreateSale(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("10")))
	level, err := e.Stock.StockLevel(ctx, item, nil)
	require.NoError(t, err)
	assert.True(t, level.Available.Equal(testutil.Dec("8")))

	_, total, err := e.Sales.ListSales(ctx, appsales.SaleListFilter{ShiftID: &sh.ID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestUpdateSale(t *testing.T) {
	ctx := context.Background()

	t.Run("notes only edits in place", func(t *testing.T) {
		e := testutil.NewEngine(t)
		item := e.NewItem(t, false, 0)
		e.ReceiveBatch(t, item, testutil.Dec("5"), testutil.Dec("1"), testutil.Dec("3"))
		sh, drawer := e.OpenShift(t, decimal.Zero)
		sale, err := e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("1"), testutil.Dec("3")))
		require.NoError(t, err)

		notes := "gift wrap"
		updated, err := e.Sales.UpdateSale(ctx, sale.ID, appsales.UpdateSaleRequest{Notes: &notes})
		require.NoError(t, err)

		assert.Equal(t, sale.ID, updated.ID)
		assert.Equal(t, "gift wrap", updated.Notes)
		assert.Greater(t, updated.Version, sale.Version)
		assert.Len(t, e.Transactions(t, drawer.ID), 1)
		assert.Len(t, e.Entries(t, item), 2)
	})

	t.Run("unpaid sale is re-applied under the same id", func(t *testing.T) {
		e := testutil.NewEngine(t)
		sh, drawer := e.OpenShift(t, decimal.Zero)
		customerID, account := e.NewCustomer(t, nil)
		sale, err := e.Sales.CreateSale(ctx, appsales.CreateSaleRequest{
			CustomerID: &customerID,
			ShiftID:    sh.ID,
			Services:   []appsales.ServiceLineInput{{Description: "repair", Amount: testutil.Dec("100")}},
		})
		require.NoError(t, err)
		require.Equal(t, sales.StatusUnpaid, sale.Status)

		updated, err := e.Sales.UpdateSale(ctx, sale.ID, appsales.UpdateSaleRequest{
			Payments: []appsales.PaymentInput{{Method: "cash", Amount: testutil.Dec("40")}},
		})
		require.NoError(t, err)

		assert.Equal(t, sale.ID, updated.ID)
		assert.Equal(t, sales.StatusPartiallyPaid, updated.Status)
		assert.True(t, updated.DueAmount.Equal(testutil.Dec("60")))
		assert.True(t, e.Balance(t, account.ID).Equal(testutil.Dec("-60")))
		assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("40")))

		got, err := e.Shifts.GetShift(ctx, sh.ID)
		require.NoError(t, err)
		assert.True(t, got.CashSales.Equal(testutil.Dec("40")))
	})

	t.Run("settled sale is reversed and replaced", func(t *testing.T) {
		e := testutil.NewEngine(t)
		item := e.NewItem(t, true, 0)
		e.ReceiveUnits(t, item, testutil.Dec("100"), testutil.Dec("150"), "SN-1", "SN-2")
		sh, drawer := e.OpenShift(t, decimal.Zero)
		sale, err := e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("1"), testutil.Dec("150"), "SN-1"))
		require.NoError(t, err)

		replacement, err := e.Sales.UpdateSale(ctx, sale.ID, appsales.UpdateSaleRequest{
			Lines: []appsales.SaleLineInput{{
				ItemID:    item,
				Quantity:  testutil.Dec("1"),
				UnitPrice: testutil.Dec("150"),
				Serials:   []string{"SN-2"},
			}},
			Payments: []appsales.PaymentInput{{Method: "card", Amount: testutil.Dec("150")}},
		})
		require.NoError(t, err)

		assert.NotEqual(t, sale.ID, replacement.ID)
		require.NotNil(t, replacement.ReplacesID)
		assert.Equal(t, sale.ID, *replacement.ReplacesID)
		assert.Equal(t, sales.StatusPaid, replacement.Status)

		original, err := e.Sales.GetSale(ctx, sale.ID)
		require.NoError(t, err)
		assert.Equal(t, sales.StatusReversed, original.Status)
		require.NotNil(t, original.ReplacedByID)
		assert.Equal(t, replacement.ID, *original.ReplacedByID)

		assert.Equal(t, stock.UnitAvailable, e.Unit(t, "SN-1").Status)
		assert.Equal(t, stock.UnitSold, e.Unit(t, "SN-2").Status)
		assert.True(t, e.Balance(t, drawer.ID).IsZero())
		assert.True(t, e.Balance(t, e.CompanyAccount.ID).Equal(testutil.Dec("150")))
	})

	t.Run("terminal sale cannot change", func(t *testing.T) {
		e := testutil.NewEngine(t)
		sh, _ := e.OpenShift(t, decimal.Zero)
		customerID, _ := e.NewCustomer(t, nil)
		sale, err := e.Sales.CreateSale(ctx, appsales.CreateSaleRequest{
			CustomerID: &customerID,
			ShiftID:    sh.ID,
			Services:   []appsales.ServiceLineInput{{Description: "repair", Amount: testutil.Dec("10")}},
		})
		require.NoError(t, err)
		require.NoError(t, e.Sales.ReverseSale(ctx, sale.ID, "void"))

		notes := "late note"
		_, err = e.Sales.UpdateSale(ctx, sale.ID, appsales.UpdateSaleRequest{Notes: &notes})
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestReverseSale_Errors(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, false, 0)
	e.ReceiveBatch(t, item, testutil.Dec("5"), testutil.Dec("1"), testutil.Dec("3"))
	sh, _ := e.OpenShift(t, decimal.Zero)
	sale, err := e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("1"), testutil.Dec("3")))
	require.NoError(t, err)

	assert.ErrorIs(t, e.Sales.ReverseSale(ctx, uuid.New(), "x"), shared.ErrNotFound)

	require.NoError(t, e.Sales.ReverseSale(ctx, sale.ID, "first"))
	assert.ErrorIs(t, e.Sales.ReverseSale(ctx, sale.ID, "second"), shared.ErrInvalidState)

	_, err = e.Sales.ProcessReturn(ctx, sale.ID, "after reversal")
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	entries := e.Entries(t, item)
	assert.Len(t, entries, 3, "a rejected reversal must not touch the ledger")
}

func TestReverseSale_AfterShiftClosedUsesDrawersCurrentShift(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, false, 0)
	e.ReceiveBatch(t, item, testutil.Dec("5"), testutil.Dec("1"), testutil.Dec("30"))
	first, drawer := e.OpenShift(t, testutil.Dec("100"))

	sale, err := e.Sales.CreateSale(ctx, cashSale(first.ID, item, testutil.Dec("1"), testutil.Dec("30")))
	require.NoError(t, err)
	_, err = e.Shifts.CloseShift(ctx, first.ID, closeAt("130"))
	require.NoError(t, err)

	// Without an active shift on the drawer the cash has nowhere to come from
	assert.ErrorIs(t, e.Sales.ReverseSale(ctx, sale.ID, "late void"), shared.ErrInvalidState)

	second, err := e.Shifts.OpenShift(ctx, reopen(drawer.ID, "130"))
	require.NoError(t, err)
	require.NoError(t, e.Sales.ReverseSale(ctx, sale.ID, "late void"))

	got, err := e.Shifts.GetShift(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.CashSales.Equal(testutil.Dec("-30")))
	assert.True(t, got.CalculatedEndCash.Equal(testutil.Dec("100")))
	assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("100")))
}

func TestProcessReturn(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, true, 6)
	e.ReceiveUnits(t, item, testutil.Dec("100"), testutil.Dec("150"), "SN-9")
	sh, drawer := e.OpenShift(t, testutil.Dec("200"))

	sale, err := e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("1"), testutil.Dec("150"), "SN-9"))
	require.NoError(t, err)

	returned, err := e.Sales.ProcessReturn(ctx, sale.ID, "faulty screen")
	require.NoError(t, err)
	assert.Equal(t, sales.StatusReturned, returned.Status)
	assert.Equal(t, "faulty screen", returned.Reason)

	unit := e.Unit(t, "SN-9")
	assert.Equal(t, stock.UnitAvailable, unit.Status)
	assert.True(t, unit.PreviouslySold)

	entries := e.Entries(t, item)
	require.Len(t, entries, 3)
	assert.Equal(t, stock.MovementReturnIn, entries[2].MovementType)
	assert.True(t, e.Balance(t, drawer.ID).Equal(testutil.Dec("200")))

	_, err = e.Sales.ProcessReturn(ctx, sale.ID, "again")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCreateSale_ClosedShiftRejected(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	item := e.NewItem(t, false, 0)
	e.ReceiveBatch(t, item, testutil.Dec("5"), testutil.Dec("1"), testutil.Dec("3"))
	sh, _ := e.OpenShift(t, decimal.Zero)
	_, err := e.Shifts.CloseShift(ctx, sh.ID, closeAt("0"))
	require.NoError(t, err)

	_, err = e.Sales.CreateSale(ctx, cashSale(sh.ID, item, testutil.Dec("1"), testutil.Dec("3")))
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
