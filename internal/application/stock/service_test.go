package stock_test

import (
	"context"
	"testing"

	appstock "github.com/erp/retailcore/internal/application/stock"
	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/erp/retailcore/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceive_Batch(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, false, 0)

	batchID := e.ReceiveBatch(t, itemID, testutil.Dec("10"), testutil.Dec("4"), testutil.Dec("7"))

	level, err := e.Stock.Receive(ctx, appstock.ReceiveStockRequest{
		ItemID:   itemID,
		BatchID:  &batchID,
		Quantity: testutil.Dec("5"),
		UnitCost: testutil.Dec("4.5"),
	})
	require.NoError(t, err)

	assert.True(t, level.Available.Equal(testutil.Dec("15")))
	assert.True(t, level.OnHand.Equal(testutil.Dec("15")))
	require.Len(t, level.Batches, 1)
	b := level.Batches[0]
	assert.True(t, b.PurchasedQty.Equal(testutil.Dec("15")))
	assert.True(t, b.UnitCost.Equal(testutil.Dec("4.5")))
	assert.True(t, b.SellingPrice.Equal(testutil.Dec("7")))

	entries := e.Entries(t, itemID)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, stock.MovementPurchaseIn, entry.MovementType)
		require.NotNil(t, entry.BatchID)
		assert.Equal(t, batchID, *entry.BatchID)
	}
	assert.True(t, entries[1].ClosingBalance.Equal(testutil.Dec("15")))
	require.NoError(t, stock.VerifyChain(entries))

	_, err = e.Stock.Receive(ctx, appstock.ReceiveStockRequest{
		ItemID:   itemID,
		Quantity: testutil.Dec("0"),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestReceive_Units(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, true, 12)

	level, err := e.Stock.Receive(ctx, appstock.ReceiveStockRequest{
		ItemID:       itemID,
		Serials:      []string{"SN-B", "SN-A", "SN-C"},
		UnitCost:     testutil.Dec("100"),
		SellingPrice: testutil.Dec("150"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"SN-A", "SN-B", "SN-C"}, level.AvailableSerials)
	assert.True(t, level.Available.Equal(testutil.Dec("3")))
	assert.True(t, level.LastCost.Equal(testutil.Dec("100")))
	assert.True(t, level.LastPrice.Equal(testutil.Dec("150")))

	entries := e.Entries(t, itemID)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, stock.MovementPurchaseIn, entry.MovementType)
		assert.True(t, entry.Quantity.Equal(testutil.Dec("1")))
		assert.NotEmpty(t, entry.UnitIdentifier)
		assert.EqualValues(t, i+1, entry.Sequence)
	}

	t.Run("duplicate serial", func(t *testing.T) {
		_, err := e.Stock.Receive(ctx, appstock.ReceiveStockRequest{
			ItemID:  itemID,
			Serials: []string{"SN-A"},
		})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		assert.Len(t, e.Entries(t, itemID), 3)
	})
}

func TestStockLevel_Variants(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, false, 0)
	variantID := uuid.New()

	e.ReceiveBatch(t, itemID, testutil.Dec("4"), testutil.Dec("2"), testutil.Dec("3"))
	_, err := e.Stock.Receive(ctx, appstock.ReceiveStockRequest{
		ItemID:    itemID,
		VariantID: &variantID,
		Quantity:  testutil.Dec("6"),
		UnitCost:  testutil.Dec("2"),
	})
	require.NoError(t, err)

	all, err := e.Stock.StockLevel(ctx, itemID, nil)
	require.NoError(t, err)
	assert.True(t, all.Available.Equal(testutil.Dec("10")))
	assert.Len(t, all.Batches, 2)

	one, err := e.Stock.StockLevel(ctx, itemID, &variantID)
	require.NoError(t, err)
	assert.True(t, one.Available.Equal(testutil.Dec("6")))
	require.Len(t, one.Batches, 1)
	require.NotNil(t, one.Batches[0].VariantID)
	assert.Equal(t, variantID, *one.Batches[0].VariantID)

	t.Run("unknown variant is empty", func(t *testing.T) {
		other := uuid.New()
		level, err := e.Stock.StockLevel(ctx, itemID, &other)
		require.NoError(t, err)
		assert.True(t, level.Available.IsZero())
		assert.Empty(t, level.Batches)
	})
}

func TestAdjust(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, false, 0)
	batchID := e.ReceiveBatch(t, itemID, testutil.Dec("5"), testutil.Dec("3"), testutil.Dec("5"))

	batch, err := e.Stock.Adjust(ctx, appstock.AdjustStockRequest{
		ItemID:  itemID,
		BatchID: batchID,
		Delta:   testutil.Dec("-2"),
		Reason:  "count",
	})
	require.NoError(t, err)
	assert.True(t, batch.AvailableQty.Equal(testutil.Dec("3")))
	assert.True(t, batch.AdjustmentQty.Equal(testutil.Dec("-2")))

	batch, err = e.Stock.Adjust(ctx, appstock.AdjustStockRequest{
		ItemID:  itemID,
		BatchID: batchID,
		Delta:   testutil.Dec("1"),
		Reason:  "found",
	})
	require.NoError(t, err)
	assert.True(t, batch.AvailableQty.Equal(testutil.Dec("4")))

	batches := e.Batches(t, itemID)
	require.Len(t, batches, 1)
	require.NoError(t, batches[0].CheckInvariant())

	entries := e.Entries(t, itemID)
	require.Len(t, entries, 3)
	assert.Equal(t, stock.MovementAdjustmentOut, entries[1].MovementType)
	assert.Equal(t, "count", entries[1].Memo)
	assert.Equal(t, stock.MovementAdjustmentIn, entries[2].MovementType)
	assert.True(t, entries[2].ClosingBalance.Equal(testutil.Dec("4")))
	require.NoError(t, stock.VerifyChain(entries))

	tests := []struct {
		name  string
		req   appstock.AdjustStockRequest
		error error
	}{
		{"zero delta", appstock.AdjustStockRequest{ItemID: itemID, BatchID: batchID, Delta: testutil.Dec("0"), Reason: "x"}, shared.ErrInvalidInput},
		{"beyond available", appstock.AdjustStockRequest{ItemID: itemID, BatchID: batchID, Delta: testutil.Dec("-5"), Reason: "x"}, shared.ErrInsufficientStock},
		{"unknown batch", appstock.AdjustStockRequest{ItemID: itemID, BatchID: uuid.New(), Delta: testutil.Dec("1"), Reason: "x"}, shared.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Stock.Adjust(ctx, tt.req)
			assert.ErrorIs(t, err, tt.error)
		})
	}
	assert.Len(t, e.Entries(t, itemID), 3)
}

func TestMarkDamaged(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, true, 0)
	e.ReceiveUnits(t, itemID, testutil.Dec("50"), testutil.Dec("80"), "SN-1", "SN-2")

	require.NoError(t, e.Stock.MarkDamaged(ctx, appstock.MarkDamagedRequest{
		ItemID: itemID,
		Serial: "SN-1",
		Reason: "dropped",
	}))

	assert.Equal(t, stock.UnitDamaged, e.Unit(t, "SN-1").Status)
	level, err := e.Stock.StockLevel(ctx, itemID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"SN-2"}, level.AvailableSerials)
	assert.True(t, level.OnHand.Equal(testutil.Dec("1")))

	entries := e.Entries(t, itemID)
	require.Len(t, entries, 3)
	last := entries[2]
	assert.Equal(t, stock.MovementAdjustmentOut, last.MovementType)
	assert.True(t, last.Quantity.Equal(testutil.Dec("-1")))
	assert.Equal(t, "SN-1", last.UnitIdentifier)
	assert.True(t, last.ClosingBalance.Equal(testutil.Dec("1")))

	err = e.Stock.MarkDamaged(ctx, appstock.MarkDamagedRequest{ItemID: itemID, Serial: "SN-1", Reason: "again"})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Len(t, e.Entries(t, itemID), 3)
}

func TestIncomingUnits_CheckIn(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, true, 0)

	level, err := e.Stock.Receive(ctx, appstock.ReceiveStockRequest{
		ItemID:       itemID,
		Serials:      []string{"IN-1", "IN-2"},
		Incoming:     true,
		UnitCost:     testutil.Dec("40"),
		SellingPrice: testutil.Dec("60"),
	})
	require.NoError(t, err)
	assert.True(t, level.OnHand.IsZero())
	assert.Empty(t, level.AvailableSerials)
	assert.Empty(t, e.Entries(t, itemID))
	assert.Equal(t, stock.UnitIncoming, e.Unit(t, "IN-1").Status)

	units, err := e.Stock.CheckIn(ctx, appstock.CheckInUnitsRequest{ItemID: itemID, Serials: []string{"IN-1"}})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, stock.UnitAvailable, units[0].Status)

	level, err = e.Stock.StockLevel(ctx, itemID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"IN-1"}, level.AvailableSerials)
	assert.True(t, level.OnHand.Equal(testutil.Dec("1")))

	entries := e.Entries(t, itemID)
	require.Len(t, entries, 1)
	assert.Equal(t, stock.MovementPurchaseIn, entries[0].MovementType)
	assert.Equal(t, "IN-1", entries[0].UnitIdentifier)
	assert.True(t, entries[0].UnitCost.Equal(testutil.Dec("40")))

	_, err = e.Stock.CheckIn(ctx, appstock.CheckInUnitsRequest{ItemID: itemID, Serials: []string{"IN-1"}})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = e.Stock.CheckIn(ctx, appstock.CheckInUnitsRequest{ItemID: itemID, Serials: []string{"NOPE"}})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Len(t, e.Entries(t, itemID), 1)
}

func TestHoldAndRelease(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, true, 0)
	e.ReceiveUnits(t, itemID, testutil.Dec("50"), testutil.Dec("80"), "H-1", "H-2")
	req := appstock.UnitHoldRequest{ItemID: itemID, Serial: "H-1"}

	held, err := e.Stock.Hold(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, stock.UnitOnHold, held.Status)

	level, err := e.Stock.StockLevel(ctx, itemID, nil)
	require.NoError(t, err)
	assert.True(t, level.OnHand.Equal(testutil.Dec("2")))
	assert.True(t, level.Available.Equal(testutil.Dec("1")))
	assert.Equal(t, []string{"H-2"}, level.AvailableSerials)

	_, err = e.Stock.Hold(ctx, req)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	released, err := e.Stock.ReleaseHold(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, stock.UnitAvailable, released.Status)

	level, err = e.Stock.StockLevel(ctx, itemID, nil)
	require.NoError(t, err)
	assert.True(t, level.Available.Equal(testutil.Dec("2")))
	// holds never touch the ledger
	assert.Len(t, e.Entries(t, itemID), 2)
}

func TestHistory_Paging(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, true, 0)
	e.ReceiveUnits(t, itemID, testutil.Dec("1"), testutil.Dec("2"), "A", "B", "C", "D", "E")

	page, total, err := e.Stock.History(ctx, itemID, nil, shared.Filter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.EqualValues(t, 3, page[0].Sequence)
	assert.EqualValues(t, 4, page[1].Sequence)
	assert.True(t, page[1].OpeningBalance.Equal(testutil.Dec("3")))
}

func TestStore_Correct(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	itemID := e.NewItem(t, false, 0)
	batchID := e.ReceiveBatch(t, itemID, testutil.Dec("8"), testutil.Dec("1"), testutil.Dec("2"))
	key := stock.NewKey(itemID, nil)

	correct := func() *stock.LedgerEntry {
		var entry *stock.LedgerEntry
		require.NoError(t, e.Scope.Execute(ctx, func(repos unitofwork.Repositories) error {
			var err error
			entry, err = appstock.NewStore(repos).Correct(ctx, key, "recount")
			return err
		}))
		return entry
	}

	assert.Nil(t, correct())

	// Drift the physical count outside the ledger.
	require.NoError(t, e.DB.Model(&stock.BatchStock{}).
		Where("batch_id = ?", batchID).
		Updates(map[string]any{"available_qty": testutil.Dec("6"), "adjustment_qty": testutil.Dec("-2")}).Error)

	entry := correct()
	require.NotNil(t, entry)
	assert.Equal(t, stock.MovementCorrection, entry.MovementType)
	assert.True(t, entry.Quantity.Equal(testutil.Dec("-2")))
	assert.True(t, entry.ClosingBalance.Equal(testutil.Dec("6")))

	level, err := e.Stock.StockLevel(ctx, itemID, nil)
	require.NoError(t, err)
	assert.True(t, level.Available.Equal(testutil.Dec("6")))

	assert.Nil(t, correct())
	require.NoError(t, stock.VerifyChain(e.Entries(t, itemID)))
}
