package stock

import (
	"testing"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovementType_Direction(t *testing.T) {
	tests := []struct {
		name     string
		mt       MovementType
		expected int
	}{
		{"PURCHASE_IN is inbound", MovementPurchaseIn, 1},
		{"REVERSAL_IN is inbound", MovementReversalIn, 1},
		{"RETURN_IN is inbound", MovementReturnIn, 1},
		{"ADJUSTMENT_IN is inbound", MovementAdjustmentIn, 1},
		{"SALE_OUT is outbound", MovementSaleOut, -1},
		{"ADJUSTMENT_OUT is outbound", MovementAdjustmentOut, -1},
		{"PURCHASE_RETURN_OUT is outbound", MovementPurchaseReturnOut, -1},
		{"CORRECTION has no fixed direction", MovementCorrection, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.mt.IsValid())
			assert.Equal(t, tt.expected, tt.mt.Direction())
		})
	}
	assert.False(t, MovementType("TELEPORT").IsValid())
}

func TestNewLedgerEntry(t *testing.T) {
	key := Key{ItemID: uuid.New()}

	t.Run("first entry opens at zero", func(t *testing.T) {
		e, err := NewLedgerEntry(nil, Movement{Key: key, Type: MovementPurchaseIn, Quantity: decimal.NewFromInt(5)})
		require.NoError(t, err)
		assert.True(t, e.OpeningBalance.IsZero())
		assert.True(t, e.ClosingBalance.Equal(decimal.NewFromInt(5)))
		assert.Equal(t, int64(1), e.Sequence)
	})

	t.Run("next entry opens at previous closing", func(t *testing.T) {
		first, err := NewLedgerEntry(nil, Movement{Key: key, Type: MovementPurchaseIn, Quantity: decimal.NewFromInt(5)})
		require.NoError(t, err)
		docID := uuid.New()
		second, err := NewLedgerEntry(first, Movement{
			Key:      key,
			Type:     MovementSaleOut,
			Quantity: decimal.NewFromInt(-2),
			Source:   &Source{Type: "SALE", ID: docID},
		})
		require.NoError(t, err)
		assert.True(t, second.OpeningBalance.Equal(decimal.NewFromInt(5)))
		assert.True(t, second.ClosingBalance.Equal(decimal.NewFromInt(3)))
		assert.Equal(t, int64(2), second.Sequence)
		assert.Equal(t, "SALE", second.SourceType)
		assert.Equal(t, docID, *second.SourceID)
	})

	t.Run("rejects quantity with the wrong sign", func(t *testing.T) {
		_, err := NewLedgerEntry(nil, Movement{Key: key, Type: MovementSaleOut, Quantity: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = NewLedgerEntry(nil, Movement{Key: key, Type: MovementReversalIn, Quantity: decimal.NewFromInt(-1)})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("correction accepts either sign", func(t *testing.T) {
		_, err := NewLedgerEntry(nil, Movement{Key: key, Type: MovementCorrection, Quantity: decimal.NewFromInt(-1)})
		assert.NoError(t, err)
		_, err = NewLedgerEntry(nil, Movement{Key: key, Type: MovementCorrection, Quantity: decimal.NewFromInt(1)})
		assert.NoError(t, err)
	})

	t.Run("rejects zero quantity and missing item", func(t *testing.T) {
		_, err := NewLedgerEntry(nil, Movement{Key: key, Type: MovementPurchaseIn, Quantity: decimal.Zero})
		assert.Error(t, err)
		_, err = NewLedgerEntry(nil, Movement{Type: MovementPurchaseIn, Quantity: decimal.NewFromInt(1)})
		assert.Error(t, err)
	})

	t.Run("rejects a previous entry from another key", func(t *testing.T) {
		other, err := NewLedgerEntry(nil, Movement{Key: Key{ItemID: uuid.New()}, Type: MovementPurchaseIn, Quantity: decimal.NewFromInt(1)})
		require.NoError(t, err)
		_, err = NewLedgerEntry(other, Movement{Key: key, Type: MovementPurchaseIn, Quantity: decimal.NewFromInt(1)})
		assert.Error(t, err)
	})
}

func TestVerifyChain(t *testing.T) {
	key := Key{ItemID: uuid.New(), VariantID: uuid.New()}
	quantities := []int64{10, -3, -1, 2, -8}

	var entries []LedgerEntry
	var prev *LedgerEntry
	for _, q := range quantities {
		mt := MovementPurchaseIn
		if q < 0 {
			mt = MovementSaleOut
		}
		e, err := NewLedgerEntry(prev, Movement{Key: key, Type: mt, Quantity: decimal.NewFromInt(q)})
		require.NoError(t, err)
		entries = append(entries, *e)
		prev = e
	}

	t.Run("valid chain", func(t *testing.T) {
		require.NoError(t, VerifyChain(entries))
		assert.True(t, entries[len(entries)-1].ClosingBalance.IsZero())
		for i := 1; i < len(entries); i++ {
			assert.True(t, entries[i].OpeningBalance.Equal(entries[i-1].ClosingBalance))
		}
	})

	t.Run("detects a broken link", func(t *testing.T) {
		broken := append([]LedgerEntry(nil), entries...)
		broken[2].OpeningBalance = decimal.NewFromInt(100)
		err := VerifyChain(broken)
		var chainErr *ChainError
		require.ErrorAs(t, err, &chainErr)
		assert.Equal(t, 2, chainErr.Index)
	})

	t.Run("detects a non-zero start", func(t *testing.T) {
		broken := append([]LedgerEntry(nil), entries[1:]...)
		assert.Error(t, VerifyChain(broken))
	})

	t.Run("empty chain is valid", func(t *testing.T) {
		assert.NoError(t, VerifyChain(nil))
	})
}

func TestKey(t *testing.T) {
	item := uuid.New()
	assert.Nil(t, NewKey(item, nil).Variant())

	variant := uuid.New()
	k := NewKey(item, &variant)
	require.NotNil(t, k.Variant())
	assert.Equal(t, variant, *k.Variant())
	assert.Contains(t, k.String(), variant.String())
}
