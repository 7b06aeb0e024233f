package stock

import (
	"fmt"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry is one append-only record of a stock movement for an
// (item, variant) key. Entries are never updated or deleted; corrections are
// new entries of type CORRECTION.
type LedgerEntry struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_ledger_seq,priority:1" json:"item_id"`
	VariantID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_ledger_seq,priority:2" json:"variant_id"`
	Sequence       int64           `gorm:"not null;uniqueIndex:idx_stock_ledger_seq,priority:3" json:"sequence"`
	UnitIdentifier string          `gorm:"type:varchar(100);index" json:"unit_identifier,omitempty"`
	MovementType   MovementType    `gorm:"type:varchar(30);not null" json:"movement_type"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"opening_balance"`
	ClosingBalance decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"closing_balance"`
	BatchID        *uuid.UUID      `gorm:"type:uuid;index" json:"batch_id,omitempty"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(18,4)" json:"unit_cost"`
	SellingPrice   decimal.Decimal `gorm:"type:decimal(18,4)" json:"selling_price"`
	Memo           string          `gorm:"type:varchar(500)" json:"memo,omitempty"`
	SourceType     string          `gorm:"type:varchar(30)" json:"source_type,omitempty"`
	SourceID       *uuid.UUID      `gorm:"type:uuid;index" json:"source_id,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (LedgerEntry) TableName() string {
	return "stock_ledger_entries"
}

// Key returns the (item, variant) key of the entry
func (e *LedgerEntry) Key() Key {
	return Key{ItemID: e.ItemID, VariantID: e.VariantID}
}

// NewLedgerEntry builds the entry that follows prev for the movement's key.
// prev is nil for the first entry of a key.
func NewLedgerEntry(prev *LedgerEntry, m Movement) (*LedgerEntry, error) {
	if m.Key.ItemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Stock movement requires an item")
	}
	if !m.Type.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown movement type %q", m.Type))
	}
	if m.Quantity.IsZero() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Stock movement quantity cannot be zero")
	}
	switch m.Type.Direction() {
	case 1:
		if m.Quantity.IsNegative() {
			return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("%s requires a positive quantity", m.Type))
		}
	case -1:
		if m.Quantity.IsPositive() {
			return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("%s requires a negative quantity", m.Type))
		}
	}

	opening := decimal.Zero
	var seq int64 = 1
	if prev != nil {
		if prev.Key() != m.Key {
			return nil, fmt.Errorf("stock ledger: previous entry belongs to %s, not %s", prev.Key(), m.Key)
		}
		opening = prev.ClosingBalance
		seq = prev.Sequence + 1
	}

	entry := &LedgerEntry{
		ID:             uuid.New(),
		ItemID:         m.Key.ItemID,
		VariantID:      m.Key.VariantID,
		Sequence:       seq,
		UnitIdentifier: m.UnitIdentifier,
		MovementType:   m.Type,
		Quantity:       m.Quantity,
		OpeningBalance: opening,
		ClosingBalance: opening.Add(m.Quantity),
		BatchID:        m.BatchID,
		UnitCost:       m.UnitCost,
		SellingPrice:   m.SellingPrice,
		Memo:           m.Memo,
		CreatedAt:      time.Now(),
	}
	if m.Source != nil {
		entry.SourceType = m.Source.Type
		id := m.Source.ID
		entry.SourceID = &id
	}
	return entry, nil
}

// ChainError describes the first broken link in a ledger sequence
type ChainError struct {
	Key      Key
	Index    int
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("stock ledger %s broken at entry %d: expected opening %s, got %s",
		e.Key, e.Index, e.Expected, e.Actual)
}

// VerifyChain checks that entries (ordered by sequence) start at zero and that
// every entry opens at the previous closing balance.
func VerifyChain(entries []LedgerEntry) error {
	expected := decimal.Zero
	for i := range entries {
		e := &entries[i]
		if !e.OpeningBalance.Equal(expected) {
			return &ChainError{Key: e.Key(), Index: i, Expected: expected, Actual: e.OpeningBalance}
		}
		if !e.ClosingBalance.Equal(e.OpeningBalance.Add(e.Quantity)) {
			return &ChainError{Key: e.Key(), Index: i, Expected: e.OpeningBalance.Add(e.Quantity), Actual: e.ClosingBalance}
		}
		expected = e.ClosingBalance
	}
	return nil
}
