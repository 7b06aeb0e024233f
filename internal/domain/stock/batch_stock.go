package stock

import (
	"fmt"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStock is the pooled quantity of one (item, variant, batch).
//
// Invariants:
//   - AvailableQty >= 0
//   - PurchasedQty == AvailableQty + SoldQty - AdjustmentQty
//
// AdjustmentQty is signed: losses are negative, recognised gains (including
// the shortfall of a clamped sale) are positive.
type BatchStock struct {
	shared.BaseAggregateRoot
	ItemID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_batch_stock_key,priority:1" json:"item_id"`
	VariantID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_batch_stock_key,priority:2" json:"variant_id"`
	BatchID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_batch_stock_key,priority:3" json:"batch_id"`
	BatchNumber   string          `gorm:"type:varchar(50)" json:"batch_number,omitempty"`
	PurchasedQty  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"purchased_qty"`
	AvailableQty  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"available_qty"`
	SoldQty       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"sold_qty"`
	AdjustmentQty decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"adjustment_qty"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_cost"`
	SellingPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"selling_price"`
	ReceivedAt    time.Time       `gorm:"not null;index" json:"received_at"`
}

// TableName returns the table name for GORM
func (BatchStock) TableName() string {
	return "batch_stocks"
}

// Key returns the (item, variant) key of the batch
func (b *BatchStock) Key() Key {
	return Key{ItemID: b.ItemID, VariantID: b.VariantID}
}

// NewBatchStock creates a batch row for freshly purchased stock
func NewBatchStock(key Key, batchID uuid.UUID, batchNumber string, qty, cost, price decimal.Decimal) (*BatchStock, error) {
	if batchID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Batch reference cannot be empty")
	}
	if !qty.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Purchased quantity must be positive")
	}
	if cost.IsNegative() || price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Unit cost and price cannot be negative")
	}
	return &BatchStock{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ItemID:            key.ItemID,
		VariantID:         key.VariantID,
		BatchID:           batchID,
		BatchNumber:       batchNumber,
		PurchasedQty:      qty,
		AvailableQty:      qty,
		SoldQty:           decimal.Zero,
		AdjustmentQty:     decimal.Zero,
		UnitCost:          cost,
		SellingPrice:      price,
		ReceivedAt:        time.Now(),
	}, nil
}

// Deduction records what a sale took from a batch so that it can be undone
// exactly.
type Deduction struct {
	BatchID   uuid.UUID       `json:"batch_id"`
	Requested decimal.Decimal `json:"requested"`
	Deducted  decimal.Decimal `json:"deducted"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// ErrReturnQuantityExceeded is returned when more is restored to a batch than was sold from it
var ErrReturnQuantityExceeded = shared.NewDomainError("RETURN_QUANTITY_EXCEEDED", "Cannot restore more than was sold from the batch")

// Deduct sells qty from the batch. The physical counter is clamped at zero
// while SoldQty always records the full quantity; the clamped shortfall is
// booked as a positive adjustment.
func (b *BatchStock) Deduct(qty decimal.Decimal) (Deduction, error) {
	if !qty.IsPositive() {
		return Deduction{}, shared.NewDomainError("INVALID_INPUT", "Sale quantity must be positive")
	}
	deducted := decimal.Min(qty, b.AvailableQty)
	shortfall := qty.Sub(deducted)

	b.AvailableQty = b.AvailableQty.Sub(deducted)
	b.SoldQty = b.SoldQty.Add(qty)
	b.AdjustmentQty = b.AdjustmentQty.Add(shortfall)
	b.touch()

	return Deduction{BatchID: b.BatchID, Requested: qty, Deducted: deducted, Shortfall: shortfall}, nil
}

// Restore undoes a previous deduction
func (b *BatchStock) Restore(d Deduction) error {
	if d.BatchID != b.BatchID {
		return fmt.Errorf("deduction belongs to batch %s, not %s", d.BatchID, b.BatchID)
	}
	if b.SoldQty.LessThan(d.Requested) {
		return ErrReturnQuantityExceeded.
			WithDetails(map[string]any{"batch_id": b.BatchID, "sold_qty": b.SoldQty, "requested": d.Requested})
	}
	b.AvailableQty = b.AvailableQty.Add(d.Deducted)
	b.SoldQty = b.SoldQty.Sub(d.Requested)
	b.AdjustmentQty = b.AdjustmentQty.Sub(d.Shortfall)
	b.touch()
	return nil
}

// Adjust applies a signed stock adjustment (count correction, damage, found stock)
func (b *BatchStock) Adjust(delta decimal.Decimal) error {
	if delta.IsZero() {
		return shared.NewDomainError("INVALID_INPUT", "Adjustment quantity cannot be zero")
	}
	next := b.AvailableQty.Add(delta)
	if next.IsNegative() {
		return shared.ErrInsufficientStock.WithDetails(map[string]any{
			"batch_id":      b.BatchID,
			"available_qty": b.AvailableQty,
			"adjustment":    delta,
		})
	}
	b.AvailableQty = next
	b.AdjustmentQty = b.AdjustmentQty.Add(delta)
	b.touch()
	return nil
}

// Replenish adds more purchased quantity to an existing batch
func (b *BatchStock) Replenish(qty, cost decimal.Decimal) error {
	if !qty.IsPositive() {
		return shared.NewDomainError("INVALID_INPUT", "Purchased quantity must be positive")
	}
	b.PurchasedQty = b.PurchasedQty.Add(qty)
	b.AvailableQty = b.AvailableQty.Add(qty)
	if !cost.IsZero() {
		b.UnitCost = cost
	}
	b.touch()
	return nil
}

// CheckInvariant verifies the batch counters
func (b *BatchStock) CheckInvariant() error {
	if b.AvailableQty.IsNegative() {
		return fmt.Errorf("batch %s: available quantity %s is negative", b.BatchID, b.AvailableQty)
	}
	expected := b.AvailableQty.Add(b.SoldQty).Sub(b.AdjustmentQty)
	if !b.PurchasedQty.Equal(expected) {
		return fmt.Errorf("batch %s: purchased %s != available %s + sold %s - adjustment %s",
			b.BatchID, b.PurchasedQty, b.AvailableQty, b.SoldQty, b.AdjustmentQty)
	}
	return nil
}

func (b *BatchStock) touch() {
	b.UpdatedAt = time.Now()
	b.IncrementVersion()
}
