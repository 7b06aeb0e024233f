package stock

import (
	"time"

	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLevelResponse is the stock position of an item or one of its variants
type StockLevelResponse struct {
	ItemID           uuid.UUID            `json:"item_id"`
	VariantID        *uuid.UUID           `json:"variant_id,omitempty"`
	Available        decimal.Decimal      `json:"available"`
	OnHand           decimal.Decimal      `json:"on_hand"`
	LastCost         decimal.Decimal      `json:"last_cost"`
	LastPrice        decimal.Decimal      `json:"last_price"`
	Batches          []BatchLevelResponse `json:"batches"`
	AvailableSerials []string             `json:"available_serials,omitempty"`
}

// BatchLevelResponse is the counters of one batch
type BatchLevelResponse struct {
	BatchID       uuid.UUID       `json:"batch_id"`
	VariantID     *uuid.UUID      `json:"variant_id,omitempty"`
	BatchNumber   string          `json:"batch_number"`
	PurchasedQty  decimal.Decimal `json:"purchased_qty"`
	AvailableQty  decimal.Decimal `json:"available_qty"`
	SoldQty       decimal.Decimal `json:"sold_qty"`
	AdjustmentQty decimal.Decimal `json:"adjustment_qty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	ReceivedAt    time.Time       `json:"received_at"`
}

// LedgerEntryResponse is one stock ledger entry
type LedgerEntryResponse struct {
	ID             uuid.UUID          `json:"id"`
	ItemID         uuid.UUID          `json:"item_id"`
	VariantID      *uuid.UUID         `json:"variant_id,omitempty"`
	Sequence       int64              `json:"sequence"`
	MovementType   stock.MovementType `json:"movement_type"`
	Quantity       decimal.Decimal    `json:"quantity"`
	OpeningBalance decimal.Decimal    `json:"opening_balance"`
	ClosingBalance decimal.Decimal    `json:"closing_balance"`
	UnitIdentifier string             `json:"unit_identifier,omitempty"`
	BatchID        *uuid.UUID         `json:"batch_id,omitempty"`
	UnitCost       decimal.Decimal    `json:"unit_cost"`
	SellingPrice   decimal.Decimal    `json:"selling_price"`
	Memo           string             `json:"memo,omitempty"`
	SourceType     string             `json:"source_type,omitempty"`
	SourceID       *uuid.UUID         `json:"source_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ReceiveStockRequest books purchased goods. Serials receive serialized
// units; otherwise Quantity goes into the named batch.
type ReceiveStockRequest struct {
	ItemID      uuid.UUID       `json:"item_id" binding:"required"`
	VariantID   *uuid.UUID      `json:"variant_id"`
	BatchID     *uuid.UUID      `json:"batch_id"`
	BatchNumber string          `json:"batch_number" binding:"max=50"`
	Quantity    decimal.Decimal `json:"quantity"`
	Serials     []string        `json:"serials" binding:"omitempty,dive,required,max=100"`
	// Incoming registers serials as ordered but not yet on the shelf
	Incoming     bool            `json:"incoming"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	SourceType   string          `json:"source_type" binding:"max=30"`
	SourceID     *uuid.UUID      `json:"source_id"`
}

// AdjustStockRequest applies a signed count correction to a batch
type AdjustStockRequest struct {
	ItemID    uuid.UUID       `json:"item_id" binding:"required"`
	VariantID *uuid.UUID      `json:"variant_id"`
	BatchID   uuid.UUID       `json:"batch_id" binding:"required"`
	Delta     decimal.Decimal `json:"delta" binding:"required"`
	Reason    string          `json:"reason" binding:"required,max=500"`
}

// MarkDamagedRequest writes a serialized unit off
type MarkDamagedRequest struct {
	ItemID    uuid.UUID  `json:"item_id" binding:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Serial    string     `json:"serial" binding:"required,max=100"`
	Reason    string     `json:"reason" binding:"required,max=500"`
}

// CheckInUnitsRequest puts incoming serialized units on the shelf
type CheckInUnitsRequest struct {
	ItemID     uuid.UUID  `json:"item_id" binding:"required"`
	VariantID  *uuid.UUID `json:"variant_id"`
	Serials    []string   `json:"serials" binding:"required,min=1,dive,required,max=100"`
	SourceType string     `json:"source_type" binding:"max=30"`
	SourceID   *uuid.UUID `json:"source_id"`
}

// UnitHoldRequest names one serialized unit to hold or release
type UnitHoldRequest struct {
	ItemID    uuid.UUID  `json:"item_id" binding:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Serial    string     `json:"serial" binding:"required,max=100"`
}

// UnitResponse is the state of one serialized unit
type UnitResponse struct {
	Serial    string           `json:"serial"`
	ItemID    uuid.UUID        `json:"item_id"`
	VariantID *uuid.UUID       `json:"variant_id,omitempty"`
	Status    stock.UnitStatus `json:"status"`
	BatchID   *uuid.UUID       `json:"batch_id,omitempty"`
}

func toUnitResponse(u *stock.UnitStock) UnitResponse {
	return UnitResponse{
		Serial:    u.Serial,
		ItemID:    u.ItemID,
		VariantID: u.Key().Variant(),
		Status:    u.Status,
		BatchID:   u.BatchID,
	}
}

// ToLedgerEntryResponse converts a ledger entry
func ToLedgerEntryResponse(e *stock.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:             e.ID,
		ItemID:         e.ItemID,
		VariantID:      e.Key().Variant(),
		Sequence:       e.Sequence,
		MovementType:   e.MovementType,
		Quantity:       e.Quantity,
		OpeningBalance: e.OpeningBalance,
		ClosingBalance: e.ClosingBalance,
		UnitIdentifier: e.UnitIdentifier,
		BatchID:        e.BatchID,
		UnitCost:       e.UnitCost,
		SellingPrice:   e.SellingPrice,
		Memo:           e.Memo,
		SourceType:     e.SourceType,
		SourceID:       e.SourceID,
		CreatedAt:      e.CreatedAt,
	}
}

func toBatchLevel(b *stock.BatchStock) BatchLevelResponse {
	return BatchLevelResponse{
		BatchID:       b.BatchID,
		VariantID:     b.Key().Variant(),
		BatchNumber:   b.BatchNumber,
		PurchasedQty:  b.PurchasedQty,
		AvailableQty:  b.AvailableQty,
		SoldQty:       b.SoldQty,
		AdjustmentQty: b.AdjustmentQty,
		UnitCost:      b.UnitCost,
		SellingPrice:  b.SellingPrice,
		ReceivedAt:    b.ReceivedAt,
	}
}
