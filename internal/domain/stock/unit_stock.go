package stock

import (
	"fmt"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnitStatus is the lifecycle state of a serialized unit
type UnitStatus string

const (
	UnitIncoming  UnitStatus = "INCOMING"
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitOnHold    UnitStatus = "ON_HOLD"
	UnitSold      UnitStatus = "SOLD"
	UnitDamaged   UnitStatus = "DAMAGED"
)

// IsValid checks if the status is known
func (s UnitStatus) IsValid() bool {
	switch s {
	case UnitIncoming, UnitAvailable, UnitOnHold, UnitSold, UnitDamaged:
		return true
	}
	return false
}

// OnHand reports whether a unit in this status is physically in stock
func (s UnitStatus) OnHand() bool {
	return s == UnitAvailable || s == UnitOnHold
}

// ErrSerialNotAvailable is returned when a unit cannot be sold
var ErrSerialNotAvailable = shared.NewDomainError("SERIAL_NOT_AVAILABLE", "Serial number is not available for sale")

// UnitStock is one physically unique item instance. Rows are mutated by
// status transitions only and are never deleted once sold.
type UnitStock struct {
	shared.BaseAggregateRoot
	ItemID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_unit_stock_key,priority:1" json:"item_id"`
	VariantID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_unit_stock_key,priority:2" json:"variant_id"`
	Serial         string          `gorm:"type:varchar(100);not null;uniqueIndex" json:"serial"`
	BatchID        *uuid.UUID      `gorm:"type:uuid" json:"batch_id,omitempty"`
	Status         UnitStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_cost"`
	SellingPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"selling_price"`
	Condition      string          `gorm:"type:varchar(50)" json:"condition,omitempty"`
	WarrantyMonths int             `gorm:"not null;default:0" json:"warranty_months"`
	PreviouslySold bool            `gorm:"not null;default:false" json:"previously_sold"`
	SoldDocumentID *uuid.UUID      `gorm:"type:uuid;index" json:"sold_document_id,omitempty"`
}

// TableName returns the table name for GORM
func (UnitStock) TableName() string {
	return "unit_stocks"
}

// Key returns the (item, variant) key of the unit
func (u *UnitStock) Key() Key {
	return Key{ItemID: u.ItemID, VariantID: u.VariantID}
}

// NewUnitStock creates a unit in the given initial status (INCOMING or AVAILABLE)
func NewUnitStock(key Key, serial string, status UnitStatus, cost, price decimal.Decimal) (*UnitStock, error) {
	if serial == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Serial number cannot be empty")
	}
	if status != UnitIncoming && status != UnitAvailable {
		return nil, shared.NewDomainError("INVALID_INPUT", "New units must be INCOMING or AVAILABLE")
	}
	if cost.IsNegative() || price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Unit cost and price cannot be negative")
	}
	return &UnitStock{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ItemID:            key.ItemID,
		VariantID:         key.VariantID,
		Serial:            serial,
		Status:            status,
		UnitCost:          cost,
		SellingPrice:      price,
	}, nil
}

func (u *UnitStock) transition(from []UnitStatus, to UnitStatus) error {
	for _, s := range from {
		if u.Status == s {
			u.Status = to
			u.UpdatedAt = time.Now()
			u.IncrementVersion()
			return nil
		}
	}
	return shared.ErrInvalidState.WithMessage(
		fmt.Sprintf("Unit %s cannot move from %s to %s", u.Serial, u.Status, to),
	).WithDetails(map[string]any{"serial": u.Serial, "status": u.Status})
}

// Sell moves an AVAILABLE unit to SOLD on behalf of a sale document
func (u *UnitStock) Sell(documentID uuid.UUID) error {
	if u.Status != UnitAvailable {
		return ErrSerialNotAvailable.WithMessage(
			fmt.Sprintf("Serial %s is %s, not AVAILABLE", u.Serial, u.Status),
		).WithDetails(map[string]any{"serial": u.Serial, "status": u.Status})
	}
	if err := u.transition([]UnitStatus{UnitAvailable}, UnitSold); err != nil {
		return err
	}
	u.SoldDocumentID = &documentID
	return nil
}

// Release moves a SOLD unit back to AVAILABLE. returned marks the unit as
// having been owned by a customer.
func (u *UnitStock) Release(returned bool) error {
	if err := u.transition([]UnitStatus{UnitSold}, UnitAvailable); err != nil {
		return err
	}
	u.SoldDocumentID = nil
	if returned {
		u.PreviouslySold = true
	}
	return nil
}

// Hold reserves an AVAILABLE unit
func (u *UnitStock) Hold() error {
	return u.transition([]UnitStatus{UnitAvailable}, UnitOnHold)
}

// Unhold returns an ON_HOLD unit to AVAILABLE
func (u *UnitStock) Unhold() error {
	return u.transition([]UnitStatus{UnitOnHold}, UnitAvailable)
}

// Receive makes an INCOMING unit AVAILABLE
func (u *UnitStock) Receive() error {
	return u.transition([]UnitStatus{UnitIncoming}, UnitAvailable)
}

// MarkDamaged takes an on-hand unit out of sellable stock
func (u *UnitStock) MarkDamaged() error {
	return u.transition([]UnitStatus{UnitAvailable, UnitOnHold}, UnitDamaged)
}
