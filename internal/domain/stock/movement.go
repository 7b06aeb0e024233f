package stock

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType classifies a stock ledger entry
type MovementType string

const (
	MovementPurchaseIn        MovementType = "PURCHASE_IN"
	MovementSaleOut           MovementType = "SALE_OUT"
	MovementReversalIn        MovementType = "REVERSAL_IN"
	MovementReturnIn          MovementType = "RETURN_IN"
	MovementAdjustmentIn      MovementType = "ADJUSTMENT_IN"
	MovementAdjustmentOut     MovementType = "ADJUSTMENT_OUT"
	MovementPurchaseReturnOut MovementType = "PURCHASE_RETURN_OUT"
	MovementCorrection        MovementType = "CORRECTION"
)

// IsValid checks if the movement type is known
func (t MovementType) IsValid() bool {
	switch t {
	case MovementPurchaseIn, MovementSaleOut, MovementReversalIn, MovementReturnIn,
		MovementAdjustmentIn, MovementAdjustmentOut, MovementPurchaseReturnOut, MovementCorrection:
		return true
	}
	return false
}

// String returns the string representation
func (t MovementType) String() string {
	return string(t)
}

// Direction returns +1 for inbound movements, -1 for outbound movements and
// 0 for corrections, which may carry either sign.
func (t MovementType) Direction() int {
	switch t {
	case MovementPurchaseIn, MovementReversalIn, MovementReturnIn, MovementAdjustmentIn:
		return 1
	case MovementSaleOut, MovementAdjustmentOut, MovementPurchaseReturnOut:
		return -1
	}
	return 0
}

// Key identifies the (item, variant) pair a ledger sequence belongs to.
// uuid.Nil stands for "no variant".
type Key struct {
	ItemID    uuid.UUID
	VariantID uuid.UUID
}

// NewKey builds a key from an item and an optional variant
func NewKey(itemID uuid.UUID, variantID *uuid.UUID) Key {
	k := Key{ItemID: itemID}
	if variantID != nil {
		k.VariantID = *variantID
	}
	return k
}

// Variant returns the variant as a pointer, nil when the key has none
func (k Key) Variant() *uuid.UUID {
	if k.VariantID == uuid.Nil {
		return nil
	}
	v := k.VariantID
	return &v
}

// String renders the key for logs and lock names
func (k Key) String() string {
	if k.VariantID == uuid.Nil {
		return k.ItemID.String()
	}
	return k.ItemID.String() + "/" + k.VariantID.String()
}

// Source references the document that caused a movement
type Source struct {
	Type string
	ID   uuid.UUID
}

// Movement is a request to append one entry to the stock ledger.
// Quantity is signed.
type Movement struct {
	Key            Key
	Type           MovementType
	Quantity       decimal.Decimal
	UnitIdentifier string
	BatchID        *uuid.UUID
	UnitCost       decimal.Decimal
	SellingPrice   decimal.Decimal
	Memo           string
	Source         *Source
}
