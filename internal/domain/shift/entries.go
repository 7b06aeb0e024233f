package shift

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction of a manual cash movement
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// IsValid checks if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// CashEntry is the forensic record of a manual cash movement
type CashEntry struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ShiftID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"shift_id"`
	Direction     Direction       `gorm:"type:varchar(5);not null" json:"direction"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Reason        string          `gorm:"type:varchar(500)" json:"reason"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance_after"`
	TransactionID uuid.UUID       `gorm:"type:uuid;not null" json:"transaction_id"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (CashEntry) TableName() string {
	return "shift_cash_entries"
}

// SaleKind tells whether a shift sale row adds or removes a tally
type SaleKind string

const (
	SaleKindSale     SaleKind = "SALE"
	SaleKindReversal SaleKind = "REVERSAL"
)

// ShiftSale links a sale document to the shift that tallied its cash
type ShiftSale struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ShiftID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"shift_id"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	Kind       SaleKind        `gorm:"type:varchar(10);not null" json:"kind"`
	CashAmount decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"cash_amount"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (ShiftSale) TableName() string {
	return "shift_sales"
}

func newShiftSale(shiftID, documentID uuid.UUID, kind SaleKind, amount decimal.Decimal) *ShiftSale {
	return &ShiftSale{
		ID:         uuid.New(),
		ShiftID:    shiftID,
		DocumentID: documentID,
		Kind:       kind,
		CashAmount: amount,
		CreatedAt:  time.Now(),
	}
}
