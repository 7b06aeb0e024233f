// Package shift models a cash-drawer session: the float it opened with,
// the cash moved in and out, the cash sales rung up, and the count it
// closed with.
package shift

import (
	"fmt"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeShift is the aggregate type used in events and discrepancy records
const AggregateTypeShift = "Shift"

// Status is the lifecycle state of a shift
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusClosed   Status = "CLOSED"
	StatusCanceled Status = "CANCELED"
)

var (
	// ErrShiftAlreadyActive is returned when an operator opens a second shift
	ErrShiftAlreadyActive = shared.NewDomainError("SHIFT_ALREADY_ACTIVE", "Operator already has an active shift")
	// ErrDrawerLocked is returned when the drawer is held by another active shift
	ErrDrawerLocked = shared.NewDomainError("DRAWER_LOCKED", "Drawer is locked by another active shift")
)

// Shift is the aggregate root of a drawer session
type Shift struct {
	shared.BaseAggregateRoot
	OperatorID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"operator_id"`
	DrawerAccountID uuid.UUID       `gorm:"type:uuid;not null;index" json:"drawer_account_id"`
	VaultAccountID  *uuid.UUID      `gorm:"type:uuid" json:"vault_account_id,omitempty"`
	VaultAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"vault_amount"`
	Status          Status          `gorm:"type:varchar(20);not null;index" json:"status"`
	// ActiveOperator equals OperatorID while the shift is active and is NULL
	// afterwards, so the unique index allows one active shift per operator.
	ActiveOperator  *uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"-"`
	StartCash       decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"start_cash"`
	CashAdded       decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"cash_added"`
	CashRemoved     decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"cash_removed"`
	CashSales       decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"cash_sales"`
	SaleCount       int              `gorm:"not null;default:0" json:"sale_count"`
	EntryCount      int              `gorm:"not null;default:0" json:"entry_count"`
	OpeningMismatch decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"opening_mismatch"`
	ActualCash      *decimal.Decimal `gorm:"type:decimal(18,4)" json:"actual_cash,omitempty"`
	FinalMismatch   *decimal.Decimal `gorm:"type:decimal(18,4)" json:"final_mismatch,omitempty"`
	Breakdown       map[string]int   `gorm:"type:text;serializer:json" json:"breakdown,omitempty"`
	ForcedClose     bool             `gorm:"not null;default:false" json:"forced_close"`
	OpenedAt        time.Time        `gorm:"not null" json:"opened_at"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
	Entries         []CashEntry      `gorm:"foreignKey:ShiftID" json:"entries,omitempty"`
	Sales           []ShiftSale      `gorm:"foreignKey:ShiftID" json:"sales,omitempty"`
}

// TableName returns the table name for GORM
func (Shift) TableName() string {
	return "shifts"
}

// NewShift creates an active shift with the declared opening cash
func NewShift(operatorID, drawerAccountID uuid.UUID, startCash decimal.Decimal) (*Shift, error) {
	if operatorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Shift requires an operator")
	}
	if drawerAccountID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Shift requires a drawer account")
	}
	if startCash.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Start cash cannot be negative")
	}
	op := operatorID
	s := &Shift{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OperatorID:        operatorID,
		DrawerAccountID:   drawerAccountID,
		Status:            StatusActive,
		ActiveOperator:    &op,
		StartCash:         startCash,
		CashAdded:         decimal.Zero,
		CashRemoved:       decimal.Zero,
		CashSales:         decimal.Zero,
		OpeningMismatch:   decimal.Zero,
		VaultAmount:       decimal.Zero,
	}
	s.OpenedAt = s.CreatedAt
	return s, nil
}

// WithVaultFloat records the float transferred from the vault at open
func (s *Shift) WithVaultFloat(vaultAccountID uuid.UUID, amount decimal.Decimal) {
	s.VaultAccountID = &vaultAccountID
	s.VaultAmount = amount
}

// RecordOpeningMismatch stores declared minus ledger balance at open
func (s *Shift) RecordOpeningMismatch(mismatch decimal.Decimal) {
	s.OpeningMismatch = mismatch
}

// IsActive reports whether the shift still holds its drawer
func (s *Shift) IsActive() bool {
	return s.Status == StatusActive
}

// CalculatedEndCash is the cash the drawer should hold
func (s *Shift) CalculatedEndCash() decimal.Decimal {
	return s.StartCash.Add(s.CashAdded).Sub(s.CashRemoved).Add(s.CashSales)
}

// AddCash records a manual cash movement with the drawer balance before and
// after the posting that moved it.
func (s *Shift) AddCash(direction Direction, amount decimal.Decimal, reason string, before, after decimal.Decimal, transactionID uuid.UUID) (*CashEntry, error) {
	if err := s.ensureActive("adjust cash on"); err != nil {
		return nil, err
	}
	if !direction.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid cash direction: %s", direction))
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Cash amount must be positive")
	}
	if direction == DirectionIn {
		s.CashAdded = s.CashAdded.Add(amount)
	} else {
		s.CashRemoved = s.CashRemoved.Add(amount)
	}
	s.EntryCount++
	s.touch()
	return &CashEntry{
		ID:            uuid.New(),
		ShiftID:       s.ID,
		Direction:     direction,
		Amount:        amount,
		Reason:        reason,
		BalanceBefore: before,
		BalanceAfter:  after,
		TransactionID: transactionID,
		CreatedAt:     time.Now(),
	}, nil
}

// RecordSale adds a sale's cash tender to the running total
func (s *Shift) RecordSale(documentID uuid.UUID, cashAmount decimal.Decimal) (*ShiftSale, error) {
	if err := s.ensureActive("record a sale on"); err != nil {
		return nil, err
	}
	s.CashSales = s.CashSales.Add(cashAmount)
	s.SaleCount++
	s.touch()
	return newShiftSale(s.ID, documentID, SaleKindSale, cashAmount), nil
}

// RemoveSale takes a reversed sale's cash tender out of the running total
func (s *Shift) RemoveSale(documentID uuid.UUID, cashAmount decimal.Decimal) (*ShiftSale, error) {
	if err := s.ensureActive("remove a sale from"); err != nil {
		return nil, err
	}
	s.CashSales = s.CashSales.Sub(cashAmount)
	s.SaleCount++
	s.touch()
	return newShiftSale(s.ID, documentID, SaleKindReversal, cashAmount.Neg()), nil
}

// Close records the physical count and returns actual minus calculated
func (s *Shift) Close(actual decimal.Decimal, breakdown map[string]int) (decimal.Decimal, error) {
	if err := s.ensureActive("close"); err != nil {
		return decimal.Zero, err
	}
	if actual.IsNegative() {
		return decimal.Zero, shared.NewDomainError("INVALID_INPUT", "Actual cash cannot be negative")
	}
	discrepancy := actual.Sub(s.CalculatedEndCash())
	s.finish(StatusClosed, actual, discrepancy)
	s.Breakdown = breakdown
	return discrepancy, nil
}

// ForceClose closes the shift administratively, taking the calculated cash as counted
func (s *Shift) ForceClose() error {
	if err := s.ensureActive("force close"); err != nil {
		return err
	}
	s.finish(StatusClosed, s.CalculatedEndCash(), decimal.Zero)
	s.ForcedClose = true
	return nil
}

// Cancel abandons a shift that never handled money
func (s *Shift) Cancel() error {
	if err := s.ensureActive("cancel"); err != nil {
		return err
	}
	if s.SaleCount > 0 || s.EntryCount > 0 {
		return shared.ErrInvalidState.WithMessage("Cannot cancel a shift that has sales or cash movements").
			WithDetails(map[string]any{"shift_id": s.ID, "sale_count": s.SaleCount, "entry_count": s.EntryCount})
	}
	now := time.Now()
	s.Status = StatusCanceled
	s.ActiveOperator = nil
	s.ClosedAt = &now
	s.touch()
	return nil
}

func (s *Shift) finish(status Status, actual, mismatch decimal.Decimal) {
	now := time.Now()
	s.Status = status
	s.ActiveOperator = nil
	s.ActualCash = &actual
	s.FinalMismatch = &mismatch
	s.ClosedAt = &now
	s.touch()
}

func (s *Shift) ensureActive(action string) error {
	if s.IsActive() {
		return nil
	}
	return shared.ErrInvalidState.WithMessage(fmt.Sprintf("Cannot %s shift %s: shift is %s", action, s.ID, s.Status)).
		WithDetails(map[string]any{"shift_id": s.ID, "status": s.Status})
}

func (s *Shift) touch() {
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}
