package shift

import (
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventTypeShiftClosed is raised when a shift is closed or force closed
const EventTypeShiftClosed = "ShiftClosed"

// ShiftClosedEvent carries the closing figures of a shift
type ShiftClosedEvent struct {
	shared.BaseDomainEvent
	ShiftID         uuid.UUID       `json:"shift_id"`
	OperatorID      uuid.UUID       `json:"operator_id"`
	DrawerAccountID uuid.UUID       `json:"drawer_account_id"`
	Calculated      decimal.Decimal `json:"calculated"`
	Actual          decimal.Decimal `json:"actual"`
	Discrepancy     decimal.Decimal `json:"discrepancy"`
	Forced          bool            `json:"forced"`
}

// NewShiftClosedEvent creates a new ShiftClosedEvent
func NewShiftClosedEvent(s *Shift) *ShiftClosedEvent {
	e := &ShiftClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeShiftClosed, AggregateTypeShift, s.ID),
		ShiftID:         s.ID,
		OperatorID:      s.OperatorID,
		DrawerAccountID: s.DrawerAccountID,
		Calculated:      s.CalculatedEndCash(),
		Forced:          s.ForcedClose,
	}
	if s.ActualCash != nil {
		e.Actual = *s.ActualCash
	}
	if s.FinalMismatch != nil {
		e.Discrepancy = *s.FinalMismatch
	}
	return e
}

// EventType returns the event type name
func (e *ShiftClosedEvent) EventType() string {
	return EventTypeShiftClosed
}
