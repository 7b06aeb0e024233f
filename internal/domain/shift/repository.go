package shift

import (
	"context"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
)

// ShiftFilter narrows a shift listing
type ShiftFilter struct {
	shared.Filter
	Status     Status
	OperatorID *uuid.UUID
}

// ShiftRepository defines the interface for shift persistence
type ShiftRepository interface {
	// Create inserts the shift; shared.ErrAlreadyExists when the operator already has an active shift
	Create(ctx context.Context, s *Shift) error
	// FindByID loads the shift with its entries and sales
	FindByID(ctx context.Context, id uuid.UUID) (*Shift, error)
	// FindByIDForUpdate locks the shift row until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Shift, error)
	// FindActiveByOperator returns nil when the operator has no active shift
	FindActiveByOperator(ctx context.Context, operatorID uuid.UUID) (*Shift, error)
	// FindActiveByDrawerForUpdate locks and returns the active shift holding the drawer, nil when none
	FindActiveByDrawerForUpdate(ctx context.Context, drawerAccountID uuid.UUID) (*Shift, error)
	// Save writes the shift if its stored version is one behind
	Save(ctx context.Context, s *Shift) error
	AddEntry(ctx context.Context, e *CashEntry) error
	AddSale(ctx context.Context, sale *ShiftSale) error
	ListActive(ctx context.Context) ([]Shift, error)
	List(ctx context.Context, filter ShiftFilter) ([]Shift, int64, error)
}
