package sales

import (
	"context"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
)

// SaleFilter narrows a sale listing
type SaleFilter struct {
	shared.Filter
	Status     Status
	CustomerID *uuid.UUID
	ShiftID    *uuid.UUID
	From       *time.Time
	To         *time.Time
}

// SaleRepository defines the interface for sale document persistence
type SaleRepository interface {
	// Create inserts the document with its lines, services and payments
	Create(ctx context.Context, doc *SaleDocument) error
	// FindByID loads the document with its children
	FindByID(ctx context.Context, id uuid.UUID) (*SaleDocument, error)
	// FindByIDForUpdate locks the document row and loads its children
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*SaleDocument, error)
	// Save writes header fields if the stored version is one behind
	Save(ctx context.Context, doc *SaleDocument) error
	// ReplaceContent swaps the children and header fields in place
	ReplaceContent(ctx context.Context, doc *SaleDocument) error
	List(ctx context.Context, filter SaleFilter) ([]SaleDocument, int64, error)
	// CountByShift counts documents rung up on a shift
	CountByShift(ctx context.Context, shiftID uuid.UUID) (int64, error)
}
