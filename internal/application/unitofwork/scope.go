// Package unitofwork defines the transactional boundary every consistency
// protocol runs in, and the step log that records each protocol's outcome.
package unitofwork

import (
	"context"

	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/shift"
	"github.com/erp/retailcore/internal/domain/stock"
)

// TransactionScope provides transactional access to the engine's repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}

// EventWriter stores domain events in the outbox of the current transaction
type EventWriter interface {
	Write(ctx context.Context, events ...shared.DomainEvent) error
}

// Repositories provides access to all repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type Repositories interface {
	LedgerRepo() stock.LedgerRepository
	UnitRepo() stock.UnitRepository
	BatchRepo() stock.BatchRepository
	SummaryRepo() stock.SummaryRepository
	AccountRepo() accounting.AccountRepository
	TransactionRepo() accounting.TransactionRepository
	SaleRepo() sales.SaleRepository
	WarrantyRepo() sales.WarrantyRepository
	ShiftRepo() shift.ShiftRepository
	DiscrepancyRepo() audit.DiscrepancyRepository
	OperationRepo() audit.OperationRepository
	Events() EventWriter
}
