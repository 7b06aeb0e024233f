package persistence

import (
	"context"

	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shift"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/erp/retailcore/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every repository handed to fn, and the event writer, share one
// transaction, so a protocol commits or rolls back as a whole.
type GormTransactionScope struct {
	db        *gorm.DB
	publisher *event.OutboxPublisher
}

// NewGormTransactionScope creates a new GormTransactionScope. Events written
// through the scope land in the outbox table of the same transaction.
func NewGormTransactionScope(db *gorm.DB, publisher *event.OutboxPublisher) *GormTransactionScope {
	return &GormTransactionScope{db: db, publisher: publisher}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos unitofwork.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRepositories(tx, s.publisher))
	})
}

// GormRepositories hands out repositories bound to one *gorm.DB, which is
// either a transaction or the shared pool.
type GormRepositories struct {
	db        *gorm.DB
	publisher *event.OutboxPublisher
}

// NewGormRepositories binds repositories to db
func NewGormRepositories(db *gorm.DB, publisher *event.OutboxPublisher) *GormRepositories {
	return &GormRepositories{db: db, publisher: publisher}
}

// LedgerRepo returns the stock ledger repository
func (r *GormRepositories) LedgerRepo() stock.LedgerRepository {
	return NewGormLedgerRepository(r.db)
}

// UnitRepo returns the unit stock repository
func (r *GormRepositories) UnitRepo() stock.UnitRepository {
	return NewGormUnitRepository(r.db)
}

// BatchRepo returns the batch stock repository
func (r *GormRepositories) BatchRepo() stock.BatchRepository {
	return NewGormBatchRepository(r.db)
}

// SummaryRepo returns the stock summary repository
func (r *GormRepositories) SummaryRepo() stock.SummaryRepository {
	return NewGormSummaryRepository(r.db)
}

// AccountRepo returns the account repository
func (r *GormRepositories) AccountRepo() accounting.AccountRepository {
	return NewGormAccountRepository(r.db)
}

// TransactionRepo returns the account transaction repository
func (r *GormRepositories) TransactionRepo() accounting.TransactionRepository {
	return NewGormTransactionRepository(r.db)
}

// SaleRepo returns the sale document repository
func (r *GormRepositories) SaleRepo() sales.SaleRepository {
	return NewGormSaleRepository(r.db)
}

// WarrantyRepo returns the warranty repository
func (r *GormRepositories) WarrantyRepo() sales.WarrantyRepository {
	return NewGormWarrantyRepository(r.db)
}

// ShiftRepo returns the shift repository
func (r *GormRepositories) ShiftRepo() shift.ShiftRepository {
	return NewGormShiftRepository(r.db)
}

// DiscrepancyRepo returns the discrepancy log repository
func (r *GormRepositories) DiscrepancyRepo() audit.DiscrepancyRepository {
	return NewGormDiscrepancyRepository(r.db)
}

// OperationRepo returns the step log repository
func (r *GormRepositories) OperationRepo() audit.OperationRepository {
	return NewGormOperationRepository(r.db)
}

// Events returns the outbox writer of the bound transaction
func (r *GormRepositories) Events() unitofwork.EventWriter {
	return r.publisher.Writer(r.db)
}

// Ensure GormTransactionScope implements TransactionScope
var _ unitofwork.TransactionScope = (*GormTransactionScope)(nil)

// Ensure GormRepositories implements Repositories
var _ unitofwork.Repositories = (*GormRepositories)(nil)
