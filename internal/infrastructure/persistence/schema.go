package persistence

import (
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/shift"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/erp/retailcore/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// Models lists every table the engine owns or reads, in creation order
func Models() []any {
	return []any{
		&models.ItemModel{},
		&models.CustomerModel{},
		&stock.LedgerEntry{},
		&stock.UnitStock{},
		&stock.BatchStock{},
		&stock.Summary{},
		&accounting.Account{},
		&accounting.Transaction{},
		&sales.SaleDocument{},
		&sales.LineItem{},
		&sales.ServiceLine{},
		&sales.Payment{},
		&sales.WarrantyRecord{},
		&shift.Shift{},
		&shift.CashEntry{},
		&shift.ShiftSale{},
		&audit.Operation{},
		&audit.Discrepancy{},
		&shared.OutboxEntry{},
	}
}

// AutoMigrate creates or updates the schema. Production databases are
// migrated with the SQL files under migrations/; AutoMigrate serves SQLite
// deployments and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
