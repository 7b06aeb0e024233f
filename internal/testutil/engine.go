// Package testutil wires the retail engine over an in-memory SQLite database
// and provides the seed helpers and HTTP helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	appacct "github.com/erp/retailcore/internal/application/accounting"
	appevent "github.com/erp/retailcore/internal/application/event"
	"github.com/erp/retailcore/internal/application/reconcile"
	appsales "github.com/erp/retailcore/internal/application/sales"
	appshift "github.com/erp/retailcore/internal/application/shift"
	appstock "github.com/erp/retailcore/internal/application/stock"
	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/erp/retailcore/internal/infrastructure/config"
	"github.com/erp/retailcore/internal/infrastructure/event"
	"github.com/erp/retailcore/internal/infrastructure/lock"
	"github.com/erp/retailcore/internal/infrastructure/persistence"
	"github.com/erp/retailcore/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine is a fully wired engine backed by one SQLite database
type Engine struct {
	DB     *gorm.DB
	Logger *zap.Logger

	Scope     *persistence.GormTransactionScope
	Runner    *unitofwork.Runner
	Outbox    *event.GormOutboxRepository
	Locker    *lock.LocalLocker
	Catalog   *persistence.GormCatalogLookup
	Customers *persistence.GormCustomerLookup
	Payments  *sales.PaymentRegistry

	Sales       *appsales.Service
	Shifts      *appshift.Service
	Accounts    *appacct.Service
	Stock       *appstock.Service
	Reconcile   *reconcile.Service
	OutboxAdmin *appevent.OutboxService

	// CompanyAccount receives card payments
	CompanyAccount *accounting.Account
}

// NewDB opens a migrated in-memory SQLite database that is closed with the test
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, persistence.AutoMigrate(database.DB))
	return database.DB
}

// NewEngine wires every service over a fresh SQLite database. Payment
// methods "cash" and "card" are registered; card settles to CompanyAccount.
func NewEngine(t testing.TB) *Engine {
	t.Helper()
	return NewEngineOn(t, NewDB(t))
}

// NewEngineOn wires every service over an already migrated database
func NewEngineOn(t testing.TB, db *gorm.DB) *Engine {
	t.Helper()
	logger := zap.NewNop()

	publisher := event.NewOutboxPublisher(event.NewRegisteredSerializer())
	scope := persistence.NewGormTransactionScope(db, publisher)
	runner := unitofwork.NewRunner(scope, persistence.NewGormOperationRepository(db), logger)

	e := &Engine{
		DB:        db,
		Logger:    logger,
		Scope:     scope,
		Runner:    runner,
		Outbox:    event.NewGormOutboxRepository(db),
		Locker:    lock.NewLocalLocker(),
		Catalog:   persistence.NewGormCatalogLookup(db),
		Customers: persistence.NewGormCustomerLookup(db),
	}
	e.CompanyAccount = e.NewAccount(t, "Company bank", accounting.AccountTypeBank, accounting.OwnerCompany, nil)

	payments, err := sales.NewPaymentRegistry(e.CompanyAccount.ID, []sales.PaymentMethod{
		{Name: "cash", Cash: true},
		{Name: "card"},
	})
	require.NoError(t, err)
	e.Payments = payments

	accountRepo := persistence.NewGormAccountRepository(db)
	txRepo := persistence.NewGormTransactionRepository(db)
	ledgerRepo := persistence.NewGormLedgerRepository(db)
	summaryRepo := persistence.NewGormSummaryRepository(db)
	batchRepo := persistence.NewGormBatchRepository(db)

	e.Sales = appsales.NewService(runner, persistence.NewGormSaleRepository(db), e.Catalog, e.Customers, payments, logger)
	e.Shifts = appshift.NewService(runner, persistence.NewGormShiftRepository(db), e.Locker, time.Second, logger)
	e.Accounts = appacct.NewService(scope, accountRepo, txRepo, logger)
	e.Stock = appstock.NewService(scope, ledgerRepo, summaryRepo, batchRepo, persistence.NewGormUnitRepository(db), logger)
	e.Reconcile = reconcile.NewService(
		scope,
		persistence.NewGormOperationRepository(db),
		persistence.NewGormDiscrepancyRepository(db),
		ledgerRepo, summaryRepo, batchRepo,
		accountRepo, txRepo,
		reconcile.DefaultConfig(),
		logger,
	)
	e.OutboxAdmin = appevent.NewOutboxService(e.Outbox, logger)
	return e
}

// NewAccount creates an account with a zero balance
func (e *Engine) NewAccount(t testing.TB, name string, typ accounting.AccountType, owner accounting.OwnerType, ref *uuid.UUID) *accounting.Account {
	t.Helper()
	acct, err := accounting.NewAccount(name, typ, owner, ref)
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormAccountRepository(e.DB).Create(context.Background(), acct))
	return acct
}

// NewDrawer creates a company cash account
func (e *Engine) NewDrawer(t testing.TB) *accounting.Account {
	t.Helper()
	return e.NewAccount(t, "Till "+uuid.NewString()[:8], accounting.AccountTypeCash, accounting.OwnerCompany, nil)
}

// Account reloads an account
func (e *Engine) Account(t testing.TB, id uuid.UUID) *accounting.Account {
	t.Helper()
	acct, err := persistence.NewGormAccountRepository(e.DB).FindByID(context.Background(), id)
	require.NoError(t, err)
	return acct
}

// Balance returns the current balance of an account
func (e *Engine) Balance(t testing.TB, id uuid.UUID) decimal.Decimal {
	t.Helper()
	return e.Account(t, id).Balance
}

// Deposit posts a manual deposit to an account
func (e *Engine) Deposit(t testing.TB, id uuid.UUID, amount decimal.Decimal) {
	t.Helper()
	_, err := e.Accounts.PostTransaction(context.Background(), appacct.PostTransactionRequest{
		AccountID: id,
		Amount:    amount,
		Type:      accounting.TransactionDeposit,
		Reason:    "seed",
	})
	require.NoError(t, err)
}

// NewItem registers a catalog item
func (e *Engine) NewItem(t testing.TB, serialized bool, warrantyMonths int) uuid.UUID {
	t.Helper()
	m := &models.ItemModel{
		BaseModel:      models.NewBaseModel(),
		Name:           "Item",
		Serialized:     serialized,
		ReorderPoint:   decimal.NewFromInt(1),
		WarrantyMonths: warrantyMonths,
		Active:         true,
	}
	m.Code = "SKU-" + m.ID.String()[:8]
	require.NoError(t, e.Catalog.Save(context.Background(), m))
	return m.ID
}

// NewCustomer registers a customer with its own account. A nil limit means unlimited credit.
func (e *Engine) NewCustomer(t testing.TB, limit *decimal.Decimal) (customerID uuid.UUID, account *accounting.Account) {
	t.Helper()
	customerID = uuid.New()
	account = e.NewAccount(t, "Customer "+customerID.String()[:8], accounting.AccountTypeCustomer, accounting.OwnerCustomer, &customerID)
	m := &models.CustomerModel{
		BaseModel:   models.BaseModel{ID: customerID, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Name:        "Customer",
		AccountID:   account.ID,
		CreditLimit: limit,
	}
	require.NoError(t, e.Customers.Save(context.Background(), m))
	return customerID, account
}

// ReceiveUnits books serialized units of an item
func (e *Engine) ReceiveUnits(t testing.TB, itemID uuid.UUID, cost, price decimal.Decimal, serials ...string) {
	t.Helper()
	_, err := e.Stock.Receive(context.Background(), appstock.ReceiveStockRequest{
		ItemID:       itemID,
		Serials:      serials,
		UnitCost:     cost,
		SellingPrice: price,
	})
	require.NoError(t, err)
}

// ReceiveBatch books a batch of an item and returns its id
func (e *Engine) ReceiveBatch(t testing.TB, itemID uuid.UUID, qty, cost, price decimal.Decimal) uuid.UUID {
	t.Helper()
	batchID := uuid.New()
	_, err := e.Stock.Receive(context.Background(), appstock.ReceiveStockRequest{
		ItemID:       itemID,
		BatchID:      &batchID,
		BatchNumber:  fmt.Sprintf("B-%s", batchID.String()[:8]),
		Quantity:     qty,
		UnitCost:     cost,
		SellingPrice: price,
	})
	require.NoError(t, err)
	return batchID
}

// OpenShift opens a shift on a new drawer seeded with startCash
func (e *Engine) OpenShift(t testing.TB, startCash decimal.Decimal) (*appshift.ShiftResponse, *accounting.Account) {
	t.Helper()
	drawer := e.NewDrawer(t)
	if startCash.IsPositive() {
		e.Deposit(t, drawer.ID, startCash)
	}
	sh, err := e.Shifts.OpenShift(context.Background(), appshift.OpenShiftRequest{
		OperatorID:      uuid.New(),
		DrawerAccountID: drawer.ID,
		StartCash:       startCash,
	})
	require.NoError(t, err)
	return sh, drawer
}

// Unit loads a serialized unit
func (e *Engine) Unit(t testing.TB, serial string) *stock.UnitStock {
	t.Helper()
	u, err := persistence.NewGormUnitRepository(e.DB).FindBySerial(context.Background(), serial)
	require.NoError(t, err)
	return u
}

// Batches lists the batches of an item without a variant, oldest first
func (e *Engine) Batches(t testing.TB, itemID uuid.UUID) []stock.BatchStock {
	t.Helper()
	batches, err := persistence.NewGormBatchRepository(e.DB).ListByKey(context.Background(), stock.NewKey(itemID, nil))
	require.NoError(t, err)
	return batches
}

// Entries returns the full ledger sequence of an item without a variant
func (e *Engine) Entries(t testing.TB, itemID uuid.UUID) []stock.LedgerEntry {
	t.Helper()
	entries, err := persistence.NewGormLedgerRepository(e.DB).Entries(context.Background(), stock.NewKey(itemID, nil))
	require.NoError(t, err)
	return entries
}

// Transactions returns every transaction of an account in commit order
func (e *Engine) Transactions(t testing.TB, accountID uuid.UUID) []accounting.Transaction {
	t.Helper()
	txs, err := persistence.NewGormTransactionRepository(e.DB).AllByAccount(context.Background(), accountID)
	require.NoError(t, err)
	return txs
}

// Discrepancies lists logged discrepancies of one kind
func (e *Engine) Discrepancies(t testing.TB, kind audit.DiscrepancyKind) []audit.Discrepancy {
	t.Helper()
	items, _, err := e.Reconcile.ListDiscrepancies(context.Background(), reconcile.DiscrepancyListFilter{
		Kind:     string(kind),
		Page:     1,
		PageSize: 100,
	})
	require.NoError(t, err)
	return items
}

// Dec parses a decimal literal
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DecPtr parses a decimal literal into a pointer
func DecPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
