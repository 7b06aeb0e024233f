package persistence

import (
	"context"

	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAccountRepository implements accounting.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// Create inserts a new account
func (r *GormAccountRepository) Create(ctx context.Context, account *accounting.Account) error {
	return translateError(r.db.WithContext(ctx).Create(account).Error)
}

// FindByID finds an account by its ID
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.Account, error) {
	var account accounting.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &account, nil
}

// FindByIDForUpdate locks the account row until the transaction ends
func (r *GormAccountRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*accounting.Account, error) {
	var account accounting.Account
	if err := r.db.WithContext(ctx).Clauses(forUpdate).First(&account, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &account, nil
}

// UpdateBalance writes balance and version if the stored version is one behind
func (r *GormAccountRepository) UpdateBalance(ctx context.Context, account *accounting.Account) error {
	result := r.db.WithContext(ctx).
		Model(&accounting.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version-1).
		Updates(map[string]any{
			"balance":    account.Balance,
			"version":    account.Version,
			"updated_at": account.UpdatedAt,
		})
	return casResult(result, "Account "+account.Name)
}

// AcquireDrawerLock sets the lock field if it is free or already held by
// shiftID; false when another shift holds it
func (r *GormAccountRepository) AcquireDrawerLock(ctx context.Context, accountID, shiftID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&accounting.Account{}).
		Where("id = ? AND (locked_by_shift_id IS NULL OR locked_by_shift_id = ?)", accountID, shiftID).
		Update("locked_by_shift_id", shiftID)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	if _, err := r.FindByID(ctx, accountID); err != nil {
		return false, err
	}
	return false, nil
}

// ReleaseDrawerLock clears the lock field if shiftID holds it
func (r *GormAccountRepository) ReleaseDrawerLock(ctx context.Context, accountID, shiftID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&accounting.Account{}).
		Where("id = ? AND locked_by_shift_id = ?", accountID, shiftID).
		Update("locked_by_shift_id", nil).Error
}

// List returns a page of accounts. filter.Filters accepts "type" and "owner_type".
func (r *GormAccountRepository) List(ctx context.Context, filter shared.Filter) ([]accounting.Account, int64, error) {
	query := r.db.WithContext(ctx).Model(&accounting.Account{})
	for key, value := range filter.Filters {
		switch key {
		case "type":
			query = query.Where("type = ?", value)
		case "owner_type":
			query = query.Where("owner_type = ?", value)
		case "owner_ref":
			query = query.Where("owner_ref = ?", value)
		}
	}
	var accounts []accounting.Account
	total, err := paginate(query, filter, accountSort, &accounts)
	if err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

// GormTransactionRepository implements accounting.TransactionRepository.
// Transactions are insert-only.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Create inserts a transaction. A second reversal of the same transaction
// violates the unique reversal_of index and returns shared.ErrAlreadyExists.
func (r *GormTransactionRepository) Create(ctx context.Context, tx *accounting.Transaction) error {
	return translateError(r.db.WithContext(ctx).Create(tx).Error)
}

// FindByID finds a transaction by its ID
func (r *GormTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.Transaction, error) {
	var tx accounting.Transaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &tx, nil
}

// FindLiveBySource returns the source's transactions that are neither
// reversals themselves nor already reversed
func (r *GormTransactionRepository) FindLiveBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]accounting.Transaction, error) {
	var txs []accounting.Transaction
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND reversal_of IS NULL", sourceType, sourceID).
		Where("NOT EXISTS (SELECT 1 FROM account_transactions r WHERE r.reversal_of = account_transactions.id)").
		Order("created_at, account_id, sequence").
		Find(&txs).Error
	return txs, err
}

// IsReversed reports whether a reversal of id exists
func (r *GormTransactionRepository) IsReversed(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&accounting.Transaction{}).
		Where("reversal_of = ?", id).
		Count(&count).Error
	return count > 0, err
}

// ListByAccount returns a page of an account's transactions, newest first
func (r *GormTransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) ([]accounting.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&accounting.Transaction{}).Where("account_id = ?", accountID)
	if v, ok := filter.Filters["settlement"]; ok {
		query = query.Where("settlement = ?", v)
	}

	var txs []accounting.Transaction
	total, err := paginate(query, filter, sequenceSort, &txs)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// AllByAccount returns every transaction of an account in commit order
func (r *GormTransactionRepository) AllByAccount(ctx context.Context, accountID uuid.UUID) ([]accounting.Transaction, error) {
	var txs []accounting.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("sequence").
		Find(&txs).Error
	return txs, err
}

var (
	_ accounting.AccountRepository     = (*GormAccountRepository)(nil)
	_ accounting.TransactionRepository = (*GormTransactionRepository)(nil)
)
