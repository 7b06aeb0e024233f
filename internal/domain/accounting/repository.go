package accounting

import (
	"context"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
)

// AccountRepository persists accounts
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// FindByIDForUpdate locks the account row until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	// UpdateBalance writes balance and version if the stored version is one
	// behind; returns shared.ErrConcurrencyConflict otherwise
	UpdateBalance(ctx context.Context, account *Account) error
	// AcquireDrawerLock sets the lock field if it is free; false when another shift holds it
	AcquireDrawerLock(ctx context.Context, accountID, shiftID uuid.UUID) (bool, error)
	// ReleaseDrawerLock clears the lock field if shiftID holds it
	ReleaseDrawerLock(ctx context.Context, accountID, shiftID uuid.UUID) error
	List(ctx context.Context, filter shared.Filter) ([]Account, int64, error)
}

// TransactionRepository persists immutable transactions. It exposes no
// update or delete operations.
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// FindLiveBySource returns the source's transactions that are neither
	// reversals themselves nor already reversed
	FindLiveBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]Transaction, error)
	// IsReversed reports whether a reversal of id exists
	IsReversed(ctx context.Context, id uuid.UUID) (bool, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) ([]Transaction, int64, error)
	// AllByAccount returns every transaction of an account in commit order
	AllByAccount(ctx context.Context, accountID uuid.UUID) ([]Transaction, error)
}
