package stock

import (
	"context"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
)

// LedgerRepository persists stock ledger entries. It exposes no update or
// delete operations.
type LedgerRepository interface {
	// Append inserts a new entry
	Append(ctx context.Context, entry *LedgerEntry) error
	// Last returns the latest entry for key, or nil when the key has none
	Last(ctx context.Context, key Key) (*LedgerEntry, error)
	// History returns entries for an item (optionally one variant) in sequence order
	History(ctx context.Context, itemID uuid.UUID, variantID *uuid.UUID, filter shared.Filter) ([]LedgerEntry, int64, error)
	// Entries returns the full sequence of one key
	Entries(ctx context.Context, key Key) ([]LedgerEntry, error)
	// FindBySource returns entries produced by a document
	FindBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]LedgerEntry, error)
	// Keys lists every key that has ledger entries
	Keys(ctx context.Context) ([]Key, error)
}

// UnitRepository persists serialized units
type UnitRepository interface {
	Create(ctx context.Context, units ...*UnitStock) error
	// Save writes the unit if its stored version is one behind the in-memory version
	Save(ctx context.Context, unit *UnitStock) error
	FindBySerial(ctx context.Context, serial string) (*UnitStock, error)
	// FindBySerialsForUpdate locks and returns units in serial order
	FindBySerialsForUpdate(ctx context.Context, serials []string) ([]*UnitStock, error)
	ListByKey(ctx context.Context, key Key) ([]UnitStock, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]UnitStock, error)
}

// BatchRepository persists batch stock rows
type BatchRepository interface {
	Create(ctx context.Context, batch *BatchStock) error
	// Save writes the batch if its stored version is one behind the in-memory version
	Save(ctx context.Context, batch *BatchStock) error
	// FindForUpdate locks one batch row, shared.ErrNotFound when absent
	FindForUpdate(ctx context.Context, key Key, batchID uuid.UUID) (*BatchStock, error)
	// FindAllForUpdate locks all batches of a key, oldest first
	FindAllForUpdate(ctx context.Context, key Key) ([]*BatchStock, error)
	ListByKey(ctx context.Context, key Key) ([]BatchStock, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]BatchStock, error)
}

// SummaryRepository persists the cached per-key summary
type SummaryRepository interface {
	// Lock returns the summary row of key, creating it when missing, and
	// holds a row lock on it until the surrounding transaction ends
	Lock(ctx context.Context, key Key) (*Summary, error)
	Save(ctx context.Context, summary *Summary) error
	Find(ctx context.Context, key Key) (*Summary, error)
	FindByItem(ctx context.Context, itemID uuid.UUID) ([]Summary, error)
}
