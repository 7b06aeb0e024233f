package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const keyCondition = "item_id = ? AND variant_id = ?"

// GormLedgerRepository implements stock.LedgerRepository using GORM.
// Entries are insert-only.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Append inserts a new entry. A second writer claiming the same sequence
// number loses with a concurrency conflict.
func (r *GormLedgerRepository) Append(ctx context.Context, entry *stock.LedgerEntry) error {
	err := translateError(r.db.WithContext(ctx).Create(entry).Error)
	if errors.Is(err, shared.ErrAlreadyExists) {
		return shared.ErrConcurrencyConflict.WithMessage("Stock ledger sequence was taken by another transaction").
			WithDetails(map[string]any{"key": entry.Key().String(), "sequence": entry.Sequence})
	}
	return err
}

// Last returns the latest entry for key, or nil when the key has none
func (r *GormLedgerRepository) Last(ctx context.Context, key stock.Key) (*stock.LedgerEntry, error) {
	var entry stock.LedgerEntry
	err := r.db.WithContext(ctx).
		Where(keyCondition, key.ItemID, key.VariantID).
		Order("sequence DESC").
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// History returns a page of entries for an item, optionally one variant
func (r *GormLedgerRepository) History(ctx context.Context, itemID uuid.UUID, variantID *uuid.UUID, filter shared.Filter) ([]stock.LedgerEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&stock.LedgerEntry{}).Where("item_id = ?", itemID)
	if variantID != nil {
		query = query.Where("variant_id = ?", *variantID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []stock.LedgerEntry
	err := query.
		Order("variant_id, sequence").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Entries returns the full sequence of one key
func (r *GormLedgerRepository) Entries(ctx context.Context, key stock.Key) ([]stock.LedgerEntry, error) {
	var entries []stock.LedgerEntry
	err := r.db.WithContext(ctx).
		Where(keyCondition, key.ItemID, key.VariantID).
		Order("sequence").
		Find(&entries).Error
	return entries, err
}

// FindBySource returns entries produced by a document
func (r *GormLedgerRepository) FindBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]stock.LedgerEntry, error) {
	var entries []stock.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("created_at, sequence").
		Find(&entries).Error
	return entries, err
}

// Keys lists every key that has ledger entries
func (r *GormLedgerRepository) Keys(ctx context.Context) ([]stock.Key, error) {
	var keys []stock.Key
	err := r.db.WithContext(ctx).
		Model(&stock.LedgerEntry{}).
		Distinct("item_id", "variant_id").
		Order("item_id, variant_id").
		Scan(&keys).Error
	return keys, err
}

// GormUnitRepository implements stock.UnitRepository using GORM
type GormUnitRepository struct {
	db *gorm.DB
}

// NewGormUnitRepository creates a new GormUnitRepository
func NewGormUnitRepository(db *gorm.DB) *GormUnitRepository {
	return &GormUnitRepository{db: db}
}

// Create inserts units; a known serial is rejected with shared.ErrAlreadyExists
func (r *GormUnitRepository) Create(ctx context.Context, units ...*stock.UnitStock) error {
	if len(units) == 0 {
		return nil
	}
	return translateError(r.db.WithContext(ctx).Create(units).Error)
}

// Save writes the unit with optimistic locking (checks version)
func (r *GormUnitRepository) Save(ctx context.Context, unit *stock.UnitStock) error {
	result := r.db.WithContext(ctx).
		Model(&stock.UnitStock{}).
		Where("id = ? AND version = ?", unit.ID, unit.Version-1).
		Updates(map[string]any{
			"status":           unit.Status,
			"batch_id":         unit.BatchID,
			"unit_cost":        unit.UnitCost,
			"selling_price":    unit.SellingPrice,
			"condition":        unit.Condition,
			"warranty_months":  unit.WarrantyMonths,
			"previously_sold":  unit.PreviouslySold,
			"sold_document_id": unit.SoldDocumentID,
			"version":          unit.Version,
			"updated_at":       unit.UpdatedAt,
		})
	return casResult(result, "Unit "+unit.Serial)
}

// FindBySerial finds a unit by its serial number
func (r *GormUnitRepository) FindBySerial(ctx context.Context, serial string) (*stock.UnitStock, error) {
	var unit stock.UnitStock
	if err := r.db.WithContext(ctx).Where("serial = ?", serial).First(&unit).Error; err != nil {
		return nil, translateError(err)
	}
	return &unit, nil
}

// FindBySerialsForUpdate locks and returns the known units among serials.
// Rows are locked in serial order so concurrent sales of overlapping units
// cannot deadlock.
func (r *GormUnitRepository) FindBySerialsForUpdate(ctx context.Context, serials []string) ([]*stock.UnitStock, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	var units []*stock.UnitStock
	err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where("serial IN ?", serials).
		Order("serial").
		Find(&units).Error
	return units, err
}

// ListByKey lists every unit of a key
func (r *GormUnitRepository) ListByKey(ctx context.Context, key stock.Key) ([]stock.UnitStock, error) {
	var units []stock.UnitStock
	err := r.db.WithContext(ctx).
		Where(keyCondition, key.ItemID, key.VariantID).
		Order("serial").
		Find(&units).Error
	return units, err
}

// ListByItem lists every unit of an item across variants
func (r *GormUnitRepository) ListByItem(ctx context.Context, itemID uuid.UUID) ([]stock.UnitStock, error) {
	var units []stock.UnitStock
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("variant_id, serial").
		Find(&units).Error
	return units, err
}

// GormBatchRepository implements stock.BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// Create inserts a batch row
func (r *GormBatchRepository) Create(ctx context.Context, batch *stock.BatchStock) error {
	return translateError(r.db.WithContext(ctx).Create(batch).Error)
}

// Save writes the batch counters with optimistic locking (checks version)
func (r *GormBatchRepository) Save(ctx context.Context, batch *stock.BatchStock) error {
	result := r.db.WithContext(ctx).
		Model(&stock.BatchStock{}).
		Where("id = ? AND version = ?", batch.ID, batch.Version-1).
		Updates(map[string]any{
			"purchased_qty":  batch.PurchasedQty,
			"available_qty":  batch.AvailableQty,
			"sold_qty":       batch.SoldQty,
			"adjustment_qty": batch.AdjustmentQty,
			"unit_cost":      batch.UnitCost,
			"selling_price":  batch.SellingPrice,
			"version":        batch.Version,
			"updated_at":     batch.UpdatedAt,
		})
	return casResult(result, "Batch "+batch.BatchID.String())
}

// FindForUpdate locks one batch row, shared.ErrNotFound when absent
func (r *GormBatchRepository) FindForUpdate(ctx context.Context, key stock.Key, batchID uuid.UUID) (*stock.BatchStock, error) {
	var batch stock.BatchStock
	err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where(keyCondition+" AND batch_id = ?", key.ItemID, key.VariantID, batchID).
		First(&batch).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &batch, nil
}

// FindAllForUpdate locks all batches of a key, oldest first
func (r *GormBatchRepository) FindAllForUpdate(ctx context.Context, key stock.Key) ([]*stock.BatchStock, error) {
	var batches []*stock.BatchStock
	err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where(keyCondition, key.ItemID, key.VariantID).
		Order("received_at, batch_id").
		Find(&batches).Error
	return batches, err
}

// ListByKey lists the batches of a key, oldest first
func (r *GormBatchRepository) ListByKey(ctx context.Context, key stock.Key) ([]stock.BatchStock, error) {
	var batches []stock.BatchStock
	err := r.db.WithContext(ctx).
		Where(keyCondition, key.ItemID, key.VariantID).
		Order("received_at, batch_id").
		Find(&batches).Error
	return batches, err
}

// ListByItem lists the batches of an item across variants
func (r *GormBatchRepository) ListByItem(ctx context.Context, itemID uuid.UUID) ([]stock.BatchStock, error) {
	var batches []stock.BatchStock
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("variant_id, received_at, batch_id").
		Find(&batches).Error
	return batches, err
}

// GormSummaryRepository implements stock.SummaryRepository using GORM
type GormSummaryRepository struct {
	db *gorm.DB
}

// NewGormSummaryRepository creates a new GormSummaryRepository
func NewGormSummaryRepository(db *gorm.DB) *GormSummaryRepository {
	return &GormSummaryRepository{db: db}
}

// Lock returns the summary row of key, inserting an empty one first when
// the key is new, and holds a row lock on it until the transaction ends.
func (r *GormSummaryRepository) Lock(ctx context.Context, key stock.Key) (*stock.Summary, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(stock.NewSummary(key)).Error; err != nil {
		return nil, err
	}
	var summary stock.Summary
	err := db.Clauses(forUpdate).
		Where(keyCondition, key.ItemID, key.VariantID).
		First(&summary).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &summary, nil
}

// summaryKey is the conflict target of summary upserts. A zero variant id is
// a real key part, so gorm's primary key detection cannot pick the statement.
var summaryKey = []clause.Column{{Name: "item_id"}, {Name: "variant_id"}}

// Save upserts the summary row
func (r *GormSummaryRepository) Save(ctx context.Context, summary *stock.Summary) error {
	summary.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   summaryKey,
			DoUpdates: clause.AssignmentColumns([]string{"current_stock", "available_for_sale", "last_cost", "last_price", "updated_at"}),
		}).
		Create(summary).Error
}

// Find returns the summary of key, shared.ErrNotFound when the key was never stocked
func (r *GormSummaryRepository) Find(ctx context.Context, key stock.Key) (*stock.Summary, error) {
	var summary stock.Summary
	err := r.db.WithContext(ctx).
		Where(keyCondition, key.ItemID, key.VariantID).
		First(&summary).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &summary, nil
}

// FindByItem returns the summaries of every variant of an item
func (r *GormSummaryRepository) FindByItem(ctx context.Context, itemID uuid.UUID) ([]stock.Summary, error) {
	var summaries []stock.Summary
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("variant_id").
		Find(&summaries).Error
	return summaries, err
}

var (
	_ stock.LedgerRepository  = (*GormLedgerRepository)(nil)
	_ stock.UnitRepository    = (*GormUnitRepository)(nil)
	_ stock.BatchRepository   = (*GormBatchRepository)(nil)
	_ stock.SummaryRepository = (*GormSummaryRepository)(nil)
)
