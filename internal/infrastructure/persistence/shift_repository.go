package persistence

import (
	"context"
	"errors"

	"github.com/erp/retailcore/internal/domain/shift"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// shiftColumns are the columns a shift save may change
var shiftColumns = []string{
	"vault_account_id", "vault_amount", "status", "active_operator",
	"start_cash", "cash_added", "cash_removed", "cash_sales",
	"sale_count", "entry_count", "opening_mismatch", "actual_cash",
	"final_mismatch", "breakdown", "forced_close", "closed_at",
	"version", "updated_at",
}

// GormShiftRepository implements shift.ShiftRepository using GORM
type GormShiftRepository struct {
	db *gorm.DB
}

// NewGormShiftRepository creates a new GormShiftRepository
func NewGormShiftRepository(db *gorm.DB) *GormShiftRepository {
	return &GormShiftRepository{db: db}
}

func preloadTally(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Preload("Sales", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") })
}

// Create inserts the shift. The unique active_operator index rejects a
// second active shift of the same operator with shared.ErrAlreadyExists.
func (r *GormShiftRepository) Create(ctx context.Context, s *shift.Shift) error {
	return translateError(r.db.WithContext(ctx).Omit(clause.Associations).Create(s).Error)
}

// FindByID loads the shift with its entries and sales
func (r *GormShiftRepository) FindByID(ctx context.Context, id uuid.UUID) (*shift.Shift, error) {
	var s shift.Shift
	if err := preloadTally(r.db.WithContext(ctx)).First(&s, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &s, nil
}

// FindByIDForUpdate locks the shift row until the transaction ends
func (r *GormShiftRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*shift.Shift, error) {
	var s shift.Shift
	if err := r.db.WithContext(ctx).Clauses(forUpdate).First(&s, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &s, nil
}

// FindActiveByOperator returns nil when the operator has no active shift
func (r *GormShiftRepository) FindActiveByOperator(ctx context.Context, operatorID uuid.UUID) (*shift.Shift, error) {
	return r.findActive(r.db.WithContext(ctx).Where("operator_id = ?", operatorID))
}

// FindActiveByDrawerForUpdate locks and returns the active shift holding the drawer, nil when none
func (r *GormShiftRepository) FindActiveByDrawerForUpdate(ctx context.Context, drawerAccountID uuid.UUID) (*shift.Shift, error) {
	return r.findActive(r.db.WithContext(ctx).Clauses(forUpdate).Where("drawer_account_id = ?", drawerAccountID))
}

func (r *GormShiftRepository) findActive(query *gorm.DB) (*shift.Shift, error) {
	var s shift.Shift
	err := query.Where("status = ?", shift.StatusActive).Order("opened_at DESC").Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the shift with optimistic locking (checks version)
func (r *GormShiftRepository) Save(ctx context.Context, s *shift.Shift) error {
	result := r.db.WithContext(ctx).
		Model(s).
		Where("version = ?", s.Version-1).
		Select(shiftColumns).
		Updates(s)
	return casResult(result, "Shift "+s.ID.String())
}

// AddEntry records a manual cash movement
func (r *GormShiftRepository) AddEntry(ctx context.Context, e *shift.CashEntry) error {
	return translateError(r.db.WithContext(ctx).Create(e).Error)
}

// AddSale links a sale document to the shift tally
func (r *GormShiftRepository) AddSale(ctx context.Context, sale *shift.ShiftSale) error {
	return translateError(r.db.WithContext(ctx).Create(sale).Error)
}

// ListActive returns every active shift, oldest first
func (r *GormShiftRepository) ListActive(ctx context.Context) ([]shift.Shift, error) {
	var shifts []shift.Shift
	err := r.db.WithContext(ctx).
		Where("status = ?", shift.StatusActive).
		Order("opened_at").
		Find(&shifts).Error
	return shifts, err
}

// List returns a page of shifts without their entries
func (r *GormShiftRepository) List(ctx context.Context, filter shift.ShiftFilter) ([]shift.Shift, int64, error) {
	query := r.db.WithContext(ctx).Model(&shift.Shift{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OperatorID != nil {
		query = query.Where("operator_id = ?", *filter.OperatorID)
	}
	var shifts []shift.Shift
	total, err := paginate(query, filter.Filter, shiftSort, &shifts)
	if err != nil {
		return nil, 0, err
	}
	return shifts, total, nil
}

var _ shift.ShiftRepository = (*GormShiftRepository)(nil)
