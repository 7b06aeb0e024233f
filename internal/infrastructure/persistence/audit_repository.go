package persistence

import (
	"context"
	"time"

	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOperationRepository implements audit.OperationRepository using GORM
type GormOperationRepository struct {
	db *gorm.DB
}

// NewGormOperationRepository creates a new GormOperationRepository
func NewGormOperationRepository(db *gorm.DB) *GormOperationRepository {
	return &GormOperationRepository{db: db}
}

// Create inserts a step log entry. A reused idempotency key returns
// shared.ErrAlreadyExists.
func (r *GormOperationRepository) Create(ctx context.Context, op *audit.Operation) error {
	return translateError(r.db.WithContext(ctx).Create(op).Error)
}

// Save writes the entry's current state
func (r *GormOperationRepository) Save(ctx context.Context, op *audit.Operation) error {
	return translateError(r.db.WithContext(ctx).Save(op).Error)
}

// FindByID finds a step log entry by its ID
func (r *GormOperationRepository) FindByID(ctx context.Context, id uuid.UUID) (*audit.Operation, error) {
	var op audit.Operation
	if err := r.db.WithContext(ctx).First(&op, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &op, nil
}

// FindByKey finds the step log entry that claimed an idempotency key
func (r *GormOperationRepository) FindByKey(ctx context.Context, key string) (*audit.Operation, error) {
	var op audit.Operation
	if err := r.db.WithContext(ctx).First(&op, "idempotency_key = ?", key).Error; err != nil {
		return nil, translateError(err)
	}
	return &op, nil
}

// FindPendingBefore returns PENDING entries started before the given time, oldest first
func (r *GormOperationRepository) FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]audit.Operation, error) {
	var ops []audit.Operation
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", audit.OperationPending, before).
		Order("started_at").
		Limit(limit).
		Find(&ops).Error
	return ops, err
}

// List returns a page of step log entries, optionally of one status
func (r *GormOperationRepository) List(ctx context.Context, status audit.OperationStatus, filter shared.Filter) ([]audit.Operation, int64, error) {
	query := r.db.WithContext(ctx).Model(&audit.Operation{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if kind, ok := filter.Filters["kind"]; ok {
		query = query.Where("kind = ?", kind)
	}
	var ops []audit.Operation
	total, err := paginate(query, filter, operationSort, &ops)
	if err != nil {
		return nil, 0, err
	}
	return ops, total, nil
}

// GormDiscrepancyRepository implements audit.DiscrepancyRepository using GORM
type GormDiscrepancyRepository struct {
	db *gorm.DB
}

// NewGormDiscrepancyRepository creates a new GormDiscrepancyRepository
func NewGormDiscrepancyRepository(db *gorm.DB) *GormDiscrepancyRepository {
	return &GormDiscrepancyRepository{db: db}
}

// Create appends a discrepancy record
func (r *GormDiscrepancyRepository) Create(ctx context.Context, d *audit.Discrepancy) error {
	return r.db.WithContext(ctx).Create(d).Error
}

// List returns a page of discrepancy records
func (r *GormDiscrepancyRepository) List(ctx context.Context, filter audit.DiscrepancyFilter) ([]audit.Discrepancy, int64, error) {
	query := r.db.WithContext(ctx).Model(&audit.Discrepancy{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.SubjectID != nil {
		query = query.Where("subject_id = ?", *filter.SubjectID)
	}
	var records []audit.Discrepancy
	total, err := paginate(query, filter.Filter, discrepancySort, &records)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

var (
	_ audit.OperationRepository   = (*GormOperationRepository)(nil)
	_ audit.DiscrepancyRepository = (*GormDiscrepancyRepository)(nil)
)
