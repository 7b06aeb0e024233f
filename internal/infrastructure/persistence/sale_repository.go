package persistence

import (
	"context"

	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSaleRepository implements sales.SaleRepository using GORM
type GormSaleRepository struct {
	db *gorm.DB
}

// NewGormSaleRepository creates a new GormSaleRepository
func NewGormSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func preloadContent(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Lines", byPosition).
		Preload("Services", byPosition).
		Preload("Payments", byPosition)
}

// Create inserts the document with its lines, services and payments
func (r *GormSaleRepository) Create(ctx context.Context, doc *sales.SaleDocument) error {
	return translateError(r.db.WithContext(ctx).Create(doc).Error)
}

// FindByID loads the document with its children
func (r *GormSaleRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.SaleDocument, error) {
	var doc sales.SaleDocument
	if err := preloadContent(r.db.WithContext(ctx)).First(&doc, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &doc, nil
}

// FindByIDForUpdate locks the document row and loads its children
func (r *GormSaleRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*sales.SaleDocument, error) {
	var doc sales.SaleDocument
	err := preloadContent(r.db.WithContext(ctx).Clauses(forUpdate)).First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &doc, nil
}

func headerColumns(doc *sales.SaleDocument) map[string]any {
	return map[string]any{
		"customer_id":         doc.CustomerID,
		"customer_account_id": doc.CustomerAccountID,
		"shift_id":            doc.ShiftID,
		"drawer_account_id":   doc.DrawerAccountID,
		"total_amount":        doc.TotalAmount,
		"total_paid_amount":   doc.TotalPaidAmount,
		"status":              doc.Status,
		"notes":               doc.Notes,
		"reason":              doc.Reason,
		"replaces_id":         doc.ReplacesID,
		"replaced_by_id":      doc.ReplacedByID,
		"closed_at":           doc.ClosedAt,
		"version":             doc.Version,
		"updated_at":          doc.UpdatedAt,
	}
}

// Save writes header fields with optimistic locking (checks version)
func (r *GormSaleRepository) Save(ctx context.Context, doc *sales.SaleDocument) error {
	result := r.db.WithContext(ctx).
		Model(&sales.SaleDocument{}).
		Where("id = ? AND version = ?", doc.ID, doc.Version-1).
		Updates(headerColumns(doc))
	return casResult(result, "Sale document "+doc.ID.String())
}

// ReplaceContent deletes the stored children, inserts the document's
// current ones and writes the header, all under the version check.
func (r *GormSaleRepository) ReplaceContent(ctx context.Context, doc *sales.SaleDocument) error {
	db := r.db.WithContext(ctx)
	if err := r.Save(ctx, doc); err != nil {
		return err
	}
	for _, model := range []any{&sales.LineItem{}, &sales.ServiceLine{}, &sales.Payment{}} {
		if err := db.Where("document_id = ?", doc.ID).Delete(model).Error; err != nil {
			return err
		}
	}
	for i := range doc.Lines {
		doc.Lines[i].DocumentID = doc.ID
	}
	for i := range doc.Services {
		doc.Services[i].DocumentID = doc.ID
	}
	for i := range doc.Payments {
		doc.Payments[i].DocumentID = doc.ID
	}
	if len(doc.Lines) > 0 {
		if err := db.Omit(clause.Associations).Create(&doc.Lines).Error; err != nil {
			return translateError(err)
		}
	}
	if len(doc.Services) > 0 {
		if err := db.Omit(clause.Associations).Create(&doc.Services).Error; err != nil {
			return translateError(err)
		}
	}
	if len(doc.Payments) > 0 {
		if err := db.Omit(clause.Associations).Create(&doc.Payments).Error; err != nil {
			return translateError(err)
		}
	}
	return nil
}

// List returns a page of documents with their children
func (r *GormSaleRepository) List(ctx context.Context, filter sales.SaleFilter) ([]sales.SaleDocument, int64, error) {
	query := r.db.WithContext(ctx).Model(&sales.SaleDocument{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ShiftID != nil {
		query = query.Where("shift_id = ?", *filter.ShiftID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	var docs []sales.SaleDocument
	total, err := paginate(query, filter.Filter, saleSort, &docs, preloadContent)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// CountByShift counts documents rung up on a shift
func (r *GormSaleRepository) CountByShift(ctx context.Context, shiftID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&sales.SaleDocument{}).
		Where("shift_id = ?", shiftID).
		Count(&count).Error
	return count, err
}

// GormWarrantyRepository implements sales.WarrantyRepository using GORM
type GormWarrantyRepository struct {
	db *gorm.DB
}

// NewGormWarrantyRepository creates a new GormWarrantyRepository
func NewGormWarrantyRepository(db *gorm.DB) *GormWarrantyRepository {
	return &GormWarrantyRepository{db: db}
}

// Upsert inserts records. An existing (document, serial) pair is set back
// to ACTIVE with the new validity window.
func (r *GormWarrantyRepository) Upsert(ctx context.Context, records []*sales.WarrantyRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "serial"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "customer_id", "starts_at", "expires_at"}),
		}).
		Create(records).Error
}

// VoidByDocument voids the active warranties of a document
func (r *GormWarrantyRepository) VoidByDocument(ctx context.Context, documentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&sales.WarrantyRecord{}).
		Where("document_id = ? AND status = ?", documentID, sales.WarrantyActive).
		Update("status", sales.WarrantyVoid).Error
}

// FindByDocument lists the warranties of a document
func (r *GormWarrantyRepository) FindByDocument(ctx context.Context, documentID uuid.UUID) ([]sales.WarrantyRecord, error) {
	var records []sales.WarrantyRecord
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("serial").
		Find(&records).Error
	return records, err
}

// FindBySerial lists every warranty ever issued for a serial, newest first
func (r *GormWarrantyRepository) FindBySerial(ctx context.Context, serial string) ([]sales.WarrantyRecord, error) {
	var records []sales.WarrantyRecord
	err := r.db.WithContext(ctx).
		Where("serial = ?", serial).
		Order("starts_at DESC").
		Find(&records).Error
	return records, err
}

var (
	_ sales.SaleRepository     = (*GormSaleRepository)(nil)
	_ sales.WarrantyRepository = (*GormWarrantyRepository)(nil)
)
