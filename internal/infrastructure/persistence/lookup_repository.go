package persistence

import (
	"context"

	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCatalogLookup implements sales.CatalogLookup over the catalog_items table
type GormCatalogLookup struct {
	db *gorm.DB
}

// NewGormCatalogLookup creates a new GormCatalogLookup
func NewGormCatalogLookup(db *gorm.DB) *GormCatalogLookup {
	return &GormCatalogLookup{db: db}
}

// GetItem returns an active catalog item
func (l *GormCatalogLookup) GetItem(ctx context.Context, id uuid.UUID) (*sales.CatalogItem, error) {
	var m models.ItemModel
	if err := l.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	if !m.Active {
		return nil, shared.ErrNotFound.WithMessage("Catalog item is inactive").
			WithDetails(map[string]any{"item_id": id})
	}
	return m.ToDomain(), nil
}

// Save inserts or updates a catalog item
func (l *GormCatalogLookup) Save(ctx context.Context, m *models.ItemModel) error {
	return translateError(l.db.WithContext(ctx).Save(m).Error)
}

// GormCustomerLookup implements sales.CustomerLookup over the customers table
type GormCustomerLookup struct {
	db *gorm.DB
}

// NewGormCustomerLookup creates a new GormCustomerLookup
func NewGormCustomerLookup(db *gorm.DB) *GormCustomerLookup {
	return &GormCustomerLookup{db: db}
}

// GetCustomer returns a customer with its account and credit limit
func (l *GormCustomerLookup) GetCustomer(ctx context.Context, id uuid.UUID) (*sales.Customer, error) {
	var m models.CustomerModel
	if err := l.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return m.ToDomain(), nil
}

// Save inserts or updates a customer
func (l *GormCustomerLookup) Save(ctx context.Context, m *models.CustomerModel) error {
	return translateError(l.db.WithContext(ctx).Save(m).Error)
}

var (
	_ sales.CatalogLookup  = (*GormCatalogLookup)(nil)
	_ sales.CustomerLookup = (*GormCustomerLookup)(nil)
)
