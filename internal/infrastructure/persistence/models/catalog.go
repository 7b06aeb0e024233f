package models

import (
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/shopspring/decimal"
)

// ItemModel is the persistence model of a catalog item
type ItemModel struct {
	BaseModel
	Code           string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name           string          `gorm:"type:varchar(200);not null"`
	Serialized     bool            `gorm:"not null;default:false"`
	ReorderPoint   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	WarrantyMonths int             `gorm:"not null;default:0"`
	Active         bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ItemModel) TableName() string {
	return "catalog_items"
}

// ToDomain converts the model into the sale engine's catalog view
func (m *ItemModel) ToDomain() *sales.CatalogItem {
	return &sales.CatalogItem{
		ID:             m.ID,
		Name:           m.Name,
		Serialized:     m.Serialized,
		ReorderPoint:   m.ReorderPoint,
		WarrantyMonths: m.WarrantyMonths,
	}
}
