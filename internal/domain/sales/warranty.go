package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WarrantyStatus is the state of a warranty record
type WarrantyStatus string

const (
	WarrantyActive WarrantyStatus = "ACTIVE"
	WarrantyVoid   WarrantyStatus = "VOID"
)

// WarrantyRecord covers one sold serialized unit
type WarrantyRecord struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_warranty_doc_serial,priority:1" json:"document_id"`
	Serial     string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_warranty_doc_serial,priority:2;index" json:"serial"`
	ItemID     uuid.UUID      `gorm:"type:uuid;not null" json:"item_id"`
	CustomerID *uuid.UUID     `gorm:"type:uuid" json:"customer_id,omitempty"`
	Status     WarrantyStatus `gorm:"type:varchar(10);not null" json:"status"`
	StartsAt   time.Time      `gorm:"not null" json:"starts_at"`
	ExpiresAt  time.Time      `gorm:"not null" json:"expires_at"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (WarrantyRecord) TableName() string {
	return "warranty_records"
}

// NewWarrantyRecord starts a warranty at soldAt for the given number of months
func NewWarrantyRecord(documentID uuid.UUID, customerID *uuid.UUID, itemID uuid.UUID, serial string, months int, soldAt time.Time) *WarrantyRecord {
	return &WarrantyRecord{
		ID:         uuid.New(),
		DocumentID: documentID,
		Serial:     serial,
		ItemID:     itemID,
		CustomerID: customerID,
		Status:     WarrantyActive,
		StartsAt:   soldAt,
		ExpiresAt:  soldAt.AddDate(0, months, 0),
		CreatedAt:  time.Now(),
	}
}

// WarrantyRepository persists warranty records
type WarrantyRepository interface {
	// Upsert inserts records. An existing (document, serial) pair is set back
	// to ACTIVE with the new validity window.
	Upsert(ctx context.Context, records []*WarrantyRecord) error
	VoidByDocument(ctx context.Context, documentID uuid.UUID) error
	FindByDocument(ctx context.Context, documentID uuid.UUID) ([]WarrantyRecord, error)
	FindBySerial(ctx context.Context, serial string) ([]WarrantyRecord, error)
}
