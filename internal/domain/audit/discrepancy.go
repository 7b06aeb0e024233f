// Package audit holds the durable records the engine writes when physical
// reality, ledgers or in-flight operations disagree.
package audit

import (
	"context"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscrepancyKind classifies a discrepancy record
type DiscrepancyKind string

const (
	DiscrepancyShiftOpening   DiscrepancyKind = "SHIFT_OPENING"
	DiscrepancyShiftClosing   DiscrepancyKind = "SHIFT_CLOSING"
	DiscrepancyStockOversell  DiscrepancyKind = "STOCK_OVERSELL"
	DiscrepancyStockLedger    DiscrepancyKind = "STOCK_LEDGER"
	DiscrepancyBatchInvariant DiscrepancyKind = "BATCH_INVARIANT"
	DiscrepancyAccountReplay  DiscrepancyKind = "ACCOUNT_REPLAY"
	DiscrepancyUnknownOutcome DiscrepancyKind = "UNKNOWN_OUTCOME"
)

// Discrepancy is a durable record of a mismatch between an expected and an
// observed figure. Difference is actual minus expected: negative means a
// shortage.
type Discrepancy struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        DiscrepancyKind `gorm:"type:varchar(30);not null;index" json:"kind"`
	SubjectType string          `gorm:"type:varchar(30);not null;index:idx_discrepancy_subject,priority:1" json:"subject_type"`
	SubjectID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_discrepancy_subject,priority:2" json:"subject_id"`
	Expected    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"expected"`
	Actual      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"actual"`
	Difference  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"difference"`
	Note        string          `gorm:"type:varchar(500)" json:"note,omitempty"`
	CreatedAt   time.Time       `gorm:"not null;index" json:"created_at"`
}

// TableName returns the table name for GORM
func (Discrepancy) TableName() string {
	return "discrepancy_logs"
}

// NewDiscrepancy builds a record for the given subject
func NewDiscrepancy(kind DiscrepancyKind, subjectType string, subjectID uuid.UUID, expected, actual decimal.Decimal, note string) *Discrepancy {
	return &Discrepancy{
		ID:          uuid.New(),
		Kind:        kind,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Expected:    expected,
		Actual:      actual,
		Difference:  actual.Sub(expected),
		Note:        note,
		CreatedAt:   time.Now(),
	}
}

// IsShortage reports whether less was found than expected
func (d *Discrepancy) IsShortage() bool {
	return d.Difference.IsNegative()
}

// DiscrepancyFilter narrows a discrepancy listing
type DiscrepancyFilter struct {
	shared.Filter
	Kind      DiscrepancyKind
	SubjectID *uuid.UUID
}

// DiscrepancyRepository persists discrepancy records
type DiscrepancyRepository interface {
	Create(ctx context.Context, d *Discrepancy) error
	List(ctx context.Context, filter DiscrepancyFilter) ([]Discrepancy, int64, error)
}
