package sales

import (
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeSaleCompleted = "SaleCompleted"
	EventTypeSaleReversed  = "SaleReversed"
)

// SoldUnitInfo describes one serialized unit in a sale event
type SoldUnitInfo struct {
	ItemID         uuid.UUID `json:"item_id"`
	Serial         string    `json:"serial"`
	WarrantyMonths int       `json:"warranty_months"`
}

// SaleCompletedEvent is raised when a sale document is committed
type SaleCompletedEvent struct {
	shared.BaseDomainEvent
	DocumentID  uuid.UUID       `json:"document_id"`
	CustomerID  *uuid.UUID      `json:"customer_id,omitempty"`
	ShiftID     uuid.UUID       `json:"shift_id"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Units       []SoldUnitInfo  `json:"units,omitempty"`
	ReplacesID  *uuid.UUID      `json:"replaces_id,omitempty"`
}

// NewSaleCompletedEvent creates a new SaleCompletedEvent
func NewSaleCompletedEvent(doc *SaleDocument) *SaleCompletedEvent {
	var units []SoldUnitInfo
	for _, l := range doc.Lines {
		for _, s := range l.Serials {
			units = append(units, SoldUnitInfo{ItemID: l.ItemID, Serial: s, WarrantyMonths: l.WarrantyMonths})
		}
	}
	return &SaleCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSaleCompleted, AggregateTypeSale, doc.ID),
		DocumentID:      doc.ID,
		CustomerID:      doc.CustomerID,
		ShiftID:         doc.ShiftID,
		Status:          doc.Status,
		TotalAmount:     doc.TotalAmount,
		PaidAmount:      doc.TotalPaidAmount,
		Units:           units,
		ReplacesID:      doc.ReplacesID,
	}
}

// EventType returns the event type name
func (e *SaleCompletedEvent) EventType() string {
	return EventTypeSaleCompleted
}

// SaleReversedEvent is raised when a sale is reversed or returned
type SaleReversedEvent struct {
	shared.BaseDomainEvent
	DocumentID uuid.UUID `json:"document_id"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason"`
}

// NewSaleReversedEvent creates a new SaleReversedEvent
func NewSaleReversedEvent(doc *SaleDocument) *SaleReversedEvent {
	return &SaleReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSaleReversed, AggregateTypeSale, doc.ID),
		DocumentID:      doc.ID,
		Status:          doc.Status,
		Reason:          doc.Reason,
	}
}

// EventType returns the event type name
func (e *SaleReversedEvent) EventType() string {
	return EventTypeSaleReversed
}
