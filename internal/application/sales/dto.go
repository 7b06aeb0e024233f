package sales

import (
	"time"

	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateSaleRequest represents a request to ring up a sale
type CreateSaleRequest struct {
	CustomerID     *uuid.UUID         `json:"customer_id"`
	ShiftID        uuid.UUID          `json:"shift_id" binding:"required"`
	Lines          []SaleLineInput    `json:"lines" binding:"omitempty,dive"`
	Services       []ServiceLineInput `json:"services" binding:"omitempty,dive"`
	Payments       []PaymentInput     `json:"payments" binding:"omitempty,dive"`
	Notes          string             `json:"notes" binding:"max=1000"`
	IdempotencyKey string             `json:"idempotency_key" binding:"max=100"`
}

// SaleLineInput represents a goods line in a sale request
type SaleLineInput struct {
	ItemID    uuid.UUID       `json:"item_id" binding:"required"`
	VariantID *uuid.UUID      `json:"variant_id"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Serials   []string        `json:"serials" binding:"omitempty,dive,required,max=100"`
	BatchID   *uuid.UUID      `json:"batch_id"`
}

// ServiceLineInput represents a service charge in a sale request
type ServiceLineInput struct {
	Description string          `json:"description" binding:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
}

// PaymentInput represents a tender in a sale request
type PaymentInput struct {
	Method string          `json:"method" binding:"required,max=50"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// UpdateSaleRequest patches a sale. Omitted lists keep their current content.
type UpdateSaleRequest struct {
	CustomerID    *uuid.UUID         `json:"customer_id"`
	ClearCustomer bool               `json:"clear_customer"`
	ShiftID       *uuid.UUID         `json:"shift_id"`
	Lines         []SaleLineInput    `json:"lines" binding:"omitempty,dive"`
	Services      []ServiceLineInput `json:"services" binding:"omitempty,dive"`
	Payments      []PaymentInput     `json:"payments" binding:"omitempty,dive"`
	Notes         *string            `json:"notes" binding:"omitempty,max=1000"`
}

// ReverseSaleRequest carries the reason for a reversal or return
type ReverseSaleRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// SaleResponse represents a sale document in API responses
type SaleResponse struct {
	ID              uuid.UUID             `json:"id"`
	CustomerID      *uuid.UUID            `json:"customer_id,omitempty"`
	ShiftID         uuid.UUID             `json:"shift_id"`
	Status          sales.Status          `json:"status"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	TotalPaidAmount decimal.Decimal       `json:"total_paid_amount"`
	DueAmount       decimal.Decimal       `json:"due_amount"`
	ExcessAmount    decimal.Decimal       `json:"excess_amount"`
	Lines           []SaleLineResponse    `json:"lines"`
	Services        []ServiceLineResponse `json:"services"`
	Payments        []PaymentResponse     `json:"payments"`
	Notes           string                `json:"notes,omitempty"`
	Reason          string                `json:"reason,omitempty"`
	ReplacesID      *uuid.UUID            `json:"replaces_id,omitempty"`
	ReplacedByID    *uuid.UUID            `json:"replaced_by_id,omitempty"`
	Version         int                   `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	ClosedAt        *time.Time            `json:"closed_at,omitempty"`
}

// SaleLineResponse represents a goods line in API responses
type SaleLineResponse struct {
	ID             uuid.UUID         `json:"id"`
	ItemID         uuid.UUID         `json:"item_id"`
	VariantID      *uuid.UUID        `json:"variant_id,omitempty"`
	Quantity       decimal.Decimal   `json:"quantity"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	Amount         decimal.Decimal   `json:"amount"`
	Serialized     bool              `json:"serialized"`
	Serials        []string          `json:"serials,omitempty"`
	BatchID        *uuid.UUID        `json:"batch_id,omitempty"`
	UnitCost       decimal.Decimal   `json:"unit_cost"`
	WarrantyMonths int               `json:"warranty_months"`
	Condition      string            `json:"condition,omitempty"`
	Allocations    []stock.Deduction `json:"allocations,omitempty"`
}

// ServiceLineResponse represents a service line in API responses
type ServiceLineResponse struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// PaymentResponse represents a tender in API responses
type PaymentResponse struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	AccountID uuid.UUID       `json:"account_id"`
	Cash      bool            `json:"cash"`
}

// SaleListFilter represents filter options for sale listings
type SaleListFilter struct {
	Status     string     `form:"status" binding:"omitempty,oneof=UNPAID PARTIALLY_PAID PAID RETURNED REVERSED"`
	CustomerID *uuid.UUID `form:"customer_id"`
	ShiftID    *uuid.UUID `form:"shift_id"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ToSaleResponse converts a sale document
func ToSaleResponse(doc *sales.SaleDocument) SaleResponse {
	resp := SaleResponse{
		ID:              doc.ID,
		CustomerID:      doc.CustomerID,
		ShiftID:         doc.ShiftID,
		Status:          doc.Status,
		TotalAmount:     doc.TotalAmount,
		TotalPaidAmount: doc.TotalPaidAmount,
		DueAmount:       doc.DueAmount(),
		ExcessAmount:    doc.ExcessAmount(),
		Lines:           make([]SaleLineResponse, len(doc.Lines)),
		Services:        make([]ServiceLineResponse, len(doc.Services)),
		Payments:        make([]PaymentResponse, len(doc.Payments)),
		Notes:           doc.Notes,
		Reason:          doc.Reason,
		ReplacesID:      doc.ReplacesID,
		ReplacedByID:    doc.ReplacedByID,
		Version:         doc.Version,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		ClosedAt:        doc.ClosedAt,
	}
	for i := range doc.Lines {
		l := &doc.Lines[i]
		resp.Lines[i] = SaleLineResponse{
			ID:             l.ID,
			ItemID:         l.ItemID,
			VariantID:      l.Key().Variant(),
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			Amount:         l.Amount(),
			Serialized:     l.Serialized,
			Serials:        l.Serials,
			BatchID:        l.BatchID,
			UnitCost:       l.UnitCost,
			WarrantyMonths: l.WarrantyMonths,
			Condition:      l.Condition,
			Allocations:    l.Allocations,
		}
	}
	for i, s := range doc.Services {
		resp.Services[i] = ServiceLineResponse{Description: s.Description, Amount: s.Amount}
	}
	for i, p := range doc.Payments {
		resp.Payments[i] = PaymentResponse{Method: p.Method, Amount: p.Amount, AccountID: p.AccountID, Cash: p.Cash}
	}
	return resp
}

func (r *CreateSaleRequest) toDraft() *sales.Draft {
	return &sales.Draft{
		CustomerID: r.CustomerID,
		ShiftID:    r.ShiftID,
		Lines:      toLineDrafts(r.Lines),
		Services:   toServiceDrafts(r.Services),
		Payments:   toPaymentDrafts(r.Payments),
		Notes:      r.Notes,
	}
}

// mergeDraft builds the full new content of doc from a patch
func (r *UpdateSaleRequest) mergeDraft(doc *sales.SaleDocument) *sales.Draft {
	d := &sales.Draft{
		CustomerID: doc.CustomerID,
		ShiftID:    doc.ShiftID,
		Notes:      doc.Notes,
	}
	switch {
	case r.ClearCustomer:
		d.CustomerID = nil
	case r.CustomerID != nil:
		d.CustomerID = r.CustomerID
	}
	if r.ShiftID != nil {
		d.ShiftID = *r.ShiftID
	}
	if r.Notes != nil {
		d.Notes = *r.Notes
	}

	if r.Lines != nil {
		d.Lines = toLineDrafts(r.Lines)
	} else {
		for _, l := range doc.Lines {
			d.Lines = append(d.Lines, sales.LineDraft{
				ItemID:    l.ItemID,
				VariantID: l.Key().Variant(),
				Quantity:  l.Quantity,
				UnitPrice: l.UnitPrice,
				Serials:   l.Serials,
				BatchID:   l.BatchID,
			})
		}
	}
	if r.Services != nil {
		d.Services = toServiceDrafts(r.Services)
	} else {
		for _, s := range doc.Services {
			d.Services = append(d.Services, sales.ServiceDraft{Description: s.Description, Amount: s.Amount})
		}
	}
	if r.Payments != nil {
		d.Payments = toPaymentDrafts(r.Payments)
	} else {
		for _, p := range doc.Payments {
			d.Payments = append(d.Payments, sales.PaymentDraft{Method: p.Method, Amount: p.Amount})
		}
	}
	return d
}

func toLineDrafts(in []SaleLineInput) []sales.LineDraft {
	out := make([]sales.LineDraft, len(in))
	for i, l := range in {
		out[i] = sales.LineDraft{
			ItemID:    l.ItemID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Serials:   l.Serials,
			BatchID:   l.BatchID,
		}
	}
	return out
}

func toServiceDrafts(in []ServiceLineInput) []sales.ServiceDraft {
	out := make([]sales.ServiceDraft, len(in))
	for i, s := range in {
		out[i] = sales.ServiceDraft{Description: s.Description, Amount: s.Amount}
	}
	return out
}

func toPaymentDrafts(in []PaymentInput) []sales.PaymentDraft {
	out := make([]sales.PaymentDraft, len(in))
	for i, p := range in {
		out[i] = sales.PaymentDraft{Method: p.Method, Amount: p.Amount}
	}
	return out
}
