package sales

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a sale document
type Status string

const (
	StatusUnpaid        Status = "UNPAID"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusReturned      Status = "RETURNED"
	StatusReversed      Status = "REVERSED"
)

// IsTerminal reports whether no further transition is allowed
func (s Status) IsTerminal() bool {
	return s == StatusReturned || s == StatusReversed
}

// IsSettled reports whether money has been received against the document
func (s Status) IsSettled() bool {
	return s == StatusPaid || s == StatusPartiallyPaid
}

// DeriveStatus maps paid against total on creation
func DeriveStatus(total, paid decimal.Decimal) Status {
	switch {
	case !paid.IsPositive():
		return StatusUnpaid
	case paid.LessThan(total):
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// AggregateTypeSale is the aggregate type used in events and step logs
const AggregateTypeSale = "SaleDocument"

// LineItem is one goods line of a sale
type LineItem struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"document_id"`
	ItemID         uuid.UUID         `gorm:"type:uuid;not null" json:"item_id"`
	VariantID      uuid.UUID         `gorm:"type:uuid;not null" json:"variant_id"`
	Quantity       decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice      decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	Serialized     bool              `gorm:"not null" json:"serialized"`
	Serials        []string          `gorm:"type:text;serializer:json" json:"serials,omitempty"`
	BatchID        *uuid.UUID        `gorm:"type:uuid" json:"batch_id,omitempty"`
	UnitCost       decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"unit_cost"`
	WarrantyMonths int               `gorm:"not null;default:0" json:"warranty_months"`
	Condition      string            `gorm:"type:varchar(50)" json:"condition,omitempty"`
	Allocations    []stock.Deduction `gorm:"type:text;serializer:json" json:"allocations,omitempty"`
	Position       int               `gorm:"not null" json:"position"`
}

// TableName returns the table name for GORM
func (LineItem) TableName() string {
	return "sale_line_items"
}

// Key returns the stock key of the line
func (l *LineItem) Key() stock.Key {
	return stock.Key{ItemID: l.ItemID, VariantID: l.VariantID}
}

// Amount returns quantity times unit price
func (l *LineItem) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// ServiceLine is a non-stock charge (labour, installation)
type ServiceLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	Description string          `gorm:"type:varchar(200);not null" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Position    int             `gorm:"not null" json:"position"`
}

// TableName returns the table name for GORM
func (ServiceLine) TableName() string {
	return "sale_service_lines"
}

// Payment is one tender against the document, with the account it resolved to
type Payment struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	Method     string          `gorm:"type:varchar(50);not null" json:"method"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	AccountID  uuid.UUID       `gorm:"type:uuid;not null" json:"account_id"`
	Cash       bool            `gorm:"not null" json:"cash"`
	Position   int             `gorm:"not null" json:"position"`
}

// TableName returns the table name for GORM
func (Payment) TableName() string {
	return "sale_payments"
}

// LineDraft is requested goods line data
type LineDraft struct {
	ItemID    uuid.UUID
	VariantID *uuid.UUID
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Serials   []string
	BatchID   *uuid.UUID
}

// ServiceDraft is requested service line data
type ServiceDraft struct {
	Description string
	Amount      decimal.Decimal
}

// PaymentDraft is a requested tender
type PaymentDraft struct {
	Method string
	Amount decimal.Decimal
}

// Draft is the full content of a sale request
type Draft struct {
	CustomerID *uuid.UUID
	ShiftID    uuid.UUID
	Lines      []LineDraft
	Services   []ServiceDraft
	Payments   []PaymentDraft
	Notes      string
}

// Validate checks the structural validity of the draft
func (d *Draft) Validate() error {
	if d.ShiftID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Sale requires a shift")
	}
	if len(d.Lines) == 0 && len(d.Services) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "Sale must have at least one line")
	}
	seen := make(map[string]bool)
	for i, l := range d.Lines {
		if l.ItemID == uuid.Nil {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Line %d has no item", i+1))
		}
		if !l.Quantity.IsPositive() {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Line %d quantity must be positive", i+1))
		}
		if l.UnitPrice.IsNegative() {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Line %d price cannot be negative", i+1))
		}
		for _, s := range l.Serials {
			if s == "" {
				return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Line %d has an empty serial", i+1))
			}
			if seen[s] {
				return shared.ErrAlreadyExists.WithMessage(fmt.Sprintf("Serial %s appears twice in the sale", s)).
					WithDetails(map[string]any{"serial": s})
			}
			seen[s] = true
		}
	}
	for i, s := range d.Services {
		if s.Description == "" {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Service line %d has no description", i+1))
		}
		if s.Amount.IsNegative() {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Service line %d amount cannot be negative", i+1))
		}
	}
	for i, p := range d.Payments {
		if p.Method == "" {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Payment %d has no method", i+1))
		}
		if !p.Amount.IsPositive() {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Payment %d amount must be positive", i+1))
		}
	}
	return nil
}

// Total returns the sum of all goods and service lines in the draft
func (d *Draft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Quantity.Mul(l.UnitPrice))
	}
	for _, s := range d.Services {
		total = total.Add(s.Amount)
	}
	return total
}

// Paid returns the sum of all payments in the draft
func (d *Draft) Paid() decimal.Decimal {
	paid := decimal.Zero
	for _, p := range d.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

// SaleDocument is the aggregate root of a sale
type SaleDocument struct {
	shared.BaseAggregateRoot
	CustomerID        *uuid.UUID      `gorm:"type:uuid;index" json:"customer_id,omitempty"`
	CustomerAccountID *uuid.UUID      `gorm:"type:uuid" json:"customer_account_id,omitempty"`
	ShiftID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"shift_id"`
	DrawerAccountID   uuid.UUID       `gorm:"type:uuid;not null" json:"drawer_account_id"`
	Lines             []LineItem      `gorm:"foreignKey:DocumentID" json:"lines"`
	Services          []ServiceLine   `gorm:"foreignKey:DocumentID" json:"services"`
	Payments          []Payment       `gorm:"foreignKey:DocumentID" json:"payments"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_amount"`
	TotalPaidAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_paid_amount"`
	Status            Status          `gorm:"type:varchar(20);not null;index" json:"status"`
	Notes             string          `gorm:"type:varchar(1000)" json:"notes,omitempty"`
	Reason            string          `gorm:"type:varchar(500)" json:"reason,omitempty"`
	ReplacesID        *uuid.UUID      `gorm:"type:uuid" json:"replaces_id,omitempty"`
	ReplacedByID      *uuid.UUID      `gorm:"type:uuid" json:"replaced_by_id,omitempty"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
}

// TableName returns the table name for GORM
func (SaleDocument) TableName() string {
	return "sale_documents"
}

// NewSaleDocument creates a document shell; lines and payments are attached
// with SetContent once catalog data and payment accounts are resolved.
func NewSaleDocument(shiftID, drawerAccountID uuid.UUID, customer *Customer) *SaleDocument {
	doc := &SaleDocument{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ShiftID:           shiftID,
		DrawerAccountID:   drawerAccountID,
		Status:            StatusUnpaid,
	}
	if customer != nil {
		id, acct := customer.ID, customer.AccountID
		doc.CustomerID = &id
		doc.CustomerAccountID = &acct
	}
	return doc
}

// SetContent replaces lines, services and payments and recomputes totals and status
func (d *SaleDocument) SetContent(lines []LineItem, services []ServiceLine, payments []Payment) {
	for i := range lines {
		lines[i].DocumentID = d.ID
		lines[i].Position = i
		if lines[i].ID == uuid.Nil {
			lines[i].ID = uuid.New()
		}
	}
	for i := range services {
		services[i].DocumentID = d.ID
		services[i].Position = i
		if services[i].ID == uuid.Nil {
			services[i].ID = uuid.New()
		}
	}
	for i := range payments {
		payments[i].DocumentID = d.ID
		payments[i].Position = i
		if payments[i].ID == uuid.Nil {
			payments[i].ID = uuid.New()
		}
	}
	d.Lines, d.Services, d.Payments = lines, services, payments

	total := decimal.Zero
	for i := range d.Lines {
		total = total.Add(d.Lines[i].Amount())
	}
	for _, s := range d.Services {
		total = total.Add(s.Amount)
	}
	paid := decimal.Zero
	for _, p := range d.Payments {
		paid = paid.Add(p.Amount)
	}
	d.TotalAmount = total
	d.TotalPaidAmount = paid
	d.Status = DeriveStatus(total, paid)
	d.UpdatedAt = time.Now()
}

// DueAmount is the unpaid remainder, never negative
func (d *SaleDocument) DueAmount() decimal.Decimal {
	due := d.TotalAmount.Sub(d.TotalPaidAmount)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// ExcessAmount is the overpayment credited back to the customer, never negative
func (d *SaleDocument) ExcessAmount() decimal.Decimal {
	excess := d.TotalPaidAmount.Sub(d.TotalAmount)
	if excess.IsNegative() {
		return decimal.Zero
	}
	return excess
}

// CashAmount is the part of the payments tendered in cash
func (d *SaleDocument) CashAmount() decimal.Decimal {
	cash := decimal.Zero
	for _, p := range d.Payments {
		if p.Cash {
			cash = cash.Add(p.Amount)
		}
	}
	return cash
}

// HasFinancialDelta reports whether applying draft would change customer,
// goods, amounts or payments
func (d *SaleDocument) HasFinancialDelta(draft *Draft) bool {
	if !sameUUIDPtr(d.CustomerID, draft.CustomerID) {
		return true
	}
	if len(d.Lines) != len(draft.Lines) || len(d.Services) != len(draft.Services) || len(d.Payments) != len(draft.Payments) {
		return true
	}
	for i := range d.Lines {
		l, n := d.Lines[i], draft.Lines[i]
		variant := stock.NewKey(n.ItemID, n.VariantID).VariantID
		if l.ItemID != n.ItemID || l.VariantID != variant ||
			!l.Quantity.Equal(n.Quantity) || !l.UnitPrice.Equal(n.UnitPrice) ||
			!sameUUIDPtr(l.BatchID, n.BatchID) || !sameSerials(l.Serials, n.Serials) {
			return true
		}
	}
	for i := range d.Services {
		if d.Services[i].Description != draft.Services[i].Description || !d.Services[i].Amount.Equal(draft.Services[i].Amount) {
			return true
		}
	}
	for i := range d.Payments {
		if normalizeMethod(d.Payments[i].Method) != normalizeMethod(draft.Payments[i].Method) ||
			!d.Payments[i].Amount.Equal(draft.Payments[i].Amount) {
			return true
		}
	}
	return false
}

// UpdateNotes changes the non-financial fields in place
func (d *SaleDocument) UpdateNotes(notes string) error {
	if d.Status.IsTerminal() {
		return d.terminalError("update")
	}
	d.Notes = notes
	d.UpdatedAt = time.Now()
	d.IncrementVersion()
	return nil
}

// MarkReversed closes the document as reversed
func (d *SaleDocument) MarkReversed(reason string) error {
	return d.close(StatusReversed, reason)
}

// MarkReturned closes the document as returned
func (d *SaleDocument) MarkReturned(reason string) error {
	return d.close(StatusReturned, reason)
}

func (d *SaleDocument) close(status Status, reason string) error {
	if d.Status.IsTerminal() {
		return d.terminalError(string(status))
	}
	now := time.Now()
	d.Status = status
	d.Reason = reason
	d.ClosedAt = &now
	d.UpdatedAt = now
	d.IncrementVersion()
	return nil
}

// EnsureMutable rejects changes to terminal documents
func (d *SaleDocument) EnsureMutable() error {
	if d.Status.IsTerminal() {
		return d.terminalError("change")
	}
	return nil
}

func (d *SaleDocument) terminalError(action string) error {
	return shared.ErrInvalidState.WithMessage(
		fmt.Sprintf("Cannot %s sale %s: document is %s", action, d.ID, d.Status),
	).WithDetails(map[string]any{"sale_id": d.ID, "status": d.Status})
}

func sameUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameSerials(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// NewLineItem validates a goods line against its catalog item. Serialized
// items carry exactly one serial per unit; other items carry none.
func NewLineItem(draft LineDraft, item *CatalogItem) (LineItem, error) {
	line := LineItem{
		ID:             uuid.New(),
		ItemID:         draft.ItemID,
		VariantID:      stock.NewKey(draft.ItemID, draft.VariantID).VariantID,
		Quantity:       draft.Quantity,
		UnitPrice:      draft.UnitPrice,
		Serialized:     item.Serialized,
		BatchID:        draft.BatchID,
		UnitCost:       decimal.Zero,
		WarrantyMonths: item.WarrantyMonths,
	}
	if !item.Serialized {
		if len(draft.Serials) > 0 {
			return LineItem{}, shared.NewDomainError("INVALID_INPUT",
				fmt.Sprintf("Item %s is not serialized but serials were given", item.Name)).
				WithDetails(map[string]any{"item_id": item.ID})
		}
		return line, nil
	}
	if draft.BatchID != nil {
		return LineItem{}, shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("Item %s is serialized and cannot be sold from a batch", item.Name))
	}
	if !draft.Quantity.IsInteger() || !draft.Quantity.Equal(decimal.NewFromInt(int64(len(draft.Serials)))) {
		return LineItem{}, shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("Item %s needs one serial per unit: quantity %s, %d serials", item.Name, draft.Quantity, len(draft.Serials))).
			WithDetails(map[string]any{"item_id": item.ID, "quantity": draft.Quantity.String(), "serials": len(draft.Serials)})
	}
	line.Serials = append([]string(nil), draft.Serials...)
	return line, nil
}
