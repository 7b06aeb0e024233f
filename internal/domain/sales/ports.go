package sales

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogItem is the catalog data the engine needs at sale time
type CatalogItem struct {
	ID             uuid.UUID
	Name           string
	Serialized     bool
	ReorderPoint   decimal.Decimal
	WarrantyMonths int
}

// CatalogLookup resolves catalog items. Catalog maintenance lives outside the engine.
type CatalogLookup interface {
	GetItem(ctx context.Context, id uuid.UUID) (*CatalogItem, error)
}

// Customer is the customer data the credit gate needs. A nil CreditLimit
// means unlimited; zero means cash-only.
type Customer struct {
	ID          uuid.UUID
	Name        string
	AccountID   uuid.UUID
	CreditLimit *decimal.Decimal
}

// CustomerLookup resolves customers
type CustomerLookup interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
}

// PaymentMethod maps a payment method name to the account that receives it.
// Cash methods are received by the drawer of the sale's shift.
type PaymentMethod struct {
	Name      string
	AccountID uuid.UUID
	Cash      bool
}

// PaymentRegistry is the explicit mapping of payment methods to accounts,
// plus the company account that receives non-cash methods without a
// dedicated account.
type PaymentRegistry struct {
	companyAccountID uuid.UUID
	methods          map[string]PaymentMethod
}

// NewPaymentRegistry validates and indexes the payment methods
func NewPaymentRegistry(companyAccountID uuid.UUID, methods []PaymentMethod) (*PaymentRegistry, error) {
	r := &PaymentRegistry{
		companyAccountID: companyAccountID,
		methods:          make(map[string]PaymentMethod, len(methods)),
	}
	for _, m := range methods {
		name := normalizeMethod(m.Name)
		if name == "" {
			return nil, fmt.Errorf("payment method name cannot be empty")
		}
		if _, dup := r.methods[name]; dup {
			return nil, fmt.Errorf("payment method %q configured twice", m.Name)
		}
		if !m.Cash && m.AccountID == uuid.Nil && companyAccountID == uuid.Nil {
			return nil, fmt.Errorf("payment method %q has no account and no company account is configured", m.Name)
		}
		m.Name = name
		r.methods[name] = m
	}
	return r, nil
}

// CompanyAccountID returns the configured company account
func (r *PaymentRegistry) CompanyAccountID() uuid.UUID {
	return r.companyAccountID
}

// Resolve returns the account that receives method and whether it is cash
func (r *PaymentRegistry) Resolve(method string, drawerAccountID uuid.UUID) (uuid.UUID, bool, error) {
	m, ok := r.methods[normalizeMethod(method)]
	if !ok {
		return uuid.Nil, false, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown payment method %q", method)).
			WithDetails(map[string]any{"method": method})
	}
	if m.Cash {
		return drawerAccountID, true, nil
	}
	if m.AccountID != uuid.Nil {
		return m.AccountID, false, nil
	}
	return r.companyAccountID, false, nil
}

// Methods returns the configured method names
func (r *PaymentRegistry) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}

func normalizeMethod(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
