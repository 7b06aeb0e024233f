package accounting

import (
	"fmt"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies what an account holds
type AccountType string

const (
	AccountTypeCash       AccountType = "CASH"
	AccountTypeBank       AccountType = "BANK"
	AccountTypeVault      AccountType = "VAULT"
	AccountTypeReceivable AccountType = "RECEIVABLE"
	AccountTypePayable    AccountType = "PAYABLE"
	AccountTypeCustomer   AccountType = "CUSTOMER"
	AccountTypeSupplier   AccountType = "SUPPLIER"
	AccountTypeEmployee   AccountType = "EMPLOYEE"
)

// IsValid checks if the account type is known
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeCash, AccountTypeBank, AccountTypeVault, AccountTypeReceivable,
		AccountTypePayable, AccountTypeCustomer, AccountTypeSupplier, AccountTypeEmployee:
		return true
	}
	return false
}

// OwnerType identifies who an account belongs to
type OwnerType string

const (
	OwnerCompany  OwnerType = "COMPANY"
	OwnerCustomer OwnerType = "CUSTOMER"
	OwnerSupplier OwnerType = "SUPPLIER"
	OwnerEmployee OwnerType = "EMPLOYEE"
)

// IsValid checks if the owner type is known
func (o OwnerType) IsValid() bool {
	switch o {
	case OwnerCompany, OwnerCustomer, OwnerSupplier, OwnerEmployee:
		return true
	}
	return false
}

// AccountKind is the balance polarity of an account
type AccountKind string

const (
	KindAsset     AccountKind = "ASSET"
	KindLiability AccountKind = "LIABILITY"
)

// Account is a named balance-carrying account. Balance changes only through
// postings, each of which leaves an immutable Transaction behind.
type Account struct {
	shared.BaseAggregateRoot
	Name            string          `gorm:"type:varchar(100);not null" json:"name"`
	Type            AccountType     `gorm:"type:varchar(20);not null" json:"type"`
	OwnerType       OwnerType       `gorm:"type:varchar(20);not null;index:idx_account_owner,priority:1" json:"owner_type"`
	OwnerRef        *uuid.UUID      `gorm:"type:uuid;index:idx_account_owner,priority:2" json:"owner_ref,omitempty"`
	Balance         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance"`
	LockedByShiftID *uuid.UUID      `gorm:"type:uuid;index" json:"locked_by_shift_id,omitempty"`
}

// TableName returns the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// NewAccount creates an account with a zero balance
func NewAccount(name string, accountType AccountType, ownerType OwnerType, ownerRef *uuid.UUID) (*Account, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Account name cannot be empty")
	}
	if !accountType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown account type %q", accountType))
	}
	if !ownerType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown owner type %q", ownerType))
	}
	if ownerType != OwnerCompany && ownerRef == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Non-company accounts need an owner reference")
	}
	return &Account{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Type:              accountType,
		OwnerType:         ownerType,
		OwnerRef:          ownerRef,
		Balance:           decimal.Zero,
	}, nil
}

// Kind returns the balance polarity of the account. Payables and supplier
// owned accounts are liabilities; everything else behaves as an asset.
func (a *Account) Kind() AccountKind {
	if a.Type == AccountTypePayable || a.Type == AccountTypeSupplier || a.OwnerType == OwnerSupplier {
		return KindLiability
	}
	return KindAsset
}

// IsLiability reports whether deposits decrease the balance
func (a *Account) IsLiability() bool {
	return a.Kind() == KindLiability
}

// IsDrawer reports whether the account can back a cash drawer
func (a *Account) IsDrawer() bool {
	return a.Type == AccountTypeCash && a.OwnerType == OwnerCompany
}

// IsLocked reports whether an active shift holds the drawer
func (a *Account) IsLocked() bool {
	return a.LockedByShiftID != nil
}

// Apply moves the balance by the signed effect of a posting and returns the
// balance before and after. The version is bumped so the write can be
// checked against concurrent writers.
func (a *Account) Apply(txType TransactionType, amount decimal.Decimal) (before, after decimal.Decimal, err error) {
	if !txType.IsValid() {
		return before, after, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown transaction type %q", txType))
	}
	if !amount.IsPositive() {
		return before, after, shared.NewDomainError("INVALID_INPUT", "Amount must be positive")
	}
	before = a.Balance
	after = before.Add(amount.Mul(decimal.NewFromInt(int64(SignFor(a.Kind(), txType)))))
	a.Balance = after
	a.UpdatedAt = time.Now()
	a.IncrementVersion()
	return before, after, nil
}
