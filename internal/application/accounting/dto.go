package accounting

import (
	"time"

	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID              uuid.UUID              `json:"id"`
	Name            string                 `json:"name"`
	Type            accounting.AccountType `json:"type"`
	Kind            accounting.AccountKind `json:"kind"`
	OwnerType       accounting.OwnerType   `json:"owner_type"`
	OwnerRef        *uuid.UUID             `json:"owner_ref,omitempty"`
	Balance         decimal.Decimal        `json:"balance"`
	LockedByShiftID *uuid.UUID             `json:"locked_by_shift_id,omitempty"`
	Version         int                    `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID                      uuid.UUID                  `json:"id"`
	AccountID               uuid.UUID                  `json:"account_id"`
	Sequence                int                        `json:"sequence"`
	Amount                  decimal.Decimal            `json:"amount"`
	Type                    accounting.TransactionType `json:"type"`
	Settlement              accounting.Settlement      `json:"settlement"`
	Reason                  string                     `json:"reason"`
	SourceType              string                     `json:"source_type,omitempty"`
	SourceID                *uuid.UUID                 `json:"source_id,omitempty"`
	ReversalOf              *uuid.UUID                 `json:"reversal_of,omitempty"`
	BalanceBefore           decimal.Decimal            `json:"balance_before"`
	BalanceAfterTransaction decimal.Decimal            `json:"balance_after_transaction"`
	CreatedAt               time.Time                  `json:"created_at"`
}

// CreateAccountRequest represents a request to open an account
type CreateAccountRequest struct {
	Name      string                 `json:"name" binding:"required,min=1,max=100"`
	Type      accounting.AccountType `json:"type" binding:"required"`
	OwnerType accounting.OwnerType   `json:"owner_type" binding:"required"`
	OwnerRef  *uuid.UUID             `json:"owner_ref"`
}

// PostTransactionRequest represents a manual posting
type PostTransactionRequest struct {
	AccountID uuid.UUID                  `json:"account_id" binding:"required"`
	Amount    decimal.Decimal            `json:"amount" binding:"required"`
	Type      accounting.TransactionType `json:"type" binding:"required,oneof=DEPOSIT WITHDRAWAL"`
	Reason    string                     `json:"reason" binding:"required,max=500"`
}

// VerifyAccountResponse is the result of replaying an account's transactions
type VerifyAccountResponse struct {
	AccountID        uuid.UUID       `json:"account_id"`
	Balance          decimal.Decimal `json:"balance"`
	Replayed         decimal.Decimal `json:"replayed"`
	TransactionCount int             `json:"transaction_count"`
	Consistent       bool            `json:"consistent"`
	Error            string          `json:"error,omitempty"`
}

// ToAccountResponse converts an account
func ToAccountResponse(a *accounting.Account) AccountResponse {
	return AccountResponse{
		ID:              a.ID,
		Name:            a.Name,
		Type:            a.Type,
		Kind:            a.Kind(),
		OwnerType:       a.OwnerType,
		OwnerRef:        a.OwnerRef,
		Balance:         a.Balance,
		LockedByShiftID: a.LockedByShiftID,
		Version:         a.Version,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// ToTransactionResponse converts a transaction
func ToTransactionResponse(t *accounting.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                      t.ID,
		AccountID:               t.AccountID,
		Sequence:                t.Sequence,
		Amount:                  t.Amount,
		Type:                    t.Type,
		Settlement:              t.Settlement,
		Reason:                  t.Reason,
		SourceType:              t.SourceType,
		SourceID:                t.SourceID,
		ReversalOf:              t.ReversalOf,
		BalanceBefore:           t.BalanceBefore,
		BalanceAfterTransaction: t.BalanceAfterTransaction,
		CreatedAt:               t.CreatedAt,
	}
}
