package accounting

import (
	"fmt"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a posting
type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

// IsValid checks if the transaction type is known
func (t TransactionType) IsValid() bool {
	return t == TransactionDeposit || t == TransactionWithdrawal
}

// Opposite returns the type that undoes t
func (t TransactionType) Opposite() TransactionType {
	if t == TransactionDeposit {
		return TransactionWithdrawal
	}
	return TransactionDeposit
}

// Settlement says what a posting represents, so that reversal and reporting
// never have to infer it from the reason text.
type Settlement string

const (
	// SettlementSettled is real money that moved
	SettlementSettled Settlement = "SETTLED"
	// SettlementCredit is an unsettled credit entry (debt booked on a customer account)
	SettlementCredit Settlement = "CREDIT"
	// SettlementTransfer is one leg of an internal account-to-account transfer
	SettlementTransfer Settlement = "TRANSFER"
	// SettlementCashMovement is a manual cash in/out on a drawer
	SettlementCashMovement Settlement = "CASH_MOVEMENT"
	// SettlementReconciliation forces a balance to a physically counted value
	SettlementReconciliation Settlement = "RECONCILIATION"
)

// IsValid checks if the settlement is known
func (s Settlement) IsValid() bool {
	switch s {
	case SettlementSettled, SettlementCredit, SettlementTransfer, SettlementCashMovement, SettlementReconciliation:
		return true
	}
	return false
}

// MovesMoney reports whether the posting reflects money that changed hands
func (s Settlement) MovesMoney() bool {
	return s != SettlementCredit
}

// Source references the document a posting belongs to
type Source struct {
	Type string
	ID   uuid.UUID
}

// Source types used by the engine
const (
	SourceSale       = "SALE"
	SourceShift      = "SHIFT"
	SourceManual     = "MANUAL"
	SourceAdjustment = "ADJUSTMENT"
)

// Posting is a request to change one account balance
type Posting struct {
	AccountID  uuid.UUID
	Amount     decimal.Decimal
	Type       TransactionType
	Reason     string
	Settlement Settlement
	Source     *Source
	ReversalOf *uuid.UUID
}

// Validate checks the posting before any balance is touched
func (p Posting) Validate() error {
	if p.AccountID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Posting requires an account")
	}
	if !p.Amount.IsPositive() {
		return shared.NewDomainError("INVALID_INPUT", "Posting amount must be positive").
			WithDetails(map[string]any{"amount": p.Amount})
	}
	if !p.Type.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown transaction type %q", p.Type))
	}
	if !p.Settlement.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown settlement %q", p.Settlement))
	}
	return nil
}

// Transaction is the immutable audit record of one balance change. It is
// never updated or deleted; corrections are new, opposite transactions.
type Transaction struct {
	ID                      uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID               uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_account_tx_seq,priority:1" json:"account_id"`
	Sequence                int             `gorm:"not null;uniqueIndex:idx_account_tx_seq,priority:2" json:"sequence"`
	Amount                  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Type                    TransactionType `gorm:"type:varchar(20);not null" json:"type"`
	Settlement              Settlement      `gorm:"type:varchar(20);not null" json:"settlement"`
	Reason                  string          `gorm:"type:varchar(500)" json:"reason"`
	SourceType              string          `gorm:"type:varchar(30);index:idx_account_tx_source,priority:1" json:"source_type,omitempty"`
	SourceID                *uuid.UUID      `gorm:"type:uuid;index:idx_account_tx_source,priority:2" json:"source_id,omitempty"`
	ReversalOf              *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"reversal_of,omitempty"`
	BalanceBefore           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance_before"`
	BalanceAfterTransaction decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance_after_transaction"`
	CreatedAt               time.Time       `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (Transaction) TableName() string {
	return "account_transactions"
}

// NewTransaction records a posting that has been applied to acct. acct must
// already carry the post-posting balance and version.
func NewTransaction(p Posting, acct *Account, before, after decimal.Decimal) *Transaction {
	tx := &Transaction{
		ID:                      uuid.New(),
		AccountID:               acct.ID,
		Sequence:                acct.Version,
		Amount:                  p.Amount,
		Type:                    p.Type,
		Settlement:              p.Settlement,
		Reason:                  p.Reason,
		ReversalOf:              p.ReversalOf,
		BalanceBefore:           before,
		BalanceAfterTransaction: after,
		CreatedAt:               time.Now(),
	}
	if p.Source != nil {
		tx.SourceType = p.Source.Type
		id := p.Source.ID
		tx.SourceID = &id
	}
	return tx
}

// Reversal builds the posting that exactly undoes tx
func (t *Transaction) Reversal(reason string) Posting {
	id := t.ID
	p := Posting{
		AccountID:  t.AccountID,
		Amount:     t.Amount,
		Type:       t.Type.Opposite(),
		Reason:     "reversal: " + reason,
		Settlement: t.Settlement,
		ReversalOf: &id,
	}
	if t.SourceID != nil {
		p.Source = &Source{Type: t.SourceType, ID: *t.SourceID}
	}
	return p
}

// Delta returns the signed balance effect of the transaction for an account of kind
func (t *Transaction) Delta(kind AccountKind) decimal.Decimal {
	return t.Amount.Mul(decimal.NewFromInt(int64(SignFor(kind, t.Type))))
}

// ReplayError describes the first transaction whose snapshot disagrees with a replay
type ReplayError struct {
	AccountID     uuid.UUID
	TransactionID uuid.UUID
	Expected      decimal.Decimal
	Recorded      decimal.Decimal
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("account %s: transaction %s records balance %s, replay gives %s",
		e.AccountID, e.TransactionID, e.Recorded, e.Expected)
}

// Replay folds txs (in sequence order) from a zero balance and checks every
// balance snapshot on the way. It returns the replayed balance.
func Replay(kind AccountKind, txs []Transaction) (decimal.Decimal, error) {
	balance := decimal.Zero
	for i := range txs {
		t := &txs[i]
		if !t.BalanceBefore.Equal(balance) {
			return balance, &ReplayError{AccountID: t.AccountID, TransactionID: t.ID, Expected: balance, Recorded: t.BalanceBefore}
		}
		balance = balance.Add(t.Delta(kind))
		if !t.BalanceAfterTransaction.Equal(balance) {
			return balance, &ReplayError{AccountID: t.AccountID, TransactionID: t.ID, Expected: balance, Recorded: t.BalanceAfterTransaction}
		}
	}
	return balance, nil
}
