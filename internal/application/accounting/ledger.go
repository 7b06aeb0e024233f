// Package accounting posts money movements against accounts, inside the
// caller's transaction.
package accounting

import (
	"context"
	"fmt"

	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger applies postings. Each posting locks the account row, computes the
// new balance once, writes it with a version check and records the
// Transaction with that same value as its snapshot.
type Ledger struct {
	repos unitofwork.Repositories
}

// NewLedger binds a Ledger to the repositories of one transaction
func NewLedger(repos unitofwork.Repositories) *Ledger {
	return &Ledger{repos: repos}
}

// Post applies p and returns the recorded transaction
func (l *Ledger) Post(ctx context.Context, p accounting.Posting) (*accounting.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	acct, err := l.repos.AccountRepo().FindByIDForUpdate(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, acct, p)
}

func (l *Ledger) apply(ctx context.Context, acct *accounting.Account, p accounting.Posting) (*accounting.Transaction, error) {
	before, after, err := acct.Apply(p.Type, p.Amount)
	if err != nil {
		return nil, err
	}
	if err := l.repos.AccountRepo().UpdateBalance(ctx, acct); err != nil {
		return nil, err
	}
	tx := accounting.NewTransaction(p, acct, before, after)
	if err := l.repos.TransactionRepo().Create(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Reverse posts the exact opposite of a transaction. A transaction is
// reversed at most once and reversals are not themselves reversible.
func (l *Ledger) Reverse(ctx context.Context, original *accounting.Transaction, reason string) (*accounting.Transaction, error) {
	if original.ReversalOf != nil {
		return nil, shared.ErrInvalidState.WithMessage("A reversal cannot be reversed").
			WithDetails(map[string]any{"transaction_id": original.ID})
	}
	reversed, err := l.repos.TransactionRepo().IsReversed(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	if reversed {
		return nil, shared.ErrAlreadyExists.WithMessage(fmt.Sprintf("Transaction %s is already reversed", original.ID)).
			WithDetails(map[string]any{"transaction_id": original.ID})
	}
	return l.Post(ctx, original.Reversal(reason))
}

// ReverseSource reverses every live transaction a document produced, newest first
func (l *Ledger) ReverseSource(ctx context.Context, sourceType string, sourceID uuid.UUID, reason string) ([]*accounting.Transaction, error) {
	live, err := l.repos.TransactionRepo().FindLiveBySource(ctx, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	out := make([]*accounting.Transaction, 0, len(live))
	for i := len(live) - 1; i >= 0; i-- {
		tx, err := l.Reverse(ctx, &live[i], reason)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// ForceBalance posts whatever brings the account to target. It returns nil
// when the balance already matches.
func (l *Ledger) ForceBalance(ctx context.Context, accountID uuid.UUID, target decimal.Decimal, reason string, src *accounting.Source) (*accounting.Transaction, error) {
	acct, err := l.repos.AccountRepo().FindByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	delta := target.Sub(acct.Balance)
	if delta.IsZero() {
		return nil, nil
	}
	txType := accounting.TransactionDeposit
	if accounting.SignFor(acct.Kind(), txType)*delta.Sign() < 0 {
		txType = accounting.TransactionWithdrawal
	}
	return l.apply(ctx, acct, accounting.Posting{
		AccountID:  accountID,
		Amount:     delta.Abs(),
		Type:       txType,
		Reason:     reason,
		Settlement: accounting.SettlementReconciliation,
		Source:     src,
	})
}

// Transfer moves amount between two accounts as one withdrawal and one deposit
func (l *Ledger) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, reason string, src *accounting.Source) (out, in *accounting.Transaction, err error) {
	if fromID == toID {
		return nil, nil, shared.NewDomainError("INVALID_INPUT", "Cannot transfer to the same account")
	}
	// Lock in id order so two opposite transfers cannot deadlock
	first, second := fromID, toID
	if second.String() < first.String() {
		first, second = second, first
	}
	if _, err := l.repos.AccountRepo().FindByIDForUpdate(ctx, first); err != nil {
		return nil, nil, err
	}
	if _, err := l.repos.AccountRepo().FindByIDForUpdate(ctx, second); err != nil {
		return nil, nil, err
	}

	out, err = l.Post(ctx, accounting.Posting{
		AccountID:  fromID,
		Amount:     amount,
		Type:       accounting.TransactionWithdrawal,
		Reason:     reason,
		Settlement: accounting.SettlementTransfer,
		Source:     src,
	})
	if err != nil {
		return nil, nil, err
	}
	in, err = l.Post(ctx, accounting.Posting{
		AccountID:  toID,
		Amount:     amount,
		Type:       accounting.TransactionDeposit,
		Reason:     reason,
		Settlement: accounting.SettlementTransfer,
		Source:     src,
	})
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}
