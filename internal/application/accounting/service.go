package accounting

import (
	"context"
	"fmt"

	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/shift"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service exposes account queries and manual postings
type Service struct {
	scope    unitofwork.TransactionScope
	accounts accounting.AccountRepository
	txRepo   accounting.TransactionRepository
	logger   *zap.Logger
}

// NewService creates a new accounting Service
func NewService(
	scope unitofwork.TransactionScope,
	accounts accounting.AccountRepository,
	txRepo accounting.TransactionRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		scope:    scope,
		accounts: accounts,
		txRepo:   txRepo,
		logger:   logger,
	}
}

// CreateAccount opens an account with a zero balance
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (*AccountResponse, error) {
	acct, err := accounting.NewAccount(req.Name, req.Type, req.OwnerType, req.OwnerRef)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	resp := ToAccountResponse(acct)
	return &resp, nil
}

// GetAccount returns an account by id
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*AccountResponse, error) {
	acct, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToAccountResponse(acct)
	return &resp, nil
}

// ListAccounts returns a page of accounts
func (s *Service) ListAccounts(ctx context.Context, filter shared.Filter) ([]AccountResponse, int64, error) {
	accounts, total, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]AccountResponse, len(accounts))
	for i := range accounts {
		out[i] = ToAccountResponse(&accounts[i])
	}
	return out, total, nil
}

// PostTransaction applies a manual posting. Drawers held by an active shift
// only move through the shift's cash in/out.
func (s *Service) PostTransaction(ctx context.Context, req PostTransactionRequest) (*TransactionResponse, error) {
	var resp TransactionResponse
	err := s.scope.Execute(ctx, func(repos unitofwork.Repositories) error {
		acct, err := repos.AccountRepo().FindByIDForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if acct.IsLocked() {
			return shift.ErrDrawerLocked.WithMessage(
				fmt.Sprintf("Account %s is held by shift %s; use the shift cash in/out", acct.Name, acct.LockedByShiftID),
			).WithDetails(map[string]any{"account_id": acct.ID, "shift_id": acct.LockedByShiftID})
		}
		tx, err := NewLedger(repos).Post(ctx, accounting.Posting{
			AccountID:  req.AccountID,
			Amount:     req.Amount,
			Type:       req.Type,
			Reason:     req.Reason,
			Settlement: accounting.SettlementSettled,
		})
		if err != nil {
			return err
		}
		resp = ToTransactionResponse(tx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Manual posting applied",
		zap.String("account_id", req.AccountID.String()),
		zap.String("type", string(req.Type)),
		zap.String("amount", req.Amount.String()),
		zap.String("balance_after", resp.BalanceAfterTransaction.String()),
	)
	return &resp, nil
}

// ListTransactions returns a page of an account's transactions in commit order
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, filter shared.Filter) ([]TransactionResponse, int64, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, 0, err
	}
	txs, total, err := s.txRepo.ListByAccount(ctx, accountID, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]TransactionResponse, len(txs))
	for i := range txs {
		out[i] = ToTransactionResponse(&txs[i])
	}
	return out, total, nil
}

// VerifyAccount replays an account's transactions and compares the result
// with the stored balance
func (s *Service) VerifyAccount(ctx context.Context, accountID uuid.UUID) (*VerifyAccountResponse, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	txs, err := s.txRepo.AllByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	replayed, replayErr := accounting.Replay(acct.Kind(), txs)
	resp := &VerifyAccountResponse{
		AccountID:        acct.ID,
		Balance:          acct.Balance,
		Replayed:         replayed,
		TransactionCount: len(txs),
		Consistent:       replayErr == nil && replayed.Equal(acct.Balance),
	}
	if replayErr != nil {
		resp.Error = replayErr.Error()
	}
	return resp, nil
}
