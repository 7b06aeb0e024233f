// Package reconcile checks the ledgers against the state they describe and
// resolves operations that never finished.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	appstock "github.com/erp/retailcore/internal/application/stock"
	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/erp/retailcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Subject types written on discrepancy records
const (
	SubjectOperation = "Operation"
	SubjectStockKey  = "StockKey"
	SubjectBatch     = "Batch"
	SubjectAccount   = "Account"
)

// Config holds reconciler settings
type Config struct {
	// PendingAge is how long an operation may stay PENDING before it is abandoned
	PendingAge time.Duration
	BatchSize  int
}

// DefaultConfig returns default reconciler settings
func DefaultConfig() Config {
	return Config{
		PendingAge: 5 * time.Minute,
		BatchSize:  100,
	}
}

// Report summarises one reconciliation pass
type Report struct {
	AbandonedOperations int `json:"abandoned_operations"`
	StockKeysChecked    int `json:"stock_keys_checked"`
	StockCorrections    int `json:"stock_corrections"`
	BrokenChains        int `json:"broken_chains"`
	BatchViolations     int `json:"batch_violations"`
	AccountsChecked     int `json:"accounts_checked"`
	AccountMismatches   int `json:"account_mismatches"`
}

// Discrepancies returns the number of problems the pass found
func (r *Report) Discrepancies() int {
	return r.AbandonedOperations + r.StockCorrections + r.BrokenChains + r.BatchViolations + r.AccountMismatches
}

// Service runs reconciliation passes
type Service struct {
	scope           unitofwork.TransactionScope
	operations      audit.OperationRepository
	discrepancies   audit.DiscrepancyRepository
	ledger          stock.LedgerRepository
	summaries       stock.SummaryRepository
	batches         stock.BatchRepository
	accounts        accounting.AccountRepository
	transactions    accounting.TransactionRepository
	config          Config
	logger          *zap.Logger
	businessMetrics *telemetry.BusinessMetrics
}

// NewService creates a new reconcile Service
func NewService(
	scope unitofwork.TransactionScope,
	operations audit.OperationRepository,
	discrepancies audit.DiscrepancyRepository,
	ledger stock.LedgerRepository,
	summaries stock.SummaryRepository,
	batches stock.BatchRepository,
	accounts accounting.AccountRepository,
	transactions accounting.TransactionRepository,
	config Config,
	logger *zap.Logger,
) *Service {
	if config.PendingAge <= 0 {
		config.PendingAge = DefaultConfig().PendingAge
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Service{
		scope:         scope,
		operations:    operations,
		discrepancies: discrepancies,
		ledger:        ledger,
		summaries:     summaries,
		batches:       batches,
		accounts:      accounts,
		transactions:  transactions,
		config:        config,
		logger:        logger,
	}
}

// SetBusinessMetrics sets the business metrics collector
func (s *Service) SetBusinessMetrics(bm *telemetry.BusinessMetrics) {
	s.businessMetrics = bm
}

// Run performs one full pass. Every check runs even when an earlier one fails;
// the returned error joins all failures.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	err := errors.Join(
		s.ResolveStaleOperations(ctx, report),
		s.CheckStock(ctx, report),
		s.CheckAccounts(ctx, report),
	)
	if report.Discrepancies() > 0 {
		s.logger.Warn("reconciliation found discrepancies",
			zap.Int("abandoned_operations", report.AbandonedOperations),
			zap.Int("stock_corrections", report.StockCorrections),
			zap.Int("broken_chains", report.BrokenChains),
			zap.Int("batch_violations", report.BatchViolations),
			zap.Int("account_mismatches", report.AccountMismatches),
		)
	} else {
		s.logger.Debug("reconciliation clean",
			zap.Int("stock_keys", report.StockKeysChecked),
			zap.Int("accounts", report.AccountsChecked),
		)
	}
	return report, err
}

// ResolveStaleOperations abandons operations that stayed PENDING longer than
// the configured age. Their transaction never committed, since the commit
// writes the COMMITTED status with it.
func (s *Service) ResolveStaleOperations(ctx context.Context, report *Report) error {
	stale, err := s.operations.FindPendingBefore(ctx, time.Now().Add(-s.config.PendingAge), s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("find stale operations: %w", err)
	}
	if s.businessMetrics != nil {
		s.businessMetrics.SetPendingOperations(int64(len(stale)))
	}
	var errs []error
	for i := range stale {
		op := &stale[i]
		op.Abandon("no commit recorded within " + s.config.PendingAge.String())
		if err := s.operations.Save(ctx, op); err != nil {
			errs = append(errs, fmt.Errorf("abandon operation %s: %w", op.ID, err))
			continue
		}
		note := fmt.Sprintf("%s started %s never committed", op.Kind, op.StartedAt.Format(time.RFC3339))
		s.record(ctx, audit.NewDiscrepancy(audit.DiscrepancyUnknownOutcome, SubjectOperation, op.ID, decimal.Zero, decimal.Zero, note), &errs)
		report.AbandonedOperations++
		s.logger.Warn("operation abandoned",
			zap.String("operation_id", op.ID.String()),
			zap.String("kind", op.Kind),
			zap.Time("started_at", op.StartedAt),
		)
	}
	return errors.Join(errs...)
}

// CheckStock verifies every stock ledger sequence, compares its closing
// balance with the summary and checks the batch counters
func (s *Service) CheckStock(ctx context.Context, report *Report) error {
	keys, err := s.ledger.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list stock keys: %w", err)
	}
	var errs []error
	for _, key := range keys {
		report.StockKeysChecked++
		if err := s.checkKey(ctx, key, report, &errs); err != nil {
			errs = append(errs, fmt.Errorf("check stock %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) checkKey(ctx context.Context, key stock.Key, report *Report, errs *[]error) error {
	entries, err := s.ledger.Entries(ctx, key)
	if err != nil {
		return err
	}
	var chainErr *stock.ChainError
	if err := stock.VerifyChain(entries); errors.As(err, &chainErr) {
		report.BrokenChains++
		s.record(ctx, audit.NewDiscrepancy(audit.DiscrepancyStockLedger, SubjectStockKey, key.ItemID,
			chainErr.Expected, chainErr.Actual, chainErr.Error()), errs)
	}

	batches, err := s.batches.ListByKey(ctx, key)
	if err != nil {
		return err
	}
	for i := range batches {
		b := &batches[i]
		if err := b.CheckInvariant(); err != nil {
			report.BatchViolations++
			s.record(ctx, audit.NewDiscrepancy(audit.DiscrepancyBatchInvariant, SubjectBatch, b.BatchID,
				b.PurchasedQty, b.AvailableQty.Add(b.SoldQty).Sub(b.AdjustmentQty), err.Error()), errs)
		}
	}

	var correction *stock.LedgerEntry
	err = s.scope.Execute(ctx, func(repos unitofwork.Repositories) error {
		var err error
		correction, err = appstock.NewStore(repos).Correct(ctx, key, "reconciler: ledger realigned with stock on hand")
		return err
	})
	if err != nil {
		return err
	}
	if correction != nil {
		report.StockCorrections++
		s.record(ctx, audit.NewDiscrepancy(audit.DiscrepancyStockLedger, SubjectStockKey, key.ItemID,
			correction.OpeningBalance, correction.ClosingBalance,
			fmt.Sprintf("ledger of %s did not match stock on hand", key)), errs)
		s.logger.Warn("stock ledger corrected",
			zap.String("key", key.String()),
			zap.String("ledger", correction.OpeningBalance.String()),
			zap.String("on_hand", correction.ClosingBalance.String()),
		)
	}
	return nil
}

// CheckAccounts replays every account's transactions against its balance
func (s *Service) CheckAccounts(ctx context.Context, report *Report) error {
	var errs []error
	for page := 1; ; page++ {
		accounts, total, err := s.accounts.List(ctx, shared.Filter{Page: page, PageSize: s.config.BatchSize, OrderBy: "created_at", OrderDir: "asc"})
		if err != nil {
			return errors.Join(append(errs, fmt.Errorf("list accounts: %w", err))...)
		}
		for i := range accounts {
			report.AccountsChecked++
			if err := s.checkAccount(ctx, &accounts[i], report, &errs); err != nil {
				errs = append(errs, fmt.Errorf("check account %s: %w", accounts[i].ID, err))
			}
		}
		if len(accounts) == 0 || int64(page*s.config.BatchSize) >= total {
			break
		}
	}
	return errors.Join(errs...)
}

func (s *Service) checkAccount(ctx context.Context, acct *accounting.Account, report *Report, errs *[]error) error {
	txs, err := s.transactions.AllByAccount(ctx, acct.ID)
	if err != nil {
		return err
	}
	replayed, replayErr := accounting.Replay(acct.Kind(), txs)
	if replayErr == nil && replayed.Equal(acct.Balance) {
		return nil
	}
	note := fmt.Sprintf("replay of %d transactions gives %s, stored balance %s", len(txs), replayed, acct.Balance)
	if replayErr != nil {
		note = replayErr.Error()
	}
	report.AccountMismatches++
	s.record(ctx, audit.NewDiscrepancy(audit.DiscrepancyAccountReplay, SubjectAccount, acct.ID, replayed, acct.Balance, note), errs)
	s.logger.Error("account replay mismatch",
		zap.String("account_id", acct.ID.String()),
		zap.String("balance", acct.Balance.String()),
		zap.String("replayed", replayed.String()),
		zap.Error(replayErr),
	)
	return nil
}

func (s *Service) record(ctx context.Context, d *audit.Discrepancy, errs *[]error) {
	if err := s.discrepancies.Create(ctx, d); err != nil {
		*errs = append(*errs, fmt.Errorf("write %s discrepancy: %w", d.Kind, err))
		return
	}
	if s.businessMetrics != nil {
		s.businessMetrics.RecordDiscrepancy(ctx, string(d.Kind))
	}
}

// DiscrepancyListFilter narrows a discrepancy listing
type DiscrepancyListFilter struct {
	Kind      string     `form:"kind" binding:"omitempty,oneof=SHIFT_OPENING SHIFT_CLOSING STOCK_OVERSELL STOCK_LEDGER BATCH_INVARIANT ACCOUNT_REPLAY UNKNOWN_OUTCOME"`
	SubjectID *uuid.UUID `form:"subject_id"`
	Page      int        `form:"page" binding:"omitempty,min=1"`
	PageSize  int        `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ListDiscrepancies returns discrepancy records, newest first
func (s *Service) ListDiscrepancies(ctx context.Context, filter DiscrepancyListFilter) ([]audit.Discrepancy, int64, error) {
	return s.discrepancies.List(ctx, audit.DiscrepancyFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  "created_at",
			OrderDir: "desc",
		},
		Kind:      audit.DiscrepancyKind(filter.Kind),
		SubjectID: filter.SubjectID,
	})
}
