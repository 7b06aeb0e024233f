// Package shift implements the cash drawer protocols: open, cash in/out,
// close and the administrative closes.
package shift

import (
	"context"
	"errors"
	"fmt"
	"time"

	appacct "github.com/erp/retailcore/internal/application/accounting"
	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/shift"
	"github.com/erp/retailcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Locker serializes work on a key across processes. The returned release
// function must be called once the work is done.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Service handles shift operations
type Service struct {
	runner          *unitofwork.Runner
	shiftRepo       shift.ShiftRepository
	locker          Locker
	lockTTL         time.Duration
	logger          *zap.Logger
	businessMetrics *telemetry.BusinessMetrics
}

// NewService creates a new shift Service
func NewService(runner *unitofwork.Runner, shiftRepo shift.ShiftRepository, locker Locker, lockTTL time.Duration, logger *zap.Logger) *Service {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Service{
		runner:    runner,
		shiftRepo: shiftRepo,
		locker:    locker,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// SetBusinessMetrics sets the business metrics collector
func (s *Service) SetBusinessMetrics(bm *telemetry.BusinessMetrics) {
	s.businessMetrics = bm
}

// OpenShift opens a shift for an operator on a drawer. Opens of the same
// operator are serialized; a repeated idempotency key returns the first result.
func (s *Service) OpenShift(ctx context.Context, req OpenShiftRequest) (*ShiftResponse, error) {
	if req.VaultAmount != nil && req.VaultAmount.IsPositive() && req.VaultAccountID == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "A vault float requires a vault account")
	}
	if req.VaultAccountID != nil && *req.VaultAccountID == req.DrawerAccountID {
		return nil, shared.NewDomainError("INVALID_INPUT", "Vault and drawer must be different accounts")
	}

	release, err := s.locker.Lock(ctx, "shift:open:"+req.OperatorID.String(), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release shift open lock",
				zap.String("operator_id", req.OperatorID.String()),
				zap.Error(err),
			)
		}
	}()

	res, err := s.runner.Run(ctx, audit.OpOpenShift, req.IdempotencyKey, func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		sh, err := s.open(ctx, repos, req)
		if err != nil {
			return uuid.Nil, err
		}
		return sh.ID, nil
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpOpenShift, err)
		return nil, err
	}

	sh, err := s.shiftRepo.FindByID(ctx, res.ResultID)
	if err != nil {
		return nil, err
	}
	if !res.Replayed {
		fields := []zap.Field{
			zap.String("shift_id", sh.ID.String()),
			zap.String("operator_id", sh.OperatorID.String()),
			zap.String("drawer_account_id", sh.DrawerAccountID.String()),
			zap.String("start_cash", sh.StartCash.String()),
		}
		if sh.OpeningMismatch.IsZero() {
			s.logger.Info("Shift opened", fields...)
		} else {
			s.logger.Warn("Shift opened with cash mismatch", append(fields, zap.String("mismatch", sh.OpeningMismatch.String()))...)
			s.recordDiscrepancy(ctx, audit.DiscrepancyShiftOpening)
		}
		s.refreshActive(ctx)
	}
	resp := ToShiftResponse(sh)
	return &resp, nil
}

func (s *Service) open(ctx context.Context, repos unitofwork.Repositories, req OpenShiftRequest) (*shift.Shift, error) {
	existing, err := repos.ShiftRepo().FindActiveByOperator(ctx, req.OperatorID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, shift.ErrShiftAlreadyActive.WithDetails(map[string]any{
			"operator_id": req.OperatorID,
			"shift_id":    existing.ID,
		})
	}

	drawer, err := repos.AccountRepo().FindByIDForUpdate(ctx, req.DrawerAccountID)
	if err != nil {
		return nil, err
	}
	if !drawer.IsDrawer() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Account cannot back a cash drawer").
			WithDetails(map[string]any{"account_id": drawer.ID, "type": drawer.Type, "owner_type": drawer.OwnerType})
	}

	sh, err := shift.NewShift(req.OperatorID, req.DrawerAccountID, req.StartCash)
	if err != nil {
		return nil, err
	}
	acquired, err := repos.AccountRepo().AcquireDrawerLock(ctx, drawer.ID, sh.ID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, shift.ErrDrawerLocked.WithDetails(map[string]any{
			"drawer_account_id":  drawer.ID,
			"locked_by_shift_id": drawer.LockedByShiftID,
		})
	}

	ledger := appacct.NewLedger(repos)
	src := &accounting.Source{Type: accounting.SourceShift, ID: sh.ID}
	if req.VaultAccountID != nil && req.VaultAmount != nil && req.VaultAmount.IsPositive() {
		vault, err := repos.AccountRepo().FindByIDForUpdate(ctx, *req.VaultAccountID)
		if err != nil {
			return nil, err
		}
		if vault.Balance.LessThan(*req.VaultAmount) {
			return nil, shared.ErrInsufficientBalance.WithMessage("Vault cannot cover the requested float").
				WithDetails(map[string]any{"vault_account_id": vault.ID, "balance": vault.Balance.String(), "requested": req.VaultAmount.String()})
		}
		if _, _, err := ledger.Transfer(ctx, vault.ID, drawer.ID, *req.VaultAmount, "shift float", src); err != nil {
			return nil, err
		}
		sh.WithVaultFloat(vault.ID, *req.VaultAmount)
	}

	reconciled, err := ledger.ForceBalance(ctx, drawer.ID, req.StartCash, "shift opening count", src)
	if err != nil {
		return nil, err
	}
	if reconciled != nil {
		sh.RecordOpeningMismatch(req.StartCash.Sub(reconciled.BalanceBefore))
		note := fmt.Sprintf("declared %s, drawer held %s", req.StartCash, reconciled.BalanceBefore)
		if err := repos.DiscrepancyRepo().Create(ctx, audit.NewDiscrepancy(
			audit.DiscrepancyShiftOpening, shift.AggregateTypeShift, sh.ID, reconciled.BalanceBefore, req.StartCash, note,
		)); err != nil {
			return nil, err
		}
	}

	if err := repos.ShiftRepo().Create(ctx, sh); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shift.ErrShiftAlreadyActive.WithDetails(map[string]any{"operator_id": req.OperatorID})
		}
		return nil, err
	}
	return sh, nil
}

// CloseShift reconciles the physical count against the calculated cash,
// forces the drawer to the count and releases the drawer
func (s *Service) CloseShift(ctx context.Context, id uuid.UUID, req CloseShiftRequest) (*CloseShiftResponse, error) {
	var discrepancy decimal.Decimal
	_, err := s.runner.Run(ctx, audit.OpCloseShift, "", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		sh, err := repos.ShiftRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		discrepancy, err = sh.Close(req.ActualCash, req.Breakdown)
		if err != nil {
			return uuid.Nil, err
		}
		return sh.ID, s.finish(ctx, repos, sh)
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpCloseShift, err)
		return nil, err
	}

	sh, err := s.shiftRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{
		zap.String("shift_id", sh.ID.String()),
		zap.String("calculated", sh.CalculatedEndCash().String()),
		zap.String("actual", req.ActualCash.String()),
		zap.String("discrepancy", discrepancy.String()),
	}
	if discrepancy.IsZero() {
		s.logger.Info("Shift closed", fields...)
	} else {
		s.logger.Warn("Shift closed with discrepancy", fields...)
		s.recordDiscrepancy(ctx, audit.DiscrepancyShiftClosing)
	}
	if s.businessMetrics != nil {
		s.businessMetrics.RecordShiftClosed(ctx, false, discrepancy)
	}
	s.refreshActive(ctx)

	return &CloseShiftResponse{Shift: ToShiftResponse(sh), Discrepancy: discrepancy}, nil
}

// ForceCloseShift closes a shift administratively, taking the calculated
// cash as counted
func (s *Service) ForceCloseShift(ctx context.Context, id uuid.UUID) (*ShiftResponse, error) {
	if err := s.forceClose(ctx, id); err != nil {
		return nil, err
	}
	s.refreshActive(ctx)
	sh, err := s.shiftRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToShiftResponse(sh)
	return &resp, nil
}

// ForceCloseAll force closes every active shift. Each shift closes in its
// own transaction; failures are reported without stopping the rest.
func (s *Service) ForceCloseAll(ctx context.Context) (*ForceCloseAllResponse, error) {
	active, err := s.shiftRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	resp := &ForceCloseAllResponse{Closed: []uuid.UUID{}}
	var errs []error
	for _, sh := range active {
		if err := s.forceClose(ctx, sh.ID); err != nil {
			resp.Failed = append(resp.Failed, sh.ID)
			errs = append(errs, fmt.Errorf("shift %s: %w", sh.ID, err))
			continue
		}
		resp.Closed = append(resp.Closed, sh.ID)
	}
	s.logger.Info("Bulk force close finished",
		zap.Int("closed", len(resp.Closed)),
		zap.Int("failed", len(resp.Failed)),
	)
	s.refreshActive(ctx)
	return resp, errors.Join(errs...)
}

func (s *Service) forceClose(ctx context.Context, id uuid.UUID) error {
	_, err := s.runner.Run(ctx, audit.OpForceClose, "", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		sh, err := repos.ShiftRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if err := sh.ForceClose(); err != nil {
			return uuid.Nil, err
		}
		return sh.ID, s.finish(ctx, repos, sh)
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpForceClose, err)
		return err
	}
	s.logger.Warn("Shift force closed", zap.String("shift_id", id.String()))
	if s.businessMetrics != nil {
		s.businessMetrics.RecordShiftClosed(ctx, true, decimal.Zero)
	}
	return nil
}

// finish writes the closing side effects of a shift that was just closed
func (s *Service) finish(ctx context.Context, repos unitofwork.Repositories, sh *shift.Shift) error {
	src := &accounting.Source{Type: accounting.SourceShift, ID: sh.ID}
	if _, err := appacct.NewLedger(repos).ForceBalance(ctx, sh.DrawerAccountID, *sh.ActualCash, "shift closing count", src); err != nil {
		return err
	}
	if err := repos.AccountRepo().ReleaseDrawerLock(ctx, sh.DrawerAccountID, sh.ID); err != nil {
		return err
	}
	if err := repos.ShiftRepo().Save(ctx, sh); err != nil {
		return err
	}
	if !sh.FinalMismatch.IsZero() {
		note := fmt.Sprintf("counted %s, expected %s", sh.ActualCash, sh.CalculatedEndCash())
		if err := repos.DiscrepancyRepo().Create(ctx, audit.NewDiscrepancy(
			audit.DiscrepancyShiftClosing, shift.AggregateTypeShift, sh.ID, sh.CalculatedEndCash(), *sh.ActualCash, note,
		)); err != nil {
			return err
		}
	}
	return repos.Events().Write(ctx, shift.NewShiftClosedEvent(sh))
}

// CancelShift abandons a shift that never handled money. A vault float
// moved at open is returned to the vault.
func (s *Service) CancelShift(ctx context.Context, id uuid.UUID) (*ShiftResponse, error) {
	_, err := s.runner.Run(ctx, audit.OpCancelShift, "", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		sh, err := repos.ShiftRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if err := sh.Cancel(); err != nil {
			return uuid.Nil, err
		}
		if sh.VaultAccountID != nil && sh.VaultAmount.IsPositive() {
			src := &accounting.Source{Type: accounting.SourceShift, ID: sh.ID}
			if _, _, err := appacct.NewLedger(repos).Transfer(ctx, sh.DrawerAccountID, *sh.VaultAccountID, sh.VaultAmount, "shift canceled, float returned", src); err != nil {
				return uuid.Nil, err
			}
		}
		if err := repos.AccountRepo().ReleaseDrawerLock(ctx, sh.DrawerAccountID, sh.ID); err != nil {
			return uuid.Nil, err
		}
		return sh.ID, repos.ShiftRepo().Save(ctx, sh)
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpCancelShift, err)
		return nil, err
	}
	s.logger.Info("Shift canceled", zap.String("shift_id", id.String()))
	s.refreshActive(ctx)
	return s.GetShift(ctx, id)
}

// AdjustShiftCash posts a manual cash in or out to the shift's drawer and
// records the drawer balance around it
func (s *Service) AdjustShiftCash(ctx context.Context, id uuid.UUID, req AdjustCashRequest) (*ShiftResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Cash amount must be positive")
	}
	_, err := s.runner.Run(ctx, audit.OpAdjustCash, "", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		sh, err := repos.ShiftRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if !sh.IsActive() {
			return uuid.Nil, shared.ErrInvalidState.WithMessage(fmt.Sprintf("Shift %s is %s", sh.ID, sh.Status)).
				WithDetails(map[string]any{"shift_id": sh.ID, "status": sh.Status})
		}
		drawer, err := repos.AccountRepo().FindByIDForUpdate(ctx, sh.DrawerAccountID)
		if err != nil {
			return uuid.Nil, err
		}
		txType := accounting.TransactionDeposit
		if req.Direction == shift.DirectionOut {
			txType = accounting.TransactionWithdrawal
			if drawer.Balance.LessThan(req.Amount) {
				return uuid.Nil, shared.ErrInsufficientBalance.WithMessage("Drawer cannot cover the cash out").
					WithDetails(map[string]any{"drawer_account_id": drawer.ID, "balance": drawer.Balance.String(), "requested": req.Amount.String()})
			}
		}
		tx, err := appacct.NewLedger(repos).Post(ctx, accounting.Posting{
			AccountID:  drawer.ID,
			Amount:     req.Amount,
			Type:       txType,
			Reason:     req.Reason,
			Settlement: accounting.SettlementCashMovement,
			Source:     &accounting.Source{Type: accounting.SourceShift, ID: sh.ID},
		})
		if err != nil {
			return uuid.Nil, err
		}
		entry, err := sh.AddCash(req.Direction, req.Amount, req.Reason, tx.BalanceBefore, tx.BalanceAfterTransaction, tx.ID)
		if err != nil {
			return uuid.Nil, err
		}
		if err := repos.ShiftRepo().Save(ctx, sh); err != nil {
			return uuid.Nil, err
		}
		return entry.ID, repos.ShiftRepo().AddEntry(ctx, entry)
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpAdjustCash, err)
		return nil, err
	}
	s.logger.Info("Shift cash adjusted",
		zap.String("shift_id", id.String()),
		zap.String("direction", string(req.Direction)),
		zap.String("amount", req.Amount.String()),
	)
	return s.GetShift(ctx, id)
}

// GetShift returns a shift with its register entries
func (s *Service) GetShift(ctx context.Context, id uuid.UUID) (*ShiftResponse, error) {
	sh, err := s.shiftRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToShiftResponse(sh)
	return &resp, nil
}

// ListShifts returns a page of shifts
func (s *Service) ListShifts(ctx context.Context, filter ShiftListFilter) ([]ShiftResponse, int64, error) {
	shifts, total, err := s.shiftRepo.List(ctx, shift.ShiftFilter{
		Filter:     shared.Filter{Page: filter.Page, PageSize: filter.PageSize, OrderBy: "opened_at", OrderDir: "desc"},
		Status:     shift.Status(filter.Status),
		OperatorID: filter.OperatorID,
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]ShiftResponse, len(shifts))
	for i := range shifts {
		out[i] = ToShiftResponse(&shifts[i])
	}
	return out, total, nil
}

func (s *Service) refreshActive(ctx context.Context) {
	if s.businessMetrics == nil {
		return
	}
	active, err := s.shiftRepo.ListActive(ctx)
	if err != nil {
		s.logger.Debug("failed to count active shifts", zap.Error(err))
		return
	}
	s.businessMetrics.SetActiveShifts(int64(len(active)))
}

func (s *Service) recordDiscrepancy(ctx context.Context, kind audit.DiscrepancyKind) {
	if s.businessMetrics != nil {
		s.businessMetrics.RecordDiscrepancy(ctx, string(kind))
	}
}

func (s *Service) recordFailure(ctx context.Context, op string, err error) {
	if s.businessMetrics != nil && errors.Is(err, shared.ErrUnknownOutcome) {
		s.businessMetrics.RecordUnknownOutcome(ctx, op)
	}
}
