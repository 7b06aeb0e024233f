// Package sales implements the sale document protocols: creation, update,
// reversal and return. Each protocol runs as one step-logged transaction.
package sales

import (
	"context"
	"errors"
	"fmt"

	appacct "github.com/erp/retailcore/internal/application/accounting"
	appstock "github.com/erp/retailcore/internal/application/stock"
	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/shift"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/erp/retailcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service handles sale document operations
type Service struct {
	runner          *unitofwork.Runner
	saleRepo        sales.SaleRepository
	catalog         sales.CatalogLookup
	customers       sales.CustomerLookup
	payments        *sales.PaymentRegistry
	logger          *zap.Logger
	businessMetrics *telemetry.BusinessMetrics
}

// NewService creates a new sales Service
func NewService(
	runner *unitofwork.Runner,
	saleRepo sales.SaleRepository,
	catalog sales.CatalogLookup,
	customers sales.CustomerLookup,
	payments *sales.PaymentRegistry,
	logger *zap.Logger,
) *Service {
	return &Service{
		runner:    runner,
		saleRepo:  saleRepo,
		catalog:   catalog,
		customers: customers,
		payments:  payments,
		logger:    logger,
	}
}

// SetBusinessMetrics sets the business metrics collector
func (s *Service) SetBusinessMetrics(bm *telemetry.BusinessMetrics) {
	s.businessMetrics = bm
}

// references holds the catalog and customer data of a draft. It is
// resolved before the protocol's transaction starts.
type references struct {
	items    map[uuid.UUID]*sales.CatalogItem
	customer *sales.Customer
}

// CreateSale rings up a sale. A repeated idempotency key returns the sale
// created by the first call.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest) (*SaleResponse, error) {
	draft := req.toDraft()
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	refs, err := s.resolve(ctx, draft)
	if err != nil {
		return nil, err
	}

	res, err := s.runner.Run(ctx, audit.OpCreateSale, req.IdempotencyKey, func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		doc, err := s.create(ctx, repos, draft, refs, uuid.Nil, nil)
		if err != nil {
			return uuid.Nil, err
		}
		return doc.ID, nil
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpCreateSale, err)
		return nil, err
	}

	doc, err := s.saleRepo.FindByID(ctx, res.ResultID)
	if err != nil {
		return nil, err
	}
	if !res.Replayed {
		s.logger.Info("Sale created",
			zap.String("sale_id", doc.ID.String()),
			zap.String("status", string(doc.Status)),
			zap.String("total", doc.TotalAmount.String()),
			zap.String("paid", doc.TotalPaidAmount.String()),
		)
		s.recordSale(ctx, doc)
	}
	resp := ToSaleResponse(doc)
	return &resp, nil
}

// UpdateSale applies a patch. Without a financial change the document is
// edited in place. An UNPAID document has its stock and postings undone and
// re-applied under the same id. A settled document is reversed and replaced
// by a new document.
func (s *Service) UpdateSale(ctx context.Context, id uuid.UUID, req UpdateSaleRequest) (*SaleResponse, error) {
	current, err := s.saleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.EnsureMutable(); err != nil {
		return nil, err
	}
	draft := req.mergeDraft(current)
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	refs, err := s.resolve(ctx, draft)
	if err != nil {
		return nil, err
	}

	res, err := s.runner.Run(ctx, audit.OpUpdateSale, "", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		doc, err := repos.SaleRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if err := doc.EnsureMutable(); err != nil {
			return uuid.Nil, err
		}

		switch {
		case !doc.HasFinancialDelta(draft):
			if err := doc.UpdateNotes(draft.Notes); err != nil {
				return uuid.Nil, err
			}
			return doc.ID, repos.SaleRepo().Save(ctx, doc)

		case doc.Status == sales.StatusUnpaid:
			return doc.ID, s.reapply(ctx, repos, doc, draft, refs)

		default:
			replacementID := uuid.New()
			doc.ReplacedByID = &replacementID
			if err := s.reverse(ctx, repos, doc, "replaced by "+replacementID.String(), false); err != nil {
				return uuid.Nil, err
			}
			replacement, err := s.create(ctx, repos, draft, refs, replacementID, &doc.ID)
			if err != nil {
				return uuid.Nil, err
			}
			return replacement.ID, nil
		}
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpUpdateSale, err)
		return nil, err
	}

	doc, err := s.saleRepo.FindByID(ctx, res.ResultID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Sale updated",
		zap.String("sale_id", id.String()),
		zap.String("result_id", doc.ID.String()),
		zap.Bool("replaced", doc.ID != id),
	)
	if doc.ID != id && s.businessMetrics != nil {
		s.businessMetrics.RecordReversal(ctx, telemetry.ReversalReplace)
		s.recordSale(ctx, doc)
	}
	resp := ToSaleResponse(doc)
	return &resp, nil
}

// ReverseSale undoes a sale completely and marks it REVERSED
func (s *Service) ReverseSale(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.runner.Run(ctx, audit.OpReverseSale, "", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		doc, err := repos.SaleRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		return doc.ID, s.reverse(ctx, repos, doc, reason, false)
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpReverseSale, err)
		return err
	}
	s.logger.Info("Sale reversed", zap.String("sale_id", id.String()), zap.String("reason", reason))
	if s.businessMetrics != nil {
		s.businessMetrics.RecordReversal(ctx, telemetry.ReversalReverse)
	}
	return nil
}

// ProcessReturn takes the goods of a sale back, refunds it and marks it RETURNED
func (s *Service) ProcessReturn(ctx context.Context, id uuid.UUID, reason string) (*SaleResponse, error) {
	_, err := s.runner.Run(ctx, audit.OpProcessReturn, "", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		doc, err := repos.SaleRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		return doc.ID, s.reverse(ctx, repos, doc, reason, true)
	})
	if err != nil {
		s.recordFailure(ctx, audit.OpProcessReturn, err)
		return nil, err
	}
	doc, err := s.saleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Sale returned", zap.String("sale_id", id.String()), zap.String("reason", reason))
	if s.businessMetrics != nil {
		s.businessMetrics.RecordReversal(ctx, telemetry.ReversalReturn)
	}
	resp := ToSaleResponse(doc)
	return &resp, nil
}

// GetSale returns a sale by id
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (*SaleResponse, error) {
	doc, err := s.saleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToSaleResponse(doc)
	return &resp, nil
}

// ListSales returns a page of sales
func (s *Service) ListSales(ctx context.Context, filter SaleListFilter) ([]SaleResponse, int64, error) {
	f := sales.SaleFilter{
		Filter:     shared.Filter{Page: filter.Page, PageSize: filter.PageSize, OrderBy: "created_at", OrderDir: "desc"},
		Status:     sales.Status(filter.Status),
		CustomerID: filter.CustomerID,
		ShiftID:    filter.ShiftID,
		From:       filter.From,
		To:         filter.To,
	}
	docs, total, err := s.saleRepo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]SaleResponse, len(docs))
	for i := range docs {
		out[i] = ToSaleResponse(&docs[i])
	}
	return out, total, nil
}

func (s *Service) resolve(ctx context.Context, draft *sales.Draft) (*references, error) {
	refs := &references{items: make(map[uuid.UUID]*sales.CatalogItem)}
	for _, l := range draft.Lines {
		if _, ok := refs.items[l.ItemID]; ok {
			continue
		}
		item, err := s.catalog.GetItem(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}
		refs.items[l.ItemID] = item
	}
	if draft.CustomerID != nil {
		customer, err := s.customers.GetCustomer(ctx, *draft.CustomerID)
		if err != nil {
			return nil, err
		}
		refs.customer = customer
	}
	return refs, nil
}

// create runs the creation protocol inside repos' transaction. id and
// replaces are set when the document replaces a reversed one.
func (s *Service) create(ctx context.Context, repos unitofwork.Repositories, draft *sales.Draft, refs *references, id uuid.UUID, replaces *uuid.UUID) (*sales.SaleDocument, error) {
	sh, err := s.activeShift(ctx, repos, draft.ShiftID)
	if err != nil {
		return nil, err
	}

	doc := sales.NewSaleDocument(sh.ID, sh.DrawerAccountID, refs.customer)
	if id != uuid.Nil {
		doc.ID = id
	}
	doc.ReplacesID = replaces
	doc.Notes = draft.Notes
	if err := s.build(doc, draft, refs); err != nil {
		return nil, err
	}
	if err := s.apply(ctx, repos, doc, sh, refs.customer); err != nil {
		return nil, err
	}
	if err := repos.SaleRepo().Create(ctx, doc); err != nil {
		return nil, err
	}
	if err := repos.Events().Write(ctx, sales.NewSaleCompletedEvent(doc)); err != nil {
		return nil, err
	}
	return doc, nil
}

// reapply replaces the content of an UNPAID document in place
func (s *Service) reapply(ctx context.Context, repos unitofwork.Repositories, doc *sales.SaleDocument, draft *sales.Draft, refs *references) error {
	if err := s.unapply(ctx, repos, doc, "sale edited", false); err != nil {
		return err
	}
	sh, err := s.activeShift(ctx, repos, draft.ShiftID)
	if err != nil {
		return err
	}
	doc.ShiftID = sh.ID
	doc.DrawerAccountID = sh.DrawerAccountID
	doc.CustomerID, doc.CustomerAccountID = nil, nil
	if refs.customer != nil {
		cid, aid := refs.customer.ID, refs.customer.AccountID
		doc.CustomerID, doc.CustomerAccountID = &cid, &aid
	}
	doc.Notes = draft.Notes
	if err := s.build(doc, draft, refs); err != nil {
		return err
	}
	if err := s.apply(ctx, repos, doc, sh, refs.customer); err != nil {
		return err
	}
	doc.IncrementVersion()
	if err := repos.SaleRepo().ReplaceContent(ctx, doc); err != nil {
		return err
	}
	return repos.Events().Write(ctx, sales.NewSaleCompletedEvent(doc))
}

// reverse undoes doc and closes it as REVERSED, or RETURNED when returned is set
func (s *Service) reverse(ctx context.Context, repos unitofwork.Repositories, doc *sales.SaleDocument, reason string, returned bool) error {
	if err := doc.EnsureMutable(); err != nil {
		return err
	}
	if err := s.unapply(ctx, repos, doc, reason, returned); err != nil {
		return err
	}
	var err error
	if returned {
		err = doc.MarkReturned(reason)
	} else {
		err = doc.MarkReversed(reason)
	}
	if err != nil {
		return err
	}
	if err := repos.SaleRepo().Save(ctx, doc); err != nil {
		return err
	}
	return repos.Events().Write(ctx, sales.NewSaleReversedEvent(doc))
}

// build resolves lines and payments of draft onto doc
func (s *Service) build(doc *sales.SaleDocument, draft *sales.Draft, refs *references) error {
	lines := make([]sales.LineItem, 0, len(draft.Lines))
	for _, ld := range draft.Lines {
		line, err := sales.NewLineItem(ld, refs.items[ld.ItemID])
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}
	services := make([]sales.ServiceLine, 0, len(draft.Services))
	for _, sd := range draft.Services {
		services = append(services, sales.ServiceLine{Description: sd.Description, Amount: sd.Amount})
	}
	payments := make([]sales.Payment, 0, len(draft.Payments))
	for _, pd := range draft.Payments {
		accountID, cash, err := s.payments.Resolve(pd.Method, doc.DrawerAccountID)
		if err != nil {
			return err
		}
		payments = append(payments, sales.Payment{Method: pd.Method, Amount: pd.Amount, AccountID: accountID, Cash: cash})
	}
	doc.SetContent(lines, services, payments)

	if doc.CustomerID == nil {
		if doc.DueAmount().IsPositive() {
			return shared.NewDomainError("INVALID_INPUT", "A sale without a customer must be paid in full").
				WithDetails(map[string]any{"total": doc.TotalAmount.String(), "paid": doc.TotalPaidAmount.String()})
		}
		if doc.ExcessAmount().IsPositive() {
			return shared.NewDomainError("INVALID_INPUT", "A sale without a customer cannot be overpaid").
				WithDetails(map[string]any{"total": doc.TotalAmount.String(), "paid": doc.TotalPaidAmount.String()})
		}
	}
	return nil
}

// apply runs the credit gate, stock mutations, postings and shift tally of doc
func (s *Service) apply(ctx context.Context, repos unitofwork.Repositories, doc *sales.SaleDocument, sh *shift.Shift, customer *sales.Customer) error {
	due := doc.DueAmount()
	if customer != nil && due.IsPositive() {
		acct, err := repos.AccountRepo().FindByIDForUpdate(ctx, *doc.CustomerAccountID)
		if err != nil {
			return err
		}
		if err := accounting.CheckCredit(customer.CreditLimit, acct.Balance, due); err != nil {
			return err
		}
	}

	store := appstock.NewStore(repos)
	src := stock.Source{Type: accounting.SourceSale, ID: doc.ID}
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if line.Serialized {
			units, err := store.SellUnits(ctx, line.Key(), line.Serials, line.UnitPrice, src)
			if err != nil {
				return err
			}
			cost := decimal.Zero
			for _, u := range units {
				cost = cost.Add(u.UnitCost)
				if line.Condition == "" {
					line.Condition = u.Condition
				}
				if u.WarrantyMonths > line.WarrantyMonths {
					line.WarrantyMonths = u.WarrantyMonths
				}
			}
			line.UnitCost = cost.Div(decimal.NewFromInt(int64(len(units)))).Round(4)
			continue
		}
		sold, err := store.DeductBatch(ctx, line.Key(), line.BatchID, line.Quantity, line.UnitPrice, src)
		if err != nil {
			return err
		}
		line.Allocations = sold.Deductions
		line.UnitCost = sold.UnitCost
	}

	ledger := appacct.NewLedger(repos)
	source := &accounting.Source{Type: accounting.SourceSale, ID: doc.ID}
	for _, p := range doc.Payments {
		if _, err := ledger.Post(ctx, accounting.Posting{
			AccountID:  p.AccountID,
			Amount:     p.Amount,
			Type:       accounting.TransactionDeposit,
			Reason:     fmt.Sprintf("sale %s payment (%s)", doc.ID, p.Method),
			Settlement: accounting.SettlementSettled,
			Source:     source,
		}); err != nil {
			return err
		}
	}
	if doc.CustomerAccountID != nil && due.IsPositive() {
		if _, err := ledger.Post(ctx, accounting.Posting{
			AccountID:  *doc.CustomerAccountID,
			Amount:     due,
			Type:       accounting.TransactionWithdrawal,
			Reason:     fmt.Sprintf("sale %s on credit", doc.ID),
			Settlement: accounting.SettlementCredit,
			Source:     source,
		}); err != nil {
			return err
		}
	}
	if excess := doc.ExcessAmount(); doc.CustomerAccountID != nil && excess.IsPositive() {
		if _, err := ledger.Post(ctx, accounting.Posting{
			AccountID:  *doc.CustomerAccountID,
			Amount:     excess,
			Type:       accounting.TransactionDeposit,
			Reason:     fmt.Sprintf("sale %s overpayment", doc.ID),
			Settlement: accounting.SettlementSettled,
			Source:     source,
		}); err != nil {
			return err
		}
	}

	row, err := sh.RecordSale(doc.ID, doc.CashAmount())
	if err != nil {
		return err
	}
	if err := repos.ShiftRepo().Save(ctx, sh); err != nil {
		return err
	}
	return repos.ShiftRepo().AddSale(ctx, row)
}

// unapply reverses the postings, stock and shift tally of doc and voids its warranties
func (s *Service) unapply(ctx context.Context, repos unitofwork.Repositories, doc *sales.SaleDocument, reason string, returned bool) error {
	if _, err := appacct.NewLedger(repos).ReverseSource(ctx, accounting.SourceSale, doc.ID, reason); err != nil {
		return err
	}

	store := appstock.NewStore(repos)
	src := stock.Source{Type: accounting.SourceSale, ID: doc.ID}
	for i := range doc.Lines {
		line := &doc.Lines[i]
		var err error
		if line.Serialized {
			err = store.ReleaseUnits(ctx, line.Key(), line.Serials, returned, src)
		} else {
			err = store.RestoreBatch(ctx, line.Key(), line.Allocations, returned, src)
		}
		if err != nil {
			return err
		}
	}

	if err := s.untally(ctx, repos, doc); err != nil {
		return err
	}
	return repos.WarrantyRepo().VoidByDocument(ctx, doc.ID)
}

// untally removes doc's cash from the shift that now holds its drawer: the
// original shift while it is active, otherwise the drawer's current shift
func (s *Service) untally(ctx context.Context, repos unitofwork.Repositories, doc *sales.SaleDocument) error {
	cash := doc.CashAmount()
	sh, err := repos.ShiftRepo().FindByIDForUpdate(ctx, doc.ShiftID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if sh == nil || !sh.IsActive() {
		sh, err = repos.ShiftRepo().FindActiveByDrawerForUpdate(ctx, doc.DrawerAccountID)
		if err != nil {
			return err
		}
	}
	if sh == nil {
		if cash.IsPositive() {
			return shared.ErrInvalidState.WithMessage("No active shift holds the drawer this sale was paid into").
				WithDetails(map[string]any{"sale_id": doc.ID, "drawer_account_id": doc.DrawerAccountID, "cash": cash.String()})
		}
		return nil
	}
	row, err := sh.RemoveSale(doc.ID, cash)
	if err != nil {
		return err
	}
	if err := repos.ShiftRepo().Save(ctx, sh); err != nil {
		return err
	}
	return repos.ShiftRepo().AddSale(ctx, row)
}

// activeShift locks the shift and checks that it still holds its drawer
func (s *Service) activeShift(ctx context.Context, repos unitofwork.Repositories, shiftID uuid.UUID) (*shift.Shift, error) {
	sh, err := repos.ShiftRepo().FindByIDForUpdate(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if !sh.IsActive() {
		return nil, shared.ErrInvalidState.WithMessage(fmt.Sprintf("Shift %s is %s", sh.ID, sh.Status)).
			WithDetails(map[string]any{"shift_id": sh.ID, "status": sh.Status})
	}
	drawer, err := repos.AccountRepo().FindByID(ctx, sh.DrawerAccountID)
	if err != nil {
		return nil, err
	}
	if drawer.LockedByShiftID == nil || *drawer.LockedByShiftID != sh.ID {
		return nil, shift.ErrDrawerLocked.WithMessage("Shift does not hold the lock on its drawer").
			WithDetails(map[string]any{"shift_id": sh.ID, "drawer_account_id": drawer.ID, "locked_by_shift_id": drawer.LockedByShiftID})
	}
	return sh, nil
}

func (s *Service) recordSale(ctx context.Context, doc *sales.SaleDocument) {
	if s.businessMetrics == nil {
		return
	}
	s.businessMetrics.RecordSale(ctx, string(doc.Status), doc.TotalAmount)
	for _, p := range doc.Payments {
		s.businessMetrics.RecordPayment(ctx, p.Method, p.Amount)
	}
}

func (s *Service) recordFailure(ctx context.Context, op string, err error) {
	if s.businessMetrics != nil && errors.Is(err, shared.ErrUnknownOutcome) {
		s.businessMetrics.RecordUnknownOutcome(ctx, op)
	}
}
