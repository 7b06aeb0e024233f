// Package stock applies goods movements to the physical stock tables and
// the stock ledger together, inside the caller's transaction.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store mutates unit and batch stock and appends the matching ledger
// entries. Every mutation first locks the key's summary row, which
// serializes ledger writers per (item, variant), and refreshes the summary
// before returning.
type Store struct {
	repos unitofwork.Repositories
}

// NewStore binds a Store to the repositories of one transaction
func NewStore(repos unitofwork.Repositories) *Store {
	return &Store{repos: repos}
}

// BatchSale is the result of selling a quantity from batch stock
type BatchSale struct {
	Deductions []stock.Deduction
	// UnitCost is the cost of the sold quantity averaged over the batches it came from
	UnitCost decimal.Decimal
}

// SellUnits moves each named unit from AVAILABLE to SOLD. All units are
// checked before any is changed.
func (s *Store) SellUnits(ctx context.Context, key stock.Key, serials []string, price decimal.Decimal, src stock.Source) ([]*stock.UnitStock, error) {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	units, err := s.lockUnits(ctx, key, serials)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		if u.Status != stock.UnitAvailable {
			return nil, stock.ErrSerialNotAvailable.WithDetails(map[string]any{
				"serial": u.Serial,
				"status": u.Status,
			})
		}
	}
	for _, u := range units {
		if err := u.Sell(src.ID); err != nil {
			return nil, err
		}
		if err := s.repos.UnitRepo().Save(ctx, u); err != nil {
			return nil, err
		}
		if _, err := s.append(ctx, stock.Movement{
			Key:            key,
			Type:           stock.MovementSaleOut,
			Quantity:       decimal.NewFromInt(-1),
			UnitIdentifier: u.Serial,
			BatchID:        u.BatchID,
			UnitCost:       u.UnitCost,
			SellingPrice:   price,
			Source:         &src,
		}); err != nil {
			return nil, err
		}
	}
	return units, s.sync(ctx, summary)
}

// ReleaseUnits moves sold units back to AVAILABLE. returned marks the units
// as previously sold and books the entry as a customer return.
func (s *Store) ReleaseUnits(ctx context.Context, key stock.Key, serials []string, returned bool, src stock.Source) error {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return err
	}
	units, err := s.lockUnits(ctx, key, serials)
	if err != nil {
		return err
	}
	movement := stock.MovementReversalIn
	if returned {
		movement = stock.MovementReturnIn
	}
	for _, u := range units {
		if err := u.Release(returned); err != nil {
			return err
		}
		if err := s.repos.UnitRepo().Save(ctx, u); err != nil {
			return err
		}
		if _, err := s.append(ctx, stock.Movement{
			Key:            key,
			Type:           movement,
			Quantity:       decimal.NewFromInt(1),
			UnitIdentifier: u.Serial,
			BatchID:        u.BatchID,
			UnitCost:       u.UnitCost,
			SellingPrice:   u.SellingPrice,
			Source:         &src,
		}); err != nil {
			return err
		}
	}
	return s.sync(ctx, summary)
}

// DeductBatch sells qty from one batch, or from the key's batches oldest
// first when batchID is nil. The physical counter never goes below zero; a
// shortfall is booked as an adjustment and logged as an oversell.
func (s *Store) DeductBatch(ctx context.Context, key stock.Key, batchID *uuid.UUID, qty, price decimal.Decimal, src stock.Source) (*BatchSale, error) {
	if !qty.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Sale quantity must be positive")
	}
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	plan, err := s.allocate(ctx, key, batchID, qty)
	if err != nil {
		return nil, err
	}

	result := &BatchSale{UnitCost: decimal.Zero}
	cost := decimal.Zero
	for _, p := range plan {
		d, err := p.batch.Deduct(p.qty)
		if err != nil {
			return nil, err
		}
		if err := s.repos.BatchRepo().Save(ctx, p.batch); err != nil {
			return nil, err
		}
		if d.Shortfall.IsPositive() {
			if err := s.bookOversell(ctx, key, p.batch, d, src); err != nil {
				return nil, err
			}
		}
		bid := p.batch.BatchID
		if _, err := s.append(ctx, stock.Movement{
			Key:          key,
			Type:         stock.MovementSaleOut,
			Quantity:     d.Requested.Neg(),
			BatchID:      &bid,
			UnitCost:     p.batch.UnitCost,
			SellingPrice: price,
			Source:       &src,
		}); err != nil {
			return nil, err
		}
		cost = cost.Add(p.batch.UnitCost.Mul(d.Requested))
		result.Deductions = append(result.Deductions, d)
	}
	result.UnitCost = cost.Div(qty).Round(4)
	return result, s.sync(ctx, summary)
}

// RestoreBatch undoes deductions exactly, including any booked shortfall
func (s *Store) RestoreBatch(ctx context.Context, key stock.Key, deductions []stock.Deduction, returned bool, src stock.Source) error {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return err
	}
	movement := stock.MovementReversalIn
	if returned {
		movement = stock.MovementReturnIn
	}
	for _, d := range deductions {
		b, err := s.repos.BatchRepo().FindForUpdate(ctx, key, d.BatchID)
		if err != nil {
			return err
		}
		if err := b.Restore(d); err != nil {
			return err
		}
		if err := s.repos.BatchRepo().Save(ctx, b); err != nil {
			return err
		}
		bid := b.BatchID
		if _, err := s.append(ctx, stock.Movement{
			Key:          key,
			Type:         movement,
			Quantity:     d.Requested,
			BatchID:      &bid,
			UnitCost:     b.UnitCost,
			SellingPrice: b.SellingPrice,
			Source:       &src,
		}); err != nil {
			return err
		}
		if d.Shortfall.IsPositive() {
			if _, err := s.append(ctx, stock.Movement{
				Key:      key,
				Type:     stock.MovementAdjustmentOut,
				Quantity: d.Shortfall.Neg(),
				BatchID:  &bid,
				UnitCost: b.UnitCost,
				Memo:     "oversell shortfall reversed",
				Source:   &src,
			}); err != nil {
				return err
			}
		}
	}
	return s.sync(ctx, summary)
}

// ReceiveBatch books purchased quantity into a batch, creating it when new
func (s *Store) ReceiveBatch(ctx context.Context, key stock.Key, batchID uuid.UUID, batchNumber string, qty, cost, price decimal.Decimal, src *stock.Source) (*stock.BatchStock, error) {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	b, err := s.repos.BatchRepo().FindForUpdate(ctx, key, batchID)
	switch {
	case err == nil:
		if err := b.Replenish(qty, cost); err != nil {
			return nil, err
		}
		if err := s.repos.BatchRepo().Save(ctx, b); err != nil {
			return nil, err
		}
	case errors.Is(err, shared.ErrNotFound):
		b, err = stock.NewBatchStock(key, batchID, batchNumber, qty, cost, price)
		if err != nil {
			return nil, err
		}
		if err := s.repos.BatchRepo().Create(ctx, b); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if _, err := s.append(ctx, stock.Movement{
		Key:          key,
		Type:         stock.MovementPurchaseIn,
		Quantity:     qty,
		BatchID:      &batchID,
		UnitCost:     cost,
		SellingPrice: price,
		Source:       src,
	}); err != nil {
		return nil, err
	}
	return b, s.sync(ctx, summary)
}

// ReceiveUnits creates AVAILABLE units for the given serials
func (s *Store) ReceiveUnits(ctx context.Context, key stock.Key, serials []string, batchID *uuid.UUID, cost, price decimal.Decimal, src *stock.Source) ([]*stock.UnitStock, error) {
	if len(serials) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one serial is required")
	}
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	units := make([]*stock.UnitStock, 0, len(serials))
	for _, serial := range serials {
		u, err := stock.NewUnitStock(key, serial, stock.UnitAvailable, cost, price)
		if err != nil {
			return nil, err
		}
		u.BatchID = batchID
		units = append(units, u)
	}
	if err := s.repos.UnitRepo().Create(ctx, units...); err != nil {
		return nil, err
	}
	for _, u := range units {
		if _, err := s.append(ctx, stock.Movement{
			Key:            key,
			Type:           stock.MovementPurchaseIn,
			Quantity:       decimal.NewFromInt(1),
			UnitIdentifier: u.Serial,
			BatchID:        batchID,
			UnitCost:       cost,
			SellingPrice:   price,
			Source:         src,
		}); err != nil {
			return nil, err
		}
	}
	return units, s.sync(ctx, summary)
}

// ExpectUnits registers INCOMING units for goods ordered but not yet on the
// shelf. They are not on hand, so no ledger entry is written until CheckInUnits.
func (s *Store) ExpectUnits(ctx context.Context, key stock.Key, serials []string, batchID *uuid.UUID, cost, price decimal.Decimal) ([]*stock.UnitStock, error) {
	if len(serials) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one serial is required")
	}
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	units := make([]*stock.UnitStock, 0, len(serials))
	for _, serial := range serials {
		u, err := stock.NewUnitStock(key, serial, stock.UnitIncoming, cost, price)
		if err != nil {
			return nil, err
		}
		u.BatchID = batchID
		units = append(units, u)
	}
	if err := s.repos.UnitRepo().Create(ctx, units...); err != nil {
		return nil, err
	}
	return units, s.sync(ctx, summary)
}

// CheckInUnits moves INCOMING units onto the shelf, one PURCHASE_IN each
func (s *Store) CheckInUnits(ctx context.Context, key stock.Key, serials []string, src *stock.Source) ([]*stock.UnitStock, error) {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	units, err := s.lockUnits(ctx, key, serials)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		if err := u.Receive(); err != nil {
			return nil, err
		}
		if err := s.repos.UnitRepo().Save(ctx, u); err != nil {
			return nil, err
		}
		if _, err := s.append(ctx, stock.Movement{
			Key:            key,
			Type:           stock.MovementPurchaseIn,
			Quantity:       decimal.NewFromInt(1),
			UnitIdentifier: u.Serial,
			BatchID:        u.BatchID,
			UnitCost:       u.UnitCost,
			SellingPrice:   u.SellingPrice,
			Source:         src,
		}); err != nil {
			return nil, err
		}
	}
	return units, s.sync(ctx, summary)
}

// SetUnitHold reserves an AVAILABLE unit (hold) or returns an ON_HOLD unit
// to sale. A held unit stays on hand, so the ledger is untouched.
func (s *Store) SetUnitHold(ctx context.Context, key stock.Key, serial string, hold bool) (*stock.UnitStock, error) {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	units, err := s.lockUnits(ctx, key, []string{serial})
	if err != nil {
		return nil, err
	}
	u := units[0]
	if hold {
		err = u.Hold()
	} else {
		err = u.Unhold()
	}
	if err != nil {
		return nil, err
	}
	if err := s.repos.UnitRepo().Save(ctx, u); err != nil {
		return nil, err
	}
	return u, s.sync(ctx, summary)
}

// AdjustBatch applies a signed count correction to a batch
func (s *Store) AdjustBatch(ctx context.Context, key stock.Key, batchID uuid.UUID, delta decimal.Decimal, memo string) (*stock.BatchStock, error) {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	b, err := s.repos.BatchRepo().FindForUpdate(ctx, key, batchID)
	if err != nil {
		return nil, err
	}
	if err := b.Adjust(delta); err != nil {
		return nil, err
	}
	if err := s.repos.BatchRepo().Save(ctx, b); err != nil {
		return nil, err
	}
	movement := stock.MovementAdjustmentIn
	if delta.IsNegative() {
		movement = stock.MovementAdjustmentOut
	}
	if _, err := s.append(ctx, stock.Movement{
		Key:      key,
		Type:     movement,
		Quantity: delta,
		BatchID:  &batchID,
		UnitCost: b.UnitCost,
		Memo:     memo,
	}); err != nil {
		return nil, err
	}
	return b, s.sync(ctx, summary)
}

// MarkUnitDamaged writes a unit off the sellable stock
func (s *Store) MarkUnitDamaged(ctx context.Context, key stock.Key, serial, memo string) (*stock.UnitStock, error) {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	units, err := s.lockUnits(ctx, key, []string{serial})
	if err != nil {
		return nil, err
	}
	u := units[0]
	onHand := u.Status.OnHand()
	if err := u.MarkDamaged(); err != nil {
		return nil, err
	}
	if err := s.repos.UnitRepo().Save(ctx, u); err != nil {
		return nil, err
	}
	if onHand {
		if _, err := s.append(ctx, stock.Movement{
			Key:            key,
			Type:           stock.MovementAdjustmentOut,
			Quantity:       decimal.NewFromInt(-1),
			UnitIdentifier: u.Serial,
			UnitCost:       u.UnitCost,
			Memo:           memo,
		}); err != nil {
			return nil, err
		}
	}
	return u, s.sync(ctx, summary)
}

// Correct realigns the ledger with the physical tables by appending a
// CORRECTION entry of (current stock - ledger closing). It returns nil when
// they already agree.
func (s *Store) Correct(ctx context.Context, key stock.Key, memo string) (*stock.LedgerEntry, error) {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.sync(ctx, summary); err != nil {
		return nil, err
	}
	last, err := s.repos.LedgerRepo().Last(ctx, key)
	if err != nil {
		return nil, err
	}
	closing := decimal.Zero
	if last != nil {
		closing = last.ClosingBalance
	}
	delta := summary.CurrentStock.Sub(closing)
	if delta.IsZero() {
		return nil, nil
	}
	return s.append(ctx, stock.Movement{
		Key:      key,
		Type:     stock.MovementCorrection,
		Quantity: delta,
		Memo:     memo,
	})
}

// Sync recomputes the cached summary of key from the physical rows
func (s *Store) Sync(ctx context.Context, key stock.Key) (*stock.Summary, error) {
	summary, err := s.repos.SummaryRepo().Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	return summary, s.sync(ctx, summary)
}

func (s *Store) sync(ctx context.Context, summary *stock.Summary) error {
	key := summary.Key()
	batches, err := s.repos.BatchRepo().ListByKey(ctx, key)
	if err != nil {
		return err
	}
	units, err := s.repos.UnitRepo().ListByKey(ctx, key)
	if err != nil {
		return err
	}
	summary.Recompute(batches, units)
	return s.repos.SummaryRepo().Save(ctx, summary)
}

func (s *Store) append(ctx context.Context, m stock.Movement) (*stock.LedgerEntry, error) {
	prev, err := s.repos.LedgerRepo().Last(ctx, m.Key)
	if err != nil {
		return nil, err
	}
	entry, err := stock.NewLedgerEntry(prev, m)
	if err != nil {
		return nil, err
	}
	if err := s.repos.LedgerRepo().Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) lockUnits(ctx context.Context, key stock.Key, serials []string) ([]*stock.UnitStock, error) {
	units, err := s.repos.UnitRepo().FindBySerialsForUpdate(ctx, serials)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(units))
	for _, u := range units {
		found[u.Serial] = true
		if u.Key() != key {
			return nil, shared.NewDomainError("INVALID_INPUT",
				fmt.Sprintf("Serial %s belongs to item %s, not %s", u.Serial, u.Key(), key)).
				WithDetails(map[string]any{"serial": u.Serial})
		}
	}
	var missing []string
	for _, serial := range serials {
		if !found[serial] {
			missing = append(missing, serial)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, shared.ErrNotFound.WithMessage(fmt.Sprintf("Unknown serials: %v", missing)).
			WithDetails(map[string]any{"serials": missing})
	}
	return units, nil
}

type allocation struct {
	batch *stock.BatchStock
	qty   decimal.Decimal
}

// allocate decides how much to take from which batch. Without a named
// batch the oldest batches are drained first and any remainder lands on the
// newest batch, where Deduct clamps it.
func (s *Store) allocate(ctx context.Context, key stock.Key, batchID *uuid.UUID, qty decimal.Decimal) ([]allocation, error) {
	if batchID != nil {
		b, err := s.repos.BatchRepo().FindForUpdate(ctx, key, *batchID)
		if err != nil {
			return nil, err
		}
		return []allocation{{batch: b, qty: qty}}, nil
	}

	batches, err := s.repos.BatchRepo().FindAllForUpdate(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, shared.ErrInsufficientStock.WithMessage(fmt.Sprintf("No batch stock for %s", key)).
			WithDetails(map[string]any{"item_id": key.ItemID, "requested": qty.String(), "available": "0"})
	}

	var plan []allocation
	remaining := qty
	for _, b := range batches {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, b.AvailableQty)
		if !take.IsPositive() {
			continue
		}
		plan = append(plan, allocation{batch: b, qty: take})
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		last := batches[len(batches)-1]
		if n := len(plan); n > 0 && plan[n-1].batch == last {
			plan[n-1].qty = plan[n-1].qty.Add(remaining)
		} else {
			plan = append(plan, allocation{batch: last, qty: remaining})
		}
	}
	return plan, nil
}

func (s *Store) bookOversell(ctx context.Context, key stock.Key, b *stock.BatchStock, d stock.Deduction, src stock.Source) error {
	bid := b.BatchID
	if _, err := s.append(ctx, stock.Movement{
		Key:      key,
		Type:     stock.MovementAdjustmentIn,
		Quantity: d.Shortfall,
		BatchID:  &bid,
		UnitCost: b.UnitCost,
		Memo:     "oversell shortfall",
		Source:   &src,
	}); err != nil {
		return err
	}
	return s.repos.DiscrepancyRepo().Create(ctx, audit.NewDiscrepancy(
		audit.DiscrepancyStockOversell, "BatchStock", b.BatchID, d.Requested, d.Deducted,
		fmt.Sprintf("sold %s from batch %s with %s on hand (%s %s)", d.Requested, b.BatchNumber, d.Deducted, src.Type, src.ID),
	))
}
