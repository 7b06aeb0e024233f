package stock

import (
	"context"
	"errors"
	"sort"

	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service exposes stock queries and the supplementary stock movements
type Service struct {
	scope       unitofwork.TransactionScope
	ledgerRepo  stock.LedgerRepository
	summaryRepo stock.SummaryRepository
	batchRepo   stock.BatchRepository
	unitRepo    stock.UnitRepository
	logger      *zap.Logger
}

// NewService creates a new stock Service
func NewService(
	scope unitofwork.TransactionScope,
	ledgerRepo stock.LedgerRepository,
	summaryRepo stock.SummaryRepository,
	batchRepo stock.BatchRepository,
	unitRepo stock.UnitRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		scope:       scope,
		ledgerRepo:  ledgerRepo,
		summaryRepo: summaryRepo,
		batchRepo:   batchRepo,
		unitRepo:    unitRepo,
		logger:      logger,
	}
}

// StockLevel returns the available and on-hand stock of an item, or of one
// variant when variantID is set, with its batches.
func (s *Service) StockLevel(ctx context.Context, itemID uuid.UUID, variantID *uuid.UUID) (*StockLevelResponse, error) {
	var (
		summaries []stock.Summary
		batches   []stock.BatchStock
		units     []stock.UnitStock
		err       error
	)
	if variantID != nil {
		key := stock.NewKey(itemID, variantID)
		sum, ferr := s.summaryRepo.Find(ctx, key)
		switch {
		case ferr == nil:
			summaries = []stock.Summary{*sum}
		case !errors.Is(ferr, shared.ErrNotFound):
			return nil, ferr
		}
		if batches, err = s.batchRepo.ListByKey(ctx, key); err != nil {
			return nil, err
		}
		if units, err = s.unitRepo.ListByKey(ctx, key); err != nil {
			return nil, err
		}
	} else {
		if summaries, err = s.summaryRepo.FindByItem(ctx, itemID); err != nil {
			return nil, err
		}
		if batches, err = s.batchRepo.ListByItem(ctx, itemID); err != nil {
			return nil, err
		}
		if units, err = s.unitRepo.ListByItem(ctx, itemID); err != nil {
			return nil, err
		}
	}

	resp := &StockLevelResponse{
		ItemID:    itemID,
		VariantID: variantID,
		Available: decimal.Zero,
		OnHand:    decimal.Zero,
		LastCost:  decimal.Zero,
		LastPrice: decimal.Zero,
		Batches:   make([]BatchLevelResponse, 0, len(batches)),
	}
	for _, sum := range summaries {
		resp.Available = resp.Available.Add(sum.AvailableForSale)
		resp.OnHand = resp.OnHand.Add(sum.CurrentStock)
		if !sum.LastCost.IsZero() {
			resp.LastCost, resp.LastPrice = sum.LastCost, sum.LastPrice
		}
	}
	for i := range batches {
		resp.Batches = append(resp.Batches, toBatchLevel(&batches[i]))
	}
	for _, u := range units {
		if u.Status == stock.UnitAvailable {
			resp.AvailableSerials = append(resp.AvailableSerials, u.Serial)
		}
	}
	sort.Strings(resp.AvailableSerials)
	return resp, nil
}

// History returns the ledger entries of an item in sequence order
func (s *Service) History(ctx context.Context, itemID uuid.UUID, variantID *uuid.UUID, filter shared.Filter) ([]LedgerEntryResponse, int64, error) {
	entries, total, err := s.ledgerRepo.History(ctx, itemID, variantID, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]LedgerEntryResponse, len(entries))
	for i := range entries {
		out[i] = ToLedgerEntryResponse(&entries[i])
	}
	return out, total, nil
}

// Receive books purchased goods into batch or unit stock
func (s *Service) Receive(ctx context.Context, req ReceiveStockRequest) (*StockLevelResponse, error) {
	key := stock.NewKey(req.ItemID, req.VariantID)
	var src *stock.Source
	if req.SourceID != nil {
		src = &stock.Source{Type: req.SourceType, ID: *req.SourceID}
	}

	err := s.scope.Execute(ctx, func(repos unitofwork.Repositories) error {
		store := NewStore(repos)
		if len(req.Serials) > 0 && req.Incoming {
			_, err := store.ExpectUnits(ctx, key, req.Serials, req.BatchID, req.UnitCost, req.SellingPrice)
			return err
		}
		if len(req.Serials) > 0 {
			_, err := store.ReceiveUnits(ctx, key, req.Serials, req.BatchID, req.UnitCost, req.SellingPrice, src)
			return err
		}
		batchID := uuid.New()
		if req.BatchID != nil {
			batchID = *req.BatchID
		}
		_, err := store.ReceiveBatch(ctx, key, batchID, req.BatchNumber, req.Quantity, req.UnitCost, req.SellingPrice, src)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock received",
		zap.String("key", key.String()),
		zap.Int("serials", len(req.Serials)),
		zap.Bool("incoming", req.Incoming),
		zap.String("quantity", req.Quantity.String()),
	)
	return s.StockLevel(ctx, req.ItemID, req.VariantID)
}

// Adjust applies a count correction to a batch
func (s *Service) Adjust(ctx context.Context, req AdjustStockRequest) (*BatchLevelResponse, error) {
	key := stock.NewKey(req.ItemID, req.VariantID)
	var resp BatchLevelResponse
	err := s.scope.Execute(ctx, func(repos unitofwork.Repositories) error {
		b, err := NewStore(repos).AdjustBatch(ctx, key, req.BatchID, req.Delta, req.Reason)
		if err != nil {
			return err
		}
		resp = toBatchLevel(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Stock adjusted",
		zap.String("key", key.String()),
		zap.String("batch_id", req.BatchID.String()),
		zap.String("delta", req.Delta.String()),
	)
	return &resp, nil
}

// MarkDamaged writes a serialized unit off
func (s *Service) MarkDamaged(ctx context.Context, req MarkDamagedRequest) error {
	key := stock.NewKey(req.ItemID, req.VariantID)
	return s.scope.Execute(ctx, func(repos unitofwork.Repositories) error {
		_, err := NewStore(repos).MarkUnitDamaged(ctx, key, req.Serial, req.Reason)
		return err
	})
}

// CheckIn puts incoming units on the shelf
func (s *Service) CheckIn(ctx context.Context, req CheckInUnitsRequest) ([]UnitResponse, error) {
	key := stock.NewKey(req.ItemID, req.VariantID)
	var src *stock.Source
	if req.SourceID != nil {
		src = &stock.Source{Type: req.SourceType, ID: *req.SourceID}
	}
	var out []UnitResponse
	err := s.scope.Execute(ctx, func(repos unitofwork.Repositories) error {
		units, err := NewStore(repos).CheckInUnits(ctx, key, req.Serials, src)
		if err != nil {
			return err
		}
		out = make([]UnitResponse, len(units))
		for i, u := range units {
			out[i] = toUnitResponse(u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Units checked in", zap.String("key", key.String()), zap.Strings("serials", req.Serials))
	return out, nil
}

// Hold takes a unit out of sale without taking it off hand
func (s *Service) Hold(ctx context.Context, req UnitHoldRequest) (*UnitResponse, error) {
	return s.setHold(ctx, req, true)
}

// ReleaseHold puts a held unit back on sale
func (s *Service) ReleaseHold(ctx context.Context, req UnitHoldRequest) (*UnitResponse, error) {
	return s.setHold(ctx, req, false)
}

func (s *Service) setHold(ctx context.Context, req UnitHoldRequest, hold bool) (*UnitResponse, error) {
	key := stock.NewKey(req.ItemID, req.VariantID)
	var resp UnitResponse
	err := s.scope.Execute(ctx, func(repos unitofwork.Repositories) error {
		u, err := NewStore(repos).SetUnitHold(ctx, key, req.Serial, hold)
		if err != nil {
			return err
		}
		resp = toUnitResponse(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Unit hold changed", zap.String("serial", req.Serial), zap.Bool("hold", hold))
	return &resp, nil
}
