package sales

import (
	"context"
	"fmt"

	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"go.uber.org/zap"
)

// WarrantyHandler keeps warranty records in step with sale documents.
// It issues records for the serialized units of a completed sale and voids
// them when the sale is reversed or returned.
type WarrantyHandler struct {
	saleRepo     sales.SaleRepository
	warrantyRepo sales.WarrantyRepository
	logger       *zap.Logger
}

// NewWarrantyHandler creates a new WarrantyHandler
func NewWarrantyHandler(saleRepo sales.SaleRepository, warrantyRepo sales.WarrantyRepository, logger *zap.Logger) *WarrantyHandler {
	return &WarrantyHandler{
		saleRepo:     saleRepo,
		warrantyRepo: warrantyRepo,
		logger:       logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *WarrantyHandler) EventTypes() []string {
	return []string{sales.EventTypeSaleCompleted, sales.EventTypeSaleReversed}
}

// Handle processes sale events
func (h *WarrantyHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *sales.SaleCompletedEvent:
		return h.issue(ctx, e)
	case *sales.SaleReversedEvent:
		if err := h.warrantyRepo.VoidByDocument(ctx, e.DocumentID); err != nil {
			return fmt.Errorf("void warranties of sale %s: %w", e.DocumentID, err)
		}
		h.logger.Info("warranties voided",
			zap.String("sale_id", e.DocumentID.String()),
			zap.String("status", string(e.Status)),
		)
		return nil
	default:
		h.logger.Error("unexpected event type",
			zap.Strings("expected", h.EventTypes()),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
}

func (h *WarrantyHandler) issue(ctx context.Context, e *sales.SaleCompletedEvent) error {
	if len(e.Units) == 0 {
		return nil
	}
	// The outbox may deliver a completion after the sale was already reversed
	doc, err := h.saleRepo.FindByID(ctx, e.DocumentID)
	if err != nil {
		return fmt.Errorf("load sale %s: %w", e.DocumentID, err)
	}
	if doc.Status.IsTerminal() {
		h.logger.Debug("skipping warranties of closed sale",
			zap.String("sale_id", doc.ID.String()),
			zap.String("status", string(doc.Status)),
		)
		return nil
	}

	records := make([]*sales.WarrantyRecord, 0, len(e.Units))
	for _, u := range e.Units {
		if u.WarrantyMonths <= 0 {
			continue
		}
		records = append(records, sales.NewWarrantyRecord(e.DocumentID, e.CustomerID, u.ItemID, u.Serial, u.WarrantyMonths, e.OccurredAt()))
	}
	if len(records) == 0 {
		return nil
	}
	if err := h.warrantyRepo.Upsert(ctx, records); err != nil {
		return fmt.Errorf("issue warranties of sale %s: %w", e.DocumentID, err)
	}
	h.logger.Info("warranties issued",
		zap.String("sale_id", e.DocumentID.String()),
		zap.Int("count", len(records)),
	)
	return nil
}

var _ shared.EventHandler = (*WarrantyHandler)(nil)
