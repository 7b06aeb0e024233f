package handler

import (
	"context"

	stockapp "github.com/erp/retailcore/internal/application/stock"
	"github.com/gin-gonic/gin"
)

// StockHandler handles stock level, history and movement endpoints
type StockHandler struct {
	BaseHandler
	stockService *stockapp.Service
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(stockService *stockapp.Service) *StockHandler {
	return &StockHandler{stockService: stockService}
}

// Level returns the stock of an item, optionally narrowed to a variant
//
// GET /stock/items/:item_id?variant_id=
func (h *StockHandler) Level(c *gin.Context) {
	itemID, ok := h.parseUUIDParam(c, "item_id")
	if !ok {
		return
	}
	variantID, ok := h.parseOptionalUUIDQuery(c, "variant_id")
	if !ok {
		return
	}

	level, err := h.stockService.StockLevel(c.Request.Context(), itemID, variantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, level)
}

// History returns the ledger entries of an item
//
// GET /stock/items/:item_id/history
func (h *StockHandler) History(c *gin.Context) {
	itemID, ok := h.parseUUIDParam(c, "item_id")
	if !ok {
		return
	}
	variantID, ok := h.parseOptionalUUIDQuery(c, "variant_id")
	if !ok {
		return
	}
	filter := pageParams(c)

	entries, total, err := h.stockService.History(c.Request.Context(), itemID, variantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, entries, total, filter.Page, filter.PageSize)
}

// Receive books purchased goods
//
// POST /stock/receipts
func (h *StockHandler) Receive(c *gin.Context) {
	var req stockapp.ReceiveStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	level, err := h.stockService.Receive(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, level)
}

// Adjust applies a count correction to a batch
//
// POST /stock/adjustments
func (h *StockHandler) Adjust(c *gin.Context) {
	var req stockapp.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	batch, err := h.stockService.Adjust(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, batch)
}

// MarkDamaged writes a serialized unit off
//
// POST /stock/damages
func (h *StockHandler) MarkDamaged(c *gin.Context) {
	var req stockapp.MarkDamagedRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.stockService.MarkDamaged(c.Request.Context(), req); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// CheckIn puts incoming serialized units on the shelf
//
// POST /stock/check-ins
func (h *StockHandler) CheckIn(c *gin.Context) {
	var req stockapp.CheckInUnitsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	units, err := h.stockService.CheckIn(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, units)
}

// Hold takes a serialized unit out of sale
//
// POST /stock/holds
func (h *StockHandler) Hold(c *gin.Context) {
	h.changeHold(c, h.stockService.Hold)
}

// ReleaseHold puts a held unit back on sale
//
// POST /stock/holds/release
func (h *StockHandler) ReleaseHold(c *gin.Context) {
	h.changeHold(c, h.stockService.ReleaseHold)
}

func (h *StockHandler) changeHold(c *gin.Context, apply func(context.Context, stockapp.UnitHoldRequest) (*stockapp.UnitResponse, error)) {
	var req stockapp.UnitHoldRequest
	if !h.BindJSON(c, &req) {
		return
	}

	unit, err := apply(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, unit)
}
