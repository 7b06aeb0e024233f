package handler

import (
	salesapp "github.com/erp/retailcore/internal/application/sales"
	"github.com/gin-gonic/gin"
)

// SaleHandler handles sale document endpoints
type SaleHandler struct {
	BaseHandler
	saleService *salesapp.Service
}

// NewSaleHandler creates a new SaleHandler
func NewSaleHandler(saleService *salesapp.Service) *SaleHandler {
	return &SaleHandler{saleService: saleService}
}

// Create rings up a sale.
// The idempotency key is read from the body or the Idempotency-Key header.
//
// POST /sales
func (h *SaleHandler) Create(c *gin.Context) {
	var req salesapp.CreateSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c, req.IdempotencyKey)

	sale, err := h.saleService.CreateSale(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, sale)
}

// GetByID returns a sale
//
// GET /sales/:id
func (h *SaleHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	sale, err := h.saleService.GetSale(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, sale)
}

// List returns a page of sales
//
// GET /sales
func (h *SaleHandler) List(c *gin.Context) {
	var filter salesapp.SaleListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	sales, total, err := h.saleService.ListSales(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, sales, total, filter.Page, filter.PageSize)
}

// Update patches a sale. The response carries the replacement document when
// the original was reversed and replaced.
//
// PUT /sales/:id
func (h *SaleHandler) Update(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req salesapp.UpdateSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.saleService.UpdateSale(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, sale)
}

// Reverse undoes a sale
//
// POST /sales/:id/reverse
func (h *SaleHandler) Reverse(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req salesapp.ReverseSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.saleService.ReverseSale(c.Request.Context(), id, req.Reason); err != nil {
		h.HandleError(c, err)
		return
	}

	sale, err := h.saleService.GetSale(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sale)
}

// Return takes the goods of a sale back and refunds it
//
// POST /sales/:id/return
func (h *SaleHandler) Return(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req salesapp.ReverseSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.saleService.ProcessReturn(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, sale)
}
