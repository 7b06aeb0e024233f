package handler

import (
	"github.com/erp/retailcore/internal/application/reconcile"
	"github.com/gin-gonic/gin"
)

// DiscrepancyHandler exposes the discrepancy log and the reconciler
type DiscrepancyHandler struct {
	BaseHandler
	reconcileService *reconcile.Service
}

// NewDiscrepancyHandler creates a new DiscrepancyHandler
func NewDiscrepancyHandler(reconcileService *reconcile.Service) *DiscrepancyHandler {
	return &DiscrepancyHandler{reconcileService: reconcileService}
}

// List returns logged discrepancies, newest first
//
// GET /discrepancies
func (h *DiscrepancyHandler) List(c *gin.Context) {
	var filter reconcile.DiscrepancyListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	items, total, err := h.reconcileService.ListDiscrepancies(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, items, total, filter.Page, filter.PageSize)
}

// Run triggers a reconciliation pass
//
// POST /discrepancies/reconcile
func (h *DiscrepancyHandler) Run(c *gin.Context) {
	report, err := h.reconcileService.Run(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}
