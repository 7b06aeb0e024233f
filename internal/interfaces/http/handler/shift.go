package handler

import (
	"net/http"
	"time"

	shiftapp "github.com/erp/retailcore/internal/application/shift"
	"github.com/erp/retailcore/internal/interfaces/http/dto"
	"github.com/erp/retailcore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ShiftHandler handles cash drawer shift endpoints
type ShiftHandler struct {
	BaseHandler
	shiftService *shiftapp.Service
}

// NewShiftHandler creates a new ShiftHandler
func NewShiftHandler(shiftService *shiftapp.Service) *ShiftHandler {
	return &ShiftHandler{shiftService: shiftService}
}

// Open opens a shift. The operator defaults to the X-Operator-ID of the
// request when the body does not name one.
//
// POST /shifts
func (h *ShiftHandler) Open(c *gin.Context) {
	req := shiftapp.OpenShiftRequest{OperatorID: middleware.GetOperatorUUID(c)}
	if !h.BindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(c, req.IdempotencyKey)

	sh, err := h.shiftService.OpenShift(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, sh)
}

// GetByID returns a shift with its register entries
//
// GET /shifts/:id
func (h *ShiftHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	sh, err := h.shiftService.GetShift(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, sh)
}

// List returns a page of shifts
//
// GET /shifts
func (h *ShiftHandler) List(c *gin.Context) {
	var filter shiftapp.ShiftListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	shifts, total, err := h.shiftService.ListShifts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, shifts, total, filter.Page, filter.PageSize)
}

// Close reconciles the counted cash and closes the shift
//
// POST /shifts/:id/close
func (h *ShiftHandler) Close(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req shiftapp.CloseShiftRequest
	if !h.BindJSON(c, &req) {
		return
	}

	resp, err := h.shiftService.CloseShift(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// AdjustCash posts a cash in or cash out
//
// POST /shifts/:id/cash
func (h *ShiftHandler) AdjustCash(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req shiftapp.AdjustCashRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sh, err := h.shiftService.AdjustShiftCash(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, sh)
}

// ForceClose closes a shift administratively
//
// POST /shifts/:id/force-close
func (h *ShiftHandler) ForceClose(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	sh, err := h.shiftService.ForceCloseShift(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, sh)
}

// ForceCloseAll force closes every active shift. Partial failures answer
// 207 with the closed and failed shift ids.
//
// POST /shifts/force-close-all
func (h *ShiftHandler) ForceCloseAll(c *gin.Context) {
	resp, err := h.shiftService.ForceCloseAll(c.Request.Context())
	if resp == nil {
		h.HandleError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusMultiStatus, dto.Response{
			Success: false,
			Data:    resp,
			Error: &dto.ErrorInfo{
				Code:      dto.ErrCodeConflict,
				Message:   err.Error(),
				RequestID: getRequestID(c),
				Timestamp: time.Now(),
				Context:   map[string]any{"failed": len(resp.Failed)},
			},
		})
		return
	}

	h.Success(c, resp)
}

// Cancel abandons a shift that never handled money
//
// POST /shifts/:id/cancel
func (h *ShiftHandler) Cancel(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	sh, err := h.shiftService.CancelShift(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, sh)
}
