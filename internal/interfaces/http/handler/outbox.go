package handler

import (
	"github.com/erp/retailcore/internal/application/event"
	"github.com/gin-gonic/gin"
)

// OutboxHandler serves the outbox dead letter queue under /system/outbox.
type OutboxHandler struct {
	BaseHandler
	outbox *event.OutboxService
}

func NewOutboxHandler(outbox *event.OutboxService) *OutboxHandler {
	return &OutboxHandler{outbox: outbox}
}

type requeueAllResponse struct {
	Requeued int64 `json:"requeued"`
}

// ListDead GET /system/outbox/dead
func (h *OutboxHandler) ListDead(c *gin.Context) {
	var q event.DeadLetterQuery
	if !h.BindQuery(c, &q) {
		return
	}
	page, err := h.outbox.ListDead(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Entries, page.Total, page.Page, page.PageSize)
}

// Get GET /system/outbox/:id
func (h *OutboxHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.outbox.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// Requeue POST /system/outbox/:id/retry
func (h *OutboxHandler) Requeue(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.outbox.Requeue(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RequeueAll POST /system/outbox/dead/retry-all
func (h *OutboxHandler) RequeueAll(c *gin.Context) {
	n, err := h.outbox.RequeueAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, requeueAllResponse{Requeued: n})
}

// Stats GET /system/outbox/stats
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
