package handler

import (
	acctapp "github.com/erp/retailcore/internal/application/accounting"
	"github.com/gin-gonic/gin"
)

// AccountHandler handles account and transaction endpoints
type AccountHandler struct {
	BaseHandler
	accountService *acctapp.Service
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accountService *acctapp.Service) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// Create opens an account with a zero balance
//
// POST /accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req acctapp.CreateAccountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	acct, err := h.accountService.CreateAccount(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, acct)
}

// GetByID returns an account with its balance
//
// GET /accounts/:id
func (h *AccountHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	acct, err := h.accountService.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, acct)
}

// List returns a page of accounts
//
// GET /accounts
func (h *AccountHandler) List(c *gin.Context) {
	filter := pageParams(c)
	filter.OrderBy = c.DefaultQuery("order_by", "created_at")

	accounts, total, err := h.accountService.ListAccounts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, accounts, total, filter.Page, filter.PageSize)
}

// Transactions returns a page of an account's transactions
//
// GET /accounts/:id/transactions
func (h *AccountHandler) Transactions(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	filter := pageParams(c)
	filter.OrderBy = "sequence"
	if settlement := c.Query("settlement"); settlement != "" {
		filter.Filters = map[string]interface{}{"settlement": settlement}
	}

	txs, total, err := h.accountService.ListTransactions(c.Request.Context(), id, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, txs, total, filter.Page, filter.PageSize)
}

// PostTransaction applies a manual deposit or withdrawal
//
// POST /accounts/:id/transactions
func (h *AccountHandler) PostTransaction(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	req := acctapp.PostTransactionRequest{AccountID: id}
	if !h.BindJSON(c, &req) {
		return
	}
	req.AccountID = id

	tx, err := h.accountService.PostTransaction(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, tx)
}

// Verify replays an account's transactions against its stored balance
//
// GET /accounts/:id/verify
func (h *AccountHandler) Verify(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.accountService.VerifyAccount(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}
