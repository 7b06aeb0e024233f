package handler

import (
	"github.com/erp/retailcore/internal/interfaces/http/router"
)

// Handlers bundles the API handlers mounted under the versioned prefix
type Handlers struct {
	Sales         *SaleHandler
	Shifts        *ShiftHandler
	Accounts      *AccountHandler
	Stock         *StockHandler
	Discrepancies *DiscrepancyHandler
	Outbox        *OutboxHandler
	System        *SystemHandler
}

// Registrars returns one route group per domain
func (h Handlers) Registrars() []router.RouteRegistrar {
	sales := router.NewDomainGroup("sales", "/sales").
		POST("", h.Sales.Create).
		GET("", h.Sales.List).
		GET("/:id", h.Sales.GetByID).
		PUT("/:id", h.Sales.Update).
		POST("/:id/reverse", h.Sales.Reverse).
		POST("/:id/return", h.Sales.Return)

	shifts := router.NewDomainGroup("shifts", "/shifts").
		POST("", h.Shifts.Open).
		GET("", h.Shifts.List).
		POST("/force-close-all", h.Shifts.ForceCloseAll).
		GET("/:id", h.Shifts.GetByID).
		POST("/:id/close", h.Shifts.Close).
		POST("/:id/cash", h.Shifts.AdjustCash).
		POST("/:id/force-close", h.Shifts.ForceClose).
		POST("/:id/cancel", h.Shifts.Cancel)

	accounts := router.NewDomainGroup("accounts", "/accounts").
		POST("", h.Accounts.Create).
		GET("", h.Accounts.List).
		GET("/:id", h.Accounts.GetByID).
		GET("/:id/transactions", h.Accounts.Transactions).
		POST("/:id/transactions", h.Accounts.PostTransaction).
		GET("/:id/verify", h.Accounts.Verify)

	stock := router.NewDomainGroup("stock", "/stock").
		GET("/items/:item_id", h.Stock.Level).
		GET("/items/:item_id/history", h.Stock.History).
		POST("/receipts", h.Stock.Receive).
		POST("/adjustments", h.Stock.Adjust).
		POST("/damages", h.Stock.MarkDamaged).
		POST("/check-ins", h.Stock.CheckIn).
		POST("/holds", h.Stock.Hold).
		POST("/holds/release", h.Stock.ReleaseHold)

	discrepancies := router.NewDomainGroup("discrepancies", "/discrepancies").
		GET("", h.Discrepancies.List).
		POST("/reconcile", h.Discrepancies.Run)

	system := router.NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo).
		GET("/ping", h.System.Ping)
	system.Group("outbox", "/outbox").
		GET("/dead", h.Outbox.ListDead).
		POST("/dead/retry-all", h.Outbox.RequeueAll).
		GET("/stats", h.Outbox.Stats).
		GET("/:id", h.Outbox.Get).
		POST("/:id/retry", h.Outbox.Requeue)

	return []router.RouteRegistrar{sales, shifts, accounts, stock, discrepancies, system}
}
