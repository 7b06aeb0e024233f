package shift

import (
	"time"

	"github.com/erp/retailcore/internal/domain/shift"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenShiftRequest represents a request to open a shift on a drawer
type OpenShiftRequest struct {
	OperatorID      uuid.UUID        `json:"operator_id" binding:"required"`
	DrawerAccountID uuid.UUID        `json:"drawer_account_id" binding:"required"`
	StartCash       decimal.Decimal  `json:"start_cash"`
	VaultAccountID  *uuid.UUID       `json:"vault_account_id"`
	VaultAmount     *decimal.Decimal `json:"vault_amount"`
	IdempotencyKey  string           `json:"idempotency_key" binding:"max=100"`
}

// CloseShiftRequest represents the physical count at close
type CloseShiftRequest struct {
	ActualCash decimal.Decimal `json:"actual_cash"`
	Breakdown  map[string]int  `json:"breakdown"`
}

// AdjustCashRequest represents a manual cash in or cash out
type AdjustCashRequest struct {
	Direction shift.Direction `json:"direction" binding:"required,oneof=IN OUT"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason" binding:"required,max=500"`
}

// ShiftListFilter narrows a shift listing
type ShiftListFilter struct {
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status     string     `form:"status" binding:"omitempty,oneof=ACTIVE CLOSED CANCELED"`
	OperatorID *uuid.UUID `form:"operator_id"`
}

// CashEntryResponse represents a register entry in API responses
type CashEntryResponse struct {
	ID            uuid.UUID       `json:"id"`
	Direction     shift.Direction `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ShiftResponse represents a shift in API responses
type ShiftResponse struct {
	ID                uuid.UUID           `json:"id"`
	OperatorID        uuid.UUID           `json:"operator_id"`
	DrawerAccountID   uuid.UUID           `json:"drawer_account_id"`
	VaultAccountID    *uuid.UUID          `json:"vault_account_id,omitempty"`
	VaultAmount       decimal.Decimal     `json:"vault_amount"`
	Status            shift.Status        `json:"status"`
	StartCash         decimal.Decimal     `json:"start_cash"`
	CashAdded         decimal.Decimal     `json:"cash_added"`
	CashRemoved       decimal.Decimal     `json:"cash_removed"`
	CashSales         decimal.Decimal     `json:"cash_sales"`
	CalculatedEndCash decimal.Decimal     `json:"calculated_end_cash"`
	OpeningMismatch   decimal.Decimal     `json:"opening_mismatch"`
	ActualCash        *decimal.Decimal    `json:"actual_cash,omitempty"`
	FinalMismatch     *decimal.Decimal    `json:"final_mismatch,omitempty"`
	Breakdown         map[string]int      `json:"breakdown,omitempty"`
	ForcedClose       bool                `json:"forced_close"`
	SaleCount         int                 `json:"sale_count"`
	Entries           []CashEntryResponse `json:"entries,omitempty"`
	OpenedAt          time.Time           `json:"opened_at"`
	ClosedAt          *time.Time          `json:"closed_at,omitempty"`
	Version           int                 `json:"version"`
}

// CloseShiftResponse carries the closed shift and its discrepancy
type CloseShiftResponse struct {
	Shift       ShiftResponse   `json:"shift"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

// ForceCloseAllResponse summarises a bulk close
type ForceCloseAllResponse struct {
	Closed []uuid.UUID `json:"closed"`
	Failed []uuid.UUID `json:"failed,omitempty"`
}

// ToShiftResponse converts a shift to its response
func ToShiftResponse(s *shift.Shift) ShiftResponse {
	resp := ShiftResponse{
		ID:                s.ID,
		OperatorID:        s.OperatorID,
		DrawerAccountID:   s.DrawerAccountID,
		VaultAccountID:    s.VaultAccountID,
		VaultAmount:       s.VaultAmount,
		Status:            s.Status,
		StartCash:         s.StartCash,
		CashAdded:         s.CashAdded,
		CashRemoved:       s.CashRemoved,
		CashSales:         s.CashSales,
		CalculatedEndCash: s.CalculatedEndCash(),
		OpeningMismatch:   s.OpeningMismatch,
		ActualCash:        s.ActualCash,
		FinalMismatch:     s.FinalMismatch,
		Breakdown:         s.Breakdown,
		ForcedClose:       s.ForcedClose,
		SaleCount:         s.SaleCount,
		OpenedAt:          s.OpenedAt,
		ClosedAt:          s.ClosedAt,
		Version:           s.Version,
	}
	for _, e := range s.Entries {
		resp.Entries = append(resp.Entries, CashEntryResponse{
			ID:            e.ID,
			Direction:     e.Direction,
			Amount:        e.Amount,
			Reason:        e.Reason,
			BalanceBefore: e.BalanceBefore,
			BalanceAfter:  e.BalanceAfter,
			TransactionID: e.TransactionID,
			CreatedAt:     e.CreatedAt,
		})
	}
	return resp
}
