package accounting

import (
	"fmt"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	// ErrCreditLimitExceeded is returned when a sale would push a customer past its limit
	ErrCreditLimitExceeded = shared.NewDomainError("CREDIT_LIMIT_EXCEEDED", "Credit limit exceeded")
	// ErrCashOnlyCustomer is returned when a customer with a zero limit tries to buy on credit
	ErrCashOnlyCustomer = shared.NewDomainError("CASH_ONLY_CUSTOMER", "Customer is cash-only and cannot buy on credit")
)

// CurrentDebt returns the debt carried by a customer account: the negated
// balance when it is negative, zero otherwise.
func CurrentDebt(balance decimal.Decimal) decimal.Decimal {
	if balance.IsNegative() {
		return balance.Neg()
	}
	return decimal.Zero
}

// CheckCredit decides whether a customer with the given limit and account
// balance may leave due unpaid.
//
// A nil limit disables the check, a zero limit forbids any due amount and a
// positive limit caps the projected debt.
func CheckCredit(limit *decimal.Decimal, balance, due decimal.Decimal) error {
	if !due.IsPositive() || limit == nil {
		return nil
	}

	debt := CurrentDebt(balance)
	projected := CurrentDebt(balance.Sub(due))
	details := map[string]any{
		"credit_limit":    limit.String(),
		"current_balance": balance.String(),
		"current_debt":    debt.String(),
		"due_amount":      due.String(),
		"projected_debt":  projected.String(),
	}

	if limit.IsZero() {
		return ErrCashOnlyCustomer.WithMessage(
			fmt.Sprintf("Customer is cash-only; %s would remain unpaid", due),
		).WithDetails(details)
	}
	if projected.GreaterThan(*limit) {
		return ErrCreditLimitExceeded.WithMessage(
			fmt.Sprintf("Projected debt %s exceeds credit limit %s (current debt %s, due %s)", projected, limit, debt, due),
		).WithDetails(details)
	}
	return nil
}
