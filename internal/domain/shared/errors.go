package shared

import "errors"

// DomainError represents a domain-level error.
// Details carries the figures a human operator needs to act on a rejection
// (limits, balances, quantities).
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so that errors.Is works against the
// sentinel values below even when a copy with details was returned.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of the error carrying the given details
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &DomainError{Code: e.Code, Message: e.Message, Details: merged}
}

// WithMessage returns a copy of the error with a more specific message
func (e *DomainError) WithMessage(message string) *DomainError {
	return &DomainError{Code: e.Code, Message: message, Details: e.Details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock   = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrInsufficientBalance = NewDomainError("INSUFFICIENT_BALANCE", "Insufficient balance available")
	ErrOperationInProgress = NewDomainError("OPERATION_IN_PROGRESS", "An operation with this key is still in progress")
	ErrUnknownOutcome      = NewDomainError("UNKNOWN_OUTCOME", "Operation outcome is unknown and requires reconciliation")
)

// Error categories, used by the HTTP layer and by callers deciding whether
// a request may be retried.
const (
	CategoryValidation = "validation"
	CategoryConflict   = "conflict"
	CategoryDomainRule = "domain_rule"
	CategoryNotFound   = "not_found"
	CategoryPartial    = "partial_failure"
)

var categoryByCode = map[string]string{
	"INVALID_INPUT":            CategoryValidation,
	"VALIDATION_ERROR":         CategoryValidation,
	"ALREADY_EXISTS":           CategoryConflict,
	"CONCURRENCY_CONFLICT":     CategoryConflict,
	"OPERATION_IN_PROGRESS":    CategoryConflict,
	"SERIAL_NOT_AVAILABLE":     CategoryConflict,
	"SHIFT_ALREADY_ACTIVE":     CategoryConflict,
	"DRAWER_LOCKED":            CategoryConflict,
	"NOT_FOUND":                CategoryNotFound,
	"UNKNOWN_OUTCOME":          CategoryPartial,
	"INVALID_STATE":            CategoryDomainRule,
	"INSUFFICIENT_STOCK":       CategoryDomainRule,
	"INSUFFICIENT_BALANCE":     CategoryDomainRule,
	"CREDIT_LIMIT_EXCEEDED":    CategoryDomainRule,
	"CASH_ONLY_CUSTOMER":       CategoryDomainRule,
	"RETURN_QUANTITY_EXCEEDED": CategoryDomainRule,
}

// Category returns the error category of err, or an empty string for
// errors that are not domain errors.
func Category(err error) string {
	var de *DomainError
	if !errors.As(err, &de) {
		return ""
	}
	if c, ok := categoryByCode[de.Code]; ok {
		return c
	}
	return CategoryDomainRule
}
