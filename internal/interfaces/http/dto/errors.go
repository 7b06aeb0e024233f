package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	// ErrCodeValidationLength is used when a field length is invalid
	ErrCodeValidationLength = "ERR_VALIDATION_LENGTH"
)

// Operator error codes
const (
	// ErrCodeUnauthorized is used when the operator header is missing
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the operator may not act on a resource
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeOperationInProgress is used when an idempotency key is still being processed
	ErrCodeOperationInProgress = "ERR_OPERATION_IN_PROGRESS"
	// ErrCodeSerialNotAvailable is used when a serialized unit is not AVAILABLE
	ErrCodeSerialNotAvailable = "ERR_SERIAL_NOT_AVAILABLE"
	// ErrCodeShiftAlreadyActive is used when an operator already has an open shift
	ErrCodeShiftAlreadyActive = "ERR_SHIFT_ALREADY_ACTIVE"
	// ErrCodeDrawerLocked is used when a cash drawer belongs to another shift
	ErrCodeDrawerLocked = "ERR_DRAWER_LOCKED"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeInsufficientStock is used when stock is insufficient
	ErrCodeInsufficientStock = "ERR_INSUFFICIENT_STOCK"
	// ErrCodeInsufficientBalance is used when balance is insufficient
	ErrCodeInsufficientBalance = "ERR_INSUFFICIENT_BALANCE"
	// ErrCodeCreditLimitExceeded is used when a sale would push a customer past their limit
	ErrCodeCreditLimitExceeded = "ERR_CREDIT_LIMIT_EXCEEDED"
	// ErrCodeCashOnlyCustomer is used when a zero-limit customer leaves an amount due
	ErrCodeCashOnlyCustomer = "ERR_CASH_ONLY_CUSTOMER"
	// ErrCodeReturnQuantityExceeded is used when more is returned than was sold
	ErrCodeReturnQuantityExceeded = "ERR_RETURN_QUANTITY_EXCEEDED"
)

// Outcome error codes
const (
	// ErrCodeUnknownOutcome is used when a commit may or may not have happened.
	// The client retries with the same idempotency key.
	ErrCodeUnknownOutcome = "ERR_UNKNOWN_OUTCOME"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeTooManyRequests is an alias for rate limiting
	ErrCodeTooManyRequests = "ERR_TOO_MANY_REQUESTS"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	// Operator errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Resource errors -> 409 Conflict
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeOperationInProgress: http.StatusConflict,
	ErrCodeSerialNotAvailable:  http.StatusConflict,
	ErrCodeShiftAlreadyActive:  http.StatusConflict,
	ErrCodeDrawerLocked:        http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:           http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:           http.StatusUnprocessableEntity,
	ErrCodeInsufficientStock:      http.StatusUnprocessableEntity,
	ErrCodeInsufficientBalance:    http.StatusUnprocessableEntity,
	ErrCodeCreditLimitExceeded:    http.StatusUnprocessableEntity,
	ErrCodeCashOnlyCustomer:       http.StatusUnprocessableEntity,
	ErrCodeReturnQuantityExceeded: http.StatusUnprocessableEntity,

	// Unknown outcome -> 503 Service Unavailable
	ErrCodeUnknownOutcome: http.StatusServiceUnavailable,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeTooManyRequests: http.StatusTooManyRequests,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// CategoryHTTPStatus maps domain error categories to HTTP status codes.
// It is the fallback for domain codes missing from ErrorCodeHTTPStatus.
var CategoryHTTPStatus = map[string]int{
	"validation":      http.StatusBadRequest,
	"conflict":        http.StatusConflict,
	"domain_rule":     http.StatusUnprocessableEntity,
	"not_found":       http.StatusNotFound,
	"partial_failure": http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusFor returns the HTTP status for a code, falling back to its category
func StatusFor(code, category string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	if status, ok := CategoryHTTPStatus[category]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps domain error codes to the standardized codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":                ErrCodeNotFound,
	"ALREADY_EXISTS":           ErrCodeAlreadyExists,
	"INVALID_INPUT":            ErrCodeInvalidInput,
	"INVALID_STATE":            ErrCodeInvalidState,
	"UNAUTHORIZED":             ErrCodeUnauthorized,
	"FORBIDDEN":                ErrCodeForbidden,
	"CONCURRENCY_CONFLICT":     ErrCodeConcurrencyConflict,
	"INSUFFICIENT_STOCK":       ErrCodeInsufficientStock,
	"INSUFFICIENT_BALANCE":     ErrCodeInsufficientBalance,
	"OPERATION_IN_PROGRESS":    ErrCodeOperationInProgress,
	"UNKNOWN_OUTCOME":          ErrCodeUnknownOutcome,
	"SERIAL_NOT_AVAILABLE":     ErrCodeSerialNotAvailable,
	"SHIFT_ALREADY_ACTIVE":     ErrCodeShiftAlreadyActive,
	"DRAWER_LOCKED":            ErrCodeDrawerLocked,
	"CREDIT_LIMIT_EXCEEDED":    ErrCodeCreditLimitExceeded,
	"CASH_ONLY_CUSTOMER":       ErrCodeCashOnlyCustomer,
	"RETURN_QUANTITY_EXCEEDED": ErrCodeReturnQuantityExceeded,
	"VALIDATION_ERROR":         ErrCodeValidation,
	"BAD_REQUEST":              ErrCodeBadRequest,
	"INTERNAL_ERROR":           ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
