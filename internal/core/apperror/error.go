// Package apperror provides structured error handling for the ledger API.
// Every business failure surfaces as an AppError with a stable code.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInvalidAmount     = "INVALID_AMOUNT"

	// Cash register state machine (409)
	CodeAlreadyOpen    = "ALREADY_OPEN"
	CodeAlreadyClosed  = "ALREADY_CLOSED"
	CodeRegisterClosed = "REGISTER_CLOSED"

	// Concurrency (409/503)
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeAlreadyProcessing      = "ALREADY_PROCESSING"
	CodeLockUnavailable        = "LOCK_UNAVAILABLE"

	// Invariant breach detected at runtime (500)
	CodeConsistencyAlarm = "CONSISTENCY_ALARM"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict    = "CONFLICT"
	CodeDuplicate   = "DUPLICATE_ENTRY"
	CodeIdempotency = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error.
// Quantities are passed as display strings to keep their fixed-point precision.
func NewInsufficientStock(productID, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different user/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewInsufficientFunds is returned when a withdrawal exceeds the drawer balance.
func NewInsufficientFunds(requested, current string) *AppError {
	return &AppError{
		Code:       CodeInsufficientFunds,
		Message:    "Insufficient funds in cash register",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"requested":       requested,
			"current_balance": current,
		},
	}
}

// NewInvalidAmount creates an error for non-positive money amounts (400)
func NewInvalidAmount(amount string) *AppError {
	return &AppError{
		Code:       CodeInvalidAmount,
		Message:    "Amount must be positive",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"amount": amount},
	}
}

// NewAlreadyOpen is returned when a store already has an open register.
func NewAlreadyOpen(storeID any) *AppError {
	return &AppError{
		Code:       CodeAlreadyOpen,
		Message:    "Cash register is already open for this store",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"store_id": storeID},
	}
}

// NewAlreadyClosed is returned when closing a register twice.
func NewAlreadyClosed(registerID any) *AppError {
	return &AppError{
		Code:       CodeAlreadyClosed,
		Message:    "Cash register is already closed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"register_id": registerID},
	}
}

// NewRegisterClosed is returned for cash operations against a closed or missing register.
func NewRegisterClosed(ref any) *AppError {
	return &AppError{
		Code:       CodeRegisterClosed,
		Message:    "Cash register is not open",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ref": ref},
	}
}

// NewAlreadyProcessing is returned when another request holds the settlement lock.
func NewAlreadyProcessing(key string) *AppError {
	return &AppError{
		Code:       CodeAlreadyProcessing,
		Message:    "Transaction is being processed by another request",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"lock_key": key},
	}
}

// NewLockUnavailable is returned when the lock backend cannot be reached.
func NewLockUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeLockUnavailable,
		Message:    "Lock service unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewConsistencyAlarm signals a broken ledger invariant; the unit of work must roll back.
func NewConsistencyAlarm(kind, message string) *AppError {
	return &AppError{
		Code:       CodeConsistencyAlarm,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"kind": kind},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether the caller may safely retry the same request.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case CodeConcurrentModification, CodeAlreadyProcessing, CodeLockUnavailable, CodeTimeout:
		return true
	}
	return false
}
