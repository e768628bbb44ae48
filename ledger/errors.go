/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Validation errors - rejected before any balance mutation
  2. Not-found errors  - missing OR not owned (indistinguishable on purpose)
  3. Store errors      - transaction aborted, everything rolled back

USAGE:
  if errors.Is(err, ledger.ErrAccountNotFound) { ... }

  var verr *ledger.ValidationError
  if errors.As(err, &verr) { log(verr.Code) }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrRuleNotFound     = errors.New("recurring rule not found")
	ErrTransferNotFound = errors.New("transfer not found")

	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAmountOutOfRange  = errors.New("amount out of range")
	ErrInvalidKind       = errors.New("invalid entry kind")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrAccountInactive   = errors.New("account is inactive")
	ErrSelfTransfer      = errors.New("source and destination accounts are the same")
	ErrCurrencyMismatch  = errors.New("accounts use different currencies")
	ErrInvalidCadence    = errors.New("invalid cadence")
	ErrInvalidAnchorDay  = errors.New("invalid anchor day")
	ErrRuleInactive      = errors.New("recurring rule is inactive")
	ErrInvalidDateFilter = errors.New("invalid date range")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// SourceKey already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when the store detects a
	// conflicting writer it could not serialize.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// Validation codes surfaced to API clients.
const (
	CodeInvalidAmount    = "invalid_amount"
	CodeAmountOutOfRange = "amount_out_of_range"
	CodeInvalidKind      = "invalid_kind"
	CodeInvalidAccount   = "invalid_account"
	CodeAccountInactive  = "account_inactive"
	CodeInvalidCategory  = "invalid_category"
	CodeSelfTransfer     = "self_transfer"
	CodeCurrencyMismatch = "currency_mismatch"
	CodeInvalidCadence   = "invalid_cadence"
	CodeInvalidAnchorDay = "invalid_anchor_day"
	CodeRuleInactive     = "rule_inactive"
	CodeInvalidDate      = "invalid_date"
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError carries a machine-readable reason code.
type ValidationError struct {
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(code, field, message string, sentinel error) error {
	return &ValidationError{Code: code, Field: field, Message: message, Err: sentinel}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing (or foreign) resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrTransferNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAmountOutOfRange) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrAccountInactive)
}

// IsConflict returns true for duplicate writes.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
