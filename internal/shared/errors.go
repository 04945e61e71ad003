package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrAlreadyApplied signals an idempotent no-op: the side effect keyed by the
// caller's reference id was applied by an earlier invocation. It is not a
// failure; callers that only care about the end state may ignore it.
var ErrAlreadyApplied = errors.New("already applied")

// ValidationError reports malformed or precondition-violating input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the named field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InsufficientStockError reports an inventory movement that would drive the
// on-hand quantity below zero.
type InsufficientStockError struct {
	VariantID  string
	Department string
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s in %s: requested %s, available %s",
		e.VariantID, e.Department, e.Requested, e.Available)
}

// InsufficientBalanceError reports an account balance too low to fund a
// transaction.
type InsufficientBalanceError struct {
	AccountID string
	Balance   decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance in account %s: %s < %s",
		e.AccountID, e.Balance, e.Required)
}

// CurrencyMismatchError reports a transfer between accounts holding
// different currencies.
type CurrencyMismatchError struct {
	From string
	To   string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s != %s", e.From, e.To)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
