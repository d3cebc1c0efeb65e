/*
errors.go - Error taxonomy for the royalty workflow

ERROR CATEGORIES:
  1. InvalidInput         - missing or out-of-range fields, rejected request
  2. NotFound             - referenced author/book/wallet absent
  3. StorageFailure       - the store failed a read or write
  4. BelowMinimum         - wallet balance under the withdrawal threshold
  5. ReconciliationNeeded - one of two dependent writes landed without the other

USAGE:
  Callers branch with errors.Is on the sentinels and errors.As on the
  structured types when they need the details:

    var below *royalty.BelowMinimumError
    if errors.As(err, &below) {
        // below.Minimum is the configured threshold
    }
*/
package royalty

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidInput = errors.New("invalid input")

	ErrNotFound = errors.New("not found")

	ErrStorageFailure = errors.New("storage failure")

	ErrBelowMinimum = errors.New("balance below withdrawal minimum")

	// ErrReconciliationNeeded marks a partially applied operation that an
	// operator must fix by hand.
	ErrReconciliationNeeded = errors.New("reconciliation needed")

	// ErrDuplicateIdempotencyKey is returned by stores when a sale or
	// withdrawal with the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when a wallet write loses a
	// version check.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

func invalid(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Kind string // "author", "book", "wallet"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// BelowMinimumError reports the balance and the threshold it failed.
type BelowMinimumError struct {
	AuthorID AuthorID
	Balance  decimal.Decimal
	Minimum  decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum withdrawal is %s, balance is %s",
		e.Minimum.StringFixed(2), e.Balance.StringFixed(2))
}

func (e *BelowMinimumError) Unwrap() error { return ErrBelowMinimum }

// StorageError wraps a store failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *StorageError) Unwrap() []error { return []error{ErrStorageFailure, e.Err} }

func storageErr(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ReconciliationError describes a partial write. Ref names the record that
// did land (a sale id, a withdrawal id, an identity user id).
type ReconciliationError struct {
	Operation string
	AuthorID  AuthorID
	Ref       string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation needed: %s for author %s (ref %s): %v",
		e.Operation, e.AuthorID, e.Ref, e.Err)
}

func (e *ReconciliationError) Unwrap() []error { return []error{ErrReconciliationNeeded, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// A partial write is never retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) && !errors.Is(err, ErrReconciliationNeeded)
}

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrBelowMinimum) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
