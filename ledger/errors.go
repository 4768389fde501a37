/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Service and API layers wrap these errors with additional context.

ERROR CATEGORIES:
  1. Validation errors - Business rule violations, rejected before write
  2. Not-found errors - Missing customers/items/payments/history rows
  3. Constraint errors - Uniqueness violations (transaction numbers)

USAGE:
  Callers branch with errors.Is or the helpers below:

    if ledger.IsValidation(err) {
        // 400, message is safe to show
    }

SEE ALSO:
  - txnumber.go: ErrDuplicateTransactionNumber retry flow
  - store.go: store implementations translate driver errors to these
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
	// ErrValidation is the root of all pre-write rejections.
	ErrValidation = errors.New("validation failed")

	// ErrCustomerNotFound is returned when a referenced customer doesn't exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrItemNotFound is returned when a referenced item doesn't exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrHistoryNotFound is returned when a referenced history record doesn't exist.
	ErrHistoryNotFound = errors.New("history record not found")

	// ErrDuplicateTransactionNumber is returned by stores on a
	// transaction_number uniqueness violation. The payment service retries
	// with the next sequence value; callers should never see it when the
	// fallback succeeds.
	ErrDuplicateTransactionNumber = errors.New("duplicate transaction number")

	// ErrCustomerInactive is returned when writing a payment against a
	// customer that is no longer active.
	ErrCustomerInactive = errors.New("customer is not active")

	// ErrItemLimit is returned when a customer already has the maximum
	// number of active items.
	ErrItemLimit = errors.New("active item limit reached")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the missing row.
type NotFoundError struct {
	Kind string // "customer", "item", "payment", "history"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "customer":
		return ErrCustomerNotFound
	case "item":
		return ErrItemNotFound
	case "payment":
		return ErrPaymentNotFound
	case "history":
		return ErrHistoryNotFound
	}
	return nil
}

// ConstraintError reports which transaction number collided.
type ConstraintError struct {
	TransactionNumber string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("transaction number already exists: %s", e.TransactionNumber)
}

func (e *ConstraintError) Unwrap() error { return ErrDuplicateTransactionNumber }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is a pre-write rejection whose
// message is safe to surface.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCustomerInactive) ||
		errors.Is(err, ErrItemLimit)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrHistoryNotFound)
}

// IsRetryable returns true if the error might succeed with a different
// transaction number.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateTransactionNumber)
}
