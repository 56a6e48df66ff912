/*
errors.go - Centralized error types for the emissions engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP statuses via the classification
  helpers at the bottom.

ERROR CATEGORIES:
  1. Input errors      - Malformed dates, missing fields, bad sort keys
  2. Lookup errors     - No rows for a query
  3. Gate errors       - Daily analysis limit already consumed
  4. Storage errors    - Persistence-layer failures
  5. Invariant errors  - Ledger consistency violations (internal)

USAGE:
  if errors.Is(err, emission.ErrRateLimited) { ... }

  var invalid *emission.InvalidInputError
  if errors.As(err, &invalid) { ... }
*/
package emission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed dates, missing required
	// fields, unknown categories, and invalid sort keys.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a query matches no rows. Absence of
	// ledger rows is not an error state of the ledger itself.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the daily analysis gate has already
	// been consumed. Retryable the next calendar day.
	ErrRateLimited = errors.New("daily analysis limit reached")

	// ErrStorage is returned when the persistence layer fails. Fatal for
	// the current operation; the accumulation attempt is not applied.
	ErrStorage = errors.New("storage failure")

	// ErrLedgerInvariant is returned when a ledger row would violate
	// grand-total consistency. Indicates a bug, never user input.
	ErrLedgerInvariant = errors.New("ledger invariant violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// NotFoundError names what was looked up.
type NotFoundError struct {
	Resource string
	UserID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found for user %s", e.Resource, e.UserID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StorageError wraps a persistence failure with the failed operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return ErrStorage }

// LedgerInvariantError reports a grand-total mismatch on a ledger row.
type LedgerInvariantError struct {
	UserID     string
	Date       Date
	GrandTotal decimal.Decimal
	Sum        decimal.Decimal
}

func (e *LedgerInvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated for %s on %s: grand total %s != category sum %s",
		e.UserID, e.Date, e.GrandTotal, e.Sum)
}

func (e *LedgerInvariantError) Unwrap() error { return ErrLedgerInvariant }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited returns true if the daily analysis gate refused the run.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
