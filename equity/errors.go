/*
errors.go - Centralized error types for the equity engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is; structured errors carry context and
  unwrap to the sentinels.

ERROR CATEGORIES:
  1. Validation errors - Bad amounts, malformed quarter literals
  2. Configuration errors - Missing or inconsistent tier tables (fatal)
  3. Idempotence signals - AlreadyProcessed, duplicate idempotency key
  4. Store errors - Missing holders, events, periods

NOT ERRORS:
  Maxout clamping and KPI ineligibility are modeled as explicit states
  and flags, not errors. The UI renders "capped" or "not eligible this
  quarter" without treating them as failures.
*/
package equity

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-positive contribution amounts.
	// Local, reported to the caller, never retried.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrTierNotConfigured is returned when a referenced tier has no table
	// entry. Fatal: processing halts, no automatic retry.
	ErrTierNotConfigured = errors.New("tier not configured")

	// ErrInvalidPeriod is returned for a malformed or out-of-range quarter
	// literal, before any side effect.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrAlreadyProcessed signals the per-quarter idempotence guard. Callers
	// should treat it as "no-op, here is the existing result": the processor
	// returns the prior period alongside this error.
	ErrAlreadyProcessed = errors.New("period already processed")

	// ErrBelowMinimumWithdrawal is returned when a withdrawal is under the
	// configured minimum. Business-rule violation, user-facing.
	ErrBelowMinimumWithdrawal = errors.New("amount below minimum withdrawal")

	// ErrDuplicateIdempotencyKey is returned when an event with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrHolderNotFound is returned when a referenced holder doesn't exist.
	ErrHolderNotFound = errors.New("holder not found")

	// ErrEventNotFound is returned when a referenced event doesn't exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrPeriodNotFound is returned when a referenced period doesn't exist.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrRecordNotFound is returned when a distribution record doesn't exist.
	ErrRecordNotFound = errors.New("distribution record not found")

	// ErrKpiRecordNotFound is returned when no KPI record exists for a
	// (staff, quarter) pair.
	ErrKpiRecordNotFound = errors.New("kpi record not found")

	// ErrEventNotPending is returned when an approval transition is applied
	// to an event that already left the pending state.
	ErrEventNotPending = errors.New("event is not pending")

	// ErrHolderInactive is returned when a contribution targets a
	// deactivated holder.
	ErrHolderInactive = errors.New("holder is deactivated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError reports the offending amount.
type InvalidAmountError struct {
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount: %s (must be positive)", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// TierConfigError reports which tier lookup failed.
type TierConfigError struct {
	Tier TierName
}

func (e *TierConfigError) Error() string {
	return fmt.Sprintf("tier %q has no configuration", e.Tier)
}

func (e *TierConfigError) Unwrap() error { return ErrTierNotConfigured }

// InvalidPeriodError reports why a quarter literal was rejected.
type InvalidPeriodError struct {
	Value  string
	Reason string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %q: %s", e.Value, e.Reason)
}

func (e *InvalidPeriodError) Unwrap() error { return ErrInvalidPeriod }

// BelowMinimumWithdrawalError reports the amount and the floor.
type BelowMinimumWithdrawalError struct {
	Amount  decimal.Decimal
	Minimum decimal.Decimal
}

func (e *BelowMinimumWithdrawalError) Error() string {
	return fmt.Sprintf("withdrawal %s below minimum %s", e.Amount, e.Minimum)
}

func (e *BelowMinimumWithdrawalError) Unwrap() error { return ErrBelowMinimumWithdrawal }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrBelowMinimumWithdrawal) ||
		errors.Is(err, ErrEventNotPending) ||
		errors.Is(err, ErrHolderInactive)
}

// IsConflict returns true for idempotence-guard signals.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHolderNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrKpiRecordNotFound)
}
