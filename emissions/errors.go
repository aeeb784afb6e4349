/*
errors.go - Centralized error types for the emissions core

PURPOSE:
  All error types in one place. The taxonomy mirrors how callers must
  react, not where errors originate:

  ValidationError      -> rejected synchronously, nothing written
  ExternalServiceError -> absorbed into a degraded-accuracy success
  ErrNotFound          -> unknown org/period/source on read
  ConsistencyError     -> fatal to the specific recalculation attempt;
                          the previous ledger is retained unchanged

USAGE:
  Callers match with errors.Is / errors.As:

    if errors.Is(err, emissions.ErrValidation) { ... 400 ... }

SEE ALSO:
  - gateway.go: Absorbs ExternalServiceError into degraded submissions
  - engine.go: Raises ConsistencyError when scope sums fail to reconcile
*/
package emissions

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the sentinel for malformed/negative/wrong-unit input.
	ErrValidation = errors.New("validation failed")

	// ErrExternalService is the sentinel for an unavailable collaborator
	// (factor calculator, grid intensity API). Never surfaced to users as a
	// failure: submissions degrade instead.
	ErrExternalService = errors.New("external service unavailable")

	// ErrNotFound is returned on reads for an unknown org/period/source.
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured is returned when an org has zero emission sources
	// enabled. Callers treat this as "nothing to aggregate", not a failure.
	ErrNotConfigured = errors.New("organization has no emission sources configured")

	// ErrConsistency is the sentinel for a ledger whose scope sums fail to
	// reconcile with its total. Never silently absorbed.
	ErrConsistency = errors.New("ledger scope sums do not reconcile")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes why a payload was rejected. Nothing is written
// when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ExternalServiceError wraps a collaborator failure with its origin.
type ExternalServiceError struct {
	Service string // "factor_calculator" or "grid_intensity"
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return ErrExternalService }

// ConsistencyError reports a scope-sum reconciliation failure detected
// after recalculation. The previous ledger is left intact.
type ConsistencyError struct {
	Period   Period
	Total    string
	ScopeSum string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger for %s does not reconcile: total=%s scope sum=%s",
		e.Period, e.Total, e.ScopeSum)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }
