/*
errors.go - Centralized error types for the engine

ERROR CATEGORIES:
  1. Missing data - never an error. Absent values are nil ("not computable").
     The one exception is recompute, which fails with ErrNoEntries.
  2. Invalid input - malformed keys, periods, days or configuration values.
  3. Collaborator failures - store/occupancy errors, wrapped and propagated
     unchanged so callers can tell them apart from "no data".

USAGE:
    if errors.Is(err, ppug.ErrNoEntries) {
        // nothing saved yet for this station/period
    }
*/
package ppug

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoEntries is returned by recompute when no entries exist for the key.
	ErrNoEntries = errors.New("no data")

	ErrInvalidPeriod = errors.New("invalid period")
	ErrInvalidKey    = errors.New("invalid entry key")
	ErrInvalidDay    = errors.New("invalid day entry")

	// ErrInvalidConfiguration is returned when a configuration value is not strictly positive.
	ErrInvalidConfiguration = errors.New("invalid configuration value")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// FieldRejection describes a configuration value that failed the positivity invariant.
type FieldRejection struct {
	Field string  `json:"field"`
	Value float64 `json:"value"`
}

func (e *FieldRejection) Error() string {
	return fmt.Sprintf("%s must be a positive finite number, got %v", e.Field, e.Value)
}

func (e *FieldRejection) Unwrap() error { return ErrInvalidConfiguration }

// DayError describes a malformed day entry.
type DayError struct {
	Day    int
	Reason string
}

func (e *DayError) Error() string { return fmt.Sprintf("day %d: %s", e.Day, e.Reason) }

func (e *DayError) Unwrap() error { return ErrInvalidDay }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrInvalidDay) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// IsNotFound returns true if the error means nothing is stored for the key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoEntries)
}
