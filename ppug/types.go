/*
Package ppug provides the staffing ratio compliance engine.

PURPOSE:
  Turns raw daily working-time entries of a hospital station into the
  regulatory nursing-staff metrics (PpUG): shift-equivalents, creditable
  substitute hours, examined vs. required nurse equivalents and a per-day
  compliance verdict. Monthly aggregation folds the days into the figures
  reported for a station, period, staff category and shift.

KEY CONCEPTS IN THIS FILE (types.go):
  - StationID, Category, Shift: the dimensions of a unit of work
  - EntryKey: Station x Period x Category x Shift
  - Configuration: numeric parameters (shift length, substitution base, ratio base)
  - DayEntry: raw hours/minutes of one day plus the persisted derived fields
  - BedOccupancy: midnight/midday occupancy of one day

DESIGN PRINCIPLES:
  1. Pure core: derivation and aggregation are functions of their inputs
  2. Explicit absence: "not computable" is a nil pointer, never NaN or Inf
  3. No session state: every call receives the full key it operates on
  4. Centralized fallback: defaults are applied by the resolver only

SEE ALSO:
  - derivation.go: per-day derivation chain
  - aggregation.go: monthly summary and verdict series
  - resolver.go: configuration precedence
  - recompute.go: reapplying a configuration to persisted entries
*/
package ppug

import (
	"fmt"
	"math"
)

// =============================================================================
// DIMENSIONS
// =============================================================================

type StationID string

// Category is the staff category of an entry series.
type Category string

const (
	// CategoryPrimary (PFK) is qualified nursing staff, the subject of the ratio.
	CategoryPrimary Category = "PFK"
	// CategorySubstitute (PHK) is auxiliary staff whose hours may be credited to PFK.
	CategorySubstitute Category = "PHK"
)

func (c Category) Valid() bool { return c == CategoryPrimary || c == CategorySubstitute }

// Shift selects the occupancy series and the default configuration.
type Shift string

const (
	ShiftDay   Shift = "day"
	ShiftNight Shift = "night"
)

func (s Shift) Valid() bool { return s == ShiftDay || s == ShiftNight }

// EntryKey identifies one independent unit of work.
type EntryKey struct {
	Station  StationID
	Period   Period
	Category Category
	Shift    Shift
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Station, k.Period, k.Category, k.Shift)
}

// Validate checks that every dimension of the key is well-formed.
func (k EntryKey) Validate() error {
	if k.Station == "" {
		return fmt.Errorf("%w: empty station", ErrInvalidKey)
	}
	if !k.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidKey, k.Category)
	}
	if !k.Shift.Valid() {
		return fmt.Errorf("%w: unknown shift %q", ErrInvalidKey, k.Shift)
	}
	return k.Period.Validate()
}

// WithCategory returns the same station/period/shift for another category.
func (k EntryKey) WithCategory(c Category) EntryKey {
	k.Category = c
	return k
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Configuration holds the numeric parameters for one station, category and shift.
type Configuration struct {
	ShiftHours float64 `json:"shift_hours"`
	// SubstitutionBaseFactor is a percentage; only meaningful for PFK.
	SubstitutionBaseFactor *float64 `json:"substitution_base_factor"`
	PPRatioBase            float64  `json:"pp_ratio_base"`
}

// Default values. Night shifts are half as long and carry twice the patients.
const (
	DefaultDayShiftHours          = 16.0
	DefaultNightShiftHours        = 8.0
	DefaultDayRatioBase           = 10.0
	DefaultNightRatioBase         = 20.0
	DefaultSubstitutionBaseFactor = 10.0
)

// DefaultConfiguration returns the global default for a category and shift.
func DefaultConfiguration(category Category, shift Shift) Configuration {
	cfg := Configuration{ShiftHours: DefaultDayShiftHours, PPRatioBase: DefaultDayRatioBase}
	if shift == ShiftNight {
		cfg.ShiftHours = DefaultNightShiftHours
		cfg.PPRatioBase = DefaultNightRatioBase
	}
	if category == CategoryPrimary {
		cfg.SubstitutionBaseFactor = Float(DefaultSubstitutionBaseFactor)
	}
	return cfg
}

// IsValidValue reports whether v may be used as a configuration value.
func IsValidValue(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks the positivity invariant of every present value.
func (c Configuration) Validate() error {
	if !IsValidValue(c.ShiftHours) {
		return &FieldRejection{Field: "shift_hours", Value: c.ShiftHours}
	}
	if !IsValidValue(c.PPRatioBase) {
		return &FieldRejection{Field: "pp_ratio_base", Value: c.PPRatioBase}
	}
	if c.SubstitutionBaseFactor != nil && !IsValidValue(*c.SubstitutionBaseFactor) {
		return &FieldRejection{Field: "substitution_base_factor", Value: *c.SubstitutionBaseFactor}
	}
	return nil
}

// Equal compares two configurations value by value.
func (c Configuration) Equal(o Configuration) bool {
	return c.ShiftHours == o.ShiftHours && c.PPRatioBase == o.PPRatioBase &&
		equalPtr(c.SubstitutionBaseFactor, o.SubstitutionBaseFactor)
}

// ConfigEdit is a partial configuration; nil fields are left untouched.
type ConfigEdit struct {
	ShiftHours             *float64 `json:"shift_hours,omitempty"`
	SubstitutionBaseFactor *float64 `json:"substitution_base_factor,omitempty"`
	PPRatioBase            *float64 `json:"pp_ratio_base,omitempty"`
}

func (e ConfigEdit) IsEmpty() bool {
	return e.ShiftHours == nil && e.SubstitutionBaseFactor == nil && e.PPRatioBase == nil
}

// ApplyEdit applies each field of edit independently. An invalid field is
// rejected and the prior value retained.
func ApplyEdit(prior Configuration, edit ConfigEdit) (Configuration, []FieldRejection) {
	next := prior
	var rejected []FieldRejection

	if edit.ShiftHours != nil {
		if IsValidValue(*edit.ShiftHours) {
			next.ShiftHours = *edit.ShiftHours
		} else {
			rejected = append(rejected, FieldRejection{Field: "shift_hours", Value: *edit.ShiftHours})
		}
	}
	if edit.SubstitutionBaseFactor != nil {
		if IsValidValue(*edit.SubstitutionBaseFactor) {
			next.SubstitutionBaseFactor = Float(*edit.SubstitutionBaseFactor)
		} else {
			rejected = append(rejected, FieldRejection{Field: "substitution_base_factor", Value: *edit.SubstitutionBaseFactor})
		}
	}
	if edit.PPRatioBase != nil {
		if IsValidValue(*edit.PPRatioBase) {
			next.PPRatioBase = *edit.PPRatioBase
		} else {
			rejected = append(rejected, FieldRejection{Field: "pp_ratio_base", Value: *edit.PPRatioBase})
		}
	}
	return next, rejected
}

// StationSettings are per-station switches that are not numeric configuration.
type StationSettings struct {
	Station StationID
	// PauseTracking makes saves persist gross time (raw + pause).
	PauseTracking bool
}

// =============================================================================
// DAY ENTRY
// =============================================================================

// DerivedFields are the per-day values persisted alongside the raw entry.
// A nil field is not computable.
type DerivedFields struct {
	PrimaryEquivalent         *float64 `json:"primary_equivalent"`
	CombinedEquivalent        *float64 `json:"combined_equivalent"`
	SubstituteEquivalent      *float64 `json:"substitute_equivalent"`
	CreditableSubstituteHours *float64 `json:"creditable_substitute_hours"`
}

// Equal compares derived fields, tolerating float noise from storage round-trips.
func (d DerivedFields) Equal(o DerivedFields) bool {
	return approxEqualPtr(d.PrimaryEquivalent, o.PrimaryEquivalent) &&
		approxEqualPtr(d.CombinedEquivalent, o.CombinedEquivalent) &&
		approxEqualPtr(d.SubstituteEquivalent, o.SubstituteEquivalent) &&
		approxEqualPtr(d.CreditableSubstituteHours, o.CreditableSubstituteHours)
}

// DayEntry is one day of a station's working-time series.
type DayEntry struct {
	Day          int
	Hours        int
	Minutes      int
	PauseHours   int
	PauseMinutes int
	Derived      DerivedFields
}

// HoursDecimal returns hours + minutes/60.
func (e DayEntry) HoursDecimal() float64 {
	return float64(e.Hours) + float64(e.Minutes)/60
}

// IsEmpty reports whether no working time was recorded for the day.
func (e DayEntry) IsEmpty() bool { return e.Hours == 0 && e.Minutes == 0 }

// NetTime returns the recorded time minus the pause, for display.
func (e DayEntry) NetTime() (hours, minutes int) {
	total := e.Hours*60 + e.Minutes - (e.PauseHours*60 + e.PauseMinutes)
	if total < 0 {
		total = 0
	}
	return total / 60, total % 60
}

// Validate checks the raw fields of the entry against the period.
func (e DayEntry) Validate(p Period) error {
	if e.Day < 1 || e.Day > p.DaysInMonth() {
		return &DayError{Day: e.Day, Reason: fmt.Sprintf("outside 1..%d", p.DaysInMonth())}
	}
	if e.Hours < 0 || e.PauseHours < 0 {
		return &DayError{Day: e.Day, Reason: "negative hours"}
	}
	if e.Minutes < 0 || e.Minutes >= 60 || e.PauseMinutes < 0 || e.PauseMinutes >= 60 {
		return &DayError{Day: e.Day, Reason: "minutes outside [0,60)"}
	}
	return nil
}

// ApplyPause adds the pause to net time and normalizes minutes into [0,60).
func ApplyPause(hours, minutes, pauseHours, pauseMinutes int) (int, int) {
	total := (hours+pauseHours)*60 + minutes + pauseMinutes
	return total / 60, total % 60
}

// EmptyEntries returns one zeroed entry per calendar day of the period.
func EmptyEntries(p Period) []DayEntry {
	entries := make([]DayEntry, p.DaysInMonth())
	for i := range entries {
		entries[i] = DayEntry{Day: i + 1}
	}
	return entries
}

// =============================================================================
// BED OCCUPANCY
// =============================================================================

// BedOccupancy is the occupancy of one station on one day.
type BedOccupancy struct {
	MidnightCount *float64 `json:"midnight_count"`
	MiddayCount   *float64 `json:"midday_count"`
}

// ForShift selects the midnight count for night shifts and the midday count for day shifts.
func (b BedOccupancy) ForShift(s Shift) *float64 {
	if s == ShiftNight {
		return b.MidnightCount
	}
	return b.MiddayCount
}

// =============================================================================
// HELPERS
// =============================================================================

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func equalPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

const epsilon = 1e-9

func approxEqualPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= epsilon
}

// safeDiv returns num/den, or nil when the divisor is zero or the result is not finite.
func safeDiv(num, den float64) *float64 {
	if den == 0 || math.IsNaN(den) || math.IsNaN(num) {
		return nil
	}
	return finite(num / den)
}

// finite returns &v, or nil for NaN and infinities.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
