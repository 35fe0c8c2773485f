package ppug

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - A calendar month
// =============================================================================

// Period is the unit of reporting: one calendar month.
type Period struct {
	Year  int
	Month time.Month
}

func NewPeriod(year int, month time.Month) Period { return Period{Year: year, Month: month} }

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period { return Period{Year: t.Year(), Month: t.Month()} }

// Validate rejects months outside 1..12 and non-positive years.
func (p Period) Validate() error {
	if p.Month < time.January || p.Month > time.December || p.Year <= 0 {
		return fmt.Errorf("%w: %d-%d", ErrInvalidPeriod, p.Year, p.Month)
	}
	return nil
}

// DaysInMonth returns the calendar length of the period.
func (p Period) DaysInMonth() int {
	return time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Start returns the first day of the period.
func (p Period) Start() time.Time { return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC) }

// Date returns the calendar date of day d in the period.
func (p Period) Date(d int) time.Time { return time.Date(p.Year, p.Month, d, 0, 0, 0, 0, time.UTC) }

// Contains reports whether day d is a valid day of the period.
func (p Period) Contains(d int) bool { return d >= 1 && d <= p.DaysInMonth() }

func (p Period) Index() int { return p.Year*12 + int(p.Month) - 1 }

func (p Period) Before(o Period) bool        { return p.Index() < o.Index() }
func (p Period) After(o Period) bool         { return p.Index() > o.Index() }
func (p Period) BeforeOrEqual(o Period) bool { return p.Index() <= o.Index() }

// Next returns the following month.
func (p Period) Next() Period { return PeriodOf(p.Start().AddDate(0, 1, 0)) }

// Prev returns the preceding month.
func (p Period) Prev() Period { return PeriodOf(p.Start().AddDate(0, -1, 0)) }

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return PeriodOf(t), nil
}
