package ppug

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BED OCCUPANCY AVERAGER
// =============================================================================

// OccupancyAverage is the monthly mean of one occupancy series.
// Average is nil when no day of the month has a recorded value.
type OccupancyAverage struct {
	Average      *float64
	DaysWithData int
}

// AverageOccupancy averages the shift's series over the days of the period
// that carry a value. Night shifts use the midnight count, day shifts the
// midday count. The result is rounded to two decimals.
func AverageOccupancy(records map[int]BedOccupancy, period Period, shift Shift) OccupancyAverage {
	var sum float64
	var n int
	for day, rec := range records {
		if !period.Contains(day) {
			continue
		}
		v := rec.ForShift(shift)
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return OccupancyAverage{}
	}
	// A sum that overflows leaves the average not computable.
	avg := safeDiv(sum, float64(n))
	if avg == nil {
		return OccupancyAverage{DaysWithData: n}
	}
	return OccupancyAverage{Average: Float(Round2(*avg)), DaysWithData: n}
}

// DayOccupancy returns the shift's value for day d, if recorded.
func DayOccupancy(records map[int]BedOccupancy, d int, shift Shift) *float64 {
	rec, ok := records[d]
	if !ok {
		return nil
	}
	v := rec.ForShift(shift)
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Averager loads occupancy from a source and reduces it for one shift.
type Averager struct {
	source OccupancySource
}

func NewAverager(source OccupancySource) *Averager { return &Averager{source: source} }

// MonthOccupancy is a station's occupancy records for one period together
// with the average of one shift's series.
type MonthOccupancy struct {
	Records map[int]BedOccupancy
	OccupancyAverage
}

// Month loads the station's records for period and averages the shift's
// series. Collaborator errors are returned; missing data is not an error.
func (a *Averager) Month(ctx context.Context, station StationID, period Period, shift Shift) (MonthOccupancy, error) {
	records, err := a.source.LoadBedOccupancy(ctx, station, period)
	if err != nil {
		return MonthOccupancy{}, fmt.Errorf("load bed occupancy for %s %s: %w", station, period, err)
	}
	return MonthOccupancy{Records: records, OccupancyAverage: AverageOccupancy(records, period, shift)}, nil
}

// Average returns the monthly average for the station, period and shift.
func (a *Averager) Average(ctx context.Context, station StationID, period Period, shift Shift) (OccupancyAverage, error) {
	m, err := a.Month(ctx, station, period, shift)
	if err != nil {
		return OccupancyAverage{}, err
	}
	return m.OccupancyAverage, nil
}

// Round2 rounds half away from zero to two decimals. NaN and infinities
// are returned unchanged.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
