package ppug

// =============================================================================
// AGGREGATION ENGINE - Monthly summary and verdict series
// =============================================================================

// DayResult is one calendar day of a month with its raw time, the inputs
// it was derived from, and the derivation.
type DayResult struct {
	Day             int
	Hours           int
	Minutes         int
	Occupancy       *float64
	SubstituteHours *float64
	Derivation
}

// MonthInput is everything needed to evaluate one key for one month.
type MonthInput struct {
	Key    EntryKey
	Config Configuration

	Entries []DayEntry
	// Occupancy is the station's bed occupancy per day.
	Occupancy map[int]BedOccupancy
	// SubstituteHours is the PHK decimal hours per day (PFK keys only).
	SubstituteHours map[int]float64
}

// MonthlySummary holds the aggregates for one key. Nil fields are not computable.
type MonthlySummary struct {
	DaysInMonth     int
	DaysWithEntries int

	TotalHours         float64
	AverageHoursPerDay *float64

	AveragePrimaryEquivalent       *float64
	AverageRequiredNurseEquivalent *float64
	DeltaRequiredVsActual          *float64

	OccupancyAverage       *float64
	DaysWithOccupancy      int
	PatientToNurseRatio    *float64
	MonthlySubstituteHours *float64

	CountDaysNotSatisfied         int
	CountDaysNotSatisfiedFallback int
	CountDaysNotComputable        int
	// PercentSatisfied normalizes to 31 days regardless of the month length.
	PercentSatisfied float64
	// PercentSatisfiedOfMonth normalizes to the actual month length.
	PercentSatisfiedOfMonth float64

	// AverageUsableSubstituteHours excludes days whose usable hours are zero.
	AverageUsableSubstituteHours *float64
	// AverageUsableSubstituteShifts averages over every day of the month and
	// is expressed in shift-equivalents.
	AverageUsableSubstituteShifts *float64
}

// MonthlyReport is a month's day series plus its summary.
type MonthlyReport struct {
	Key     EntryKey
	Config  Configuration
	Days    []DayResult
	Summary MonthlySummary
}

// legacyMonthDays is the fixed denominator of PercentSatisfied.
const legacyMonthDays = 31

// EvaluateMonth derives every calendar day of the month and aggregates the
// result. Days without a stored entry are evaluated as empty days.
func EvaluateMonth(in MonthInput) MonthlyReport {
	period := in.Key.Period
	byDay := make(map[int]DayEntry, len(in.Entries))
	for _, e := range in.Entries {
		if period.Contains(e.Day) {
			byDay[e.Day] = e
		}
	}

	occ := AverageOccupancy(in.Occupancy, period, in.Key.Shift)
	monthlySub := averageSubstituteHours(in.SubstituteHours, period)

	days := make([]DayResult, 0, period.DaysInMonth())
	for d := 1; d <= period.DaysInMonth(); d++ {
		e := byDay[d]
		var sub *float64
		if v, ok := in.SubstituteHours[d]; ok {
			sub = Float(v)
		}
		dayOcc := DayOccupancy(in.Occupancy, d, in.Key.Shift)
		if dayOcc == nil {
			dayOcc = occ.Average
		}
		deriv := Derive(DerivationInput{
			Category:               in.Key.Category,
			Hours:                  e.Hours,
			Minutes:                e.Minutes,
			Config:                 in.Config,
			SubstituteHours:        sub,
			MonthlySubstituteHours: monthlySub,
			Occupancy:              dayOcc,
		})
		days = append(days, DayResult{
			Day:             d,
			Hours:           e.Hours,
			Minutes:         e.Minutes,
			Occupancy:       dayOcc,
			SubstituteHours: sub,
			Derivation:      deriv,
		})
	}

	summary := Aggregate(days, period, in.Config, occ)
	summary.MonthlySubstituteHours = monthlySub
	return MonthlyReport{Key: in.Key, Config: in.Config, Days: days, Summary: summary}
}

// Aggregate folds a month of derived days into the monthly summary. All
// averages are population means over the days stated per field.
func Aggregate(days []DayResult, period Period, cfg Configuration, occ OccupancyAverage) MonthlySummary {
	s := MonthlySummary{
		DaysInMonth:       period.DaysInMonth(),
		OccupancyAverage:  occ.Average,
		DaysWithOccupancy: occ.DaysWithData,
	}

	var pe, req, usableNonZero mean
	var usableAll float64
	var anyUsable bool

	for _, d := range days {
		s.TotalHours += d.HoursDecimal
		if d.HoursDecimal > 0 {
			s.DaysWithEntries++
			if d.PrimaryEquivalent != nil {
				pe.add(*d.PrimaryEquivalent)
			}
		}
		if d.RequiredNurseEquivalent != nil {
			req.add(*d.RequiredNurseEquivalent)
		}
		if d.UsableSubstituteHours != nil {
			anyUsable = true
			usableAll += *d.UsableSubstituteHours
			if *d.UsableSubstituteHours != 0 {
				usableNonZero.add(*d.UsableSubstituteHours)
			}
		}

		switch d.Verdict {
		case VerdictNotSatisfied:
			s.CountDaysNotSatisfied++
		case VerdictNotComputable:
			s.CountDaysNotComputable++
		}
		if d.FallbackVerdict == VerdictNotSatisfied {
			s.CountDaysNotSatisfiedFallback++
		}
	}

	if s.DaysWithEntries > 0 {
		s.AverageHoursPerDay = safeDiv(s.TotalHours, float64(s.DaysWithEntries))
	}
	s.AveragePrimaryEquivalent = pe.value()
	s.AverageRequiredNurseEquivalent = req.value()
	if s.AveragePrimaryEquivalent != nil && s.AverageRequiredNurseEquivalent != nil {
		s.DeltaRequiredVsActual = finite(*s.AveragePrimaryEquivalent - *s.AverageRequiredNurseEquivalent)
	}
	if occ.Average != nil && s.AveragePrimaryEquivalent != nil {
		s.PatientToNurseRatio = safeDiv(*occ.Average, *s.AveragePrimaryEquivalent)
	}

	s.PercentSatisfied = float64(legacyMonthDays-s.CountDaysNotSatisfied) / 0.31
	if s.DaysInMonth > 0 {
		s.PercentSatisfiedOfMonth = float64(s.DaysInMonth-s.CountDaysNotSatisfied) / float64(s.DaysInMonth) * 100
	}

	s.AverageUsableSubstituteHours = usableNonZero.value()
	if anyUsable && s.DaysInMonth > 0 {
		s.AverageUsableSubstituteShifts = safeDiv(usableAll/float64(s.DaysInMonth), cfg.ShiftHours)
	}
	return s
}

// averageSubstituteHours is the mean PHK hours over days with logged time.
func averageSubstituteHours(hours map[int]float64, period Period) *float64 {
	var m mean
	for d, h := range hours {
		if period.Contains(d) && h > 0 {
			m.add(h)
		}
	}
	return m.value()
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) { m.sum += v; m.n++ }

func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	return safeDiv(m.sum, float64(m.n))
}
