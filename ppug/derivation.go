package ppug

import "math"

// =============================================================================
// DERIVATION ENGINE - Per-day derived fields
// =============================================================================

// Verdict is the per-day compliance outcome.
type Verdict string

const (
	VerdictSatisfied     Verdict = "satisfied"
	VerdictNotSatisfied  Verdict = "not_satisfied"
	VerdictNotComputable Verdict = "not_computable"
)

// DerivationInput is everything needed to derive one day.
type DerivationInput struct {
	Category Category
	Hours    int
	Minutes  int
	Config   Configuration

	// PFK only. SubstituteHours is the same day's PHK total; nil when the
	// day has no PHK data. MonthlySubstituteHours is the month's average PHK
	// hours, used by the fallback verdict when the same-day figure is absent.
	SubstituteHours        *float64
	MonthlySubstituteHours *float64

	// Occupancy is the bed occupancy for the shift; nil when not recorded.
	Occupancy *float64
}

// Derivation holds the full chain of derived values for one day. Every
// pointer is nil when its value is not computable.
type Derivation struct {
	HoursDecimal              float64
	PrimaryEquivalent         *float64
	SubstitutionFactor        *float64
	CombinedEquivalent        *float64
	SubstituteEquivalent      *float64
	CreditableSubstituteHours *float64
	UsableSubstituteHours     *float64
	ExaminedNurseEquivalent   *float64
	RequiredNurseEquivalent   *float64
	Verdict                   Verdict

	// Cross-check using the monthly-average substitute hours when the
	// same-day figure is absent.
	FallbackUsableSubstituteHours   *float64
	FallbackExaminedNurseEquivalent *float64
	FallbackVerdict                 Verdict
}

// Stored returns the subset of the derivation persisted with the entry.
func (d Derivation) Stored() DerivedFields {
	return DerivedFields{
		PrimaryEquivalent:         d.PrimaryEquivalent,
		CombinedEquivalent:        d.CombinedEquivalent,
		SubstituteEquivalent:      d.SubstituteEquivalent,
		CreditableSubstituteHours: d.CreditableSubstituteHours,
	}
}

// Derive computes the derivation chain for one day. It is a pure function.
//
// For PFK:
//
//	primaryEquivalent         = hoursDecimal / shiftHours
//	substitutionFactor        = 1 - substitutionBaseFactor/100
//	combinedEquivalent        = primaryEquivalent / substitutionFactor
//	substituteEquivalent      = combinedEquivalent - primaryEquivalent
//	creditableSubstituteHours = substituteEquivalent * shiftHours
//	usableSubstituteHours     = min(substitute hours of the day, creditable)
//	examinedNurseEquivalent   = (hoursDecimal + usable) / shiftHours
//	requiredNurseEquivalent   = occupancy / ppRatioBase
//
// PHK entries only carry their decimal hours.
func Derive(in DerivationInput) Derivation {
	out := Derivation{
		HoursDecimal:    float64(in.Hours) + float64(in.Minutes)/60,
		Verdict:         VerdictNotComputable,
		FallbackVerdict: VerdictNotComputable,
	}
	if in.Category != CategoryPrimary {
		return out
	}

	cfg := in.Config
	out.PrimaryEquivalent = safeDiv(out.HoursDecimal, cfg.ShiftHours)

	if cfg.SubstitutionBaseFactor != nil && !math.IsNaN(*cfg.SubstitutionBaseFactor) {
		if f := 1 - *cfg.SubstitutionBaseFactor/100; f > 0 {
			out.SubstitutionFactor = &f
		}
	}
	if out.PrimaryEquivalent != nil && out.SubstitutionFactor != nil {
		out.CombinedEquivalent = safeDiv(*out.PrimaryEquivalent, *out.SubstitutionFactor)
	}
	if out.CombinedEquivalent != nil {
		out.SubstituteEquivalent = Float(*out.CombinedEquivalent - *out.PrimaryEquivalent)
		if IsValidValue(cfg.ShiftHours) {
			out.CreditableSubstituteHours = Float(*out.SubstituteEquivalent * cfg.ShiftHours)
		}
	}

	if in.Occupancy != nil {
		out.RequiredNurseEquivalent = safeDiv(*in.Occupancy, cfg.PPRatioBase)
	}

	out.UsableSubstituteHours = usable(in.SubstituteHours, out.CreditableSubstituteHours)
	out.ExaminedNurseEquivalent = examined(out.HoursDecimal, out.UsableSubstituteHours, cfg.ShiftHours)
	out.Verdict = verdict(out.ExaminedNurseEquivalent, out.RequiredNurseEquivalent)

	fallbackHours := in.SubstituteHours
	if fallbackHours == nil {
		fallbackHours = in.MonthlySubstituteHours
	}
	out.FallbackUsableSubstituteHours = usable(fallbackHours, out.CreditableSubstituteHours)
	out.FallbackExaminedNurseEquivalent = examined(out.HoursDecimal, out.FallbackUsableSubstituteHours, cfg.ShiftHours)
	out.FallbackVerdict = verdict(out.FallbackExaminedNurseEquivalent, out.RequiredNurseEquivalent)

	return out
}

// DeriveStored derives the persisted fields of an entry.
func DeriveStored(e DayEntry, category Category, cfg Configuration) DerivedFields {
	return Derive(DerivationInput{
		Category: category,
		Hours:    e.Hours,
		Minutes:  e.Minutes,
		Config:   cfg,
	}).Stored()
}

// usable caps the logged substitute hours at the creditable hours. Absent
// substitute data counts as zero hours logged.
func usable(logged, creditable *float64) *float64 {
	if creditable == nil {
		return nil
	}
	var l float64
	if logged != nil && !math.IsNaN(*logged) && *logged > 0 {
		l = *logged
	}
	c := math.Max(*creditable, 0)
	return Float(math.Min(l, c))
}

func examined(hoursDecimal float64, usable *float64, shiftHours float64) *float64 {
	if usable == nil {
		return nil
	}
	return safeDiv(hoursDecimal+*usable, shiftHours)
}

func verdict(examined, required *float64) Verdict {
	if examined == nil || required == nil {
		return VerdictNotComputable
	}
	if *examined >= *required {
		return VerdictSatisfied
	}
	return VerdictNotSatisfied
}
