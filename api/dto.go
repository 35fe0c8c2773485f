/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

NOT COMPUTABLE:
  Every value the engine could not compute is a nil pointer and serializes
  as JSON null. Fields never use omitempty for that reason.

VALIDATION:
  Request types carry validator/v10 struct tags; handlers call
  h.validate.Struct(req) after decoding. Range checks that depend on the
  period (day within the month) are done by the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - ppug/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/warp/staffing-engine/ppug"
)

// =============================================================================
// KEY
// =============================================================================

// KeyDTO identifies a station, period, category and shift.
type KeyDTO struct {
	Station  string `json:"station"`
	Period   string `json:"period"`
	Category string `json:"category"`
	Shift    string `json:"shift"`
}

func toKeyDTO(k ppug.EntryKey) KeyDTO {
	return KeyDTO{
		Station:  string(k.Station),
		Period:   k.Period.String(),
		Category: string(k.Category),
		Shift:    string(k.Shift),
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

// DayEntryDTO is one stored day with its persisted derived fields. Hours and
// Minutes are net of the pause, as in DayEntryInput, so an entry read here
// can be saved back unchanged. GrossHours/GrossMinutes are the stored time
// the derivation uses.
type DayEntryDTO struct {
	Day          int `json:"day"`
	Hours        int `json:"hours"`
	Minutes      int `json:"minutes"`
	PauseHours   int `json:"pause_hours"`
	PauseMinutes int `json:"pause_minutes"`
	GrossHours   int `json:"gross_hours"`
	GrossMinutes int `json:"gross_minutes"`

	PrimaryEquivalent         *float64 `json:"primary_equivalent"`
	CombinedEquivalent        *float64 `json:"combined_equivalent"`
	SubstituteEquivalent      *float64 `json:"substitute_equivalent"`
	CreditableSubstituteHours *float64 `json:"creditable_substitute_hours"`
}

// DayEntryInput is one day of a save request. Hours and Minutes are net
// of the pause; stations with pause tracking store net plus pause.
type DayEntryInput struct {
	Day          int `json:"day" validate:"min=1,max=31"`
	Hours        int `json:"hours" validate:"gte=0,lte=24"`
	Minutes      int `json:"minutes" validate:"gte=0,lt=60"`
	PauseHours   int `json:"pause_hours" validate:"gte=0"`
	PauseMinutes int `json:"pause_minutes" validate:"gte=0,lt=60"`
}

// SaveEntriesRequest overwrites the listed days of a period.
type SaveEntriesRequest struct {
	Entries []DayEntryInput `json:"entries" validate:"required,min=1,dive"`
}

// EntriesResponse lists the stored days of a key.
type EntriesResponse struct {
	Key          KeyDTO              `json:"key"`
	Entries      []DayEntryDTO       `json:"entries"`
	Config       *ppug.Configuration `json:"config,omitempty"`
	ConfigSource string              `json:"config_source,omitempty"`
}

func toDayEntryDTOs(entries []ppug.DayEntry) []DayEntryDTO {
	out := make([]DayEntryDTO, len(entries))
	for i, e := range entries {
		nh, nm := e.NetTime()
		out[i] = DayEntryDTO{
			Day:                       e.Day,
			Hours:                     nh,
			Minutes:                   nm,
			PauseHours:                e.PauseHours,
			PauseMinutes:              e.PauseMinutes,
			GrossHours:                e.Hours,
			GrossMinutes:              e.Minutes,
			PrimaryEquivalent:         e.Derived.PrimaryEquivalent,
			CombinedEquivalent:        e.Derived.CombinedEquivalent,
			SubstituteEquivalent:      e.Derived.SubstituteEquivalent,
			CreditableSubstituteHours: e.Derived.CreditableSubstituteHours,
		}
	}
	return out
}

func (in DayEntryInput) toDomain() ppug.DayEntry {
	return ppug.DayEntry{
		Day:          in.Day,
		Hours:        in.Hours,
		Minutes:      in.Minutes,
		PauseHours:   in.PauseHours,
		PauseMinutes: in.PauseMinutes,
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// ConfigResponse is a resolved configuration with its provenance.
type ConfigResponse struct {
	Station        string             `json:"station"`
	Category       string             `json:"category"`
	Shift          string             `json:"shift"`
	Config         ppug.Configuration `json:"config"`
	Source         string             `json:"source"`
	FromSnapshot   bool               `json:"from_snapshot"`
	SnapshotPeriod *string            `json:"snapshot_period"`
	Message        string             `json:"message,omitempty"`
}

func toConfigResponse(station ppug.StationID, category ppug.Category, shift ppug.Shift, rc ppug.ResolvedConfig) ConfigResponse {
	resp := ConfigResponse{
		Station:      string(station),
		Category:     string(category),
		Shift:        string(shift),
		Config:       rc.Config,
		Source:       string(rc.Source),
		FromSnapshot: rc.FromSnapshot,
		Message:      rc.Message,
	}
	if rc.SnapshotPeriod != nil {
		p := rc.SnapshotPeriod.String()
		resp.SnapshotPeriod = &p
	}
	return resp
}

// ConfigEditRequest is a partial configuration. Omitted fields keep their
// current value; invalid ones are rejected individually.
type ConfigEditRequest struct {
	ShiftHours             *float64 `json:"shift_hours"`
	SubstitutionBaseFactor *float64 `json:"substitution_base_factor"`
	PPRatioBase            *float64 `json:"pp_ratio_base"`
}

func (r ConfigEditRequest) toDomain() ppug.ConfigEdit {
	return ppug.ConfigEdit{
		ShiftHours:             r.ShiftHours,
		SubstitutionBaseFactor: r.SubstitutionBaseFactor,
		PPRatioBase:            r.PPRatioBase,
	}
}

// ConfigEditResponse is the stored override and any rejected fields.
type ConfigEditResponse struct {
	Config   ppug.Configuration    `json:"config"`
	Rejected []ppug.FieldRejection `json:"rejected"`
}

// SettingsRequest updates per-station switches.
type SettingsRequest struct {
	PauseTracking *bool `json:"pause_tracking" validate:"required"`
}

// SettingsDTO is the stored station settings.
type SettingsDTO struct {
	Station       string `json:"station"`
	PauseTracking bool   `json:"pause_tracking"`
}

// =============================================================================
// BED OCCUPANCY
// =============================================================================

// OccupancyDayInput is the occupancy of one day.
type OccupancyDayInput struct {
	Day           int      `json:"day" validate:"min=1,max=31"`
	MidnightCount *float64 `json:"midnight_count" validate:"omitempty,gte=0,lte=10000"`
	MiddayCount   *float64 `json:"midday_count" validate:"omitempty,gte=0,lte=10000"`
}

// OccupancyRequest upserts occupancy records for days of a period.
type OccupancyRequest struct {
	Days []OccupancyDayInput `json:"days" validate:"required,min=1,dive"`
}

// OccupancyResponse echoes the stored month with its shift averages.
type OccupancyResponse struct {
	Station       string   `json:"station"`
	Period        string   `json:"period"`
	DaysStored    int      `json:"days_stored"`
	DayAverage    *float64 `json:"day_average"`
	NightAverage  *float64 `json:"night_average"`
	DaysWithDay   int      `json:"days_with_day_data"`
	DaysWithNight int      `json:"days_with_night_data"`
}

// =============================================================================
// RECOMPUTE
// =============================================================================

// RecomputeResponse reports the outcome of a recompute.
type RecomputeResponse struct {
	Key          KeyDTO                `json:"key"`
	State        string                `json:"state"`
	Transitions  []string              `json:"transitions"`
	TotalEntries int                   `json:"total_entries"`
	UpdatedCount int                   `json:"updated_count"`
	Config       ppug.Configuration    `json:"config"`
	Source       string                `json:"source,omitempty"`
	Rejected     []ppug.FieldRejection `json:"rejected"`
	Reason       string                `json:"reason,omitempty"`
	Message      string                `json:"message"`
}

func toRecomputeResponse(res ppug.RecomputeResult) RecomputeResponse {
	transitions := make([]string, len(res.Transitions))
	for i, s := range res.Transitions {
		transitions[i] = string(s)
	}
	rejected := res.Rejected
	if rejected == nil {
		rejected = []ppug.FieldRejection{}
	}
	return RecomputeResponse{
		Key:          toKeyDTO(res.Key),
		State:        string(res.State),
		Transitions:  transitions,
		TotalEntries: res.TotalEntries,
		UpdatedCount: res.UpdatedCount,
		Config:       res.Config,
		Source:       string(res.Source),
		Rejected:     rejected,
		Reason:       res.Reason,
		Message:      res.Message,
	}
}

// =============================================================================
// REPORT
// =============================================================================

// DayResultDTO is one day of a monthly report.
type DayResultDTO struct {
	Day                       int      `json:"day"`
	Hours                     int      `json:"hours"`
	Minutes                   int      `json:"minutes"`
	HoursDecimal              float64  `json:"hours_decimal"`
	Occupancy                 *float64 `json:"occupancy"`
	SubstituteHours           *float64 `json:"substitute_hours"`
	PrimaryEquivalent         *float64 `json:"primary_equivalent"`
	SubstitutionFactor        *float64 `json:"substitution_factor"`
	CombinedEquivalent        *float64 `json:"combined_equivalent"`
	SubstituteEquivalent      *float64 `json:"substitute_equivalent"`
	CreditableSubstituteHours *float64 `json:"creditable_substitute_hours"`
	UsableSubstituteHours     *float64 `json:"usable_substitute_hours"`
	ExaminedNurseEquivalent   *float64 `json:"examined_nurse_equivalent"`
	RequiredNurseEquivalent   *float64 `json:"required_nurse_equivalent"`
	Verdict                   string   `json:"verdict"`

	FallbackUsableSubstituteHours   *float64 `json:"fallback_usable_substitute_hours"`
	FallbackExaminedNurseEquivalent *float64 `json:"fallback_examined_nurse_equivalent"`
	FallbackVerdict                 string   `json:"fallback_verdict"`
}

// SummaryDTO is the monthly aggregate.
type SummaryDTO struct {
	DaysInMonth                    int      `json:"days_in_month"`
	DaysWithEntries                int      `json:"days_with_entries"`
	TotalHours                     float64  `json:"total_hours"`
	AverageHoursPerDay             *float64 `json:"average_hours_per_day"`
	AveragePrimaryEquivalent       *float64 `json:"average_primary_equivalent"`
	AverageRequiredNurseEquivalent *float64 `json:"average_required_nurse_equivalent"`
	DeltaRequiredVsActual          *float64 `json:"delta_required_vs_actual"`
	OccupancyAverage               *float64 `json:"occupancy_average"`
	DaysWithOccupancy              int      `json:"days_with_occupancy"`
	PatientToNurseRatio            *float64 `json:"patient_to_nurse_ratio"`
	MonthlySubstituteHours         *float64 `json:"monthly_substitute_hours"`
	CountDaysNotSatisfied          int      `json:"count_days_not_satisfied"`
	CountDaysNotSatisfiedFallback  int      `json:"count_days_not_satisfied_fallback"`
	CountDaysNotComputable         int      `json:"count_days_not_computable"`
	PercentSatisfied               float64  `json:"percent_satisfied"`
	PercentSatisfiedOfMonth        float64  `json:"percent_satisfied_of_month"`
	AverageUsableSubstituteHours   *float64 `json:"average_usable_substitute_hours"`
	AverageUsableSubstituteShifts  *float64 `json:"average_usable_substitute_shifts"`
}

// ReportResponse is a monthly report with the configuration it used.
type ReportResponse struct {
	Key        KeyDTO         `json:"key"`
	Config     ConfigResponse `json:"config"`
	Days       []DayResultDTO `json:"days"`
	Summary    SummaryDTO     `json:"summary"`
	ComputedAt string         `json:"computed_at"`
}

func toReportResponse(r ppug.MonthlyReport, rc ppug.ResolvedConfig, now time.Time) ReportResponse {
	days := make([]DayResultDTO, len(r.Days))
	for i, d := range r.Days {
		days[i] = DayResultDTO{
			Day:                             d.Day,
			Hours:                           d.Hours,
			Minutes:                         d.Minutes,
			HoursDecimal:                    d.HoursDecimal,
			Occupancy:                       d.Occupancy,
			SubstituteHours:                 d.SubstituteHours,
			PrimaryEquivalent:               d.PrimaryEquivalent,
			SubstitutionFactor:              d.SubstitutionFactor,
			CombinedEquivalent:              d.CombinedEquivalent,
			SubstituteEquivalent:            d.SubstituteEquivalent,
			CreditableSubstituteHours:       d.CreditableSubstituteHours,
			UsableSubstituteHours:           d.UsableSubstituteHours,
			ExaminedNurseEquivalent:         d.ExaminedNurseEquivalent,
			RequiredNurseEquivalent:         d.RequiredNurseEquivalent,
			Verdict:                         string(d.Verdict),
			FallbackUsableSubstituteHours:   d.FallbackUsableSubstituteHours,
			FallbackExaminedNurseEquivalent: d.FallbackExaminedNurseEquivalent,
			FallbackVerdict:                 string(d.FallbackVerdict),
		}
	}
	s := r.Summary
	return ReportResponse{
		Key:    toKeyDTO(r.Key),
		Config: toConfigResponse(r.Key.Station, r.Key.Category, r.Key.Shift, rc),
		Days:   days,
		Summary: SummaryDTO{
			DaysInMonth:                    s.DaysInMonth,
			DaysWithEntries:                s.DaysWithEntries,
			TotalHours:                     s.TotalHours,
			AverageHoursPerDay:             s.AverageHoursPerDay,
			AveragePrimaryEquivalent:       s.AveragePrimaryEquivalent,
			AverageRequiredNurseEquivalent: s.AverageRequiredNurseEquivalent,
			DeltaRequiredVsActual:          s.DeltaRequiredVsActual,
			OccupancyAverage:               s.OccupancyAverage,
			DaysWithOccupancy:              s.DaysWithOccupancy,
			PatientToNurseRatio:            s.PatientToNurseRatio,
			MonthlySubstituteHours:         s.MonthlySubstituteHours,
			CountDaysNotSatisfied:          s.CountDaysNotSatisfied,
			CountDaysNotSatisfiedFallback:  s.CountDaysNotSatisfiedFallback,
			CountDaysNotComputable:         s.CountDaysNotComputable,
			PercentSatisfied:               s.PercentSatisfied,
			PercentSatisfiedOfMonth:        s.PercentSatisfiedOfMonth,
			AverageUsableSubstituteHours:   s.AverageUsableSubstituteHours,
			AverageUsableSubstituteShifts:  s.AverageUsableSubstituteShifts,
		},
		ComputedAt: now.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Station     string `json:"station"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
