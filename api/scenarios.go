/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	station data. Each scenario goes through the engine (overrides, settings,
	occupancy, saves) exactly as a client would, so the stored derived fields
	and snapshots are the engine's own.

AVAILABLE SCENARIOS:

	compliant-day:      Day shift covered with creditable substitute hours
	night-understaffed: Night shift below the ratio on weekdays
	pause-tracking:     Station recording breaks; gross time is persisted
	config-history:     Override changed between months; January keeps its snapshot

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "compliant-day"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Engine-backed handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/staffing-engine/ppug"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "compliant-day",
		Name:        "Compliant Day Shift",
		Description: "20h PFK and 2h PHK per day against 12 patients at midday",
		Station:     "ICU-3",
	},
	{
		ID:          "night-understaffed",
		Name:        "Understaffed Nights",
		Description: "8h PFK on weekdays, 12h on weekends, 30 patients at midnight",
		Station:     "GER-1",
	},
	{
		ID:          "pause-tracking",
		Name:        "Pause Tracking",
		Description: "Breaks recorded per day and added to the persisted time",
		Station:     "SURG-2",
	},
	{
		ID:          "config-history",
		Name:        "Configuration History",
		Description: "Override changed in February; January reports keep the recorded configuration",
		Station:     "PED-1",
	},
}

// ScenarioPeriod is the month most scenarios populate.
var ScenarioPeriod = ppug.NewPeriod(2025, time.March)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	loaders := map[string]func(context.Context) error{
		"compliant-day":      h.loadCompliantDayScenario,
		"night-understaffed": h.loadNightUnderstaffedScenario,
		"pause-tracking":     h.loadPauseTrackingScenario,
		"config-history":     h.loadConfigHistoryScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		h.writeEngineError(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.writeEngineError(w, r, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all stored data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeEngineError(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadCompliantDayScenario(ctx context.Context) error {
	const station = ppug.StationID("ICU-3")
	p := ScenarioPeriod

	if err := h.saveOccupancy(ctx, station, p, func(int) ppug.BedOccupancy {
		return ppug.BedOccupancy{MidnightCount: ppug.Float(14), MiddayCount: ppug.Float(12)}
	}); err != nil {
		return err
	}

	// PHK first so the PFK report sees the same-day substitute hours
	if err := h.saveMonth(ctx, key(station, p, ppug.CategorySubstitute, ppug.ShiftDay), func(int) ppug.DayEntry {
		return ppug.DayEntry{Hours: 2}
	}); err != nil {
		return err
	}
	return h.saveMonth(ctx, key(station, p, ppug.CategoryPrimary, ppug.ShiftDay), func(int) ppug.DayEntry {
		return ppug.DayEntry{Hours: 20}
	})
}

func (h *Handler) loadNightUnderstaffedScenario(ctx context.Context) error {
	const station = ppug.StationID("GER-1")
	p := ScenarioPeriod

	if err := h.saveOccupancy(ctx, station, p, func(int) ppug.BedOccupancy {
		return ppug.BedOccupancy{MidnightCount: ppug.Float(30), MiddayCount: ppug.Float(28)}
	}); err != nil {
		return err
	}
	if err := h.saveMonth(ctx, key(station, p, ppug.CategorySubstitute, ppug.ShiftNight), func(int) ppug.DayEntry {
		return ppug.DayEntry{Hours: 1}
	}); err != nil {
		return err
	}
	return h.saveMonth(ctx, key(station, p, ppug.CategoryPrimary, ppug.ShiftNight), func(d int) ppug.DayEntry {
		if wd := p.Date(d).Weekday(); wd == time.Saturday || wd == time.Sunday {
			return ppug.DayEntry{Hours: 12}
		}
		return ppug.DayEntry{Hours: 8}
	})
}

func (h *Handler) loadPauseTrackingScenario(ctx context.Context) error {
	const station = ppug.StationID("SURG-2")
	p := ScenarioPeriod

	if err := h.Store.SaveSettings(ctx, ppug.StationSettings{Station: station, PauseTracking: true}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := h.saveOccupancy(ctx, station, p, func(int) ppug.BedOccupancy {
		return ppug.BedOccupancy{MiddayCount: ppug.Float(9)}
	}); err != nil {
		return err
	}
	return h.saveMonth(ctx, key(station, p, ppug.CategoryPrimary, ppug.ShiftDay), func(int) ppug.DayEntry {
		return ppug.DayEntry{Hours: 15, Minutes: 15, PauseMinutes: 45}
	})
}

func (h *Handler) loadConfigHistoryScenario(ctx context.Context) error {
	const station = ppug.StationID("PED-1")
	jan := ppug.NewPeriod(2025, time.January)
	feb := jan.Next()

	for _, p := range []ppug.Period{jan, feb} {
		// Every third day has no count; those days use the monthly average.
		if err := h.saveOccupancy(ctx, station, p, func(d int) ppug.BedOccupancy {
			if d%3 == 0 {
				return ppug.BedOccupancy{}
			}
			return ppug.BedOccupancy{MiddayCount: ppug.Float(float64(8 + d%4))}
		}); err != nil {
			return err
		}
	}

	// January is saved with the defaults and keeps them in its snapshot.
	if err := h.saveMonth(ctx, key(station, jan, ppug.CategoryPrimary, ppug.ShiftDay), func(int) ppug.DayEntry {
		return ppug.DayEntry{Hours: 14, Minutes: 30}
	}); err != nil {
		return err
	}

	edit := ppug.ConfigEdit{ShiftHours: ppug.Float(12), PPRatioBase: ppug.Float(8)}
	if _, _, err := h.Engine.Resolver().UpdateOverride(ctx, station, ppug.CategoryPrimary, ppug.ShiftDay, edit); err != nil {
		return err
	}
	return h.saveMonth(ctx, key(station, feb, ppug.CategoryPrimary, ppug.ShiftDay), func(int) ppug.DayEntry {
		return ppug.DayEntry{Hours: 14, Minutes: 30}
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func key(station ppug.StationID, p ppug.Period, c ppug.Category, s ppug.Shift) ppug.EntryKey {
	return ppug.EntryKey{Station: station, Period: p, Category: c, Shift: s}
}

func (h *Handler) saveMonth(ctx context.Context, k ppug.EntryKey, day func(int) ppug.DayEntry) error {
	if _, err := h.Engine.OpenPeriod(ctx, k); err != nil {
		return err
	}
	entries := make([]ppug.DayEntry, 0, k.Period.DaysInMonth())
	for d := 1; d <= k.Period.DaysInMonth(); d++ {
		e := day(d)
		e.Day = d
		entries = append(entries, e)
	}
	_, err := h.Engine.SaveEntries(ctx, k, entries)
	return err
}

func (h *Handler) saveOccupancy(ctx context.Context, station ppug.StationID, p ppug.Period, day func(int) ppug.BedOccupancy) error {
	records := make(map[int]ppug.BedOccupancy, p.DaysInMonth())
	for d := 1; d <= p.DaysInMonth(); d++ {
		rec := day(d)
		if rec.MidnightCount == nil && rec.MiddayCount == nil {
			continue
		}
		records[d] = rec
	}
	if err := h.Store.SaveBedOccupancy(ctx, station, p, records); err != nil {
		return fmt.Errorf("save occupancy %s %s: %w", station, p, err)
	}
	return nil
}
