/*
handlers.go - HTTP API handlers for the staffing ratio engine

PURPOSE:
  Exposes the PpUG engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the engine. No
  computation happens here.

ENDPOINTS:
  Stations:
    GET    /api/stations                                   List stations
    PUT    /api/stations/{station}/settings                Pause tracking switch
    PUT    /api/stations/{station}/occupancy/{year}/{month} Upsert bed occupancy
    PUT    /api/stations/{station}/config/{category}/{shift} Edit override

  Periods (prefix /api/stations/{station}/periods/{year}/{month}/{category}/{shift}):
    GET    /                Stored entries
    PUT    /                Save entries
    DELETE /                Clear entries
    POST   /open            Create empty entries for every day
    POST   /recompute       Reapply the configuration (optional edit body)
    GET    /report          Monthly report (JSON)
    GET    /report.xlsx     Monthly report (Excel)
    GET    /config          Current configuration; ?as_of=1 for the one
                            recorded for the period

  Scenarios:
    GET    /api/scenarios        List demo scenarios
    POST   /api/scenarios/load   Load a demo scenario
    POST   /api/scenarios/reset  Clear the database

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: No data for the key (recompute)
  - 500: Store failures

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/warp/staffing-engine/ppug"
	"github.com/warp/staffing-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the store the API runs against. Both the SQLite and the
// in-memory store satisfy it.
type Backend interface {
	ppug.TxStore
	SaveBedOccupancy(ctx context.Context, station ppug.StationID, period ppug.Period, records map[int]ppug.BedOccupancy) error
	ListStations(ctx context.Context) ([]ppug.StationID, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Backend
	Engine *ppug.Engine

	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Backend, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Engine:   ppug.NewEngine(store, logger.Named("engine")),
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// =============================================================================
// STATION HANDLERS
// =============================================================================

// ListStations returns every station known to the store.
func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.Store.ListStations(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "Failed to list stations", err)
		return
	}
	out := make([]string, len(stations))
	for i, s := range stations {
		out[i] = string(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateSettings sets the station's pause tracking switch.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	station, err := parseStation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid station", err)
		return
	}
	var req SettingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	settings := ppug.StationSettings{Station: station, PauseTracking: *req.PauseTracking}
	if err := h.Store.SaveSettings(r.Context(), settings); err != nil {
		h.writeEngineError(w, r, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsDTO{Station: string(station), PauseTracking: settings.PauseTracking})
}

// SaveOccupancy upserts bed occupancy for days of a month.
func (h *Handler) SaveOccupancy(w http.ResponseWriter, r *http.Request) {
	station, err := parseStation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid station", err)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	var req OccupancyRequest
	if !h.decode(w, r, &req) {
		return
	}

	records := make(map[int]ppug.BedOccupancy, len(req.Days))
	for _, d := range req.Days {
		if !period.Contains(d.Day) {
			writeError(w, http.StatusBadRequest, "Invalid day", fmt.Errorf("day %d outside %s", d.Day, period))
			return
		}
		if _, dup := records[d.Day]; dup {
			writeError(w, http.StatusBadRequest, "Invalid day", fmt.Errorf("day %d listed twice", d.Day))
			return
		}
		records[d.Day] = ppug.BedOccupancy{MidnightCount: d.MidnightCount, MiddayCount: d.MiddayCount}
	}

	ctx := r.Context()
	if err := h.Store.SaveBedOccupancy(ctx, station, period, records); err != nil {
		h.writeEngineError(w, r, "Failed to save occupancy", err)
		return
	}

	averager := ppug.NewAverager(h.Store)
	day, err := averager.Month(ctx, station, period, ppug.ShiftDay)
	if err != nil {
		h.writeEngineError(w, r, "Failed to load occupancy", err)
		return
	}
	night, err := averager.Average(ctx, station, period, ppug.ShiftNight)
	if err != nil {
		h.writeEngineError(w, r, "Failed to load occupancy", err)
		return
	}
	writeJSON(w, http.StatusOK, OccupancyResponse{
		Station:       string(station),
		Period:        period.String(),
		DaysStored:    len(day.Records),
		DayAverage:    day.Average,
		NightAverage:  night.Average,
		DaysWithDay:   day.DaysWithData,
		DaysWithNight: night.DaysWithData,
	})
}

// UpdateConfig applies a partial edit to the station override. Invalid
// fields are rejected individually; the rest are stored.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	station, err := parseStation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid station", err)
		return
	}
	category, shift, err := parseCategoryShift(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category or shift", err)
		return
	}
	var req ConfigEditRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg, rejected, err := h.Engine.Resolver().UpdateOverride(r.Context(), station, category, shift, req.toDomain())
	if err != nil {
		h.writeEngineError(w, r, "Failed to update configuration", err)
		return
	}
	if rejected == nil {
		rejected = []ppug.FieldRejection{}
	}
	h.logger.Info("configuration override updated",
		zap.String("station", string(station)),
		zap.String("category", string(category)),
		zap.String("shift", string(shift)),
		zap.Int("rejected", len(rejected)),
	)
	writeJSON(w, http.StatusOK, ConfigEditResponse{Config: cfg, Rejected: rejected})
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// GetEntries returns the stored entries of a key.
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	entries, err := h.Engine.Entries(r.Context(), key)
	if err != nil {
		h.writeEngineError(w, r, "Failed to load entries", err)
		return
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Key: toKeyDTO(key), Entries: toDayEntryDTOs(entries)})
}

// OpenPeriod creates empty entries for every day of the month.
func (h *Handler) OpenPeriod(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	entries, err := h.Engine.OpenPeriod(r.Context(), key)
	if err != nil {
		h.writeEngineError(w, r, "Failed to open period", err)
		return
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Key: toKeyDTO(key), Entries: toDayEntryDTOs(entries)})
}

// SaveEntries overwrites days of a key and derives their persisted fields.
func (h *Handler) SaveEntries(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	var req SaveEntriesRequest
	if !h.decode(w, r, &req) {
		return
	}

	entries := make([]ppug.DayEntry, len(req.Entries))
	for i, in := range req.Entries {
		entries[i] = in.toDomain()
	}
	res, err := h.Engine.SaveEntries(r.Context(), key, entries)
	if err != nil {
		h.writeEngineError(w, r, "Failed to save entries", err)
		return
	}
	cfg := res.Config
	writeJSON(w, http.StatusOK, EntriesResponse{
		Key:          toKeyDTO(key),
		Entries:      toDayEntryDTOs(res.Entries),
		Config:       &cfg,
		ConfigSource: string(res.Source),
	})
}

// ClearEntries deletes every entry of a key.
func (h *Handler) ClearEntries(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	if err := h.Engine.ClearEntries(r.Context(), key); err != nil {
		h.writeEngineError(w, r, "Failed to clear entries", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recompute reapplies the configuration to stored entries. An optional body
// carries a one-off configuration edit that is not persisted.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}

	var edit *ppug.ConfigEdit
	var req ConfigEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if e := req.toDomain(); !e.IsEmpty() {
		edit = &e
	}

	res, err := h.Engine.Recompute(r.Context(), key, edit)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("recompute failed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
		}
		writeJSON(w, status, ErrorResponse{
			Error:   res.Message,
			Code:    string(res.State),
			Details: toRecomputeResponse(res),
		})
		return
	}
	writeJSON(w, http.StatusOK, toRecomputeResponse(res))
}

// GetReport returns the monthly report of a key.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	rep, rc, err := h.Engine.MonthlyReport(r.Context(), key)
	if err != nil {
		h.writeEngineError(w, r, "Failed to compute report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rep, rc, h.now()))
}

// ExportReport returns the monthly report of a key as an xlsx workbook.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	rep, _, err := h.Engine.MonthlyReport(r.Context(), key)
	if err != nil {
		h.writeEngineError(w, r, "Failed to compute report", err)
		return
	}
	data, err := report.MonthlyExcel(rep)
	if err != nil {
		h.logger.Error("excel export failed", zap.Stringer("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate export", err)
		return
	}

	filename := fmt.Sprintf("ppug_%s_%s_%s_%s.xlsx", key.Station, key.Period, key.Category, key.Shift)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetConfig returns the current configuration of a key, or with ?as_of=1 the
// configuration that applied to its period.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	asOf, _ := strconv.ParseBool(r.URL.Query().Get("as_of"))

	resolver := h.Engine.Resolver()
	var rc ppug.ResolvedConfig
	var err error
	if asOf {
		rc, err = resolver.ResolveAsOf(r.Context(), key.Station, key.Category, key.Shift, key.Period)
	} else {
		rc, err = resolver.Resolve(r.Context(), key.Station, key.Category, key.Shift)
	}
	if err != nil {
		h.writeEngineError(w, r, "Failed to resolve configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(key.Station, key.Category, key.Shift, rc))
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

func (h *Handler) key(w http.ResponseWriter, r *http.Request) (ppug.EntryKey, bool) {
	key, err := parseKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key", err)
		return ppug.EntryKey{}, false
	}
	return key, true
}

// decode reads and validates a JSON body. It writes the error response and
// returns false when the body is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Namespace()] = fe.Tag()
			}
			writeError(w, http.StatusBadRequest, "Validation failed", nil, fields)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func parseKey(r *http.Request) (ppug.EntryKey, error) {
	station, err := parseStation(r)
	if err != nil {
		return ppug.EntryKey{}, err
	}
	period, err := parsePeriod(r)
	if err != nil {
		return ppug.EntryKey{}, err
	}
	category, shift, err := parseCategoryShift(r)
	if err != nil {
		return ppug.EntryKey{}, err
	}
	key := ppug.EntryKey{Station: station, Period: period, Category: category, Shift: shift}
	return key, key.Validate()
}

func parseStation(r *http.Request) (ppug.StationID, error) {
	station := strings.TrimSpace(chi.URLParam(r, "station"))
	if station == "" {
		return "", fmt.Errorf("%w: empty station", ppug.ErrInvalidKey)
	}
	return ppug.StationID(station), nil
}

func parsePeriod(r *http.Request) (ppug.Period, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return ppug.Period{}, fmt.Errorf("%w: year %q", ppug.ErrInvalidPeriod, chi.URLParam(r, "year"))
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return ppug.Period{}, fmt.Errorf("%w: month %q", ppug.ErrInvalidPeriod, chi.URLParam(r, "month"))
	}
	p := ppug.NewPeriod(year, time.Month(month))
	return p, p.Validate()
}

func parseCategoryShift(r *http.Request) (ppug.Category, ppug.Shift, error) {
	category := ppug.Category(strings.ToUpper(chi.URLParam(r, "category")))
	if !category.Valid() {
		return "", "", fmt.Errorf("%w: category %q", ppug.ErrInvalidKey, chi.URLParam(r, "category"))
	}
	shift := ppug.Shift(strings.ToLower(chi.URLParam(r, "shift")))
	if !shift.Valid() {
		return "", "", fmt.Errorf("%w: shift %q", ppug.ErrInvalidKey, chi.URLParam(r, "shift"))
	}
	return category, shift, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error, details ...any) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors onto HTTP statuses and logs server-side failures.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case ppug.IsClientError(err):
		return http.StatusBadRequest
	case ppug.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
