/*
handlers_test.go - HTTP-level tests for the API handlers

Tests for:
- Save -> report round trip through SQLite
- Recompute status mapping (no data -> 404)
- Request validation and key parsing (400)
- Override edits with rejected fields
- Historical configuration via ?as_of
- Excel export headers
*/
package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/staffing-engine/ppug"
	"github.com/warp/staffing-engine/store/sqlite"
)

const periodPath = "/api/stations/ST-1/periods/2025/3"

func newTestServer(t *testing.T) (http.Handler, *Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, zap.NewNop())
	return NewRouter(h, nil), h
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSaveEntriesAndReport(t *testing.T) {
	// GIVEN: occupancy of 10 patients at midday on days 1 and 2, and PHK hours on day 2
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodPut, "/api/stations/ST-1/occupancy/2025/3", OccupancyRequest{
		Days: []OccupancyDayInput{
			{Day: 1, MiddayCount: ppug.Float(10)},
			{Day: 2, MiddayCount: ppug.Float(10)},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	occ := decodeBody[OccupancyResponse](t, rec)
	require.NotNil(t, occ.DayAverage)
	assert.Equal(t, 10.0, *occ.DayAverage)
	assert.Nil(t, occ.NightAverage)

	rec = do(t, router, http.MethodPut, periodPath+"/PHK/day", SaveEntriesRequest{
		Entries: []DayEntryInput{{Day: 2, Hours: 4}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: saving a full shift on day 1 and half a shift on day 2
	rec = do(t, router, http.MethodPut, periodPath+"/PFK/day", SaveEntriesRequest{
		Entries: []DayEntryInput{{Day: 1, Hours: 16}, {Day: 2, Hours: 8}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeBody[EntriesResponse](t, rec)
	require.Len(t, saved.Entries, 2)
	assert.Equal(t, "default", saved.ConfigSource)
	require.NotNil(t, saved.Entries[0].PrimaryEquivalent)
	assert.InDelta(t, 1.0, *saved.Entries[0].PrimaryEquivalent, 1e-9)

	rec = do(t, router, http.MethodGet, periodPath+"/PFK/day/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decodeBody[ReportResponse](t, rec)

	// THEN: day 1 meets the ratio on its own, day 2 falls short even with substitutes
	require.Len(t, rep.Days, 31)
	assert.Equal(t, "satisfied", rep.Days[0].Verdict)
	assert.Equal(t, "not_satisfied", rep.Days[1].Verdict)
	require.NotNil(t, rep.Days[1].UsableSubstituteHours)
	assert.InDelta(t, 8.0/9.0, *rep.Days[1].UsableSubstituteHours, 1e-9)

	assert.Equal(t, "snapshot", rep.Config.Source)
	assert.True(t, rep.Config.FromSnapshot)
	assert.Equal(t, 2, rep.Summary.DaysWithEntries)
	assert.InDelta(t, 24.0, rep.Summary.TotalHours, 1e-9)
}

func TestRecompute_NoDataIsNotFound(t *testing.T) {
	// GIVEN: nothing stored
	router, _ := newTestServer(t)

	// WHEN
	rec := do(t, router, http.MethodPost, periodPath+"/PFK/night/recompute", nil)

	// THEN: 404 with the failed result attached
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "failed", resp.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "no data", details["reason"])
}

func TestRecompute_WithEditIgnoresInvalidFields(t *testing.T) {
	// GIVEN: an opened and saved night period
	router, _ := newTestServer(t)
	rec := do(t, router, http.MethodPost, periodPath+"/PFK/night/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPut, periodPath+"/PFK/night", SaveEntriesRequest{
		Entries: []DayEntryInput{{Day: 5, Hours: 8}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: recomputing with a valid shift length and an invalid ratio base
	rec = do(t, router, http.MethodPost, periodPath+"/PFK/night/recompute", ConfigEditRequest{
		ShiftHours:  ppug.Float(10),
		PPRatioBase: ppug.Float(-1),
	})

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[RecomputeResponse](t, rec)
	assert.Equal(t, "done", resp.State)
	assert.Equal(t, 31, resp.TotalEntries)
	assert.Equal(t, 1, resp.UpdatedCount, "only the day with hours changes")
	assert.Equal(t, 10.0, resp.Config.ShiftHours)
	assert.Equal(t, ppug.DefaultNightRatioBase, resp.Config.PPRatioBase)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, "pp_ratio_base", resp.Rejected[0].Field)
}

func TestInvalidKeyAndValidation(t *testing.T) {
	router, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"unknown category", http.MethodGet, periodPath + "/XYZ/day", nil},
		{"unknown shift", http.MethodGet, periodPath + "/PFK/evening", nil},
		{"month 13", http.MethodGet, "/api/stations/ST-1/periods/2025/13/PFK/day", nil},
		{"minutes out of range", http.MethodPut, periodPath + "/PFK/day",
			SaveEntriesRequest{Entries: []DayEntryInput{{Day: 1, Minutes: 60}}}},
		{"no entries", http.MethodPut, periodPath + "/PFK/day", SaveEntriesRequest{}},
		{"day beyond month", http.MethodPut, "/api/stations/ST-1/periods/2025/2/PFK/day",
			SaveEntriesRequest{Entries: []DayEntryInput{{Day: 30, Hours: 1}}}},
		{"settings without flag", http.MethodPut, "/api/stations/ST-1/settings", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestUpdateConfig_RejectsFieldsIndividually(t *testing.T) {
	// GIVEN
	router, _ := newTestServer(t)

	// WHEN: one valid and one zero-valued field
	rec := do(t, router, http.MethodPut, "/api/stations/ST-1/config/PFK/day", ConfigEditRequest{
		ShiftHours:             ppug.Float(12),
		SubstitutionBaseFactor: ppug.Float(0),
	})

	// THEN: the valid field is stored, the other keeps its default
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[ConfigEditResponse](t, rec)
	assert.Equal(t, 12.0, resp.Config.ShiftHours)
	require.NotNil(t, resp.Config.SubstitutionBaseFactor)
	assert.Equal(t, ppug.DefaultSubstitutionBaseFactor, *resp.Config.SubstitutionBaseFactor)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, "substitution_base_factor", resp.Rejected[0].Field)

	rec = do(t, router, http.MethodGet, periodPath+"/PFK/day/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeBody[ConfigResponse](t, rec)
	assert.Equal(t, "override", cfg.Source)
	assert.Equal(t, 12.0, cfg.Config.ShiftHours)
}

func TestGetConfig_AsOfUsesRecordedConfiguration(t *testing.T) {
	// GIVEN: January saved with defaults, then an override
	router, _ := newTestServer(t)
	rec := do(t, router, http.MethodPut, "/api/stations/ST-1/periods/2025/1/PFK/day", SaveEntriesRequest{
		Entries: []DayEntryInput{{Day: 1, Hours: 16}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPut, "/api/stations/ST-1/config/PFK/day", ConfigEditRequest{ShiftHours: ppug.Float(12)})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: asking for January's configuration and for March's
	rec = do(t, router, http.MethodGet, "/api/stations/ST-1/periods/2025/1/PFK/day/config?as_of=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jan := decodeBody[ConfigResponse](t, rec)

	rec = do(t, router, http.MethodGet, periodPath+"/PFK/day/config?as_of=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mar := decodeBody[ConfigResponse](t, rec)

	// THEN: both use January's snapshot; March is told where it came from
	assert.Equal(t, ppug.DefaultDayShiftHours, jan.Config.ShiftHours)
	assert.True(t, jan.FromSnapshot)
	assert.Empty(t, jan.Message)

	assert.True(t, mar.FromSnapshot)
	require.NotNil(t, mar.SnapshotPeriod)
	assert.Equal(t, "2025-01", *mar.SnapshotPeriod)
	assert.NotEmpty(t, mar.Message)
}

func TestExportReport(t *testing.T) {
	router, _ := newTestServer(t)
	rec := do(t, router, http.MethodPut, periodPath+"/PFK/day", SaveEntriesRequest{
		Entries: []DayEntryInput{{Day: 1, Hours: 16}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, periodPath+"/PFK/day/report.xlsx", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ppug_ST-1_2025-03_PFK_day.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestClearEntries(t *testing.T) {
	router, h := newTestServer(t)
	rec := do(t, router, http.MethodPost, periodPath+"/PHK/day/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodDelete, periodPath+"/PHK/day", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	entries, err := h.Store.LoadDayEntries(context.Background(), ppug.EntryKey{
		Station: "ST-1", Period: ppug.NewPeriod(2025, 3), Category: ppug.CategorySubstitute, Shift: ppug.ShiftDay,
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveOccupancy_RejectsImplausibleCounts(t *testing.T) {
	router, _ := newTestServer(t)

	// GIVEN: counts whose sum would overflow
	huge := 1e308
	rec := do(t, router, http.MethodPut, "/api/stations/ST-1/occupancy/2025/3", OccupancyRequest{
		Days: []OccupancyDayInput{{Day: 1, MiddayCount: &huge}, {Day: 2, MiddayCount: &huge}},
	})

	// THEN: rejected before anything is stored, reports keep working
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPut, periodPath+"/PFK/day", SaveEntriesRequest{Entries: []DayEntryInput{{Day: 1, Hours: 8}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodGet, periodPath+"/PFK/day/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decodeBody[ReportResponse](t, rec)
	assert.Nil(t, rep.Summary.OccupancyAverage)
}
