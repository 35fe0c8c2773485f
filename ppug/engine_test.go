/*
engine_test.go - Engine orchestration tests over the in-memory store

Covers:
- Open/save/clear lifecycle and configuration snapshots
- Pause tracking on save
- Recompute state machine, idempotence and failure modes
- Atomicity: a failure while persisting leaves stored fields untouched
*/
package ppug_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/staffing-engine/ppug"
	"github.com/warp/staffing-engine/ppug/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func marchKey(c ppug.Category, s ppug.Shift) ppug.EntryKey {
	return ppug.EntryKey{Station: "ST-1", Period: ppug.NewPeriod(2025, time.March), Category: c, Shift: s}
}

func newEngine(t *testing.T) (*ppug.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return ppug.NewEngine(mem, zap.NewNop()), mem
}

var errBoom = errors.New("boom")

// failingStore wraps a memory store and injects errors into selected calls,
// inside and outside transactions.
type failingStore struct {
	*store.Memory
	failLoad      bool
	failSnapshot  bool
	failOccupancy bool
}

func (f *failingStore) LoadBedOccupancy(ctx context.Context, station ppug.StationID, period ppug.Period) (map[int]ppug.BedOccupancy, error) {
	if f.failOccupancy {
		return nil, errBoom
	}
	return f.Memory.LoadBedOccupancy(ctx, station, period)
}

func (f *failingStore) LoadDayEntries(ctx context.Context, key ppug.EntryKey) ([]ppug.DayEntry, error) {
	if f.failLoad {
		return nil, errBoom
	}
	return f.Memory.LoadDayEntries(ctx, key)
}

func (f *failingStore) WithTx(ctx context.Context, fn func(ppug.Store) error) error {
	return f.Memory.WithTx(ctx, func(tx ppug.Store) error {
		return fn(&failingTx{Store: tx, parent: f})
	})
}

type failingTx struct {
	ppug.Store
	parent *failingStore
}

func (f *failingTx) LoadDayEntries(ctx context.Context, key ppug.EntryKey) ([]ppug.DayEntry, error) {
	if f.parent.failLoad {
		return nil, errBoom
	}
	return f.Store.LoadDayEntries(ctx, key)
}

func (f *failingTx) SaveSnapshot(ctx context.Context, snap ppug.ConfigSnapshot) error {
	if f.parent.failSnapshot {
		return errBoom
	}
	return f.Store.SaveSnapshot(ctx, snap)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestOpenPeriod_Idempotent(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	key := marchKey(ppug.CategoryPrimary, ppug.ShiftDay)

	// WHEN: opening twice, with a save in between
	entries, err := engine.OpenPeriod(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 31)
	_, err = engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 3, Hours: 5}})
	require.NoError(t, err)
	entries, err = engine.OpenPeriod(ctx, key)
	require.NoError(t, err)

	// THEN: the second open returns the stored entries unchanged
	require.Len(t, entries, 31)
	assert.Equal(t, 5, entries[2].Hours)
}

func TestSaveEntries_DerivesAndRecordsSnapshot(t *testing.T) {
	engine, mem := newEngine(t)
	ctx := context.Background()
	key := marchKey(ppug.CategoryPrimary, ppug.ShiftNight)

	res, err := engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 2, Hours: 4}, {Day: 1, Hours: 8}})
	require.NoError(t, err)

	// THEN: entries come back ordered by day, derived with night defaults
	require.Len(t, res.Entries, 2)
	assert.Equal(t, 1, res.Entries[0].Day)
	assert.Equal(t, ppug.SourceDefault, res.Source)
	require.NotNil(t, res.Entries[0].Derived.PrimaryEquivalent)
	assert.InDelta(t, 1.0, *res.Entries[0].Derived.PrimaryEquivalent, 1e-9)

	snap, err := mem.LatestSnapshot(ctx, key.Station, key.Category, key.Shift, key.Period)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, key, snap.Key)
	assert.True(t, snap.Config.Equal(ppug.DefaultConfiguration(ppug.CategoryPrimary, ppug.ShiftNight)))
	assert.NotEmpty(t, snap.ID)
}

func TestSaveEntries_RejectsInvalidInput(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	key := marchKey(ppug.CategoryPrimary, ppug.ShiftDay)

	_, err := engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 1}, {Day: 1}})
	assert.True(t, errors.Is(err, ppug.ErrInvalidDay))

	_, err = engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 32}})
	assert.True(t, ppug.IsClientError(err))

	bad := key
	bad.Shift = "evening"
	_, err = engine.SaveEntries(ctx, bad, nil)
	assert.True(t, errors.Is(err, ppug.ErrInvalidKey))
}

func TestSaveEntries_PauseTracking(t *testing.T) {
	engine, mem := newEngine(t)
	ctx := context.Background()
	key := marchKey(ppug.CategoryPrimary, ppug.ShiftDay)
	entry := ppug.DayEntry{Day: 1, Hours: 7, Minutes: 45, PauseMinutes: 30}

	// GIVEN: pause tracking disabled
	res, err := engine.SaveEntries(ctx, key, []ppug.DayEntry{entry})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Entries[0].Hours)
	assert.Equal(t, 0, res.Entries[0].PauseMinutes, "pause is dropped when not tracked")

	// WHEN: enabling it
	require.NoError(t, mem.SaveSettings(ctx, ppug.StationSettings{Station: key.Station, PauseTracking: true}))
	res, err = engine.SaveEntries(ctx, key, []ppug.DayEntry{entry})
	require.NoError(t, err)

	// THEN: gross time is persisted and derived from
	got := res.Entries[0]
	assert.Equal(t, 8, got.Hours)
	assert.Equal(t, 15, got.Minutes)
	assert.Equal(t, 30, got.PauseMinutes)
	assert.InDelta(t, 8.25/16, *got.Derived.PrimaryEquivalent, 1e-9)
}

func TestClearEntries_KeepsSnapshots(t *testing.T) {
	engine, mem := newEngine(t)
	ctx := context.Background()
	key := marchKey(ppug.CategorySubstitute, ppug.ShiftDay)

	_, err := engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 1, Hours: 2}})
	require.NoError(t, err)
	require.NoError(t, engine.ClearEntries(ctx, key))

	entries, err := engine.Entries(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, entries)

	snap, err := mem.LatestSnapshot(ctx, key.Station, key.Category, key.Shift, key.Period)
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func TestRecompute_IdempotentSecondRunUpdatesNothing(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	key := marchKey(ppug.CategoryPrimary, ppug.ShiftDay)

	_, err := engine.OpenPeriod(ctx, key)
	require.NoError(t, err)
	_, err = engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 1, Hours: 8}, {Day: 2, Hours: 12, Minutes: 30}})
	require.NoError(t, err)
	edit := &ppug.ConfigEdit{ShiftHours: ppug.Float(12)}

	// WHEN: recomputing twice with the same edit
	first, err := engine.Recompute(ctx, key, edit)
	require.NoError(t, err)
	second, err := engine.Recompute(ctx, key, edit)
	require.NoError(t, err)

	// THEN
	assert.Equal(t, ppug.StateDone, first.State)
	assert.Equal(t, []ppug.RecomputeState{
		ppug.StateIdle, ppug.StateLoading, ppug.StateDeriving, ppug.StatePersisting, ppug.StateDone,
	}, first.Transitions)
	assert.Equal(t, 31, first.TotalEntries)
	assert.Equal(t, 2, first.UpdatedCount)
	assert.Equal(t, 0, second.UpdatedCount)
	assert.NotEmpty(t, second.Message)

	entries, err := engine.Entries(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 8, entries[0].Hours, "raw hours are never modified")
	assert.InDelta(t, 8.0/12, *entries[0].Derived.PrimaryEquivalent, 1e-9)
}

func TestRecompute_NoEntriesFailsWithNoData(t *testing.T) {
	engine, _ := newEngine(t)

	res, err := engine.Recompute(context.Background(), marchKey(ppug.CategoryPrimary, ppug.ShiftNight), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ppug.ErrNoEntries))
	assert.True(t, ppug.IsNotFound(err))
	assert.Equal(t, ppug.StateFailed, res.State)
	assert.Equal(t, "no data", res.Reason)
	assert.Equal(t, 0, res.UpdatedCount)
}

func TestRecompute_CollaboratorErrorIsNotNoData(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), failLoad: true}
	engine := ppug.NewEngine(fs, zap.NewNop())

	res, err := engine.Recompute(context.Background(), marchKey(ppug.CategoryPrimary, ppug.ShiftDay), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.False(t, errors.Is(err, ppug.ErrNoEntries))
	assert.Equal(t, ppug.StateFailed, res.State)
	assert.NotEqual(t, "no data", res.Reason)
}

func TestRecompute_FailureWhilePersistingRollsBack(t *testing.T) {
	// GIVEN: entries saved with the default day configuration
	fs := &failingStore{Memory: store.NewMemory()}
	engine := ppug.NewEngine(fs, zap.NewNop())
	ctx := context.Background()
	key := marchKey(ppug.CategoryPrimary, ppug.ShiftDay)
	_, err := engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 1, Hours: 8}})
	require.NoError(t, err)

	// WHEN: the snapshot write fails after the entries were written in the tx
	fs.failSnapshot = true
	res, err := engine.Recompute(ctx, key, &ppug.ConfigEdit{ShiftHours: ppug.Float(8)})

	// THEN: the failure is reported and the stored fields are the old ones
	require.Error(t, err)
	assert.Equal(t, ppug.StateFailed, res.State)
	assert.Contains(t, res.Transitions, ppug.StatePersisting)

	entries, err := fs.Memory.LoadDayEntries(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 0.5, *entries[0].Derived.PrimaryEquivalent, 1e-9)
}

func TestRecompute_InvalidOverridesIgnored(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	key := marchKey(ppug.CategoryPrimary, ppug.ShiftDay)
	_, err := engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 1, Hours: 8}})
	require.NoError(t, err)

	res, err := engine.Recompute(ctx, key, &ppug.ConfigEdit{ShiftHours: ppug.Float(0), PPRatioBase: ppug.Float(12)})

	require.NoError(t, err)
	assert.Equal(t, ppug.DefaultDayShiftHours, res.Config.ShiftHours)
	assert.Equal(t, 12.0, res.Config.PPRatioBase)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "shift_hours", res.Rejected[0].Field)
	assert.Equal(t, 0, res.UpdatedCount, "ratio base is not a persisted input")
}

// =============================================================================
// MONTHLY REPORT
// =============================================================================

func TestMonthlyReport_PullsSubstituteHoursAndOccupancy(t *testing.T) {
	engine, mem := newEngine(t)
	ctx := context.Background()
	pfk := marchKey(ppug.CategoryPrimary, ppug.ShiftNight)
	phk := pfk.WithCategory(ppug.CategorySubstitute)

	require.NoError(t, mem.SaveBedOccupancy(ctx, pfk.Station, pfk.Period, map[int]ppug.BedOccupancy{
		1: {MidnightCount: ppug.Float(20)},
	}))
	_, err := engine.SaveEntries(ctx, phk, []ppug.DayEntry{{Day: 1, Hours: 1}})
	require.NoError(t, err)
	_, err = engine.SaveEntries(ctx, pfk, []ppug.DayEntry{{Day: 1, Hours: 8}})
	require.NoError(t, err)

	rep, rc, err := engine.MonthlyReport(ctx, pfk)
	require.NoError(t, err)

	assert.Equal(t, ppug.SourceSnapshot, rc.Source)
	day := rep.Days[0]
	require.NotNil(t, day.SubstituteHours)
	assert.Equal(t, 1.0, *day.SubstituteHours)
	// creditable = (1/0.9 - 1) * 8 = 0.8889h, examined = 8.8889/8
	assert.InDelta(t, 8.0/9, *day.UsableSubstituteHours, 1e-9)
	assert.InDelta(t, 1.0, *day.RequiredNurseEquivalent, 1e-9)
	assert.Equal(t, ppug.VerdictSatisfied, day.Verdict)
}

func TestMonthlyReport_OccupancyErrorIsReturned(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), failOccupancy: true}
	engine := ppug.NewEngine(fs, zap.NewNop())
	ctx := context.Background()
	key := marchKey(ppug.CategoryPrimary, ppug.ShiftDay)
	_, err := engine.SaveEntries(ctx, key, []ppug.DayEntry{{Day: 1, Hours: 8}})
	require.NoError(t, err)

	_, _, err = engine.MonthlyReport(ctx, key)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.False(t, ppug.IsNotFound(err))
}
