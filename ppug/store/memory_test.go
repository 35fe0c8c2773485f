package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-engine/ppug"
)

func testKey() ppug.EntryKey {
	return ppug.EntryKey{Station: "ST-1", Period: ppug.NewPeriod(2025, time.June), Category: ppug.CategoryPrimary, Shift: ppug.ShiftDay}
}

func TestMemory_WithTxRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	key := testKey()
	require.NoError(t, m.SaveDayEntries(ctx, key, []ppug.DayEntry{{Day: 1, Hours: 4}}))

	// WHEN: a transaction writes and then fails
	err := m.WithTx(ctx, func(tx ppug.Store) error {
		if err := tx.SaveDayEntries(ctx, key, []ppug.DayEntry{{Day: 1, Hours: 9}, {Day: 2, Hours: 1}}); err != nil {
			return err
		}
		require.NoError(t, tx.SaveOverride(ctx, key.Station, key.Category, key.Shift, ppug.Configuration{ShiftHours: 1, PPRatioBase: 1}))
		return errors.New("abort")
	})

	// THEN: nothing written inside the transaction survives
	require.Error(t, err)
	entries, err := m.LoadDayEntries(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].Hours)

	override, err := m.GetOverride(ctx, key.Station, key.Category, key.Shift)
	require.NoError(t, err)
	assert.Nil(t, override)
}

func TestMemory_SubstituteHoursSkipEmptyDays(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	phk := testKey().WithCategory(ppug.CategorySubstitute)
	require.NoError(t, m.SaveDayEntries(ctx, phk, []ppug.DayEntry{{Day: 1}, {Day: 2, Hours: 1, Minutes: 30}}))

	hours, err := m.LoadSubstituteHours(ctx, phk.Station, phk.Period, phk.Shift)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{2: 1.5}, hours)
}

func TestMemory_OccupancyAndUtilities(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	key := testKey()

	err := m.SaveBedOccupancy(ctx, key.Station, key.Period, map[int]ppug.BedOccupancy{31: {MiddayCount: ppug.Float(3)}})
	assert.True(t, errors.Is(err, ppug.ErrInvalidDay), "June has 30 days")

	require.NoError(t, m.SaveBedOccupancy(ctx, key.Station, key.Period, map[int]ppug.BedOccupancy{5: {MiddayCount: ppug.Float(3)}}))
	occ, err := m.LoadBedOccupancy(ctx, key.Station, key.Period)
	require.NoError(t, err)
	require.Contains(t, occ, 5)
	assert.Equal(t, 3.0, *occ[5].MiddayCount)

	require.NoError(t, m.SaveSettings(ctx, ppug.StationSettings{Station: "ST-0", PauseTracking: true}))
	require.NoError(t, m.SaveDayEntries(ctx, key, []ppug.DayEntry{{Day: 1}}))
	stations, err := m.ListStations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ppug.StationID{"ST-0", "ST-1"}, stations)

	require.NoError(t, m.Reset(ctx))
	stations, err = m.ListStations(ctx)
	require.NoError(t, err)
	assert.Empty(t, stations)
}
