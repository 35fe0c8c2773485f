package report

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/staffing-engine/ppug"
)

func sampleReport() ppug.MonthlyReport {
	key := ppug.EntryKey{
		Station:  "ST-1",
		Period:   ppug.NewPeriod(2024, time.February),
		Category: ppug.CategoryPrimary,
		Shift:    ppug.ShiftDay,
	}
	return ppug.EvaluateMonth(ppug.MonthInput{
		Key:    key,
		Config: ppug.DefaultConfiguration(key.Category, key.Shift),
		Entries: []ppug.DayEntry{
			{Day: 1, Hours: 16},
			{Day: 2, Hours: 8, Minutes: 30},
		},
		Occupancy: map[int]ppug.BedOccupancy{
			1: {MiddayCount: ppug.Float(10)},
		},
		SubstituteHours: map[int]float64{1: 2},
	})
}

func TestMonthlyExcel_WritesDayRowsAndSummary(t *testing.T) {
	// GIVEN: a February report with one fully computable day
	r := sampleReport()

	// WHEN: exporting it
	data, err := MonthlyExcel(r)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	// THEN: both sheets exist, one row per calendar day plus the header
	assert.ElementsMatch(t, []string{DaysSheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(DaysSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1+29)
	assert.Equal(t, DayHeader, rows[0])

	day1 := rows[1]
	assert.Equal(t, "1", day1[0])
	assert.Equal(t, "16", day1[1])
	assert.Equal(t, "1", day1[4], "primary equivalent of a full shift")
	assert.Equal(t, "satisfied", day1[13])

	// Days without a stored entry are exported as empty days.
	day3 := rows[3]
	assert.Equal(t, "0", day3[3])
}

func TestMonthlyExcel_NotComputableAsDash(t *testing.T) {
	// GIVEN: a month without any occupancy
	r := ppug.EvaluateMonth(ppug.MonthInput{
		Key: ppug.EntryKey{
			Station:  "ST-1",
			Period:   ppug.NewPeriod(2024, time.April),
			Category: ppug.CategoryPrimary,
			Shift:    ppug.ShiftNight,
		},
		Config:  ppug.DefaultConfiguration(ppug.CategoryPrimary, ppug.ShiftNight),
		Entries: []ppug.DayEntry{{Day: 1, Hours: 8}},
	})

	// WHEN
	data, err := MonthlyExcel(r)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	// THEN: required nurse equivalent and verdict render as "-"
	required, err := f.GetCellValue(DaysSheet, "M2")
	require.NoError(t, err)
	assert.Equal(t, NotComputable, required)

	verdictCell, err := f.GetCellValue(DaysSheet, "N2")
	require.NoError(t, err)
	assert.Equal(t, NotComputable, verdictCell)

	station, err := f.GetCellValue(SummarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "ST-1", station)

	period, err := f.GetCellValue(SummarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "2024-04", period)
}

func TestValue_NonFiniteIsNotComputable(t *testing.T) {
	assert.Equal(t, NotComputable, value(nil))
	assert.Equal(t, NotComputable, value(ppug.Float(math.Inf(1))))
	assert.Equal(t, NotComputable, value(ppug.Float(math.NaN())))
	assert.Equal(t, 1.2346, value(ppug.Float(1.23456)))
}
