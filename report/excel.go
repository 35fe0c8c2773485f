// Package report renders monthly PpUG reports as Excel workbooks.
package report

import (
	"bytes"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/staffing-engine/ppug"
)

const (
	DaysSheet    = "Days"
	SummarySheet = "Summary"

	// NotComputable is shown for values that could not be derived.
	NotComputable = "-"
)

// DayHeader is the header row of the day sheet.
var DayHeader = []string{
	"Day",
	"Hours",
	"Minutes",
	"Hours (decimal)",
	"Primary Equivalent",
	"Combined Equivalent",
	"Substitute Equivalent",
	"Creditable Substitute Hours",
	"Substitute Hours Logged",
	"Usable Substitute Hours",
	"Examined Nurse Equivalent",
	"Bed Occupancy",
	"Required Nurse Equivalent",
	"PpUG",
	"PpUG (monthly fallback)",
}

// MonthlyExcel writes the day series and the summary of a report into a
// workbook and returns its bytes.
func MonthlyExcel(r ppug.MonthlyReport) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(DaysSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(f, DaysSheet, 1, toAny(DayHeader)); err != nil {
		f.Close()
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(DayHeader), 1)
	if err := f.SetCellStyle(DaysSheet, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(DaysSheet, "B", lastColumn(len(DayHeader)), 16); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, d := range r.Days {
		row := []any{
			d.Day,
			d.Hours,
			d.Minutes,
			round(d.HoursDecimal),
			value(d.PrimaryEquivalent),
			value(d.CombinedEquivalent),
			value(d.SubstituteEquivalent),
			value(d.CreditableSubstituteHours),
			value(d.SubstituteHours),
			value(d.UsableSubstituteHours),
			value(d.ExaminedNurseEquivalent),
			value(d.Occupancy),
			value(d.RequiredNurseEquivalent),
			verdict(d.Verdict),
			verdict(d.FallbackVerdict),
		}
		if err := writeRow(f, DaysSheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := f.SetPanes(DaysSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	if err := writeSummary(f, r, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, r ppug.MonthlyReport, headerStyle int) error {
	s := r.Summary
	rows := [][]any{
		{"Station", string(r.Key.Station)},
		{"Period", r.Key.Period.String()},
		{"Category", string(r.Key.Category)},
		{"Shift", string(r.Key.Shift)},
		{"Shift Hours", r.Config.ShiftHours},
		{"Substitution Base Factor", value(r.Config.SubstitutionBaseFactor)},
		{"PpUG Ratio Base", r.Config.PPRatioBase},
		{"Total Hours", round(s.TotalHours)},
		{"Average Hours per Day", value(s.AverageHoursPerDay)},
		{"Average Primary Equivalent", value(s.AveragePrimaryEquivalent)},
		{"Average Required Nurse Equivalent", value(s.AverageRequiredNurseEquivalent)},
		{"Delta Required vs Actual", value(s.DeltaRequiredVsActual)},
		{"Bed Occupancy Average", value(s.OccupancyAverage)},
		{"Days with Occupancy", s.DaysWithOccupancy},
		{"Patient to Nurse Ratio", value(s.PatientToNurseRatio)},
		{"Days not Satisfied", s.CountDaysNotSatisfied},
		{"Days not Satisfied (monthly fallback)", s.CountDaysNotSatisfiedFallback},
		{"Percent Satisfied", round(s.PercentSatisfied)},
		{"Percent Satisfied (month length)", round(s.PercentSatisfiedOfMonth)},
		{"Average Usable Substitute Hours", value(s.AverageUsableSubstituteHours)},
		{"Average Usable Substitute Shifts", value(s.AverageUsableSubstituteShifts)},
	}
	for i, row := range rows {
		if err := writeRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), headerStyle); err != nil {
		return fmt.Errorf("failed to set summary style: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "A", 38)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func lastColumn(n int) string {
	col, _ := excelize.ColumnNumberToName(n)
	return col
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func value(v *float64) any {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return NotComputable
	}
	return round(*v)
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}

func verdict(v ppug.Verdict) string {
	switch v {
	case ppug.VerdictSatisfied:
		return "satisfied"
	case ppug.VerdictNotSatisfied:
		return "not satisfied"
	default:
		return NotComputable
	}
}
