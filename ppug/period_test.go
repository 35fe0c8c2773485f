package ppug

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_DaysInMonth(t *testing.T) {
	tests := []struct {
		period Period
		want   int
	}{
		{NewPeriod(2024, time.February), 29},
		{NewPeriod(2025, time.February), 28},
		{NewPeriod(2025, time.April), 30},
		{NewPeriod(2025, time.December), 31},
		{NewPeriod(2000, time.February), 29},
		{NewPeriod(1900, time.February), 28},
	}
	for _, tt := range tests {
		t.Run(tt.period.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.period.DaysInMonth())
			assert.Len(t, EmptyEntries(tt.period), tt.want)
		})
	}
}

func TestPeriod_Navigation(t *testing.T) {
	dec := NewPeriod(2024, time.December)
	assert.Equal(t, NewPeriod(2025, time.January), dec.Next())
	assert.Equal(t, NewPeriod(2024, time.November), dec.Prev())
	assert.True(t, dec.Before(dec.Next()))
	assert.True(t, dec.After(dec.Prev()))
	assert.True(t, dec.BeforeOrEqual(dec))
	assert.False(t, dec.Contains(0))
	assert.False(t, dec.Contains(32))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2025-03")
	require.NoError(t, err)
	assert.Equal(t, NewPeriod(2025, time.March), p)

	_, err = ParsePeriod("2025-13")
	assert.True(t, errors.Is(err, ErrInvalidPeriod))

	assert.True(t, errors.Is(NewPeriod(2025, 0).Validate(), ErrInvalidPeriod))
}

func TestDayEntry_PauseAndValidation(t *testing.T) {
	h, m := ApplyPause(7, 45, 0, 30)
	assert.Equal(t, 8, h)
	assert.Equal(t, 15, m)

	e := DayEntry{Day: 1, Hours: 8, Minutes: 15, PauseMinutes: 30}
	nh, nm := e.NetTime()
	assert.Equal(t, 7, nh)
	assert.Equal(t, 45, nm)

	p := NewPeriod(2025, time.February)
	var dayErr *DayError
	require.True(t, errors.As(DayEntry{Day: 29}.Validate(p), &dayErr))
	assert.Equal(t, 29, dayErr.Day)
	assert.True(t, IsClientError(DayEntry{Day: 1, Minutes: 60}.Validate(p)))
	assert.NoError(t, DayEntry{Day: 28, Hours: 24}.Validate(p))
}
