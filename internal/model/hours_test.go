package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"09:00", 540, false},
		{"9:30", 570, false},
		{"17:00:00", 1020, false},
		{"24:00", EndOfDay, false},
		{"00:00", 0, false},
		{"24:30", 0, true},
		{"10:60", 0, true},
		{"10:5", 0, true},
		{"ten:00", 0, true},
		{"1000", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClock_String(t *testing.T) {
	assert.Equal(t, "09:05", Clock(545).String())
	assert.Equal(t, "16:30", Clock(990).String())
}

func TestEndTimeFor(t *testing.T) {
	end, err := EndTimeFor("10:00", 45)
	require.NoError(t, err)
	assert.Equal(t, "10:45", end)

	_, err = EndTimeFor("23:30", 45)
	assert.Error(t, err)

	_, err = EndTimeFor("10:00", 0)
	assert.Error(t, err)
}

func TestWeekdayOf_SundayIsZero(t *testing.T) {
	// 2026-01-18 is a Sunday.
	assert.Equal(t, Sunday, WeekdayOf(date(2026, 1, 18)))
	assert.Equal(t, Monday, WeekdayOf(date(2026, 1, 19)))
	assert.Equal(t, Saturday, WeekdayOf(date(2026, 1, 24)))
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in   string
		want Weekday
	}{
		{"monday", Monday},
		{"Sun", Sunday},
		{"1", Monday},
		{"7", Sunday},
		{"6", Saturday},
	}
	for _, tt := range tests {
		got, err := ParseWeekday(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseWeekday("0")
	assert.Error(t, err)
	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}

func TestOperatingHours_Validate(t *testing.T) {
	assert.NoError(t, OperatingHours{Weekday: Monday, IsOpen: true, OpenTime: "09:00", CloseTime: "17:00"}.Validate())
	assert.NoError(t, OperatingHours{Weekday: Sunday, IsOpen: false, OpenTime: "garbage"}.Validate())
	assert.Error(t, OperatingHours{Weekday: Monday, IsOpen: true, OpenTime: "17:00", CloseTime: "09:00"}.Validate())
	assert.Error(t, OperatingHours{Weekday: Monday, IsOpen: true, OpenTime: "9", CloseTime: "17:00"}.Validate())
	assert.Error(t, OperatingHours{Weekday: 9}.Validate())
}

func TestWeeklyHours_For(t *testing.T) {
	w := NewWeeklyHours([]OperatingHours{
		{Weekday: Monday, IsOpen: true, OpenTime: "09:00", CloseTime: "17:00"},
	})

	h, ok := w.For(date(2026, 1, 19))
	require.True(t, ok)
	assert.Equal(t, "09:00", h.OpenTime)

	_, ok = w.For(date(2026, 1, 20))
	assert.False(t, ok)
}

func TestSameDay(t *testing.T) {
	assert.True(t, SameDay(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)))
	assert.False(t, SameDay(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)))
}
