package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		months int
		anchor int
		want   time.Time
	}{
		{"same day next month", Date(2024, time.January, 15), 1, 0, Date(2024, time.February, 15)},
		{"jan 31 clamps to leap feb", Date(2024, time.January, 31), 1, 0, Date(2024, time.February, 29)},
		{"jan 31 clamps to feb", Date(2023, time.January, 31), 1, 0, Date(2023, time.February, 28)},
		{"anchor restores day after short month", Date(2024, time.February, 29), 1, 31, Date(2024, time.March, 31)},
		{"anchor clamps to 30 day month", Date(2024, time.March, 31), 1, 31, Date(2024, time.April, 30)},
		{"crosses year", Date(2024, time.November, 15), 3, 0, Date(2025, time.February, 15)},
		{"eleven months", Date(2024, time.January, 15), 11, 0, Date(2024, time.December, 15)},
		{"zero months", Date(2024, time.May, 31), 0, 0, Date(2024, time.May, 31)},
		{"backwards", Date(2024, time.March, 31), -1, 0, Date(2024, time.February, 29)},
		{"backwards over year", Date(2024, time.January, 10), -13, 0, Date(2022, time.December, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddMonths(tt.start, tt.months, tt.anchor)
			assert.True(t, tt.want.Equal(got), "AddMonths(%s, %d, %d) = %s; want %s",
				Format(tt.start), tt.months, tt.anchor, Format(got), Format(tt.want))
		})
	}
}

func TestAddMonthsDiffersFromAddDate(t *testing.T) {
	start := Date(2023, time.January, 31)
	assert.Equal(t, time.March, start.AddDate(0, 1, 0).Month())
	assert.Equal(t, time.February, AddMonths(start, 1, 0).Month())
}

func TestDaysBetween(t *testing.T) {
	due := Date(2024, time.March, 1)

	assert.Equal(t, 0, DaysBetween(due, due))
	assert.Equal(t, 0, DaysBetween(due, due.Add(23*time.Hour)))
	assert.Equal(t, 1, DaysBetween(due, due.Add(24*time.Hour)))
	assert.Equal(t, 10, DaysBetween(due, Date(2024, time.March, 11).Add(9*time.Hour)))
	assert.Equal(t, -1, DaysBetween(due, due.Add(-time.Hour)))
}

func TestParseAndFormat(t *testing.T) {
	d, err := Parse("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, Date(2024, time.January, 15), d)
	assert.Equal(t, "2024-01-15", Format(d))

	_, err = Parse("15/01/2024")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	ts := time.Date(2024, time.June, 3, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, Date(2024, time.June, 3), Truncate(ts))
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 31, DaysIn(2024, time.December))
}
