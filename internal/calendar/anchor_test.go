package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnchorToCivilCrossesMidnight(t *testing.T) {
	anchor := DefaultAnchor()

	date, clock := anchor.ToCivil(time.Date(2025, 8, 10, 16, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-08-11", date.String())
	assert.Equal(t, "00:00", clock.String())

	date, clock = anchor.ToCivil(time.Date(2025, 8, 10, 15, 59, 0, 0, time.UTC))
	assert.Equal(t, "2025-08-10", date.String())
	assert.Equal(t, "23:59", clock.String())
}

func TestAnchorDayBoundaries(t *testing.T) {
	anchor := DefaultAnchor()
	day := NewDate(2025, time.August, 31)

	start := anchor.StartOfDay(day)
	end := anchor.EndOfDay(day)
	assert.Equal(t, time.Date(2025, 8, 30, 16, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, day, anchor.DateOfInstant(end))
	assert.Equal(t, day.AddDays(1), anchor.DateOfInstant(end.Add(time.Nanosecond)))
}

func TestAnchorCivilDateRange(t *testing.T) {
	anchor := DefaultAnchor()

	dates := anchor.CivilDateRange(
		time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 3, 17, 0, 0, 0, time.UTC),
	)
	// 15:00Z is 23:00 local on the 1st, 17:00Z on the 3rd is already the 4th.
	require.Len(t, dates, 4)
	assert.Equal(t, "2025-08-01", dates[0].String())
	assert.Equal(t, "2025-08-04", dates[3].String())

	assert.Empty(t, anchor.CivilDateRange(time.Now(), time.Now().Add(-time.Hour)))
}

func TestAnchorInstantRoundTrip(t *testing.T) {
	anchor := DefaultAnchor()
	day := NewDate(2025, time.March, 3)
	clock, err := ParseClock("09:30")
	require.NoError(t, err)

	instant := anchor.Instant(day, clock)
	assert.Equal(t, time.Date(2025, 3, 3, 1, 30, 0, 0, time.UTC), instant.UTC())

	gotDate, gotClock := anchor.ToCivil(instant)
	assert.Equal(t, day, gotDate)
	assert.Equal(t, clock, gotClock)
}

func TestNewAnchorRejectsUnknownZone(t *testing.T) {
	_, err := NewAnchor("Mars/Olympus_Mons")
	assert.Error(t, err)

	anchor, err := NewAnchor("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, anchor.Location().String())
}

func TestDateArithmetic(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)

	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, 2, d.DaysUntil(d.AddDays(2)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.Equal(t, 0, d.Compare(NewDate(2024, time.February, 28)))
	assert.Equal(t, time.Wednesday, d.Weekday())

	_, err = ParseDate("2024-13-01")
	assert.Error(t, err)
}
