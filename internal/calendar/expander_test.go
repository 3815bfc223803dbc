package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

func mondaySlot() models.WeeklyTimeSlot {
	return models.WeeklyTimeSlot{ID: "slot-1", CourseID: "course-1", DayOfWeek: models.Monday, StartTime: "15:00", EndTime: "16:30", Active: true}
}

func dateStrings(dates []Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

func TestExpandHonoursCourseStart(t *testing.T) {
	dates := Expand(mondaySlot(), NewDate(2025, time.August, 5), NewDate(2025, time.August, 1), NewDate(2025, time.August, 31))
	assert.Equal(t, []string{"2025-08-11", "2025-08-18", "2025-08-25"}, dateStrings(dates))
}

func TestExpandWithoutCourseStart(t *testing.T) {
	dates := Expand(mondaySlot(), Date{}, NewDate(2025, time.August, 1), NewDate(2025, time.August, 31))
	assert.Equal(t, []string{"2025-08-04", "2025-08-11", "2025-08-18", "2025-08-25"}, dateStrings(dates))
}

func TestExpandCountMatchesWholeWeeks(t *testing.T) {
	from := NewDate(2025, time.September, 3)
	for weeks := 1; weeks <= 10; weeks++ {
		to := from.AddDays(7*weeks - 1)
		for _, day := range models.Weekdays() {
			slot := mondaySlot()
			slot.DayOfWeek = day
			assert.Len(t, Expand(slot, Date{}, from, to), weeks, "weeks=%d day=%s", weeks, day)
		}
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	from, to := NewDate(2025, time.January, 1), NewDate(2025, time.December, 31)
	first := Expand(mondaySlot(), Date{}, from, to)
	second := Expand(mondaySlot(), Date{}, from, to)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].Before(first[i]))
	}
}

func TestExpandEmptyCases(t *testing.T) {
	from, to := NewDate(2025, time.August, 1), NewDate(2025, time.August, 31)

	inactive := mondaySlot()
	inactive.Active = false
	assert.Empty(t, Expand(inactive, Date{}, from, to))

	assert.Empty(t, Expand(mondaySlot(), Date{}, to, from))

	invalid := mondaySlot()
	invalid.DayOfWeek = 9
	assert.Empty(t, Expand(invalid, Date{}, from, to))

	assert.Empty(t, Expand(mondaySlot(), NewDate(2025, time.September, 1), from, to))

	// A one-day window that is not a Monday.
	assert.Empty(t, Expand(mondaySlot(), Date{}, from, from))
}

func TestExpandAgreesWithRRule(t *testing.T) {
	anchor := DefaultAnchor()
	from, to := NewDate(2025, time.February, 11), NewDate(2025, time.July, 2)
	courseStart := NewDate(2025, time.March, 1)

	for _, day := range models.Weekdays() {
		slot := mondaySlot()
		slot.DayOfWeek = day
		wd, err := RRuleWeekday(day)
		require.NoError(t, err)

		effective := MaxDate(from, courseStart)
		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{wd},
			Dtstart:   anchor.StartOfDay(effective),
		})
		require.NoError(t, err)

		var want []string
		for _, occ := range rule.Between(anchor.StartOfDay(effective), anchor.EndOfDay(to), true) {
			want = append(want, anchor.DateOfInstant(occ).String())
		}
		assert.Equal(t, want, dateStrings(Expand(slot, courseStart, from, to)), "day=%s", day)
	}
}

func TestSeriesForAnchorsFirstOccurrence(t *testing.T) {
	anchor := DefaultAnchor()
	series, ok, err := anchor.SeriesFor(mondaySlot(), NewDate(2025, time.August, 5), NewDate(2025, time.August, 1), NewDate(2025, time.August, 31))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "2025-08-11", series.First.String())
	assert.Contains(t, series.RuleString(), "FREQ=WEEKLY")
	assert.Contains(t, series.RuleString(), "BYDAY=MO")

	occurrences := series.Rule.All()
	require.Len(t, occurrences, 3)
	assert.Equal(t, time.Date(2025, 8, 11, 7, 0, 0, 0, time.UTC), occurrences[0].UTC())

	inactive := mondaySlot()
	inactive.Active = false
	_, ok, err = anchor.SeriesFor(inactive, Date{}, NewDate(2025, time.August, 1), Date{})
	require.NoError(t, err)
	assert.False(t, ok)
}
