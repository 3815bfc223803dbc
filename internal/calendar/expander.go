package calendar

import (
	"github.com/noah-isme/course-calendar-api/internal/models"
)

// Expand returns the civil dates inside [from, to] on which slot occurs.
// Occurrences before courseStart are dropped; a zero courseStart means the
// course has no start restriction. Inactive slots, invalid weekdays and
// inverted windows produce nil. The result is strictly increasing.
func Expand(slot models.WeeklyTimeSlot, courseStart, from, to Date) []Date {
	if !slot.Active || !slot.DayOfWeek.Valid() {
		return nil
	}
	start := from
	if !courseStart.IsZero() {
		start = MaxDate(from, courseStart)
	}
	if to.Before(start) {
		return nil
	}

	offset := (int(slot.DayOfWeek.Time()) - int(start.Weekday()) + 7) % 7
	first := start.AddDays(offset)
	if first.After(to) {
		return nil
	}

	out := make([]Date, 0, first.DaysUntil(to)/7+1)
	for d := first; !d.After(to); d = d.AddDays(7) {
		out = append(out, d)
	}
	return out
}
