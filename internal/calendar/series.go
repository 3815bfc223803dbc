package calendar

import (
	"fmt"

	"github.com/teambition/rrule-go"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RRuleWeekday maps the canonical weekday onto rrule's representation.
func RRuleWeekday(d models.Weekday) (rrule.Weekday, error) {
	if !d.Valid() {
		return rrule.Weekday{}, fmt.Errorf("%w: %d", ErrInvalidWeekday, int(d))
	}
	return rruleWeekdays[d], nil
}

// Series is a slot's weekly recurrence expressed as an RFC 5545 rule.
type Series struct {
	Slot     models.WeeklyTimeSlot
	Interval Interval
	First    Date
	Rule     *rrule.RRule
}

// RuleString returns the RRULE value without the DTSTART line.
func (s Series) RuleString() string {
	return s.Rule.OrigOptions.RRuleString()
}

// SeriesFor builds the recurrence of an active slot starting at its first
// occurrence on or after max(from, courseStart). A non-zero until bounds the
// series at the end of that civil day. The second return value is false when
// the slot never occurs.
func (a *Anchor) SeriesFor(slot models.WeeklyTimeSlot, courseStart, from, until Date) (Series, bool, error) {
	interval, err := ParseSlot(slot)
	if err != nil {
		return Series{}, false, err
	}
	if !slot.Active {
		return Series{}, false, nil
	}
	start := from
	if !courseStart.IsZero() {
		start = MaxDate(from, courseStart)
	}
	// Expand over one week locates the first occurrence with the same rules.
	firsts := Expand(slot, Date{}, start, start.AddDays(6))
	if len(firsts) == 0 {
		return Series{}, false, nil
	}
	first := firsts[0]
	if !until.IsZero() && first.After(until) {
		return Series{}, false, nil
	}

	wd, err := RRuleWeekday(slot.DayOfWeek)
	if err != nil {
		return Series{}, false, err
	}
	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{wd},
		Dtstart:   a.Instant(first, interval.Start),
	}
	if !until.IsZero() {
		opt.Until = a.EndOfDay(until)
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return Series{}, false, fmt.Errorf("build recurrence rule for slot %s: %w", slot.ID, err)
	}
	return Series{Slot: slot, Interval: interval, First: first, Rule: rule}, true, nil
}
