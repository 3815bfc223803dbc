package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	// DefaultTimezone is the deployment's civil zone.
	DefaultTimezone = "Asia/Ulaanbaatar"

	defaultOffsetSeconds = 8 * 60 * 60
	dateLayout           = "2006-01-02"
)

// Date is a civil calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalises the parts, so NewDate(2025, 1, 32) is 2025-02-01.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf reads the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return DateOf(t), nil
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.midnightUTC().Format(dateLayout)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Weekday returns the day of week of the civil date.
func (d Date) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n))
}

// DaysUntil returns the number of days from d to other (negative if other is earlier).
func (d Date) DaysUntil(other Date) int {
	return int(other.midnightUTC().Sub(d.midnightUTC()).Hours() / 24)
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MaxDate returns the later of a and b.
func MaxDate(a, b Date) Date {
	if a.Before(b) {
		return b
	}
	return a
}

// Anchor converts between absolute instants and the civil calendar of one
// fixed zone. It is safe for concurrent use.
type Anchor struct {
	loc *time.Location
}

// NewAnchor loads the named IANA zone. An empty name selects DefaultTimezone.
func NewAnchor(name string) (*Anchor, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", name, err)
	}
	return &Anchor{loc: loc}, nil
}

// DefaultAnchor returns the deployment anchor. Falls back to a fixed UTC+8 zone
// when the zone database cannot be read.
func DefaultAnchor() *Anchor {
	a, err := NewAnchor(DefaultTimezone)
	if err != nil {
		return &Anchor{loc: time.FixedZone(DefaultTimezone, defaultOffsetSeconds)}
	}
	return a
}

// Location returns the anchored zone.
func (a *Anchor) Location() *time.Location {
	return a.loc
}

// ToCivil returns the civil date and time-of-day of an instant.
func (a *Anchor) ToCivil(instant time.Time) (Date, Clock) {
	local := instant.In(a.loc)
	return DateOf(local), Clock(local.Hour()*60 + local.Minute())
}

// DateOfInstant returns only the civil date of an instant.
func (a *Anchor) DateOfInstant(instant time.Time) Date {
	return DateOf(instant.In(a.loc))
}

// Today returns the civil date of now.
func (a *Anchor) Today(now time.Time) Date {
	return a.DateOfInstant(now)
}

// StartOfDay is the first instant of the civil date.
func (a *Anchor) StartOfDay(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, a.loc)
}

// EndOfDay is the last representable instant of the civil date.
func (a *Anchor) EndOfDay(d Date) time.Time {
	return a.StartOfDay(d.AddDays(1)).Add(-time.Nanosecond)
}

// Instant combines a civil date and time-of-day into an absolute instant.
func (a *Anchor) Instant(d Date, c Clock) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, a.loc)
}

// CivilDateRange lists every civil date touched by [start, end], in order.
// An inverted range yields nil.
func (a *Anchor) CivilDateRange(start, end time.Time) []Date {
	if end.Before(start) {
		return nil
	}
	first := a.DateOfInstant(start)
	last := a.DateOfInstant(end)
	out := make([]Date, 0, first.DaysUntil(last)+1)
	for d := first; !d.After(last); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}
