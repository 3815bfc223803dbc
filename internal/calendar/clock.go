package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

// Data integrity errors for stored slots. All of them wrap ErrDataIntegrity.
var (
	ErrDataIntegrity   = errors.New("data integrity")
	ErrInvalidWeekday  = fmt.Errorf("%w: day of week out of range", ErrDataIntegrity)
	ErrInvalidClock    = fmt.Errorf("%w: malformed time of day", ErrDataIntegrity)
	ErrInvalidInterval = fmt.Errorf("%w: start time must be before end time", ErrDataIntegrity)
)

// Clock is a civil time-of-day in minutes after midnight.
type Clock int

// ParseClock parses a zero-padded 24h "HH:MM" string.
func ParseClock(raw string) (Clock, error) {
	value := strings.TrimSpace(raw)
	if len(value) != 5 || value[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	h, err := strconv.Atoi(value[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	m, err := strconv.Atoi(value[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return Clock(h*60 + m), nil
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// String formats as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Interval is a parsed, validated slot interval.
type Interval struct {
	Day   models.Weekday
	Start Clock
	End   Clock
}

// ParseSlot validates a stored or proposed slot and returns its interval.
func ParseSlot(slot models.WeeklyTimeSlot) (Interval, error) {
	if !slot.DayOfWeek.Valid() {
		return Interval{}, fmt.Errorf("%w: %d", ErrInvalidWeekday, int(slot.DayOfWeek))
	}
	start, err := ParseClock(slot.StartTime)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClock(slot.EndTime)
	if err != nil {
		return Interval{}, err
	}
	if start >= end {
		return Interval{}, fmt.Errorf("%w: %s-%s", ErrInvalidInterval, slot.StartTime, slot.EndTime)
	}
	return Interval{Day: slot.DayOfWeek, Start: start, End: end}, nil
}
