package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday is the canonical day-of-week encoding used across the service.
// Sunday is 0 and Saturday is 6, matching time.Weekday.
type Weekday int

// Days of the week.
const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// weekdayNames is the single name table for Weekday. Do not re-declare it.
var weekdayNames = [7]string{"SUNDAY", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY"}

// Weekdays lists every valid weekday in numeric order.
func Weekdays() []Weekday {
	return []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}
}

// Valid reports whether d is within 0..6.
func (d Weekday) Valid() bool {
	return d >= Sunday && d <= Saturday
}

// String returns the upper-case weekday name, or WEEKDAY(n) for invalid values.
func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("WEEKDAY(%d)", int(d))
	}
	return weekdayNames[d]
}

// Short returns the three letter abbreviation, e.g. MON.
func (d Weekday) Short() string {
	if !d.Valid() {
		return d.String()
	}
	return weekdayNames[d][:3]
}

// Time converts to the standard library weekday.
func (d Weekday) Time() time.Weekday {
	return time.Weekday(d)
}

// WeekdayOf converts a standard library weekday.
func WeekdayOf(wd time.Weekday) Weekday {
	return Weekday(wd)
}

// ParseWeekday accepts a weekday name (full or three letters, any case) or a
// decimal number 0..6.
func ParseWeekday(raw string) (Weekday, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("empty weekday")
	}
	if n, err := strconv.Atoi(value); err == nil {
		d := Weekday(n)
		if !d.Valid() {
			return 0, fmt.Errorf("weekday %d out of range 0-6", n)
		}
		return d, nil
	}
	for i, name := range weekdayNames {
		if value == name || value == name[:3] {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}

// MarshalJSON encodes the weekday as its integer value.
func (d Weekday) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(d))
}

// UnmarshalJSON accepts either an integer or a weekday name.
func (d *Weekday) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*d = Weekday(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("weekday must be a number or a name")
	}
	parsed, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalText parses a weekday name or number.
func (d *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
