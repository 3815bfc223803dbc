package export

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const icsLocalLayout = "20060102T150405"

// ICSEvent is one VEVENT. A non-empty RRule turns it into a recurring series
// starting at Start; the value excludes the "RRULE:" prefix.
type ICSEvent struct {
	UID         string
	Summary     string
	Description string
	Categories  []string
	Start       time.Time
	End         time.Time
	RRule       string
}

// ICSCalendar is a VCALENDAR document. When Location is set, start and end
// times are written as local times with a TZID parameter so weekly rules stay
// on the intended weekday.
type ICSCalendar struct {
	Name      string
	ProductID string
	Location  *time.Location
	Stamp     time.Time
	Events    []ICSEvent
}

// ICSExporter renders iCalendar documents.
type ICSExporter struct{}

// NewICSExporter constructs an iCalendar exporter.
func NewICSExporter() *ICSExporter {
	return &ICSExporter{}
}

// ContentType of iCalendar documents.
func (e *ICSExporter) ContentType() string { return "text/calendar; charset=utf-8" }

// Extension of iCalendar documents.
func (e *ICSExporter) Extension() string { return "ics" }

// Render serialises the calendar.
func (e *ICSExporter) Render(doc ICSCalendar) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	productID := doc.ProductID
	if productID == "" {
		productID = "-//course-calendar-api//EN"
	}
	cal.SetProductId(productID)
	if doc.Name != "" {
		cal.SetXWRCalName(doc.Name)
	}
	stamp := doc.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	if doc.Location != nil {
		cal.SetXWRTimezone(doc.Location.String())
		addTimezone(cal, doc.Location, stamp)
	}

	for i, ev := range doc.Events {
		if ev.UID == "" {
			return nil, fmt.Errorf("ics event %d has no uid", i)
		}
		if ev.End.Before(ev.Start) {
			return nil, fmt.Errorf("ics event %s ends before it starts", ev.UID)
		}
		vevent := cal.AddEvent(ev.UID)
		vevent.SetDtStampTime(stamp)
		setTime(vevent, ics.ComponentPropertyDtStart, ev.Start, doc.Location)
		setTime(vevent, ics.ComponentPropertyDtEnd, ev.End, doc.Location)
		vevent.SetSummary(ev.Summary)
		if ev.Description != "" {
			vevent.SetDescription(ev.Description)
		}
		if len(ev.Categories) > 0 {
			vevent.AddProperty(ics.ComponentPropertyCategories, strings.Join(ev.Categories, ","))
		}
		if ev.RRule != "" {
			vevent.AddProperty(ics.ComponentPropertyRrule, strings.TrimPrefix(ev.RRule, "RRULE:"))
		}
	}

	return []byte(cal.Serialize()), nil
}

func setTime(vevent *ics.VEvent, prop ics.ComponentProperty, t time.Time, loc *time.Location) {
	if loc == nil {
		vevent.SetProperty(prop, t.UTC().Format(icsLocalLayout)+"Z")
		return
	}
	vevent.SetProperty(prop, t.In(loc).Format(icsLocalLayout), &ics.KeyValues{Key: "TZID", Value: []string{loc.String()}})
}

// addTimezone declares the TZID referenced by DTSTART/DTEND with a single
// STANDARD rule carrying the zone's current offset. Zones used here keep a
// fixed offset, so no DAYLIGHT rule is emitted.
func addTimezone(cal *ics.Calendar, loc *time.Location, at time.Time) {
	name, offset := at.In(loc).Zone()
	tz := cal.AddTimezone(loc.String())
	standard := tz.AddStandard()
	standard.SetProperty(ics.ComponentPropertyDtStart, "19700101T000000")
	standard.SetProperty(ics.ComponentProperty(ics.PropertyTzoffsetfrom), utcOffset(offset))
	standard.SetProperty(ics.ComponentProperty(ics.PropertyTzoffsetto), utcOffset(offset))
	standard.SetProperty(ics.ComponentProperty(ics.PropertyTzname), name)
}

// utcOffset formats seconds east of UTC as +HHMM.
func utcOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d%02d", sign, seconds/3600, seconds%3600/60)
}
