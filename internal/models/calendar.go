package models

// CalendarEventType discriminates computed calendar entries.
type CalendarEventType string

// Calendar event types.
const (
	CalendarEventClass      CalendarEventType = "CLASS"
	CalendarEventAssignment CalendarEventType = "ASSIGNMENT"
)

// Rank orders event types within the same date and start time.
func (t CalendarEventType) Rank() int {
	switch t {
	case CalendarEventClass:
		return 0
	case CalendarEventAssignment:
		return 1
	default:
		return 2
	}
}

// CalendarEvent is a computed, viewer-relative calendar entry. It is never persisted.
type CalendarEvent struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	CourseID    string            `json:"courseId"`
	CourseTitle string            `json:"courseTitle"`
	Instructor  string            `json:"instructor"`
	Type        CalendarEventType `json:"type"`
	Date        string            `json:"date"`
	StartTime   string            `json:"startTime"`
	EndTime     string            `json:"endTime"`
	IsEnrolled  bool              `json:"isEnrolled"`
}
