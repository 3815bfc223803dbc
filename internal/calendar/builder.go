package calendar

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

// BuildInput is everything the builder needs for one viewer and window.
type BuildInput struct {
	Courses     []models.CourseSchedule
	Assignments []models.Assignment
	// Enrollments are the viewer's own enrollments; only ACTIVE ones count.
	Enrollments []models.Enrollment
	From        Date
	To          Date
	// DueFrom and DueTo bound deadlines by instant. Zero values mean the
	// civil day edges of From and To.
	DueFrom time.Time
	DueTo   time.Time
}

// BuildResult is the ordered event list plus counters for observability.
type BuildResult struct {
	Events       []models.CalendarEvent
	SkippedSlots int
	Classes      int
	Deadlines    int
}

// Builder merges expanded class occurrences and assignment deadlines into one
// ordered, viewer-relative event list. It holds no per-request state.
type Builder struct {
	anchor *Anchor
	logger *zap.Logger
}

// NewBuilder constructs a builder bound to the deployment anchor.
func NewBuilder(anchor *Anchor, logger *zap.Logger) *Builder {
	if anchor == nil {
		anchor = DefaultAnchor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{anchor: anchor, logger: logger}
}

// Anchor exposes the builder's timezone anchor.
func (b *Builder) Anchor() *Anchor {
	return b.anchor
}

// Build computes the calendar for the input window. It never fails: slots
// with integrity problems are skipped and logged, assignments whose course is
// not part of the input are omitted.
func (b *Builder) Build(in BuildInput) BuildResult {
	var result BuildResult
	if in.To.Before(in.From) {
		result.Events = []models.CalendarEvent{}
		return result
	}

	enrolled := activeCourses(in.Enrollments)
	courses := make(map[string]*models.CourseSchedule, len(in.Courses))
	events := make([]models.CalendarEvent, 0)

	for i := range in.Courses {
		course := &in.Courses[i]
		courses[course.ID] = course
		courseStart := CourseStartDate(course.Course)

		for _, slot := range course.Slots {
			interval, err := ParseSlot(slot)
			if err != nil {
				result.SkippedSlots++
				b.logger.Warn("skipping invalid weekly slot",
					zap.String("slot_id", slot.ID),
					zap.String("course_id", course.ID),
					zap.Int("day_of_week", int(slot.DayOfWeek)),
					zap.String("start_time", slot.StartTime),
					zap.String("end_time", slot.EndTime),
					zap.Error(err),
				)
				continue
			}
			for _, date := range Expand(slot, courseStart, in.From, in.To) {
				events = append(events, models.CalendarEvent{
					ID:          ClassEventID(slot.ID, date),
					Title:       course.Title,
					CourseID:    course.ID,
					CourseTitle: course.Title,
					Instructor:  course.InstructorName,
					Type:        models.CalendarEventClass,
					Date:        date.String(),
					StartTime:   interval.Start.String(),
					EndTime:     interval.End.String(),
					IsEnrolled:  enrolled[course.ID],
				})
				result.Classes++
			}
		}
	}

	dueFrom, dueTo := in.DueFrom, in.DueTo
	if dueFrom.IsZero() {
		dueFrom = b.anchor.StartOfDay(in.From)
	}
	if dueTo.IsZero() {
		dueTo = b.anchor.EndOfDay(in.To)
	}
	for _, assignment := range in.Assignments {
		if !assignment.IsPublished || assignment.DueDate == nil {
			continue
		}
		course, ok := courses[assignment.CourseID]
		if !ok {
			continue
		}
		due := *assignment.DueDate
		if due.Before(dueFrom) || due.After(dueTo) {
			continue
		}
		date, clock := b.anchor.ToCivil(due)
		events = append(events, models.CalendarEvent{
			ID:          AssignmentEventID(assignment.ID),
			Title:       assignment.Title,
			CourseID:    course.ID,
			CourseTitle: course.Title,
			Instructor:  course.InstructorName,
			Type:        models.CalendarEventAssignment,
			Date:        date.String(),
			StartTime:   clock.String(),
			EndTime:     clock.String(),
			IsEnrolled:  enrolled[course.ID],
		})
		result.Deadlines++
	}

	SortEvents(events)
	result.Events = events
	return result
}

// SortEvents orders by date, start time, type (CLASS first), title, then id.
func SortEvents(events []models.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		if a.Type != b.Type {
			return a.Type.Rank() < b.Type.Rank()
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
}

// ClassEventID is stable for a (slot, date) pair.
func ClassEventID(slotID string, date Date) string {
	return "class:" + slotID + ":" + date.String()
}

// AssignmentEventID derives the event id from the assignment id.
func AssignmentEventID(assignmentID string) string {
	return "assignment:" + assignmentID
}

func activeCourses(enrollments []models.Enrollment) map[string]bool {
	out := make(map[string]bool, len(enrollments))
	for _, e := range enrollments {
		if e.Status == models.EnrollmentStatusActive {
			out[e.CourseID] = true
		}
	}
	return out
}

// CourseStartDate reads the stored DATE column as a civil date without zone
// conversion; PostgreSQL DATE values carry no zone.
func CourseStartDate(course models.Course) Date {
	if course.StartDate == nil {
		return Date{}
	}
	return DateOf(*course.StartDate)
}
