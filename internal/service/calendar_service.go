package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-calendar-api/internal/calendar"
	"github.com/noah-isme/course-calendar-api/internal/dto"
	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
)

type calendarCourseReader interface {
	ListVisible(ctx context.Context, viewer models.Viewer) ([]models.Course, error)
}

type calendarSlotReader interface {
	ListByCourseIDs(ctx context.Context, courseIDs []string) (map[string][]models.WeeklyTimeSlot, error)
}

type calendarAssignmentReader interface {
	ListDueBetween(ctx context.Context, courseIDs []string, from, to time.Time) ([]models.Assignment, error)
}

type calendarEnrollmentReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
}

// CalendarConfig tunes the calendar query surface.
type CalendarConfig struct {
	MaxWindowDays int
	QueryTimeout  time.Duration
	CacheTTL      time.Duration
}

// CalendarService computes viewer-scoped calendar windows.
type CalendarService struct {
	courses     calendarCourseReader
	slots       calendarSlotReader
	assignments calendarAssignmentReader
	enrollments calendarEnrollmentReader
	builder     *calendar.Builder
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         CalendarConfig
	now         func() time.Time
}

// NewCalendarService wires the calendar service.
func NewCalendarService(
	courses calendarCourseReader,
	slots calendarSlotReader,
	assignments calendarAssignmentReader,
	enrollments calendarEnrollmentReader,
	builder *calendar.Builder,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg CalendarConfig,
) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = calendar.NewBuilder(nil, logger)
	}
	if cfg.MaxWindowDays <= 0 {
		cfg.MaxWindowDays = 366
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	return &CalendarService{
		courses:     courses,
		slots:       slots,
		assignments: assignments,
		enrollments: enrollments,
		builder:     builder,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Anchor returns the timezone anchor all conversions go through.
func (s *CalendarService) Anchor() *calendar.Anchor {
	return s.builder.Anchor()
}

// CalendarWindow is a resolved query window. From and To are the inclusive
// civil dates classes expand over; Start and End are the instants deadlines
// are bounded by. A civil-date bound maps to the edge of its civil day, an
// RFC3339 bound is kept exactly.
type CalendarWindow struct {
	From  calendar.Date
	To    calendar.Date
	Start time.Time
	End   time.Time
}

// Empty reports whether the window selects nothing.
func (w CalendarWindow) Empty() bool {
	return w.To.Before(w.From) || w.End.Before(w.Start)
}

// CivilWindow spans whole civil days from..to.
func (s *CalendarService) CivilWindow(from, to calendar.Date) CalendarWindow {
	anchor := s.Anchor()
	return CalendarWindow{From: from, To: to, Start: anchor.StartOfDay(from), End: anchor.EndOfDay(to)}
}

// ResolveWindow turns raw query bounds into an inclusive civil window. Empty
// bounds default to the civil month of the other bound, or of today. An
// inverted window is returned as is; callers get an empty event list for it.
func (s *CalendarService) ResolveWindow(query dto.CalendarQuery) (calendar.Date, calendar.Date, error) {
	w, err := s.Window(query)
	if err != nil {
		return calendar.Date{}, calendar.Date{}, err
	}
	return w.From, w.To, nil
}

// Window resolves the query like ResolveWindow and keeps exact instants for
// RFC3339 bounds.
func (s *CalendarService) Window(query dto.CalendarQuery) (CalendarWindow, error) {
	anchor := s.Anchor()
	from, start, err := s.parseBound(query.Start, "start")
	if err != nil {
		return CalendarWindow{}, err
	}
	to, end, err := s.parseBound(query.End, "end")
	if err != nil {
		return CalendarWindow{}, err
	}

	switch {
	case from.IsZero() && to.IsZero():
		today := anchor.Today(s.now())
		from, to = monthBounds(today)
	case from.IsZero():
		from, _ = monthBounds(to)
	case to.IsZero():
		_, to = monthBounds(from)
	}

	if !to.Before(from) && from.DaysUntil(to)+1 > s.cfg.MaxWindowDays {
		return CalendarWindow{}, appErrors.Clone(appErrors.ErrWindowTooWide,
			"calendar window exceeds "+strconv.Itoa(s.cfg.MaxWindowDays)+" days")
	}

	w := s.CivilWindow(from, to)
	if !start.IsZero() {
		w.Start = start
	}
	if !end.IsZero() {
		w.End = end
	}
	return w, nil
}

// parseBound returns the civil date of a bound and, for RFC3339 input, the
// exact instant.
func (s *CalendarService) parseBound(raw, field string) (calendar.Date, time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return calendar.Date{}, time.Time{}, nil
	}
	if d, err := calendar.ParseDate(value); err == nil {
		return d, time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return s.Anchor().DateOfInstant(t), t, nil
	}
	return calendar.Date{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, field+" must be YYYY-MM-DD or RFC3339")
}

func monthBounds(d calendar.Date) (calendar.Date, calendar.Date) {
	first := calendar.NewDate(d.Year, d.Month, 1)
	last := calendar.NewDate(d.Year, d.Month+1, 0)
	return first, last
}

// Events returns the viewer's calendar for the query window.
func (s *CalendarService) Events(ctx context.Context, viewer models.Viewer, query dto.CalendarQuery) (*dto.CalendarView, error) {
	w, err := s.Window(query)
	if err != nil {
		return nil, err
	}
	return s.EventsBetween(ctx, viewer, w)
}

// EventsBetween returns the viewer's calendar for an already resolved window.
func (s *CalendarService) EventsBetween(ctx context.Context, viewer models.Viewer, w CalendarWindow) (*dto.CalendarView, error) {
	view := &dto.CalendarView{
		From:     w.From.String(),
		To:       w.To.String(),
		Timezone: s.Anchor().Location().String(),
		Events:   []models.CalendarEvent{},
	}
	if w.Empty() {
		return view, nil
	}

	key := CalendarKey(viewer.UserID, string(viewer.Role),
		w.Start.UTC().Format(time.RFC3339Nano), w.End.UTC().Format(time.RFC3339Nano))
	var cached []models.CalendarEvent
	if s.cache.Get(ctx, key, &cached) {
		if cached != nil {
			view.Events = cached
		}
		view.CacheHit = true
		return view, nil
	}

	start := time.Now()
	input, err := s.Load(ctx, viewer, w)
	if err != nil {
		return nil, err
	}
	result := s.builder.Build(input)
	s.metrics.ObserveCalendarBuild(result.Classes, result.Deadlines, result.SkippedSlots, time.Since(start))
	if result.SkippedSlots > 0 {
		s.logger.Warn("calendar built with skipped slots",
			zap.String("user_id", viewer.UserID),
			zap.Int("skipped", result.SkippedSlots),
		)
	}

	view.Events = result.Events
	s.cache.Set(ctx, key, result.Events, s.cfg.CacheTTL)
	return view, nil
}

// Load fetches the builder input for the viewer: visible courses with their
// slots, deadlines inside [w.Start, w.End] and the viewer's enrollments.
// Fetches are bounded by the configured query timeout.
func (s *CalendarService) Load(ctx context.Context, viewer models.Viewer, w CalendarWindow) (calendar.BuildInput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	schedules, enrollments, err := s.schedules(ctx, viewer)
	if err != nil {
		return calendar.BuildInput{}, err
	}

	input := calendar.BuildInput{
		Courses:     schedules,
		Enrollments: enrollments,
		From:        w.From,
		To:          w.To,
		DueFrom:     w.Start,
		DueTo:       w.End,
	}
	if w.Empty() || len(schedules) == 0 {
		return input, nil
	}

	assignments, err := s.assignments.ListDueBetween(ctx, courseIDs(schedules), w.Start, w.End)
	if err != nil {
		return calendar.BuildInput{}, s.fetchError(err, "failed to load assignments")
	}
	input.Assignments = assignments
	return input, nil
}

// Schedules returns the viewer's visible courses with their slots and the
// viewer's enrollments.
func (s *CalendarService) Schedules(ctx context.Context, viewer models.Viewer) ([]models.CourseSchedule, []models.Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	return s.schedules(ctx, viewer)
}

func (s *CalendarService) schedules(ctx context.Context, viewer models.Viewer) ([]models.CourseSchedule, []models.Enrollment, error) {
	if viewer.UserID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	courses, err := s.courses.ListVisible(ctx, viewer)
	if err != nil {
		return nil, nil, s.fetchError(err, "failed to load courses")
	}
	enrollments, err := s.enrollments.ListByUser(ctx, viewer.UserID)
	if err != nil {
		return nil, nil, s.fetchError(err, "failed to load enrollments")
	}
	if len(courses) == 0 {
		return []models.CourseSchedule{}, enrollments, nil
	}

	ids := make([]string, len(courses))
	for i, course := range courses {
		ids[i] = course.ID
	}
	slots, err := s.slots.ListByCourseIDs(ctx, ids)
	if err != nil {
		return nil, nil, s.fetchError(err, "failed to load weekly slots")
	}

	schedules := make([]models.CourseSchedule, len(courses))
	for i, course := range courses {
		schedules[i] = models.CourseSchedule{Course: course, Slots: slots[course.ID]}
	}
	return schedules, enrollments, nil
}

// Deadlines returns published assignments of the courses due in [from, to].
func (s *CalendarService) Deadlines(ctx context.Context, schedules []models.CourseSchedule, from, to time.Time) ([]models.Assignment, error) {
	if len(schedules) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	assignments, err := s.assignments.ListDueBetween(ctx, courseIDs(schedules), from, to)
	if err != nil {
		return nil, s.fetchError(err, "failed to load assignments")
	}
	return assignments, nil
}

func (s *CalendarService) fetchError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("calendar query timed out", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "calendar query timed out")
	}
	s.logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func courseIDs(schedules []models.CourseSchedule) []string {
	ids := make([]string, len(schedules))
	for i, schedule := range schedules {
		ids[i] = schedule.ID
	}
	return ids
}
