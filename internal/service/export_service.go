package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-calendar-api/internal/calendar"
	"github.com/noah-isme/course-calendar-api/internal/dto"
	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/export"
)

const (
	formatICS     = "ics"
	formatICSFeed = "ics_feed"
	icsUIDDomain  = "course-calendar"
)

type calendarSource interface {
	Events(ctx context.Context, viewer models.Viewer, query dto.CalendarQuery) (*dto.CalendarView, error)
	Schedules(ctx context.Context, viewer models.Viewer) ([]models.CourseSchedule, []models.Enrollment, error)
	Deadlines(ctx context.Context, schedules []models.CourseSchedule, from, to time.Time) ([]models.Assignment, error)
	Anchor() *calendar.Anchor
}

type feedTokenIssuer interface {
	IssueFeedToken(viewer models.Viewer) (string, time.Time, error)
}

// ExportConfig tunes downloads and subscription feeds.
type ExportConfig struct {
	APIPrefix      string
	FeedName       string
	FeedPastDays   int
	FeedFutureDays int
}

// ExportService renders calendar windows as downloads and subscription feeds.
type ExportService struct {
	calendars calendarSource
	tokens    feedTokenIssuer
	ics       *export.ICSExporter
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(calendars calendarSource, tokens feedTokenIssuer, metrics *MetricsService, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.FeedName == "" {
		cfg.FeedName = "Course Calendar"
	}
	if cfg.FeedPastDays < 0 {
		cfg.FeedPastDays = 0
	}
	if cfg.FeedFutureDays <= 0 {
		cfg.FeedFutureDays = 180
	}
	return &ExportService{
		calendars: calendars,
		tokens:    tokens,
		ics:       export.NewICSExporter(),
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Export renders the viewer's calendar window in the requested format. The
// tabular formats share one dataset; ics writes one VEVENT per occurrence.
func (s *ExportService) Export(ctx context.Context, viewer models.Viewer, query dto.CalendarQuery, format string) (*dto.ExportFile, error) {
	normalized := strings.ToLower(strings.TrimSpace(format))
	var renderer export.Renderer
	if normalized != formatICS {
		parsed, err := export.ParseFormat(normalized)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		renderer, err = export.RendererFor(parsed)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		normalized = string(parsed)
	}

	view, err := s.calendars.Events(ctx, viewer, query)
	if err != nil {
		return nil, err
	}

	var (
		body        []byte
		contentType string
		extension   string
	)
	if renderer == nil {
		body, err = s.ics.Render(s.occurrenceCalendar(view))
		contentType, extension = s.ics.ContentType(), s.ics.Extension()
	} else {
		body, err = renderer.Render(eventDataset(view))
		contentType, extension = renderer.ContentType(), renderer.Extension()
	}
	if err != nil {
		s.logger.Error("failed to render calendar export", zap.String("format", normalized), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render calendar export")
	}

	s.metrics.RecordExport(normalized)
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("calendar_%s_%s.%s", view.From, view.To, extension),
		ContentType: contentType,
		Body:        body,
	}, nil
}

// Feed renders the viewer's subscription feed: one weekly series per active
// slot plus a VEVENT per published deadline, over a window around today.
func (s *ExportService) Feed(ctx context.Context, viewer models.Viewer) (*dto.ExportFile, error) {
	anchor := s.calendars.Anchor()
	today := anchor.Today(s.now())
	from := today.AddDays(-s.cfg.FeedPastDays)
	until := today.AddDays(s.cfg.FeedFutureDays)

	schedules, _, err := s.calendars.Schedules(ctx, viewer)
	if err != nil {
		return nil, err
	}
	deadlines, err := s.calendars.Deadlines(ctx, schedules, anchor.StartOfDay(from), anchor.EndOfDay(until))
	if err != nil {
		return nil, err
	}

	doc := export.ICSCalendar{
		Name:     s.cfg.FeedName,
		Location: anchor.Location(),
		Stamp:    s.now(),
	}
	courses := make(map[string]models.Course, len(schedules))
	for _, schedule := range schedules {
		courses[schedule.ID] = schedule.Course
		courseStart := calendar.CourseStartDate(schedule.Course)
		for _, slot := range schedule.Slots {
			series, ok, err := anchor.SeriesFor(slot, courseStart, from, until)
			if err != nil {
				s.logger.Warn("skipping invalid weekly slot in feed",
					zap.String("slot_id", slot.ID),
					zap.String("course_id", schedule.ID),
					zap.Error(err),
				)
				continue
			}
			if !ok {
				continue
			}
			doc.Events = append(doc.Events, export.ICSEvent{
				UID:         "slot-" + slot.ID + "@" + icsUIDDomain,
				Summary:     schedule.Title,
				Description: courseDescription(schedule.Course),
				Categories:  []string{string(models.CalendarEventClass)},
				Start:       anchor.Instant(series.First, series.Interval.Start),
				End:         anchor.Instant(series.First, series.Interval.End),
				RRule:       series.RuleString(),
			})
		}
	}
	for _, assignment := range deadlines {
		course, ok := courses[assignment.CourseID]
		if !ok || !assignment.IsPublished || assignment.DueDate == nil {
			continue
		}
		doc.Events = append(doc.Events, export.ICSEvent{
			UID:         "assignment-" + assignment.ID + "@" + icsUIDDomain,
			Summary:     assignment.Title,
			Description: courseDescription(course),
			Categories:  []string{string(models.CalendarEventAssignment)},
			Start:       *assignment.DueDate,
			End:         *assignment.DueDate,
		})
	}

	body, err := s.ics.Render(doc)
	if err != nil {
		s.logger.Error("failed to render calendar feed", zap.String("user_id", viewer.UserID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render calendar feed")
	}
	s.metrics.RecordExport(formatICSFeed)
	return &dto.ExportFile{Filename: "calendar.ics", ContentType: s.ics.ContentType(), Body: body}, nil
}

// FeedLink issues a subscription URL for the viewer rooted at baseURL.
func (s *ExportService) FeedLink(viewer models.Viewer, baseURL string) (*dto.FeedLink, error) {
	if viewer.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	token, expiresAt, err := s.tokens.IssueFeedToken(viewer)
	if err != nil {
		return nil, err
	}
	link := strings.TrimRight(baseURL, "/") + "/" + strings.Trim(s.cfg.APIPrefix, "/") + "/calendar/feed.ics?token=" + url.QueryEscape(token)
	return &dto.FeedLink{
		URL:       link,
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *ExportService) occurrenceCalendar(view *dto.CalendarView) export.ICSCalendar {
	anchor := s.calendars.Anchor()
	doc := export.ICSCalendar{
		Name:     s.cfg.FeedName,
		Location: anchor.Location(),
		Stamp:    s.now(),
		Events:   make([]export.ICSEvent, 0, len(view.Events)),
	}
	for _, event := range view.Events {
		date, err := calendar.ParseDate(event.Date)
		if err != nil {
			continue
		}
		start, errStart := calendar.ParseClock(event.StartTime)
		end, errEnd := calendar.ParseClock(event.EndTime)
		if errStart != nil || errEnd != nil {
			continue
		}
		doc.Events = append(doc.Events, export.ICSEvent{
			UID:         strings.ReplaceAll(event.ID, ":", "-") + "@" + icsUIDDomain,
			Summary:     event.Title,
			Description: eventDescription(event),
			Categories:  []string{string(event.Type)},
			Start:       anchor.Instant(date, start),
			End:         anchor.Instant(date, end),
		})
	}
	return doc
}

var eventHeaders = []string{"Date", "Start", "End", "Type", "Title", "Course", "Instructor", "Enrolled"}

func eventDataset(view *dto.CalendarView) export.Dataset {
	rows := make([][]string, 0, len(view.Events))
	for _, event := range view.Events {
		enrolled := "no"
		if event.IsEnrolled {
			enrolled = "yes"
		}
		rows = append(rows, []string{
			event.Date,
			event.StartTime,
			event.EndTime,
			string(event.Type),
			event.Title,
			event.CourseTitle,
			event.Instructor,
			enrolled,
		})
	}
	return export.Dataset{
		Title:    "Course Calendar",
		Subtitle: fmt.Sprintf("%s to %s (%s)", view.From, view.To, view.Timezone),
		Headers:  eventHeaders,
		Rows:     rows,
	}
}

func courseDescription(course models.Course) string {
	if course.InstructorName == "" {
		return course.Title
	}
	return course.Title + " with " + course.InstructorName
}

func eventDescription(event models.CalendarEvent) string {
	if event.Instructor == "" {
		return event.CourseTitle
	}
	return event.CourseTitle + " with " + event.Instructor
}
