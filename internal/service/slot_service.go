package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-calendar-api/internal/calendar"
	"github.com/noah-isme/course-calendar-api/internal/dto"
	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/jobs"
)

// Background job types handled by the calendar worker queue.
const (
	JobInvalidateCalendars = "calendar.invalidate"
	JobSlotAudit           = "calendar.slot_audit"
)

const (
	slotOutcomeOK       = "ok"
	slotOutcomeConflict = "conflict"
	slotOutcomeInvalid  = "invalid"
	slotOutcomeError    = "error"
)

type slotStore interface {
	RunLocked(ctx context.Context, days []models.Weekday, fn func(exec sqlx.ExtContext) error) error
	ListByWeekday(ctx context.Context, exec sqlx.ExtContext, day models.Weekday) ([]models.WeeklyTimeSlot, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.WeeklyTimeSlot, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WeeklyTimeSlot, error)
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.WeeklyTimeSlot) error
	Update(ctx context.Context, exec sqlx.ExtContext, slot *models.WeeklyTimeSlot) error
	Delete(ctx context.Context, id string) error
	DeleteByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, error)
}

type slotCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SlotService is the schedule-write surface. Every mutation runs its conflict
// check and write inside one transaction that holds the weekday lock.
type SlotService struct {
	slots     slotStore
	courses   slotCourseReader
	validator *validator.Validate
	cache     *CacheService
	queue     jobEnqueuer
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSlotService constructs the service. queue may be nil, in which case
// cache invalidation runs inline.
func NewSlotService(slots slotStore, courses slotCourseReader, validate *validator.Validate, cache *CacheService, queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	RegisterCalendarValidations(validate)
	return &SlotService{
		slots:     slots,
		courses:   courses,
		validator: validate,
		cache:     cache,
		queue:     queue,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterCalendarValidations installs the "clock" (HH:MM) and "weekday"
// (0-6) tags.
func RegisterCalendarValidations(v *validator.Validate) {
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := calendar.ParseClock(fl.Field().String())
		return err == nil && len(fl.Field().String()) == 5
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		return models.Weekday(fl.Field().Int()).Valid()
	})
}

// List returns a course's slots.
func (s *SlotService) List(ctx context.Context, courseID string) ([]models.WeeklyTimeSlot, error) {
	if _, err := s.course(ctx, courseID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	if slots == nil {
		slots = []models.WeeklyTimeSlot{}
	}
	return slots, nil
}

// Create adds a slot to a course after checking it against every stored slot
// on the same weekday.
func (s *SlotService) Create(ctx context.Context, courseID string, req dto.SlotRequest) (*models.WeeklyTimeSlot, error) {
	candidate, err := s.candidate(req)
	if err != nil {
		s.metrics.RecordSlotWrite("create", slotOutcomeInvalid)
		return nil, err
	}
	if _, err := s.course(ctx, courseID); err != nil {
		return nil, err
	}
	candidate.CourseID = courseID

	err = s.slots.RunLocked(ctx, []models.Weekday{candidate.DayOfWeek}, func(exec sqlx.ExtContext) error {
		if err := s.ensureNoConflict(ctx, exec, candidate, ""); err != nil {
			return err
		}
		if err := s.slots.Create(ctx, exec, &candidate); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
		}
		return nil
	})
	if err != nil {
		s.recordFailure("create", err)
		return nil, err
	}

	s.metrics.RecordSlotWrite("create", slotOutcomeOK)
	s.logger.Info("weekly slot created",
		zap.String("slot_id", candidate.ID),
		zap.String("course_id", courseID),
		zap.String("day", candidate.DayOfWeek.String()),
		zap.String("start_time", candidate.StartTime),
		zap.String("end_time", candidate.EndTime),
	)
	s.invalidate(ctx)
	return &candidate, nil
}

// Update replaces a slot's day, interval and active flag. The slot is
// excluded from its own conflict check.
func (s *SlotService) Update(ctx context.Context, slotID string, req dto.SlotRequest) (*models.WeeklyTimeSlot, error) {
	candidate, err := s.candidate(req)
	if err != nil {
		s.metrics.RecordSlotWrite("update", slotOutcomeInvalid)
		return nil, err
	}
	current, err := s.slots.FindByID(ctx, nil, slotID)
	if err != nil {
		return nil, s.lookupError(err, "slot not found", "failed to load slot")
	}

	var updated models.WeeklyTimeSlot
	days := []models.Weekday{current.DayOfWeek, candidate.DayOfWeek}
	err = s.slots.RunLocked(ctx, days, func(exec sqlx.ExtContext) error {
		stored, err := s.slots.FindByID(ctx, exec, slotID)
		if err != nil {
			return s.lookupError(err, "slot not found", "failed to load slot")
		}
		updated = *stored
		updated.DayOfWeek = candidate.DayOfWeek
		updated.StartTime = candidate.StartTime
		updated.EndTime = candidate.EndTime
		updated.Active = candidate.Active

		if err := s.ensureNoConflict(ctx, exec, updated, slotID); err != nil {
			return err
		}
		if err := s.slots.Update(ctx, exec, &updated); err != nil {
			return s.lookupError(err, "slot not found", "failed to update slot")
		}
		return nil
	})
	if err != nil {
		s.recordFailure("update", err)
		return nil, err
	}

	s.metrics.RecordSlotWrite("update", slotOutcomeOK)
	s.logger.Info("weekly slot updated", zap.String("slot_id", slotID), zap.String("course_id", updated.CourseID))
	s.invalidate(ctx)
	return &updated, nil
}

// Delete removes a slot.
func (s *SlotService) Delete(ctx context.Context, slotID string) error {
	if err := s.slots.Delete(ctx, slotID); err != nil {
		return s.lookupError(err, "slot not found", "failed to delete slot")
	}
	s.metrics.RecordSlotWrite("delete", slotOutcomeOK)
	s.logger.Info("weekly slot deleted", zap.String("slot_id", slotID))
	s.invalidate(ctx)
	return nil
}

// Import normalises a free-form schedule blob into one slot per listed day
// and persists them all or none.
func (s *SlotService) Import(ctx context.Context, courseID string, req dto.ScheduleImportRequest) (*dto.ScheduleImportResult, error) {
	candidates, err := s.PlanImport(req)
	if err != nil {
		s.metrics.RecordSlotWrite("import", slotOutcomeInvalid)
		return nil, err
	}
	if _, err := s.course(ctx, courseID); err != nil {
		return nil, err
	}

	days := make([]models.Weekday, len(candidates))
	for i := range candidates {
		candidates[i].CourseID = courseID
		days[i] = candidates[i].DayOfWeek
	}

	result := &dto.ScheduleImportResult{CourseID: courseID}
	err = s.slots.RunLocked(ctx, days, func(exec sqlx.ExtContext) error {
		if req.ReplaceExisting {
			removed, err := s.slots.DeleteByCourse(ctx, exec, courseID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace course slots")
			}
			result.Removed = removed
		}
		for i := range candidates {
			if err := s.ensureNoConflict(ctx, exec, candidates[i], ""); err != nil {
				return err
			}
			if err := s.slots.Create(ctx, exec, &candidates[i]); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
			}
		}
		return nil
	})
	if err != nil {
		s.recordFailure("import", err)
		return nil, err
	}

	result.Created = candidates
	s.metrics.RecordSlotWrite("import", slotOutcomeOK)
	s.logger.Info("schedule imported",
		zap.String("course_id", courseID),
		zap.Int("created", len(candidates)),
		zap.Int("removed", result.Removed),
	)
	s.invalidate(ctx)
	return result, nil
}

func (s *SlotService) candidate(req dto.SlotRequest) (models.WeeklyTimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.WeeklyTimeSlot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	slot := models.WeeklyTimeSlot{
		DayOfWeek: *req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Active:    active,
	}
	if _, err := calendar.ParseSlot(slot); err != nil {
		return models.WeeklyTimeSlot{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "startTime must be before endTime")
	}
	return slot, nil
}

// PlanImport validates a schedule blob and returns the slots an import would
// create, one per distinct day in weekday order. Nothing is persisted.
func (s *SlotService) PlanImport(req dto.ScheduleImportRequest) ([]models.WeeklyTimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	seen := make(map[models.Weekday]struct{}, len(req.Days))
	var invalid []string
	var days []models.Weekday
	for _, raw := range req.Days {
		day, err := models.ParseWeekday(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	if len(invalid) > 0 {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "unknown days: "+strings.Join(invalid, ", ")),
			map[string]interface{}{"invalidDays": invalid},
		)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	candidates := make([]models.WeeklyTimeSlot, 0, len(days))
	for _, day := range days {
		d := day
		slot, err := s.candidate(dto.SlotRequest{DayOfWeek: &d, StartTime: req.StartTime, EndTime: req.EndTime, Active: req.Active})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, slot)
	}
	return candidates, nil
}

// ensureNoConflict loads every stored slot on the candidate's weekday through
// exec and rejects the write when one overlaps.
func (s *SlotService) ensureNoConflict(ctx context.Context, exec sqlx.ExtContext, candidate models.WeeklyTimeSlot, excludeID string) error {
	existing, err := s.slots.ListByWeekday(ctx, exec, candidate.DayOfWeek)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot conflicts")
	}
	if conflict, found := calendar.FindConflict(candidate, existing, excludeID); found {
		return s.wrapConflict(*conflict)
	}
	return nil
}

func (s *SlotService) wrapConflict(existing models.WeeklyTimeSlot) error {
	conflict := models.NewSlotConflict(existing)
	message := fmt.Sprintf("overlaps slot %s on %s %s-%s", existing.ID, conflict.DayName, existing.StartTime, existing.EndTime)
	wrapped := appErrors.Wrap(&models.SlotConflictError{Message: message, Conflict: conflict},
		appErrors.ErrSlotConflict.Code, appErrors.ErrSlotConflict.Status, message)
	return appErrors.WithDetails(wrapped, conflict)
}

func (s *SlotService) course(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, s.lookupError(err, "course not found", "failed to load course")
	}
	return course, nil
}

func (s *SlotService) lookupError(err error, notFound, internal string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func (s *SlotService) recordFailure(operation string, err error) {
	var conflict *models.SlotConflictError
	switch {
	case errors.As(err, &conflict):
		s.metrics.RecordSlotWrite(operation, slotOutcomeConflict)
		s.logger.Info("slot write rejected",
			zap.String("operation", operation),
			zap.String("conflicting_slot_id", conflict.Conflict.SlotID),
		)
	case appErrors.FromError(err).Status < 500:
		s.metrics.RecordSlotWrite(operation, slotOutcomeInvalid)
	default:
		s.metrics.RecordSlotWrite(operation, slotOutcomeError)
		s.logger.Error("slot write failed", zap.String("operation", operation), zap.Error(err))
	}
}

// invalidate drops cached calendar views. Invalidation is queued when a
// worker queue is available and falls back to an inline call otherwise.
func (s *SlotService) invalidate(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{Type: JobInvalidateCalendars})
		if err == nil {
			return
		}
		s.logger.Warn("queue calendar invalidation failed, running inline", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_ = s.cache.InvalidateCalendars(ctx)
}
