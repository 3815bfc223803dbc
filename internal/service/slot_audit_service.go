package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-calendar-api/internal/calendar"
	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/jobs"
)

type slotLister interface {
	ListAll(ctx context.Context) ([]models.WeeklyTimeSlot, error)
}

// SlotAuditReport summarises one integrity scan of the stored slot set.
type SlotAuditReport struct {
	Scanned     int                        `json:"scanned"`
	Invalid     []models.WeeklyTimeSlot    `json:"invalid"`
	Overlapping []calendar.OverlappingPair `json:"overlapping"`
	RanAt       time.Time                  `json:"ranAt"`
}

// SlotAuditService scans stored slots for rows the write path should have
// rejected: malformed intervals and overlapping pairs.
type SlotAuditService struct {
	slots   slotLister
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewSlotAuditService constructs the audit service.
func NewSlotAuditService(slots slotLister, metrics *MetricsService, logger *zap.Logger) *SlotAuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotAuditService{slots: slots, metrics: metrics, logger: logger, now: time.Now}
}

// Run performs a full scan.
func (s *SlotAuditService) Run(ctx context.Context) (*SlotAuditReport, error) {
	all, err := s.slots.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slots for audit")
	}

	report := &SlotAuditReport{Scanned: len(all), RanAt: s.now()}
	valid := make([]models.WeeklyTimeSlot, 0, len(all))
	for _, slot := range all {
		if _, err := calendar.ParseSlot(slot); err != nil {
			report.Invalid = append(report.Invalid, slot)
			s.logger.Warn("stored slot fails integrity check",
				zap.String("slot_id", slot.ID),
				zap.String("course_id", slot.CourseID),
				zap.Int("day_of_week", int(slot.DayOfWeek)),
				zap.String("start_time", slot.StartTime),
				zap.String("end_time", slot.EndTime),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, slot)
	}

	report.Overlapping = calendar.FindOverlaps(valid)
	for _, pair := range report.Overlapping {
		s.logger.Warn("stored slots overlap",
			zap.String("slot_id", pair.First.ID),
			zap.String("other_slot_id", pair.Second.ID),
			zap.String("day", pair.First.DayOfWeek.String()),
		)
	}

	s.metrics.ObserveAudit(len(report.Invalid), len(report.Overlapping), report.RanAt)
	s.logger.Info("slot audit finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("invalid", len(report.Invalid)),
		zap.Int("overlapping", len(report.Overlapping)),
	)
	return report, nil
}

// HandleJob adapts Run to the worker queue.
func (s *SlotAuditService) HandleJob(ctx context.Context, _ jobs.Job) error {
	_, err := s.Run(ctx)
	return err
}
