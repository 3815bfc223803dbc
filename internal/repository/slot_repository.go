package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

// slotLockNamespace is the first key of the two-key advisory lock guarding a
// weekday's slot set ("SLOT" in ASCII).
const slotLockNamespace = 0x534C4F54

const slotColumns = `id, course_id, day_of_week, start_time, end_time, active, created_at, updated_at`

// SlotRepository manages weekly time slots.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository builds repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// RunLocked runs fn inside one transaction holding the advisory lock of every
// listed weekday. Locks are taken in ascending weekday order so concurrent
// multi-day writers cannot deadlock. fn's error rolls the transaction back.
func (r *SlotRepository) RunLocked(ctx context.Context, days []models.Weekday, fn func(exec sqlx.ExtContext) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, day := range lockOrder(days) {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, slotLockNamespace, int(day)); err != nil {
			err = fmt.Errorf("lock weekday %s: %w", day, err)
			return err
		}
	}

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit slot transaction: %w", err)
		return err
	}
	return nil
}

func lockOrder(days []models.Weekday) []models.Weekday {
	seen := make(map[models.Weekday]struct{}, len(days))
	out := make([]models.Weekday, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ListByWeekday returns every stored slot on the weekday across all courses,
// active or not.
func (r *SlotRepository) ListByWeekday(ctx context.Context, exec sqlx.ExtContext, day models.Weekday) ([]models.WeeklyTimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM weekly_time_slots WHERE day_of_week = $1 ORDER BY start_time ASC, id ASC`
	var slots []models.WeeklyTimeSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, int(day)); err != nil {
		return nil, fmt.Errorf("list slots by weekday: %w", err)
	}
	return slots, nil
}

// ListByCourse returns slots ordered by day/time for a course.
func (r *SlotRepository) ListByCourse(ctx context.Context, courseID string) ([]models.WeeklyTimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM weekly_time_slots WHERE course_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var slots []models.WeeklyTimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, courseID); err != nil {
		return nil, fmt.Errorf("list slots by course: %w", err)
	}
	return slots, nil
}

// ListByCourseIDs returns the slots of several courses grouped by course id.
func (r *SlotRepository) ListByCourseIDs(ctx context.Context, courseIDs []string) (map[string][]models.WeeklyTimeSlot, error) {
	grouped := make(map[string][]models.WeeklyTimeSlot, len(courseIDs))
	if len(courseIDs) == 0 {
		return grouped, nil
	}
	query := `SELECT ` + slotColumns + ` FROM weekly_time_slots WHERE course_id = ANY($1) ORDER BY course_id ASC, day_of_week ASC, start_time ASC`
	var slots []models.WeeklyTimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list slots by courses: %w", err)
	}
	for _, slot := range slots {
		grouped[slot.CourseID] = append(grouped[slot.CourseID], slot)
	}
	return grouped, nil
}

// ListAll returns every stored slot for integrity audits.
func (r *SlotRepository) ListAll(ctx context.Context) ([]models.WeeklyTimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM weekly_time_slots ORDER BY day_of_week ASC, start_time ASC, id ASC`
	var slots []models.WeeklyTimeSlot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list all slots: %w", err)
	}
	return slots, nil
}

// FindByID returns a slot. sql.ErrNoRows is returned unwrapped when missing
// or when id is not a UUID.
func (r *SlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WeeklyTimeSlot, error) {
	if err := requireUUID(id); err != nil {
		return nil, err
	}
	query := `SELECT ` + slotColumns + ` FROM weekly_time_slots WHERE id = $1`
	var slot models.WeeklyTimeSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create inserts a slot, assigning id and timestamps when absent.
func (r *SlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.WeeklyTimeSlot) error {
	now := time.Now().UTC()
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CreatedAt = now
	slot.UpdatedAt = now

	const query = `INSERT INTO weekly_time_slots (id, course_id, day_of_week, start_time, end_time, active, created_at, updated_at)
VALUES (:id, :course_id, :day_of_week, :start_time, :end_time, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a slot.
func (r *SlotRepository) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.WeeklyTimeSlot) error {
	if err := requireUUID(slot.ID); err != nil {
		return err
	}
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE weekly_time_slots
SET day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, active = :active, updated_at = :updated_at
WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a slot.
func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	if err := requireUUID(id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM weekly_time_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return requireAffected(res)
}

// DeleteByCourse removes every slot of a course and reports how many went.
func (r *SlotRepository) DeleteByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM weekly_time_slots WHERE course_id = $1`, courseID)
	if err != nil {
		return 0, fmt.Errorf("delete course slots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// requireUUID reports ids that cannot match a UUID primary key as missing
// rows instead of letting Postgres reject the literal.
func requireUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return sql.ErrNoRows
	}
	return nil
}
