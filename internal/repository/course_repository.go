package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

const courseColumns = `c.id, c.title, c.instructor_id, c.instructor_name, c.start_date, c.capacity, c.enrolled_count, c.is_public, c.created_at, c.updated_at`

// CourseRepository reads courses for calendar computation.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ListVisible returns the courses the viewer may see on a calendar.
// Administrators see every course. Everyone else sees public courses and
// courses with an ACTIVE enrollment; teachers additionally see courses they
// instruct.
func (r *CourseRepository) ListVisible(ctx context.Context, viewer models.Viewer) ([]models.Course, error) {
	var (
		query string
		args  []interface{}
	)
	switch {
	case viewer.Role.IsAdministrator():
		query = `SELECT ` + courseColumns + ` FROM courses c ORDER BY c.title ASC, c.id ASC`
	case viewer.Role == models.RoleTeacher:
		query = `SELECT ` + courseColumns + ` FROM courses c
WHERE c.is_public OR c.instructor_id = $1
   OR EXISTS (SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.user_id = $1 AND e.status = $2)
ORDER BY c.title ASC, c.id ASC`
		args = []interface{}{viewer.UserID, models.EnrollmentStatusActive}
	default:
		query = `SELECT ` + courseColumns + ` FROM courses c
WHERE c.is_public
   OR EXISTS (SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.user_id = $1 AND e.status = $2)
ORDER BY c.title ASC, c.id ASC`
		args = []interface{}{viewer.UserID, models.EnrollmentStatusActive}
	}

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list visible courses: %w", err)
	}
	return courses, nil
}

// FindByID returns a course by id. sql.ErrNoRows is returned unwrapped when
// the course does not exist or id is not a UUID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if err := requireUUID(id); err != nil {
		return nil, err
	}
	query := `SELECT ` + courseColumns + ` FROM courses c WHERE c.id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}
