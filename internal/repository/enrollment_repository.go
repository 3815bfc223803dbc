package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

// EnrollmentRepository handles enrollment lookups.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListByUser returns every enrollment of the user regardless of status.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	const query = `SELECT id, user_id, course_id, status, created_at FROM enrollments WHERE user_id = $1 ORDER BY created_at ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list enrollments by user: %w", err)
	}
	return enrollments, nil
}
