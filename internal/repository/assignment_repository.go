package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

// AssignmentRepository reads assignment deadlines.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListDueBetween returns published assignments of the given courses due within
// [from, to], both bounds inclusive.
func (r *AssignmentRepository) ListDueBetween(ctx context.Context, courseIDs []string, from, to time.Time) ([]models.Assignment, error) {
	if len(courseIDs) == 0 {
		return []models.Assignment{}, nil
	}
	const query = `SELECT id, course_id, title, due_date, is_published FROM assignments
WHERE course_id = ANY($1) AND is_published AND due_date IS NOT NULL AND due_date >= $2 AND due_date <= $3
ORDER BY due_date ASC, id ASC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, pq.Array(courseIDs), from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("list assignments due: %w", err)
	}
	return assignments, nil
}
