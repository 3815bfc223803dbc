package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-calendar-api/internal/models"
)

func TestEnrollmentRepositoryListByUser(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "status", "created_at"}).
		AddRow("enr-1", "stu-1", "course-1", models.EnrollmentStatusActive, time.Now()).
		AddRow("enr-2", "stu-1", "course-2", models.EnrollmentStatusDropped, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, course_id, status, created_at FROM enrollments WHERE user_id = $1")).
		WithArgs("stu-1").
		WillReturnRows(rows)

	enrollments, err := repo.ListByUser(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	require.Equal(t, models.EnrollmentStatusDropped, enrollments[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
