package models

import "time"

// Assignment is a course deliverable with an optional due instant.
type Assignment struct {
	ID          string     `db:"id" json:"id"`
	CourseID    string     `db:"course_id" json:"courseId"`
	Title       string     `db:"title" json:"title"`
	DueDate     *time.Time `db:"due_date" json:"dueDate,omitempty"`
	IsPublished bool       `db:"is_published" json:"isPublished"`
}
