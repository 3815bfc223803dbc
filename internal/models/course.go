package models

import "time"

// Course owns the weekly slots expanded into calendar events.
type Course struct {
	ID             string     `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	InstructorID   string     `db:"instructor_id" json:"instructorId"`
	InstructorName string     `db:"instructor_name" json:"instructor"`
	StartDate      *time.Time `db:"start_date" json:"startDate,omitempty"`
	Capacity       int        `db:"capacity" json:"capacity"`
	EnrolledCount  int        `db:"enrolled_count" json:"enrolledCount"`
	IsPublic       bool       `db:"is_public" json:"isPublic"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// CourseSchedule is a course together with its weekly slots.
type CourseSchedule struct {
	Course
	Slots []WeeklyTimeSlot `json:"slots"`
}
