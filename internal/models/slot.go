package models

import "time"

// WeeklyTimeSlot is a recurring weekly interval attached to a course.
// StartTime and EndTime are civil "HH:MM" strings in the deployment zone.
type WeeklyTimeSlot struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"courseId"`
	DayOfWeek Weekday   `db:"day_of_week" json:"dayOfWeek"`
	StartTime string    `db:"start_time" json:"startTime"`
	EndTime   string    `db:"end_time" json:"endTime"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// SlotConflict identifies the existing slot that blocks a write.
type SlotConflict struct {
	SlotID    string  `json:"slotId"`
	CourseID  string  `json:"courseId"`
	DayOfWeek Weekday `json:"dayOfWeek"`
	DayName   string  `json:"dayName"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
}

// NewSlotConflict describes slot as a conflict.
func NewSlotConflict(slot WeeklyTimeSlot) SlotConflict {
	return SlotConflict{
		SlotID:    slot.ID,
		CourseID:  slot.CourseID,
		DayOfWeek: slot.DayOfWeek,
		DayName:   slot.DayOfWeek.String(),
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	}
}

// SlotConflictError is returned when a slot overlaps an existing one.
type SlotConflictError struct {
	Message  string       `json:"message"`
	Conflict SlotConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
