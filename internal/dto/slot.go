package dto

import "github.com/noah-isme/course-calendar-api/internal/models"

// SlotRequest is the payload of slot create and update calls. DayOfWeek accepts
// 0-6 (Sunday=0) or a weekday name. Active defaults to true when omitted.
type SlotRequest struct {
	DayOfWeek *models.Weekday `json:"dayOfWeek" validate:"required,weekday"`
	StartTime string          `json:"startTime" validate:"required,clock"`
	EndTime   string          `json:"endTime" validate:"required,clock"`
	Active    *bool           `json:"active,omitempty"`
}

// ScheduleImportRequest is a free-form schedule blob: the same interval on
// several days. Days accept names, abbreviations or 0-6.
type ScheduleImportRequest struct {
	Days      []string `json:"days" yaml:"days" validate:"required,min=1,dive,required"`
	StartTime string   `json:"startTime" yaml:"startTime" validate:"required,clock"`
	EndTime   string   `json:"endTime" yaml:"endTime" validate:"required,clock"`
	Active    *bool    `json:"active,omitempty" yaml:"active,omitempty"`
	// ReplaceExisting removes the course's current slots before inserting.
	ReplaceExisting bool `json:"replaceExisting" yaml:"replaceExisting"`
}

// ScheduleImportResult lists the persisted slots of an import.
type ScheduleImportResult struct {
	CourseID string                  `json:"courseId"`
	Created  []models.WeeklyTimeSlot `json:"created"`
	Removed  int                     `json:"removed"`
}
