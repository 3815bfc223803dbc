package dto

import "github.com/noah-isme/course-calendar-api/internal/models"

// CalendarQuery carries the raw window bounds of a calendar request. Each
// bound is a YYYY-MM-DD civil date or an RFC3339 instant; empty selects the
// current civil month.
type CalendarQuery struct {
	Start string `form:"start"`
	End   string `form:"end"`
}

// CalendarView is a computed calendar window.
type CalendarView struct {
	From     string                 `json:"from"`
	To       string                 `json:"to"`
	Timezone string                 `json:"timezone"`
	Events   []models.CalendarEvent `json:"events"`
	CacheHit bool                   `json:"-"`
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// FeedLink is a subscribable calendar URL for calendar applications.
type FeedLink struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}
