package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-calendar-api/internal/dto"
	"github.com/noah-isme/course-calendar-api/internal/middleware"
	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/response"
)

type calendarQueryService interface {
	Events(ctx context.Context, viewer models.Viewer, query dto.CalendarQuery) (*dto.CalendarView, error)
}

type calendarExportService interface {
	Export(ctx context.Context, viewer models.Viewer, query dto.CalendarQuery, format string) (*dto.ExportFile, error)
	Feed(ctx context.Context, viewer models.Viewer) (*dto.ExportFile, error)
	FeedLink(viewer models.Viewer, baseURL string) (*dto.FeedLink, error)
}

// CalendarHandler exposes the viewer's computed calendar.
type CalendarHandler struct {
	calendar calendarQueryService
	exports  calendarExportService
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(calendar calendarQueryService, exports calendarExportService) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, exports: exports}
}

// Events godoc
// @Summary List calendar events
// @Description Class occurrences and assignment deadlines visible to the caller, in the deployment timezone.
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Param start query string false "Window start (YYYY-MM-DD or RFC3339)"
// @Param end query string false "Window end (YYYY-MM-DD or RFC3339)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /calendar/events [get]
func (h *CalendarHandler) Events(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.CalendarQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	view, err := h.calendar.Events(c.Request.Context(), viewer, query)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, view.CacheHit)
	middleware.SetMeta(c, "timezone", view.Timezone)
	middleware.SetMeta(c, "from", view.From)
	middleware.SetMeta(c, "to", view.To)
	response.JSON(c, http.StatusOK, view.Events, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download calendar events
// @Tags Calendar
// @Produce octet-stream
// @Security BearerAuth
// @Param format query string false "csv, pdf, xlsx or ics" default(csv)
// @Param start query string false "Window start (YYYY-MM-DD or RFC3339)"
// @Param end query string false "Window end (YYYY-MM-DD or RFC3339)"
// @Success 200 {file} file
// @Router /calendar/export [get]
func (h *CalendarHandler) Export(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.CalendarQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	file, err := h.exports.Export(c.Request.Context(), viewer, query, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Feed godoc
// @Summary Recurring iCalendar feed
// @Description Weekly series per active slot plus assignment deadlines. Accepts a subscription token or a bearer token.
// @Tags Calendar
// @Produce text/calendar
// @Param token query string false "Subscription token from /calendar/feed-link"
// @Success 200 {file} file
// @Router /calendar/feed.ics [get]
func (h *CalendarHandler) Feed(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	file, err := h.exports.Feed(c.Request.Context(), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Inline(c, file.Filename, file.ContentType, file.Body)
}

// FeedLink godoc
// @Summary Issue a calendar subscription link
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /calendar/feed-link [post]
func (h *CalendarHandler) FeedLink(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	link, err := h.exports.FeedLink(viewer, requestBaseURL(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}
