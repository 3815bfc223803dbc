package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/url"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-calendar-api/internal/dto"
	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/signing"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *TokenService) {
	t.Helper()
	f := newCalendarFixture(t, false)
	tokens := NewTokenService("secret", signing.NewFeedSigner("feed-secret", time.Hour))
	svc := NewExportService(f.service, tokens, NewMetricsService(), zap.NewNop(), ExportConfig{
		APIPrefix:      "/api/v1",
		FeedName:       "Test Calendar",
		FeedPastDays:   7,
		FeedFutureDays: 14,
	})
	svc.now = func() time.Time { return time.Date(2024, 1, 3, 2, 0, 0, 0, time.UTC) }
	return svc, tokens
}

var exportViewer = models.Viewer{UserID: "student-1", Role: models.RoleStudent}

func TestExportServiceCSV(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	file, err := svc.Export(context.Background(), exportViewer, dto.CalendarQuery{Start: "2024-01-01", End: "2024-01-14"}, "")
	require.NoError(t, err)
	assert.Equal(t, "calendar_2024-01-01_2024-01-14.csv", file.Filename)
	assert.Contains(t, file.ContentType, "text/csv")

	records, err := csv.NewReader(bytes.NewReader(file.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, eventHeaders, records[0])
	assert.Equal(t, []string{"2024-01-01", "09:00", "10:30", "CLASS", "Mathematics", "Mathematics", "Bat", "yes"}, records[1])
}

func TestExportServiceBinaryFormats(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	query := dto.CalendarQuery{Start: "2024-01-01", End: "2024-01-14"}

	pdf, err := svc.Export(context.Background(), exportViewer, query, "pdf")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf.Body, []byte("%PDF")))
	assert.True(t, strings.HasSuffix(pdf.Filename, ".pdf"))

	xlsx, err := svc.Export(context.Background(), exportViewer, query, "XLSX")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(xlsx.Body, []byte("PK")))
	assert.True(t, strings.HasSuffix(xlsx.Filename, ".xlsx"))
}

func TestExportServiceICSOccurrences(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	file, err := svc.Export(context.Background(), exportViewer, dto.CalendarQuery{Start: "2024-01-01", End: "2024-01-07"}, "ics")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(file.Filename, ".ics"))

	parsed, err := ics.ParseCalendar(bytes.NewReader(file.Body))
	require.NoError(t, err)
	events := parsed.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "class-slot-m-2024-01-01@course-calendar", events[0].Id())
	assert.Equal(t, "20240101T090000", events[0].GetProperty(ics.ComponentPropertyDtStart).Value)
	assert.Nil(t, events[0].GetProperty(ics.ComponentPropertyRrule))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.Export(context.Background(), exportViewer, dto.CalendarQuery{}, "docx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceFeed(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	file, err := svc.Feed(context.Background(), exportViewer)
	require.NoError(t, err)
	assert.Equal(t, "calendar.ics", file.Filename)

	parsed, err := ics.ParseCalendar(bytes.NewReader(file.Body))
	require.NoError(t, err)
	byID := map[string]*ics.VEvent{}
	for _, ev := range parsed.Events() {
		byID[ev.Id()] = ev
	}
	require.Len(t, byID, 3)

	math := byID["slot-slot-m@course-calendar"]
	require.NotNil(t, math)
	assert.Equal(t, "20240101T090000", math.GetProperty(ics.ComponentPropertyDtStart).Value)
	rule := math.GetProperty(ics.ComponentPropertyRrule)
	require.NotNil(t, rule)
	assert.Contains(t, rule.Value, "FREQ=WEEKLY")
	assert.Contains(t, rule.Value, "BYDAY=MO")
	assert.Contains(t, rule.Value, "UNTIL=")

	art := byID["slot-slot-a@course-calendar"]
	require.NotNil(t, art)
	assert.Equal(t, "20231229T140000", art.GetProperty(ics.ComponentPropertyDtStart).Value)

	assert.NotNil(t, byID["assignment-hw-1@course-calendar"])
	assert.Nil(t, byID["slot-slot-bad@course-calendar"])
}

func TestExportServiceFeedLink(t *testing.T) {
	svc, tokens := newExportServiceForTest(t)

	link, err := svc.FeedLink(exportViewer, "https://calendar.example.edu/")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://calendar.example.edu/api/v1/calendar/feed.ics?token="))

	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, link.Token, parsed.Query().Get("token"))

	claims, err := tokens.ValidateFeedToken(link.Token)
	require.NoError(t, err)
	assert.Equal(t, exportViewer, claims.Viewer())

	_, err = svc.FeedLink(models.Viewer{}, "https://calendar.example.edu")
	require.Error(t, err)
}
