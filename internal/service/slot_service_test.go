package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-calendar-api/internal/dto"
	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/jobs"
)

// memorySlotStore serialises RunLocked with one mutex, standing in for the
// weekday advisory locks, and rolls back on error.
type memorySlotStore struct {
	lock       sync.Mutex
	mu         sync.Mutex
	slots      map[string]models.WeeklyTimeSlot
	seq        int
	lockedDays [][]models.Weekday
	// afterList runs after every ListByWeekday to widen race windows.
	afterList func()
}

func newMemorySlotStore(seed ...models.WeeklyTimeSlot) *memorySlotStore {
	store := &memorySlotStore{slots: map[string]models.WeeklyTimeSlot{}}
	for _, slot := range seed {
		store.slots[slot.ID] = slot
	}
	return store
}

func (m *memorySlotStore) RunLocked(ctx context.Context, days []models.Weekday, fn func(exec sqlx.ExtContext) error) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.mu.Lock()
	m.lockedDays = append(m.lockedDays, days)
	snapshot := make(map[string]models.WeeklyTimeSlot, len(m.slots))
	for id, slot := range m.slots {
		snapshot[id] = slot
	}
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.slots = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memorySlotStore) ListByWeekday(ctx context.Context, exec sqlx.ExtContext, day models.Weekday) ([]models.WeeklyTimeSlot, error) {
	m.mu.Lock()
	var out []models.WeeklyTimeSlot
	for _, slot := range m.sorted() {
		if slot.DayOfWeek == day {
			out = append(out, slot)
		}
	}
	m.mu.Unlock()
	if m.afterList != nil {
		m.afterList()
	}
	return out, nil
}

func (m *memorySlotStore) ListByCourse(ctx context.Context, courseID string) ([]models.WeeklyTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WeeklyTimeSlot
	for _, slot := range m.sorted() {
		if slot.CourseID == courseID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (m *memorySlotStore) ListAll(ctx context.Context) ([]models.WeeklyTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

func (m *memorySlotStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WeeklyTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

func (m *memorySlotStore) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.WeeklyTimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	slot.ID = fmt.Sprintf("slot-%03d", m.seq)
	slot.CreatedAt = time.Now()
	slot.UpdatedAt = slot.CreatedAt
	m.slots[slot.ID] = *slot
	return nil
}

func (m *memorySlotStore) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.WeeklyTimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[slot.ID]; !ok {
		return sql.ErrNoRows
	}
	m.slots[slot.ID] = *slot
	return nil
}

func (m *memorySlotStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.slots, id)
	return nil
}

func (m *memorySlotStore) DeleteByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, slot := range m.slots {
		if slot.CourseID == courseID {
			delete(m.slots, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memorySlotStore) sorted() []models.WeeklyTimeSlot {
	out := make([]models.WeeklyTimeSlot, 0, len(m.slots))
	for _, slot := range m.slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memorySlotStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

type stubCourseReader struct {
	courses map[string]models.Course
	err     error
}

func (s stubCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if s.err != nil {
		return nil, s.err
	}
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newSlotServiceForTest(store *memorySlotStore, queue jobEnqueuer, cache *CacheService) *SlotService {
	courses := stubCourseReader{courses: map[string]models.Course{
		"course-math":    {ID: "course-math", Title: "Mathematics"},
		"course-physics": {ID: "course-physics", Title: "Physics"},
	}}
	return NewSlotService(store, courses, nil, cache, queue, NewMetricsService(), zap.NewNop())
}

func slotRequest(day models.Weekday, start, end string) dto.SlotRequest {
	return dto.SlotRequest{DayOfWeek: &day, StartTime: start, EndTime: end}
}

func seededSlot(id, courseID string, day models.Weekday, start, end string) models.WeeklyTimeSlot {
	return models.WeeklyTimeSlot{ID: id, CourseID: courseID, DayOfWeek: day, StartTime: start, EndTime: end, Active: true}
}

func requireConflictWith(t *testing.T, err error, slotID string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSlotConflict.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrSlotConflict.Status, appErr.Status)

	var conflict *models.SlotConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, slotID, conflict.Conflict.SlotID)

	details, ok := appErr.Details.(models.SlotConflict)
	require.True(t, ok)
	assert.Equal(t, slotID, details.SlotID)
}

func TestSlotServiceCreate(t *testing.T) {
	store := newMemorySlotStore()
	queue := &recordingQueue{}
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	svc := newSlotServiceForTest(store, queue, cache)

	slot, err := svc.Create(context.Background(), "course-math", slotRequest(models.Monday, "09:00", "10:30"))
	require.NoError(t, err)
	assert.NotEmpty(t, slot.ID)
	assert.Equal(t, "course-math", slot.CourseID)
	assert.True(t, slot.Active)
	assert.Equal(t, 1, store.count())
	assert.Equal(t, [][]models.Weekday{{models.Monday}}, store.lockedDays)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobInvalidateCalendars, queue.jobs[0].Type)
}

func TestSlotServiceCreateRejectsOverlap(t *testing.T) {
	existing := seededSlot("slot-a", "course-physics", models.Monday, "09:00", "10:00")
	cases := []struct {
		name  string
		start string
		end   string
	}{
		{name: "starts inside", start: "09:30", end: "10:30"},
		{name: "ends inside", start: "08:30", end: "09:30"},
		{name: "contains", start: "08:00", end: "11:00"},
		{name: "contained", start: "09:15", end: "09:45"},
		{name: "identical", start: "09:00", end: "10:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemorySlotStore(existing)
			svc := newSlotServiceForTest(store, nil, nil)

			_, err := svc.Create(context.Background(), "course-math", slotRequest(models.Monday, tc.start, tc.end))
			requireConflictWith(t, err, "slot-a")
			assert.Equal(t, 1, store.count())
		})
	}
}

func TestSlotServiceCreateAllowsAdjacentAndOtherDays(t *testing.T) {
	store := newMemorySlotStore(seededSlot("slot-a", "course-physics", models.Monday, "09:00", "10:00"))
	svc := newSlotServiceForTest(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "course-math", slotRequest(models.Monday, "10:00", "11:00"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, "course-math", slotRequest(models.Monday, "08:00", "09:00"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, "course-math", slotRequest(models.Tuesday, "09:00", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, 4, store.count())
}

func TestSlotServiceCreateInactiveSlotsStillBlock(t *testing.T) {
	inactive := seededSlot("slot-a", "course-physics", models.Friday, "13:00", "14:00")
	inactive.Active = false
	svc := newSlotServiceForTest(newMemorySlotStore(inactive), nil, nil)

	_, err := svc.Create(context.Background(), "course-math", slotRequest(models.Friday, "13:30", "14:30"))
	requireConflictWith(t, err, "slot-a")
}

func TestSlotServiceCreateValidation(t *testing.T) {
	svc := newSlotServiceForTest(newMemorySlotStore(), nil, nil)
	bad := models.Weekday(7)
	cases := map[string]dto.SlotRequest{
		"end before start":  slotRequest(models.Monday, "10:00", "09:00"),
		"empty interval":    slotRequest(models.Monday, "10:00", "10:00"),
		"unpadded clock":    slotRequest(models.Monday, "9:00", "10:00"),
		"hour out of range": slotRequest(models.Monday, "24:00", "24:30"),
		"missing day":       {StartTime: "09:00", EndTime: "10:00"},
		"day out of range":  {DayOfWeek: &bad, StartTime: "09:00", EndTime: "10:00"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "course-math", req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestSlotServiceCreateUnknownCourse(t *testing.T) {
	svc := newSlotServiceForTest(newMemorySlotStore(), nil, nil)
	_, err := svc.Create(context.Background(), "missing", slotRequest(models.Monday, "09:00", "10:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceConcurrentCreatesAdmitOne(t *testing.T) {
	store := newMemorySlotStore()
	store.afterList = func() { time.Sleep(5 * time.Millisecond) }
	svc := newSlotServiceForTest(store, nil, nil)

	type outcome struct {
		slot *models.WeeklyTimeSlot
		err  error
	}
	start := make(chan struct{})
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for _, req := range []struct {
		course     string
		start, end string
	}{
		{course: "course-math", start: "09:00", end: "10:00"},
		{course: "course-physics", start: "09:30", end: "10:30"},
	} {
		wg.Add(1)
		go func(course, from, to string) {
			defer wg.Done()
			<-start
			slot, err := svc.Create(context.Background(), course, slotRequest(models.Wednesday, from, to))
			results <- outcome{slot: slot, err: err}
		}(req.course, req.start, req.end)
	}
	close(start)
	wg.Wait()
	close(results)

	var winner *models.WeeklyTimeSlot
	var failures []error
	for res := range results {
		if res.err != nil {
			failures = append(failures, res.err)
			continue
		}
		winner = res.slot
	}
	require.NotNil(t, winner)
	require.Len(t, failures, 1)
	requireConflictWith(t, failures[0], winner.ID)
	assert.Equal(t, 1, store.count())
}

func TestSlotServiceUpdate(t *testing.T) {
	store := newMemorySlotStore(
		seededSlot("slot-a", "course-math", models.Monday, "09:00", "10:00"),
		seededSlot("slot-b", "course-physics", models.Tuesday, "09:00", "10:00"),
	)
	svc := newSlotServiceForTest(store, nil, nil)
	ctx := context.Background()

	updated, err := svc.Update(ctx, "slot-a", slotRequest(models.Monday, "09:30", "10:30"))
	require.NoError(t, err)
	assert.Equal(t, "09:30", updated.StartTime)
	assert.Equal(t, "course-math", updated.CourseID)

	_, err = svc.Update(ctx, "slot-a", slotRequest(models.Tuesday, "09:45", "11:00"))
	requireConflictWith(t, err, "slot-b")
	stored, _ := store.FindByID(ctx, nil, "slot-a")
	assert.Equal(t, models.Monday, stored.DayOfWeek)

	moved, err := svc.Update(ctx, "slot-a", slotRequest(models.Tuesday, "10:00", "11:00"))
	require.NoError(t, err)
	assert.Equal(t, models.Tuesday, moved.DayOfWeek)
	assert.Equal(t, []models.Weekday{models.Monday, models.Tuesday}, store.lockedDays[len(store.lockedDays)-1])
}

func TestSlotServiceUpdateDeactivate(t *testing.T) {
	store := newMemorySlotStore(seededSlot("slot-a", "course-math", models.Monday, "09:00", "10:00"))
	svc := newSlotServiceForTest(store, nil, nil)

	inactive := false
	req := slotRequest(models.Monday, "09:00", "10:00")
	req.Active = &inactive
	updated, err := svc.Update(context.Background(), "slot-a", req)
	require.NoError(t, err)
	assert.False(t, updated.Active)
}

func TestSlotServiceUpdateAndDeleteMissing(t *testing.T) {
	svc := newSlotServiceForTest(newMemorySlotStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "nope", slotRequest(models.Monday, "09:00", "10:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	err = svc.Delete(ctx, "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceDeleteInvalidatesInlineWhenQueueFull(t *testing.T) {
	store := newMemorySlotStore(seededSlot("slot-a", "course-math", models.Monday, "09:00", "10:00"))
	cacheRepo := newMemoryCache()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	cache.Set(context.Background(), CalendarKey("u1", "STUDENT", "2024-01-01", "2024-01-31"), []string{}, 0)
	queue := &recordingQueue{err: errors.New("queue full")}
	svc := newSlotServiceForTest(store, queue, cache)

	require.NoError(t, svc.Delete(context.Background(), "slot-a"))
	assert.Equal(t, 0, store.count())
	assert.Equal(t, 0, cacheRepo.size())
}

func TestSlotServiceList(t *testing.T) {
	store := newMemorySlotStore(
		seededSlot("slot-a", "course-math", models.Monday, "09:00", "10:00"),
		seededSlot("slot-b", "course-physics", models.Monday, "11:00", "12:00"),
	)
	svc := newSlotServiceForTest(store, nil, nil)

	slots, err := svc.List(context.Background(), "course-math")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "slot-a", slots[0].ID)

	_, err = svc.List(context.Background(), "missing")
	require.Error(t, err)
}

func TestSlotServiceImport(t *testing.T) {
	store := newMemorySlotStore()
	svc := newSlotServiceForTest(store, nil, nil)

	result, err := svc.Import(context.Background(), "course-math", dto.ScheduleImportRequest{
		Days:      []string{"wed", "Monday", "1", "MON"},
		StartTime: "13:00",
		EndTime:   "14:30",
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Equal(t, models.Monday, result.Created[0].DayOfWeek)
	assert.Equal(t, models.Wednesday, result.Created[1].DayOfWeek)
	for _, slot := range result.Created {
		assert.Equal(t, "course-math", slot.CourseID)
		assert.NotEmpty(t, slot.ID)
	}
	assert.Equal(t, 2, store.count())
}

func TestSlotServiceImportUnknownDays(t *testing.T) {
	svc := newSlotServiceForTest(newMemorySlotStore(), nil, nil)

	_, err := svc.Import(context.Background(), "course-math", dto.ScheduleImportRequest{
		Days:      []string{"mon", "funday", "9"},
		StartTime: "13:00",
		EndTime:   "14:00",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []string{"funday", "9"}, details["invalidDays"])
}

func TestSlotServiceImportIsAllOrNothing(t *testing.T) {
	store := newMemorySlotStore(seededSlot("slot-a", "course-physics", models.Friday, "13:30", "14:00"))
	svc := newSlotServiceForTest(store, nil, nil)

	_, err := svc.Import(context.Background(), "course-math", dto.ScheduleImportRequest{
		Days:      []string{"monday", "friday"},
		StartTime: "13:00",
		EndTime:   "14:00",
	})
	requireConflictWith(t, err, "slot-a")
	assert.Equal(t, 1, store.count())
}

func TestSlotServiceImportReplaceExisting(t *testing.T) {
	store := newMemorySlotStore(
		seededSlot("slot-a", "course-math", models.Monday, "13:00", "14:00"),
		seededSlot("slot-b", "course-math", models.Thursday, "08:00", "09:00"),
	)
	svc := newSlotServiceForTest(store, nil, nil)

	result, err := svc.Import(context.Background(), "course-math", dto.ScheduleImportRequest{
		Days:            []string{"monday"},
		StartTime:       "13:00",
		EndTime:         "14:00",
		ReplaceExisting: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Removed)
	require.Len(t, result.Created, 1)
	assert.Equal(t, 1, store.count())
}

func TestSlotServicePlanImportDoesNotPersist(t *testing.T) {
	store := newMemorySlotStore()
	svc := newSlotServiceForTest(store, nil, nil)

	planned, err := svc.PlanImport(dto.ScheduleImportRequest{
		Days:      []string{"fri", "tuesday", "Tue"},
		StartTime: "10:00",
		EndTime:   "11:00",
	})
	require.NoError(t, err)
	require.Len(t, planned, 2)
	assert.Equal(t, models.Tuesday, planned[0].DayOfWeek)
	assert.Equal(t, models.Friday, planned[1].DayOfWeek)
	assert.Empty(t, planned[0].ID)
	assert.Equal(t, 0, store.count())

	_, err = svc.PlanImport(dto.ScheduleImportRequest{Days: []string{"mon"}, StartTime: "11:00", EndTime: "10:00"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
