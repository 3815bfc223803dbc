package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/course-calendar-api/internal/calendar"
	"github.com/noah-isme/course-calendar-api/internal/dto"
	"github.com/noah-isme/course-calendar-api/internal/models"
	"github.com/noah-isme/course-calendar-api/internal/repository"
	"github.com/noah-isme/course-calendar-api/internal/service"
	"github.com/noah-isme/course-calendar-api/pkg/config"
	"github.com/noah-isme/course-calendar-api/pkg/database"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/logger"
)

// timetable maps course IDs to the schedule blobs imported for them.
type timetable struct {
	Courses map[string][]dto.ScheduleImportRequest `yaml:"courses"`
}

type outcome struct {
	CourseID string
	Entry    int
	Created  int
	Removed  int
	Error    error
}

type importer interface {
	PlanImport(req dto.ScheduleImportRequest) ([]models.WeeklyTimeSlot, error)
	Import(ctx context.Context, courseID string, req dto.ScheduleImportRequest) (*dto.ScheduleImportResult, error)
}

func main() {
	var (
		path    string
		dryRun  bool
		timeout time.Duration
	)

	flag.StringVar(&path, "file", filepath.Join("scripts", "timetable_import", "testdata", "timetable.yaml"), "Path to YAML timetable file")
	flag.BoolVar(&dryRun, "dry-run", false, "Validate the timetable and report overlaps without writing")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Overall import timeout")
	flag.Parse()

	tt, err := loadTimetable(path)
	if err != nil {
		log.Fatalf("failed to load timetable: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if dryRun {
		svc := service.NewSlotService(nil, nil, nil, nil, nil, nil, logr)
		results, overlaps := plan(svc, tt)
		printReport(results)
		for _, pair := range overlaps {
			fmt.Printf("[OVERLAP] %s %s %s-%s vs %s %s-%s\n",
				pair.First.DayOfWeek, pair.First.CourseID, pair.First.StartTime, pair.First.EndTime,
				pair.Second.CourseID, pair.Second.StartTime, pair.Second.EndTime)
		}
		if failed(results) > 0 || len(overlaps) > 0 {
			os.Exit(1)
		}
		return
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	svc := service.NewSlotService(
		repository.NewSlotRepository(db),
		repository.NewCourseRepository(db),
		nil, nil, nil, nil, logr,
	)
	results := run(ctx, svc, tt)
	printReport(results)

	failures := failed(results)
	logr.Info("timetable import finished", zap.Int("entries", len(results)), zap.Int("failed", failures))
	if failures > 0 {
		os.Exit(1)
	}
}

func loadTimetable(path string) (*timetable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tt timetable
	if err := yaml.Unmarshal(data, &tt); err != nil {
		return nil, err
	}
	if len(tt.Courses) == 0 {
		return nil, fmt.Errorf("no courses defined in %s", path)
	}
	return &tt, nil
}

func courseIDs(tt *timetable) []string {
	ids := make([]string, 0, len(tt.Courses))
	for id := range tt.Courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// plan validates every entry and reports overlaps between the planned slots
// of the whole file.
func plan(svc importer, tt *timetable) ([]outcome, []calendar.OverlappingPair) {
	var (
		results []outcome
		planned []models.WeeklyTimeSlot
	)
	for _, id := range courseIDs(tt) {
		for i, entry := range tt.Courses[id] {
			slots, err := svc.PlanImport(entry)
			results = append(results, outcome{CourseID: id, Entry: i, Created: len(slots), Error: err})
			for _, slot := range slots {
				slot.CourseID = id
				planned = append(planned, slot)
			}
		}
	}
	return results, calendar.FindOverlaps(planned)
}

// run imports entries course by course. A course's remaining entries are
// skipped after its first failure.
func run(ctx context.Context, svc importer, tt *timetable) []outcome {
	var results []outcome
	for _, id := range courseIDs(tt) {
		for i, entry := range tt.Courses[id] {
			res := outcome{CourseID: id, Entry: i}
			created, err := svc.Import(ctx, id, entry)
			if err != nil {
				res.Error = err
				results = append(results, res)
				break
			}
			res.Created = len(created.Created)
			res.Removed = created.Removed
			results = append(results, res)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			break
		}
	}
	return results
}

func failed(results []outcome) int {
	n := 0
	for _, res := range results {
		if res.Error != nil {
			n++
		}
	}
	return n
}

func printReport(results []outcome) {
	fmt.Println("Timetable Import Report")
	fmt.Println("=======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		}
		fmt.Printf("[%s] %s #%d\n", status, res.CourseID, res.Entry)
		if res.Error != nil {
			appErr := appErrors.FromError(res.Error)
			fmt.Printf("  Error: %s %s\n", appErr.Code, appErr.Message)
			continue
		}
		fmt.Printf("  Created: %d | Removed: %d\n", res.Created, res.Removed)
	}
}
