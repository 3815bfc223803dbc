package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-calendar-api/api/swagger"
	"github.com/noah-isme/course-calendar-api/internal/calendar"
	"github.com/noah-isme/course-calendar-api/internal/handler"
	internalmiddleware "github.com/noah-isme/course-calendar-api/internal/middleware"
	"github.com/noah-isme/course-calendar-api/internal/repository"
	"github.com/noah-isme/course-calendar-api/internal/service"
	"github.com/noah-isme/course-calendar-api/pkg/cache"
	"github.com/noah-isme/course-calendar-api/pkg/config"
	"github.com/noah-isme/course-calendar-api/pkg/database"
	"github.com/noah-isme/course-calendar-api/pkg/jobs"
	"github.com/noah-isme/course-calendar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-calendar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-calendar-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-calendar-api/pkg/signing"
)

// @title Course Calendar API
// @version 1.0.0
// @description Viewer-scoped course calendars, weekly slot management and iCalendar feeds
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	anchor, err := calendar.NewAnchor(cfg.Calendar.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid calendar timezone", "timezone", cfg.Calendar.Timezone, "error", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	var redisClient redis.UniversalClient
	cacheEnabled := cfg.Calendar.CacheEnabled
	if cacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, calendar cache disabled", zap.Error(err))
			cacheEnabled = false
		} else {
			redisClient = client
			defer client.Close()
		}
	}

	metricsSvc := service.NewMetricsService()

	slotRepo := repository.NewSlotRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	queue := jobs.NewQueue("calendar", jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.Retries,
		Logger:     logr,
	})

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Calendar.CacheTTL, logr, cacheEnabled)
	calendarSvc := service.NewCalendarService(courseRepo, slotRepo, assignmentRepo, enrollmentRepo,
		calendar.NewBuilder(anchor, logr), cacheSvc, metricsSvc, logr, service.CalendarConfig{
			MaxWindowDays: cfg.Calendar.MaxWindowDays,
			QueryTimeout:  cfg.Calendar.QueryTimeout,
			CacheTTL:      cfg.Calendar.CacheTTL,
		})
	slotSvc := service.NewSlotService(slotRepo, courseRepo, validator.New(), cacheSvc, queue, metricsSvc, logr)
	auditSvc := service.NewSlotAuditService(slotRepo, metricsSvc, logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, signing.NewFeedSigner(cfg.Calendar.FeedSecret, cfg.Calendar.FeedLinkTTL))
	exportSvc := service.NewExportService(calendarSvc, tokenSvc, metricsSvc, logr, service.ExportConfig{
		APIPrefix:      cfg.APIPrefix,
		FeedName:       cfg.Calendar.FeedName,
		FeedPastDays:   cfg.Calendar.FeedPastDays,
		FeedFutureDays: cfg.Calendar.FeedFutureDays,
	})

	queue.Register(service.JobInvalidateCalendars, cacheSvc.HandleInvalidateJob)
	queue.Register(service.JobSlotAudit, auditSvc.HandleJob)
	queue.Start(ctx)
	defer queue.Stop()

	scheduler := cron.New(cron.WithLocation(anchor.Location()))
	if cfg.Calendar.AuditCron != "" {
		if _, err := scheduler.AddFunc(cfg.Calendar.AuditCron, func() {
			if err := queue.Enqueue(jobs.Job{Type: service.JobSlotAudit}); err != nil {
				logr.Warn("failed to enqueue slot audit", zap.Error(err))
			}
		}); err != nil {
			logr.Sugar().Fatalw("invalid audit schedule", "cron", cfg.Calendar.AuditCron, "error", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	checks := map[string]handler.Pinger{"database": handler.PingFunc(db.PingContext)}
	if redisClient != nil {
		checks["redis"] = cacheRepo
	}

	calendarHandler := handler.NewCalendarHandler(calendarSvc, exportSvc)
	slotHandler := handler.NewSlotHandler(slotSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/calendar/feed.ics", internalmiddleware.FeedAuth(tokenSvc), calendarHandler.Feed)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokenSvc))
	secured.GET("/calendar/events", calendarHandler.Events)
	secured.GET("/calendar/export", calendarHandler.Export)
	secured.POST("/calendar/feed-link", calendarHandler.FeedLink)

	editors := secured.Group("")
	editors.Use(internalmiddleware.RequireScheduleEditor())
	editors.GET("/courses/:id/slots", slotHandler.List)
	editors.POST("/courses/:id/slots", slotHandler.Create)
	editors.POST("/courses/:id/slots/import", slotHandler.Import)
	editors.PUT("/slots/:id", slotHandler.Update)
	editors.DELETE("/slots/:id", slotHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "timezone", anchor.Location().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
