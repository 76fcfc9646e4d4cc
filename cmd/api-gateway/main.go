package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-attendance-api/api/swagger"
	"github.com/noah-isme/sma-attendance-api/internal/handler"
	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/accesscode"
	"github.com/noah-isme/sma-attendance-api/pkg/cache"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
	"github.com/noah-isme/sma-attendance-api/pkg/database"
	"github.com/noah-isme/sma-attendance-api/pkg/holiday"
	"github.com/noah-isme/sma-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-attendance-api/pkg/middleware/requestid"
)

// @title SMA Attendance API
// @version 1.0.0
// @description Class session scheduling, attendance check-in and excuse/appeal review.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Reports.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
		}
	}

	loc, err := cfg.Sessions.Location()
	if err != nil {
		logr.Warn("unknown session timezone, using UTC", zap.String("timezone", cfg.Sessions.Timezone), zap.Error(err))
	}

	courses := repository.NewCourseRepository(db)
	sessions := repository.NewSessionRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	corrections := repository.NewCorrectionRepository(db)
	notifications := repository.NewNotificationRepository(db)
	audit := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reports.CacheTTL, logr, redisClient != nil)
	calendar := holiday.NewStaticCalendar(cfg.Holidays.Years...)
	codes := accesscode.NewGenerator(nil, cfg.Sessions.AccessCodeLength)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	notifier := service.NewNotificationService(notifications, service.NotificationConfig{
		Workers:    cfg.Notifications.Workers,
		Retries:    cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		BufferSize: cfg.Notifications.BufferSize,
	}, logr)
	notifier.Start(ctx)
	defer notifier.Stop()
	metrics.RegisterQueue("notifications", notifier.Stats)

	generator := service.NewSessionGeneratorService(courses, sessions, calendar, codes, db, audit, metrics, validate, logr,
		service.SessionGeneratorConfig{Location: loc})
	attendanceSvc := service.NewAttendanceService(sessions, attendance, enrollments, courses, codes, db, audit, cacheSvc, metrics, validate, logr)
	correctionSvc := service.NewCorrectionService(corrections, attendance, sessions, enrollments, courses, notifier, db, audit, cacheSvc, metrics, validate, logr)
	reportSvc := service.NewReportService(courses, attendance, sessions, cacheSvc, audit, nil, nil, validate, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	probes := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		probes["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	metricsHandler := handler.NewMetricsHandler(metrics, probes)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Sessions:      handler.NewSessionHandler(generator),
		Attendance:    handler.NewAttendanceHandler(attendanceSvc),
		Excuses:       handler.NewCorrectionHandler(models.CorrectionKindExcuse, correctionSvc),
		Appeals:       handler.NewCorrectionHandler(models.CorrectionKindAppeal, correctionSvc),
		Reports:       handler.NewReportHandler(reportSvc),
		Holidays:      handler.NewHolidayHandler(calendar),
		Notifications: handler.NewNotificationHandler(notifier),
		Metrics:       metricsHandler,
	}, middleware.JWT(tokens))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
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
