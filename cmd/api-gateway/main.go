package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/face-attendance-api/api/swagger"
	"github.com/noah-isme/face-attendance-api/internal/handler"
	"github.com/noah-isme/face-attendance-api/internal/middleware"
	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/realtime"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
	"github.com/noah-isme/face-attendance-api/internal/repository"
	"github.com/noah-isme/face-attendance-api/internal/service"
	"github.com/noah-isme/face-attendance-api/pkg/cache"
	"github.com/noah-isme/face-attendance-api/pkg/config"
	"github.com/noah-isme/face-attendance-api/pkg/database"
	"github.com/noah-isme/face-attendance-api/pkg/logger"
	"github.com/noah-isme/face-attendance-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/face-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/face-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/face-attendance-api/pkg/storage"
)

// @title Face Attendance API
// @version 1.0.0
// @description University attendance backend with face recognition marking
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, stats caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	attendanceRepo := repository.NewAttendanceRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	recognitionClient := recognition.NewClient(cfg.Recognition, logr)

	hub := realtime.NewHub(logr)
	go hub.Run()

	metricsService := service.NewMetricsService()
	authService := service.NewAuthService(userRepo, cfg.JWT, nil, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, classRepo, cacheRepo, hub, cfg.Attendance, nil, logr)
	sheetService := service.NewSheetService(attendanceRepo, classRepo, store, signer, metricsService, cfg.Attendance, logr)
	captureService := service.NewCaptureService(recognitionClient, attendanceService, sheetService, hub, metricsService, logr)
	studentService := service.NewStudentService(studentRepo, recognitionClient, nil, logr)
	classService := service.NewClassService(classRepo, studentRepo, nil, logr)
	notifierService := service.NewNotifierService(mailer.New(cfg.Mail), studentRepo, classRepo, attendanceRepo, attendanceService, sheetService, metricsService, cfg.Mail, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	notifierService.Start(rootCtx)
	defer notifierService.Stop()

	// Artifacts older than the signed URL TTL are unreachable through
	// any still-valid token; they regenerate on demand.
	if cfg.Reports.CleanupInterval > 0 {
		go runReportCleanup(rootCtx, store, cfg.Reports, logr)
	}

	authHandler := handler.NewAuthHandler(authService)
	attendanceHandler := handler.NewAttendanceHandler(captureService, attendanceService)
	studentHandler := handler.NewStudentHandler(studentService)
	classHandler := handler.NewClassHandler(classService)
	reportHandler := handler.NewReportHandler(sheetService)
	notificationHandler := handler.NewNotificationHandler(notifierService)
	metricsHandler := handler.NewMetricsHandler(metricsService, recognitionClient, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.GET("/reports/download/:token", reportHandler.Download)
	api.GET("/ws", gin.WrapF(hub.ServeWS))

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.GET("/auth/profile", authHandler.Profile)
	authed.PUT("/auth/password", authHandler.ChangePassword)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStaff)
	admin := middleware.RequireRoles(models.RoleAdmin)

	authed.POST("/attendance/capture", staff, attendanceHandler.Capture)
	authed.POST("/attendance/upload", staff, attendanceHandler.Upload)
	authed.POST("/attendance/manual", staff, attendanceHandler.ManualMark)
	authed.PATCH("/attendance/:id", staff, attendanceHandler.Correct)
	authed.DELETE("/attendance/:id", admin, attendanceHandler.Delete)
	authed.GET("/attendance", attendanceHandler.List)
	authed.GET("/attendance/live/:classId", attendanceHandler.Live)
	authed.GET("/attendance/stats/daily/:classId", attendanceHandler.DailyStats)
	authed.GET("/attendance/stats/range/:classId", attendanceHandler.RangeStats)
	authed.GET("/attendance/stats/trend/:classId", attendanceHandler.Trend)

	authed.GET("/students", studentHandler.List)
	authed.GET("/students/:id", studentHandler.Get)
	authed.POST("/students", staff, studentHandler.Create)
	authed.PUT("/students/:id", staff, studentHandler.Update)
	authed.DELETE("/students/:id", admin, studentHandler.Delete)
	authed.POST("/students/:id/face", staff, studentHandler.RegisterFace)
	authed.POST("/students/import", staff, studentHandler.BulkImport)

	authed.GET("/classes", classHandler.List)
	authed.GET("/classes/:id", classHandler.Get)
	authed.POST("/classes", staff, classHandler.Create)
	authed.PUT("/classes/:id", staff, classHandler.Update)
	authed.DELETE("/classes/:id", admin, classHandler.Delete)
	authed.GET("/classes/:id/students", classHandler.Roster)
	authed.POST("/classes/:id/students", staff, classHandler.Enroll)
	authed.DELETE("/classes/:id/students/:studentId", staff, classHandler.Unenroll)

	authed.POST("/reports/daily", staff, reportHandler.GenerateDaily)
	authed.POST("/reports/monthly", staff, reportHandler.GenerateMonthly)
	authed.GET("/reports/daily/:classId/pdf", reportHandler.DailySummaryPDF)
	authed.POST("/reports/email", staff, notificationHandler.EmailReport)

	authed.POST("/notifications/absence", staff, notificationHandler.AbsenceNotice)
	authed.POST("/notifications/low-attendance", staff, notificationHandler.LowAttendanceAlerts)
	authed.POST("/notifications/daily-summary", staff, notificationHandler.DailySummary)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
	logr.Sugar().Infow("server exited")
}

func runReportCleanup(ctx context.Context, store *storage.LocalStorage, cfg config.ReportsConfig, logr *zap.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupOlderThan(cfg.SignedURLTTL)
			if err != nil {
				logr.Warn("report cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired report artifacts removed", zap.Int("count", len(removed)))
			}
		}
	}
}
