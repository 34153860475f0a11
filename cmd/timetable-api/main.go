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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-timetable-api/api/swagger"
	"github.com/noah-isme/campus-timetable-api/internal/engine"
	"github.com/noah-isme/campus-timetable-api/internal/handler"
	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

// @title Campus Timetable API
// @version 1.0.0
// @description Heuristic course timetabling service
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Cache.TTL, logr, true)
		}
	}

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-timetable-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	teacherService := service.NewTeacherService(teacherRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, teacherRepo, validate, logr)
	classroomService := service.NewClassroomService(classroomRepo, validate, logr)
	settingsService := service.NewSettingsService(settingsRepo, validate, logr)
	importService := service.NewImportService(courseRepo, classroomRepo, teacherRepo, logr)

	history := engine.NewRingHistory(cfg.Engine.HistoryCapacity)
	timetableService := service.NewTimetableService(
		timetableRepo,
		courseRepo,
		classroomRepo,
		teacherRepo,
		settingsRepo,
		db,
		history,
		cacheService,
		metricsService,
		service.GenerationDefaults{
			Timeout:                 cfg.Engine.Timeout,
			Attempts:                cfg.Engine.Attempts,
			EnableSessionSplitting:  cfg.Engine.EnableSessionSplitting,
			EnableCombinedTheoryLab: cfg.Engine.EnableCombinedTheoryLab,
			EnableBacktracking:      cfg.Engine.EnableBacktracking,
			QueueWorkers:            cfg.Engine.QueueWorkers,
		},
		validate,
		logr,
	)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportService := service.NewExportService(
		timetableRepo,
		courseRepo,
		classroomRepo,
		teacherRepo,
		exportStore,
		signer,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		logr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timetableService.Queue().Start(ctx)
	defer timetableService.Queue().Stop()

	go cleanupLoop(ctx, exportService, cfg.Exports.CleanupInterval, cfg.Exports.SignedURLTTL)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	teacherHandler := handler.NewTeacherHandler(teacherService)
	courseHandler := handler.NewCourseHandler(courseService)
	classroomHandler := handler.NewClassroomHandler(classroomService)
	settingsHandler := handler.NewSettingsHandler(settingsService)
	timetableHandler := handler.NewTimetableHandler(timetableService, exportService)
	importHandler := handler.NewImportHandler(importService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)

	authed := auth.Group("", middleware.JWT(authService))
	authed.POST("/logout", authHandler.Logout)
	authed.POST("/change-password", authHandler.ChangePassword)
	authed.GET("/me", authHandler.Me)

	// Signed download links carry their own auth.
	api.GET("/exports/:token", timetableHandler.Download)

	secured := api.Group("", middleware.JWT(authService))

	users := secured.Group("/users", middleware.RBAC("SUPERADMIN", "ADMIN"))
	users.GET("", userHandler.List)
	users.POST("", userHandler.Create)
	users.GET("/:id", userHandler.Get)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)

	teachers := secured.Group("/teachers")
	teachers.GET("", teacherHandler.List)
	teachers.GET("/:id", teacherHandler.Get)
	teachers.POST("", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), teacherHandler.Create)
	teachers.PUT("/:id", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), teacherHandler.Update)
	teachers.DELETE("/:id", middleware.RBAC("SUPERADMIN", "ADMIN"), teacherHandler.Delete)

	courses := secured.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)
	courses.POST("", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), courseHandler.Create)
	courses.PUT("/:id", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), courseHandler.Update)
	courses.DELETE("/:id", middleware.RBAC("SUPERADMIN", "ADMIN"), courseHandler.Delete)

	classrooms := secured.Group("/classrooms")
	classrooms.GET("", classroomHandler.List)
	classrooms.GET("/:id", classroomHandler.Get)
	classrooms.POST("", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), classroomHandler.Create)
	classrooms.PUT("/:id", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), classroomHandler.Update)
	classrooms.DELETE("/:id", middleware.RBAC("SUPERADMIN", "ADMIN"), classroomHandler.Delete)

	settings := secured.Group("/settings")
	settings.GET("", settingsHandler.Get)
	settings.PUT("", middleware.RBAC("SUPERADMIN", "ADMIN"), settingsHandler.Update)

	imports := secured.Group("/imports", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"))
	imports.POST("/courses", importHandler.Courses)
	imports.POST("/classrooms", importHandler.Classrooms)

	timetables := secured.Group("/timetables")
	timetables.GET("", timetableHandler.List)
	timetables.GET("/:id", timetableHandler.Get)
	timetables.POST("/generate", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), timetableHandler.Generate)
	timetables.GET("/jobs/:id", timetableHandler.Job)
	timetables.POST("/:id/publish", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), timetableHandler.Publish)
	timetables.POST("/:id/export", timetableHandler.Export)
	timetables.DELETE("/:id", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER"), timetableHandler.Delete)

	secured.GET("/metrics/system", middleware.RBAC("SUPERADMIN", "ADMIN"), metricsHandler.Snapshot)

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

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}

// cleanupLoop periodically removes export files older than their signed URL
// lifetime.
func cleanupLoop(ctx context.Context, exports *service.ExportService, interval, ttl time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = exports.Cleanup(ttl)
		}
	}
}
