package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sis-registration-api/api/swagger"
	"github.com/noah-isme/sis-registration-api/internal/handler"
	"github.com/noah-isme/sis-registration-api/internal/middleware"
	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/internal/repository"
	"github.com/noah-isme/sis-registration-api/internal/service"
	"github.com/noah-isme/sis-registration-api/pkg/cache"
	"github.com/noah-isme/sis-registration-api/pkg/config"
	"github.com/noah-isme/sis-registration-api/pkg/database"
	"github.com/noah-isme/sis-registration-api/pkg/jobs"
	"github.com/noah-isme/sis-registration-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sis-registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sis-registration-api/pkg/middleware/requestid"
)

// @title SIS Registration API
// @version 1.0.0
// @description Enrollment eligibility, registration lifecycle, and academic progress services
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	// Repositories.
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	termRepo := repository.NewTermRepository(db)
	holdRepo := repository.NewHoldRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	// Services.
	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)
	capacity := service.NewCapacityManager(sectionRepo)
	requisiteSvc := service.NewRequisiteService(courseRepo, gradeRepo, gradeRepo, logr)

	gpaCfg := service.GpaServiceConfig{
		DefaultRepeatPolicy: models.RepeatPolicy(cfg.Gpa.DefaultRepeatPolicy),
		RoundingPlaces:      cfg.Gpa.RoundingPlaces,
		SummaryCacheTTL:     cfg.Gpa.SummaryCacheTTL,
	}
	var gpaSvc *service.GpaService
	if cacheRepo != nil {
		gpaSvc = service.NewGpaService(gradeRepo, studentRepo, cacheRepo, nil, logr, gpaCfg)
	} else {
		gpaSvc = service.NewGpaService(gradeRepo, studentRepo, nil, nil, logr, gpaCfg)
	}

	refreshQueue := jobs.NewQueue("gpa-refresh", gpaSvc.HandleRefreshJob, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	gpaSvc.SetRefreshQueue(refreshQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refreshQueue.Start(ctx)
	defer refreshQueue.Stop()

	registrationSvc := service.NewRegistrationService(
		registrationRepo,
		sectionRepo,
		studentRepo,
		courseRepo,
		termRepo,
		holdRepo,
		requisiteSvc,
		gradeRepo,
		gradeRepo,
		gpaSvc,
		capacity,
		db,
		metricsSvc,
		nil,
		logr,
		service.RegistrationServiceConfig{
			WaitlistEnabled: cfg.Registration.WaitlistEnabled,
			NearFullRatio:   cfg.Registration.NearFullRatio,
			MaxCartSize:     cfg.Registration.MaxCartSize,
		},
	)
	sectionSvc := service.NewSectionService(sectionRepo, logr)

	// Handlers.
	registrationHandler := handler.NewRegistrationHandler(registrationSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	gpaHandler := handler.NewGpaHandler(gpaSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	advising := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleAdvisor)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		api.GET("/sections", sectionHandler.List)
		api.GET("/sections/:id", sectionHandler.Get)
		api.GET("/sections/:id/waitlist", advising, registrationHandler.ListWaitlist)
		api.POST("/sections/:id/waitlist", registrationHandler.JoinWaitlist)
		api.DELETE("/sections/:id/waitlist", registrationHandler.LeaveWaitlist)

		api.GET("/registrations", advising, registrationHandler.List)
		api.POST("/registrations", registrationHandler.Create)
		api.POST("/registrations/override", staff, registrationHandler.Override)
		api.POST("/registrations/:id/drop", registrationHandler.Drop)
		api.POST("/registrations/:id/withdraw", registrationHandler.Withdraw)
		api.POST("/registrations/:id/grade", staff, registrationHandler.PostGrade)

		api.POST("/registration-cart/validate", registrationHandler.ValidateCart)
		api.POST("/registration-cart/register", registrationHandler.RegisterCart)

		api.GET("/students/:id/gpa", middleware.RBAC("ADMIN", "REGISTRAR", "ADVISOR", "SELF"), gpaHandler.Summary)
		api.POST("/students/:id/gpa/refresh", staff, gpaHandler.Refresh)
		api.GET("/students/:id/sections/:sectionId/eligibility", middleware.RBAC("ADMIN", "REGISTRAR", "ADVISOR", "SELF"), registrationHandler.CheckEligibility)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
