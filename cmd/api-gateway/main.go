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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sba-transport-api/api/swagger"
	"github.com/noah-isme/sba-transport-api/internal/handler"
	"github.com/noah-isme/sba-transport-api/internal/middleware"
	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/internal/repository"
	"github.com/noah-isme/sba-transport-api/internal/service"
	"github.com/noah-isme/sba-transport-api/pkg/cache"
	"github.com/noah-isme/sba-transport-api/pkg/config"
	"github.com/noah-isme/sba-transport-api/pkg/database"
	"github.com/noah-isme/sba-transport-api/pkg/export"
	"github.com/noah-isme/sba-transport-api/pkg/jobs"
	"github.com/noah-isme/sba-transport-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sba-transport-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sba-transport-api/pkg/middleware/requestid"
)

// @title School Bus Transport API
// @version 1.0.0
// @description Enrollment request lifecycle and billing for school transport
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// Redis is optional: the request cache degrades to pass-through when
	// the connection fails.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, request cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.RequestTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	requestRepo := repository.NewRequestRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	confirmationRepo := repository.NewConfirmationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)

	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, logr)
	notificationQueue := jobs.NewQueue("notifications", notificationSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notificationSvc.SetQueue(notificationQueue)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	requestSvc := service.NewRequestService(requestRepo, studentRepo, guardianRepo, enrollmentRepo, notificationSvc, cacheSvc, validate, logr)
	workflowSvc := service.NewWorkflowService(requestRepo, notificationSvc, cacheSvc, metricsSvc, logr)
	paymentSvc := service.NewPaymentService(requestRepo, confirmationRepo, paymentRepo, notificationSvc, cacheSvc, metricsSvc, logr)
	exportSvc := service.NewExportService(requestRepo, studentRepo, guardianRepo, paymentRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(requestSvc, workflowSvc, paymentSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.GET("/requests", requestHandler.List)
	authed.GET("/requests/:id", requestHandler.Get)
	authed.GET("/requests/:id/receipt", exportHandler.Receipt)
	authed.POST("/requests/:id/confirm-payment", requestHandler.ConfirmPayment)
	authed.GET("/notifications", notificationHandler.List)

	guardianOnly := authed.Group("", middleware.RequireRoles(models.RoleGuardian))
	guardianOnly.POST("/requests", requestHandler.Create)
	guardianOnly.DELETE("/requests/:id", requestHandler.Withdraw)

	adminOnly := authed.Group("", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	adminOnly.PUT("/requests/:id/transition", requestHandler.Transition)
	adminOnly.GET("/payments/export", exportHandler.PaymentsCSV)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationQueue.Start(ctx)
	defer notificationQueue.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
