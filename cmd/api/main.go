package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/TrunderHunter/SkillBridgeBE-sub003/api/swagger"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/handler"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/middleware"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/repository"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/service"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/cache"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/config"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/database"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/export"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/logger"
	corsmiddleware "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/middleware/cors"
	reqidmiddleware "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/middleware/requestid"
)

// @title SkillBridge Contracts API
// @version 1.0.0
// @description Tutoring contract lifecycle, e-signature and payment schedule service
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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	contractRepo := repository.NewContractRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	signatureRepo := repository.NewSignatureRepository(db)
	negotiationRepo := repository.NewNegotiationRepository(db)
	classRepo := repository.NewClassRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, cfg.JWT, nil, logr)
	otpSvc := service.NewOTPService(redisClient, &service.LoggingSender{Logger: logr}, cfg.OTP, logr)
	notifySvc := service.NewNotificationService(&service.LoggingDeliverer{Logger: logr}, cfg.Notifications, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, nil, logr)
	signatureSvc := service.NewSignatureService(signatureRepo, contractRepo, userRepo, otpSvc, logr)
	engagementSvc := service.NewEngagementService(classRepo, logr)
	contractSvc := service.NewContractService(
		contractRepo, negotiationRepo, scheduleSvc, signatureSvc, otpSvc,
		engagementSvc, notifySvc, metricsSvc, redisClient, cfg.Contracts, nil, logr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifySvc.Start(ctx)
	defer notifySvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	contractHandler := handler.NewContractHandler(contractSvc, signatureSvc, scheduleSvc, export.NewContractPDF())
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, contractSvc, export.NewScheduleCSV())
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	contracts := authed.Group("/contracts")
	{
		contracts.POST("", middleware.RequireRoles(models.RoleTutor), contractHandler.Create)
		contracts.GET("", contractHandler.List)
		contracts.GET("/stats", contractHandler.Stats)
		contracts.POST("/expire-stale", middleware.RequireRoles(models.RoleAdmin), contractHandler.ExpireStale)
		contracts.GET("/:id", contractHandler.Get)
		contracts.PUT("/:id", middleware.RequireRoles(models.RoleTutor), contractHandler.UpdateDraft)
		contracts.POST("/:id/submit", middleware.RequireRoles(models.RoleTutor), contractHandler.Submit)
		contracts.POST("/:id/respond", middleware.RequireRoles(models.RoleStudent), contractHandler.Respond)
		contracts.POST("/:id/sign/begin", middleware.RequireRoles(models.RoleTutor, models.RoleStudent), contractHandler.BeginSigning)
		contracts.POST("/:id/sign", middleware.RequireRoles(models.RoleTutor, models.RoleStudent), contractHandler.Sign)
		contracts.POST("/:id/cancel", contractHandler.Cancel)
		contracts.GET("/:id/signatures", contractHandler.AuditTrail)
		contracts.GET("/:id/schedule", scheduleHandler.GetByContract)
		contracts.GET("/:id/download", contractHandler.Download)
	}

	schedules := authed.Group("/schedules")
	{
		schedules.GET("", scheduleHandler.List)
		schedules.GET("/upcoming", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.UpcomingDue)
		schedules.GET("/:id", scheduleHandler.Get)
		schedules.GET("/:id/export", scheduleHandler.ExportCSV)
		schedules.POST("/:id/payments", scheduleHandler.RecordPayment)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
