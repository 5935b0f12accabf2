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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academic-records/api/swagger"
	"github.com/noah-isme/academic-records/internal/handler"
	"github.com/noah-isme/academic-records/internal/repository"
	"github.com/noah-isme/academic-records/internal/service"
	"github.com/noah-isme/academic-records/pkg/cache"
	"github.com/noah-isme/academic-records/pkg/config"
	"github.com/noah-isme/academic-records/pkg/database"
	"github.com/noah-isme/academic-records/pkg/logger"
	corsmiddleware "github.com/noah-isme/academic-records/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academic-records/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title Academic Records API
// @version 1.0.0
// @description Quota-safe enrollment and enrollment reporting over the academic store
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
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	stores, err := database.OpenStores(cfg)
	if err != nil {
		logr.Fatal("failed to open stores", zap.Error(err))
	}
	defer stores.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Reports.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("report cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metrics,
		cfg.Reports.CacheTTL,
		logr,
		cfg.Reports.CacheEnabled && redisClient != nil,
	)

	academicLog := logger.ForStore(logr, config.StoreAcademic)
	enrollments := service.NewEnrollmentService(
		repository.NewAcademicRepository(stores.Academic),
		cacheSvc,
		metrics,
		validator.New(),
		academicLog,
		service.EnrollmentServiceConfig{TxTimeout: cfg.Enrollment.TxTimeout},
	)
	reports := service.NewReportService(repository.NewReportRepository(stores.Academic), cacheSvc, cfg.Reports.CacheTTL, academicLog)

	audit := service.NewAuditService(repository.NewSupportRepository(stores.Support), metrics, logger.ForStore(logr, config.StoreSupport), service.AuditServiceConfig{
		Workers:    cfg.Audit.Workers,
		Retries:    cfg.Audit.Retries,
		RetryDelay: cfg.Audit.RetryDelay,
	})
	audit.Start(context.Background())

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Routes{
		Enrollments: handler.NewEnrollmentHandler(enrollments),
		Reports:     handler.NewReportHandler(reports),
		Metrics:     handler.NewMetricsHandler(metrics, stores),
		Tokens:      service.NewTokenService(cfg.JWT.Secret),
		Audit:       audit,
		Observer:    metrics,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	if err := audit.Stop(shutdownCtx); err != nil {
		logr.Warn("audit queue not drained", zap.Error(err))
	}
}
