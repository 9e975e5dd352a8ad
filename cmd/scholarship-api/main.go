package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/scholarship-intake-api/api/swagger"
	"github.com/noah-isme/scholarship-intake-api/internal/handler"
	"github.com/noah-isme/scholarship-intake-api/internal/middleware"
	"github.com/noah-isme/scholarship-intake-api/internal/repository"
	"github.com/noah-isme/scholarship-intake-api/internal/router"
	"github.com/noah-isme/scholarship-intake-api/internal/service"
	"github.com/noah-isme/scholarship-intake-api/pkg/cache"
	"github.com/noah-isme/scholarship-intake-api/pkg/config"
	"github.com/noah-isme/scholarship-intake-api/pkg/database"
	"github.com/noah-isme/scholarship-intake-api/pkg/export"
	"github.com/noah-isme/scholarship-intake-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/scholarship-intake-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/scholarship-intake-api/pkg/middleware/requestid"
	"github.com/noah-isme/scholarship-intake-api/pkg/storage"
)

// @title Scholarship Intake API
// @version 1.0.0
// @description Scholarship application intake and review
// @BasePath /api
// @schemes http https

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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logr.Info("database migrations applied")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare document storage: %w", err)
	}

	if cfg.Session.AdminPasswordHash == "" {
		logr.Warn("ADMIN_PASSWORD_HASH is empty, administrator login is disabled")
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	applicationRepo := repository.NewApplicationRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, logr, service.CacheOptions{
		Enabled:    redisClient != nil,
		DefaultTTL: cfg.Stats.CacheTTL,
	})
	statsSvc := service.NewStatsService(statsRepo, cacheSvc, cfg.Stats.CacheTTL, logr)
	documentSvc := service.NewDocumentService(documentRepo, files, storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL), metricsSvc, logr, service.DocumentServiceConfig{
		MaxFileSize:  cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Documents.AllowedMIMEs,
		Naming:       cfg.Documents.Naming,
		APIPrefix:    cfg.APIPrefix,
	})
	categoryMinimums, err := service.CategoryMinimums(cfg.Intake.CategoryMinGrades)
	if err != nil {
		return fmt.Errorf("intake config: %w", err)
	}
	rules := service.NewIntakeRules(service.IntakeRulesConfig{
		MinGradeAverage:     cfg.Intake.MinGradeAverage,
		CategoryMinimums:    categoryMinimums,
		MinMotivationLength: cfg.Intake.MinMotivationLength,
	}, validate)
	exportSvc := service.NewExportService(export.NewCSVExporter(), export.NewPDFExporter(), logr)
	applicationSvc := service.NewApplicationService(applicationRepo, documentSvc, rules, exportSvc, statsSvc, metricsSvc, service.CryptoPicker, logr)
	authSvc := service.NewAuthService(validate, logr, metricsSvc, service.AuthConfig{
		Username:     cfg.Session.AdminUsername,
		PasswordHash: cfg.Session.AdminPasswordHash,
		Secret:       cfg.Session.Secret,
		TTL:          cfg.Session.TTL,
	})

	apiPrefix := strings.TrimRight(cfg.APIPrefix, "/")
	readiness := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if redisClient != nil {
		readiness["cache"] = cacheRepo.Ping
	}

	templates, err := handler.Templates()
	if err != nil {
		return fmt.Errorf("parse admin templates: %w", err)
	}

	r := gin.New()
	r.SetHTMLTemplate(templates)
	r.MaxMultipartMemory = cfg.Documents.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.ResponseMeta())

	router.Register(r, router.Handlers{
		Applications: handler.NewApplicationHandler(applicationSvc, documentSvc.MaxFileSize()),
		Files:        handler.NewFileHandler(documentSvc),
		Auth:         handler.NewAuthHandler(authSvc, handler.CookieSettings{Name: cfg.Session.CookieName, Secure: cfg.Session.Secure}, "/admin", "/admin/login"),
		Stats:        handler.NewStatsHandler(statsSvc),
		Metrics:      handler.NewMetricsHandler(metricsSvc.Handler(), readiness),
		Admin: handler.NewAdminHandler(statsSvc, handler.AdminPaths{
			LoginAPI: apiPrefix + "/auth/login",
			Logout:   apiPrefix + "/auth/logout",
			Admin:    "/admin",
			APIBase:  apiPrefix,
		}, logr),
	}, authSvc, router.Options{
		APIPrefix:    apiPrefix,
		Session:      middleware.SessionOptions{CookieName: cfg.Session.CookieName, LoginPath: "/admin/login"},
		LoginLimiter: middleware.NewRateLimiter(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst, logr),
		EnableDocs:   cfg.Env != config.EnvProduction,
		Logger:       logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
