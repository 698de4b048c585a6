package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/studentid/internal/api"
	"github.com/saturnino-fabrica-de-software/studentid/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/studentid/internal/audit"
	"github.com/saturnino-fabrica-de-software/studentid/internal/config"
	"github.com/saturnino-fabrica-de-software/studentid/internal/database"
	"github.com/saturnino-fabrica-de-software/studentid/internal/face"
	"github.com/saturnino-fabrica-de-software/studentid/internal/ratelimit"
	"github.com/saturnino-fabrica-de-software/studentid/internal/repository"
	"github.com/saturnino-fabrica-de-software/studentid/internal/service"
	"github.com/saturnino-fabrica-de-software/studentid/internal/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Student Identity API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("engine", cfg.EngineType),
		slog.Float64("threshold", cfg.Threshold),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbName, err := database.DatabaseName(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, cfg.DatabaseURL, dbName, logger); err != nil {
		return err
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer pool.Close()

	// Recognition core
	stack, err := face.NewStack(cfg, pool, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("engine close error", slog.Any("error", err))
		}
	}()

	// A failed warmup is retried lazily by the first request
	warmCtx, cancelWarm := context.WithTimeout(ctx, cfg.EngineTimeout)
	if err := stack.Engine.Warmup(warmCtx); err != nil {
		logger.Warn("engine warmup failed", slog.Any("error", err))
	}
	cancelWarm()

	// Repositories and services
	students := repository.NewStudentRepository(pool)
	logs := repository.NewRecognitionLogRepository(pool)
	users := repository.NewUserRepository(pool)
	admins := repository.NewAdminRepository(pool)

	recorder := audit.NewRecorder(logs, audit.NewSlogLogger(logger), stack.Pipeline.Model())

	issuer := token.NewIssuer(token.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})

	recognitionService := service.NewRecognitionService(
		students,
		logs,
		stack.Pipeline,
		stack.Matcher,
		stack.Cache,
		stack.Images,
		recorder,
		issuer,
		logger,
	).WithTimeout(cfg.RecognitionTimeout)

	loginGuard := ratelimit.NewLoginGuard(pool, cfg.LoginMaxFailures, cfg.LoginFailureWindow)
	go loginGuard.RunCleanup(ctx, 10*time.Minute, func(err error) {
		logger.Warn("login attempt cleanup failed", slog.Any("error", err))
	})

	authService := service.NewAuthService(users, students, admins, issuer, recorder, logger).
		WithLoginGuard(loginGuard)

	// Setup router
	rateLimit := middleware.DefaultRateLimiterConfig()
	rateLimit.Max = cfg.RecognizeRateLimit
	rateLimit.Window = cfg.RecognizeRateWindow

	router := api.NewRouter(logger, &api.Dependencies{
		Recognition:  recognitionService,
		Auth:         authService,
		Tokens:       issuer,
		DB:           pool,
		Media:        stack.Images,
		Engine:       stack.Engine,
		MaxImageSize: int64(cfg.MaxImageBytes),
		RateLimit:    rateLimit,
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}
