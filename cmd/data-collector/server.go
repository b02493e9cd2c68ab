package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/datacollector/datacollector/internal/config"
	"github.com/datacollector/datacollector/internal/domain/patient"
	"github.com/datacollector/datacollector/internal/platform/auth"
	"github.com/datacollector/datacollector/internal/platform/db"
	"github.com/datacollector/datacollector/internal/platform/middleware"
	"github.com/datacollector/datacollector/internal/platform/telemetry"
)

const version = "0.1.0"

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// bootLogger reports failures that happen before the configured logger
// exists.
func bootLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// newServer assembles the HTTP API over an open, migrated store.
func newServer(cfg *config.Config, store *db.Store, logger zerolog.Logger, metrics *telemetry.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(telemetry.TracingMiddleware(otel.GetTracerProvider()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.NoStore())
	e.Use(middleware.BodyLimit("1M"))

	// Auth middleware
	if cfg.AuthSecret != "" {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSecret),
			Skipper:    auth.AuthSkipper,
		}))
	} else if !cfg.IsDev() {
		logger.Warn().Msg("AUTH_SECRET is not set; API is unauthenticated")
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(store))
	e.GET("/metrics", metrics.Handler())

	svc := patient.NewService(repositoryFor(store), patient.WithMetrics(metrics))

	apiV1 := e.Group("/api/v1")
	patient.NewHandler(svc).RegisterRoutes(apiV1)
	patient.NewCommands(svc).RegisterRoutes(e.Group("/invoke"))

	return e
}

func runServer() error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		boot := bootLogger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	zerolog.DefaultContextLogger = &logger

	// Database
	ctx := context.Background()
	store, applied, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()
	logger.Info().Str("dialect", string(store.Dialect)).Int("migrations_applied", applied).Msg("connected to database")

	// Tracing
	tracing, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	e := newServer(cfg, store, logger, telemetry.NewMetrics())

	// Graceful shutdown
	go func() {
		addr := cfg.Addr()
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
