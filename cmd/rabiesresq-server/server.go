package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/rabiesresq/rabiesresq/internal/config"
	"github.com/rabiesresq/rabiesresq/internal/domain/casemgmt"
	"github.com/rabiesresq/rabiesresq/internal/platform/auth"
	"github.com/rabiesresq/rabiesresq/internal/platform/db"
	"github.com/rabiesresq/rabiesresq/internal/platform/middleware"
)

const version = "0.1.0"

// devActor is injected for unauthenticated requests when ENV=development.
var devActor = auth.Actor{
	ID:        "dev",
	Role:      auth.RoleSystemAdmin,
	ClinicID:  1,
	PatientID: 1,
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a token act as a system admin for clinic 1")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svc, err := newService(cfg, pool, logger)
	if err != nil {
		return err
	}

	e := newEcho(cfg, logger, svc)
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
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
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the router with everything except the database health check,
// which needs a live pool.
func newEcho(cfg *config.Config, logger zerolog.Logger, svc *casemgmt.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.JWTSigningKey),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg, devActor)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api/v1",
		middleware.BodyLimit(cfg.BodyLimit),
		middleware.RequestTimeout(cfg.RequestTimeout()),
		authMW,
		middleware.RateLimit(rateLimitCfg),
	)

	sweep := middleware.Maintenance(logger, func(ctx context.Context, clinicID int64) error {
		_, err := svc.RunMaintenance(ctx, clinicID)
		return err
	})
	casemgmt.NewHandler(svc).RegisterRoutes(api, sweep)

	return e
}
