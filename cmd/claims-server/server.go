package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/bkp4113/claim-app/internal/config"
	"github.com/bkp4113/claim-app/internal/domain/claims"
	"github.com/bkp4113/claim-app/internal/platform/auth"
	"github.com/bkp4113/claim-app/internal/platform/db"
	"github.com/bkp4113/claim-app/internal/platform/middleware"
	"github.com/bkp4113/claim-app/internal/platform/validate"
)

const rateLimitPrefix = "claims:ratelimit:top-providers"

// serverDeps are the runtime collaborators of the HTTP server.
type serverDeps struct {
	svc      *claims.Service
	limiter  middleware.Limiter
	dbHealth echo.HandlerFunc
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	var limiter middleware.Limiter = middleware.NewMemoryLimiter(cfg.TopProvidersRatePerMinute)
	if cfg.RedisURL != "" {
		client, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			return err
		}
		defer client.Close()
		limiter = middleware.NewRedisLimiter(client, rateLimitPrefix, cfg.TopProvidersRatePerMinute, time.Minute)
		logger.Info().Msg("using redis rate limiter")
	}

	e := newServer(cfg, logger, serverDeps{
		svc:      claims.NewService(claims.NewRepoPG(pool), cfg.IngestMaxAttempts),
		limiter:  limiter,
		dbHealth: db.HealthHandler(pool),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(cfg *config.Config, logger zerolog.Logger, deps serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Pre(echomw.RemoveTrailingSlash())

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: cfg.CORSAllowedMethods,
		AllowHeaders: cfg.CORSAllowedHeaders,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
	})
	if deps.dbHealth != nil {
		e.GET("/health/db", deps.dbHealth)
	}

	h := claims.NewHandler(deps.svc)
	topProviders := middleware.RateLimit(deps.limiter, middleware.CallerKey)
	requireAuth := authMiddleware(cfg)
	for _, prefix := range []string{"/claims", "/v1/claims"} {
		h.RegisterRoutes(e.Group(prefix, requireAuth), topProviders)
	}

	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		return auth.DevAuthMiddleware(auth.AuthSkipper)
	}
	var key []byte
	if cfg.AuthSigningKey != "" {
		key = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
		Skipper:    auth.AuthSkipper,
	})
}
