// Command gateway runs the notification and compliance gateway for the
// patient portal: a WebSocket push layer, a durable notification store, and
// the compliance pipeline every protected request passes through.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medisync/gateway/internal/config"
	"github.com/medisync/gateway/internal/domain/auditlog"
	"github.com/medisync/gateway/internal/domain/notification"
	"github.com/medisync/gateway/internal/platform/auth"
	"github.com/medisync/gateway/internal/platform/compliance"
	"github.com/medisync/gateway/internal/platform/db"
	"github.com/medisync/gateway/internal/platform/directory"
	"github.com/medisync/gateway/internal/platform/metrics"
	"github.com/medisync/gateway/internal/platform/middleware"
	"github.com/medisync/gateway/internal/platform/realtime"
	"github.com/medisync/gateway/internal/platform/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Notification & compliance gateway for the patient portal",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Session activity store: Redis when configured, in-process otherwise.
	var sessions session.Store
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		sessions = session.NewRedisStore(redisClient, cfg.IdleTimeout())
		logger.Info().Msg("session store: redis")
	} else {
		sessions = session.NewMemoryStore()
		logger.Info().Msg("session store: in-memory")
	}

	m := metrics.New()
	dir := directory.NewPG(pool)

	// Audit sink.
	auditRepo := auditlog.NewRepoPG(pool)
	sink := auditlog.NewSink(auditRepo, logger, m, cfg.AuditFailurePolicy, cfg.AuditQueueSize)
	sink.Start()
	defer sink.Close()

	// Compliance pipeline.
	pipeline := compliance.New(compliance.Options{
		ConsentVersion:    cfg.ConsentVersion,
		IdleTimeout:       cfg.IdleTimeout(),
		ProtectedPrefixes: cfg.ProtectedPrefixes,
		RedactAllowRoles:  cfg.RedactAllowRoles,
	}, dir, sessions, sink, logger, m)

	// Realtime hub and notification dispatch.
	hub := realtime.NewHub(pipeline, logger, m)
	pusher := realtime.NewNotificationPusher(hub, logger)
	notifRepo := notification.NewRepoPG(pool)
	dispatcher := notification.NewDispatcher(notifRepo, dir, pusher, logger, m)
	router := realtime.NewRouter(hub, pipeline, dispatcher, logger)
	wsHandler := realtime.NewHandler(hub, router, pipeline, logger, cfg.PushSendTimeout())

	// Background sweep of expired notifications.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go dispatcher.RunSweeper(sweepCtx, cfg.SweepInterval())

	// Echo server.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() && cfg.JWTSigningKey == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}
		if cfg.JWTSigningKey != "" {
			jwtCfg.SigningKey = []byte(cfg.JWTSigningKey)
		}
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// The compliance pipeline guards every protected prefix.
	e.Use(pipeline.Middleware())

	// Operational endpoints.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"version":     "0.1.0",
			"connections": hub.ConnectionCount(),
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API routes.
	apiV1 := e.Group("/api/v1")
	rateCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateCfg.RequestsPerSecond <= 0 {
		rateCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateCfg))

	notifHandler := notification.NewHandler(notifRepo, dispatcher)
	notifHandler.RegisterRoutes(apiV1)

	auditHandler := auditlog.NewHandler(auditlog.NewSearcherPG(pool))
	auditHandler.RegisterRoutes(apiV1)

	// WebSocket endpoint.
	wsHandler.RegisterRoutes(e.Group(""))

	// Serve with graceful shutdown.
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("gateway listening")
		errCh <- e.Start(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}

	stopSweep()
	logger.Info().Msg("gateway stopped")
	return nil
}
