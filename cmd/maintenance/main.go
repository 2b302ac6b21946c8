package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wayfarer-social/backend/internal/cachemanager"
	"github.com/wayfarer-social/backend/internal/cachestore"
	"github.com/wayfarer-social/backend/internal/circuitbreaker"
	"github.com/wayfarer-social/backend/internal/config"
	"github.com/wayfarer-social/backend/internal/errorreporting"
	"github.com/wayfarer-social/backend/internal/kvstore"
	"github.com/wayfarer-social/backend/internal/logger"
	"github.com/wayfarer-social/backend/internal/maintenance"
	"github.com/wayfarer-social/backend/internal/metrics"
	"github.com/wayfarer-social/backend/internal/ops"
	"github.com/wayfarer-social/backend/internal/postdb"
	"github.com/wayfarer-social/backend/internal/ratelimit"
	"github.com/wayfarer-social/backend/internal/secrets"
	"github.com/wayfarer-social/backend/internal/session"
	"github.com/wayfarer-social/backend/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found (falling back to system env)")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	// Production deployments must not run against an unauthenticated
	// backend or without error reporting.
	if cfg.SentryEnvironment == "production" {
		err := secrets.ValidateRequired(map[string]string{
			"REDIS_PASSWORD": cfg.RedisPassword,
			"SENTRY_DSN":     cfg.SentryDSN,
		})
		if err != nil {
			logger.Error("configuration invalid", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("configuration loaded",
		"redis_addr", cfg.RedisAddr,
		"redis_password", secrets.Mask(cfg.RedisPassword),
		"database_url", secrets.MaskURL(cfg.DatabaseURL))

	if err := errorreporting.Init(cfg.SentryEnvironment); err != nil {
		logger.Warn("sentry init failed", "error", err)
	}
	defer errorreporting.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Init("wayfarer-maintenance", cfg.OTELEndpoint, cfg.OTELEnabled, cfg.OTELSampleRate)
	if err != nil {
		logger.Warn("tracing init failed", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := kvstore.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	// The backend handle is the single ownership root; every component
	// below shares it.
	cache := cachestore.New(kv, cfg.CacheDefaultTTL)
	sessions := session.NewWithTTL(kv, cfg.SessionTTL)
	limiter := ratelimit.New(kv)
	recorder := metrics.NewRecorder(kv)
	recorder.SetRetention(cfg.MetricsRetention, cfg.ReportRetention)
	manager := cachemanager.New(cache, sessions, limiter, recorder)
	manager.SetRateLimitWindow(cfg.RateLimitWindow)

	// The popular-posts refresh needs the data layer; without it the
	// sweep is skipped and the rest of maintenance still runs.
	var fetchPopular maintenance.PopularPostsFetcher
	if cfg.DatabaseURL != "" {
		db, err := postdb.Init(cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres init failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		// A breaker keeps the refresh sweep from hammering a database
		// that is already down.
		breaker := circuitbreaker.New(circuitbreaker.Config{Name: "postgres"})
		fetchPopular = func(ctx context.Context) ([]map[string]any, error) {
			var posts []map[string]any
			err := breaker.Do(func() error {
				var err error
				posts, err = db.PopularPosts(ctx, cfg.PopularPostsLimit)
				return err
			})
			return posts, err
		}
	} else {
		logger.Warn("DATABASE_URL not set; popular posts refresh disabled")
	}

	svc := maintenance.New(kv, recorder, manager, fetchPopular, maintenance.Intervals{
		SessionPurge:   cfg.SessionPurgeInterval,
		PopularRefresh: cfg.PopularRefreshInterval,
		RateLimitPurge: cfg.RateLimitPurgeInterval,
		DailyReport:    cfg.DailyReportInterval,
	}, cfg.MaintenanceSweepRPS)

	handler := ops.NewHandler(manager, func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return kv.Ping(pingCtx)
	})
	srv := &http.Server{
		Addr:         cfg.OpsListenAddr,
		Handler:      handler.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info("ops listener running", "addr", cfg.OpsListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops listener failed", "error", err)
			stop()
		}
	}()

	logger.Info("🚀 maintenance service started",
		"session_purge", cfg.SessionPurgeInterval,
		"popular_refresh", cfg.PopularRefreshInterval,
		"rate_limit_purge", cfg.RateLimitPurgeInterval)
	svc.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops listener shutdown failed", "error", err)
	}
	logger.Info("maintenance service stopped")
}
