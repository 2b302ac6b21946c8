// One-shot daily report generation. Connects to the cache backend,
// builds and persists today's report, and prints it to stdout.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wayfarer-social/backend/internal/config"
	"github.com/wayfarer-social/backend/internal/errorreporting"
	"github.com/wayfarer-social/backend/internal/kvstore"
	"github.com/wayfarer-social/backend/internal/logger"
	"github.com/wayfarer-social/backend/internal/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found (falling back to system env)")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if err := errorreporting.Init(cfg.SentryEnvironment); err != nil {
		logger.Warn("sentry init failed", "error", err)
	}
	defer errorreporting.Flush(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	kv, err := kvstore.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	recorder := metrics.NewRecorder(kv)
	recorder.SetRetention(cfg.MetricsRetention, cfg.ReportRetention)

	report := recorder.GenerateDailyReport(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to print report", "error", err)
		os.Exit(1)
	}
}
