// Package main runs the scheduled-task engine on a fixed interval.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/taskhive/backend/config"
	"github.com/taskhive/backend/internal/partition"
	"github.com/taskhive/backend/internal/scheduler"
	"github.com/taskhive/backend/internal/tenants"
	"github.com/taskhive/backend/pkg/database"
	"github.com/taskhive/backend/pkg/metrics"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	manager := partition.NewManager(pool, logger)
	// The engine always reads activation state fresh from the store, so no
	// Redis cache here.
	directory := tenants.NewDirectory(tenants.NewRepository(pool), nil, logger)
	engine := scheduler.NewEngine(directory, scheduler.NewPGStores(pool, manager), cfg.Scheduler.Workers, logger)

	metricsSrv := &http.Server{Addr: ":" + cfg.Scheduler.MetricsPort, Handler: metrics.Handler()}
	go func() {
		logger.Info("metrics listening", zap.String("port", cfg.Scheduler.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	interval := time.Duration(cfg.Scheduler.IntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("worker started", zap.Duration("interval", interval), zap.Int("workers", cfg.Scheduler.Workers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	run := func() {
		if _, err := engine.RunOnce(runCtx); err != nil {
			logger.Error("engine run", zap.Error(err))
		}
	}
	run()
	for {
		select {
		case <-ticker.C:
			run()
		case <-quit:
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
			logger.Info("worker stopped")
			return
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
