package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"divvy/internal/config"
	"divvy/internal/log"
	"divvy/internal/storage"
	"divvy/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("starting bills-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	processor := worker.NewBillsProcessor(store, worker.BillsProcessorConfig{
		Interval: cfg.BillsInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start bills processor", "error", err)
		os.Exit(1)
	}
	logger.Info("bills processor running", "interval", cfg.BillsInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Error("bills processor shutdown error", "error", err)
	}
	logger.Info("bills-worker stopped gracefully")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.DataBackend {
	case "postgres":
		return storage.NewPostgresStore(context.Background(), cfg.PostgresURL)
	default:
		return storage.NewSQLiteStore(cfg.SQLiteDBPath)
	}
}
