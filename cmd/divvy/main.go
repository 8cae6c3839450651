package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"divvy/internal/amqp"
	"divvy/internal/banksync"
	"divvy/internal/config"
	apphttp "divvy/internal/http"
	"divvy/internal/log"
	"divvy/internal/services"
	"divvy/internal/storage"
)

func main() {
	// Load .env for local development; in containers the environment is real.
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentApp})
	log.SetDefault(logger)

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
	logger.Info("store ready", "backend", cfg.DataBackend)

	// Publishers are optional: without a broker the API still works, only the
	// async paths (export, background sync) stay quiet.
	var ledgerPub services.LedgerPublisher
	var syncPub services.SyncPublisher
	if ledgerClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.LedgerQueue); err != nil {
		logger.Warn("ledger queue unavailable, events disabled", "error", err)
	} else {
		defer ledgerClient.Close()
		ledgerPub = ledgerClient
	}
	if syncClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.SyncQueue); err != nil {
		logger.Warn("sync queue unavailable, link syncs rely on the worker backlog", "error", err)
	} else {
		defer syncClient.Close()
		syncPub = syncClient
	}

	ledger := services.NewLedgerService(store, ledgerPub)

	var links *services.LinkService
	if cfg.SyncEnabled() {
		provider := banksync.NewClient(cfg.ProviderBaseURL, cfg.ProviderSecretID, cfg.ProviderSecretKey)
		links = services.NewLinkService(store, provider, syncPub)
		logger.Info("bank provider configured", "url", cfg.ProviderBaseURL)
	} else {
		logger.Info("bank provider not configured, link endpoints disabled")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:     store,
		Ledger:    ledger,
		Bills:     services.NewBillService(store, ledger),
		Goals:     services.NewGoalService(store),
		Links:     links,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("starting divvy server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.DataBackend {
	case "postgres":
		return storage.NewPostgresStore(context.Background(), cfg.PostgresURL)
	default:
		return storage.NewSQLiteStore(cfg.SQLiteDBPath)
	}
}
