package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"divvy/internal/amqp"
	"divvy/internal/banksync"
	"divvy/internal/config"
	"divvy/internal/export"
	"divvy/internal/export/google"
	"divvy/internal/log"
	"divvy/internal/storage"
	"divvy/internal/worker"
)

// backlogInterval is how often the worker sweeps for pending links whose sync
// message got lost.
const backlogInterval = 15 * time.Minute

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("starting sync-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}
	if !cfg.SyncEnabled() {
		logger.Error("bank provider not configured, nothing to sync (set BANK_PROVIDER_URL)")
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	provider := banksync.NewClient(cfg.ProviderBaseURL, cfg.ProviderSecretID, cfg.ProviderSecretKey)
	syncWorker := worker.NewSyncWorker(store, provider)

	syncClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.SyncQueue)
	if err != nil {
		logger.Error("failed to connect to sync queue", "error", err)
		os.Exit(1)
	}
	defer syncClient.Close()

	// The spreadsheet export rides the ledger queue and is optional.
	var exporter *export.Exporter
	var ledgerClient *amqp.Client
	if cfg.ExportEnabled() {
		writer, err := google.New(context.Background(),
			cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, cfg.GoogleOAuthTokenJSON)
		if err != nil {
			logger.Error("failed to initialize spreadsheet export", "error", err)
			os.Exit(1)
		}
		ledgerClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.LedgerQueue)
		if err != nil {
			logger.Error("failed to connect to ledger queue", "error", err)
			os.Exit(1)
		}
		defer ledgerClient.Close()
		exporter = export.NewExporter(store, writer)
		logger.Info("spreadsheet export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("spreadsheet export disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return syncClient.ConsumeLinkSync(ctx, func(msg *amqp.LinkSyncMessage) error {
			return syncWorker.HandleSyncMessage(ctx, msg)
		})
	})

	g.Go(func() error {
		// Sweep immediately so links registered while the worker was down do
		// not wait a full interval.
		if err := syncWorker.ProcessPendingLinks(ctx); err != nil {
			logger.Error("backlog sweep failed", "error", err)
		}
		ticker := time.NewTicker(backlogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := syncWorker.ProcessPendingLinks(ctx); err != nil {
					logger.Error("backlog sweep failed", "error", err)
				}
			}
		}
	})

	if exporter != nil {
		g.Go(func() error {
			return ledgerClient.ConsumeLedgerEvents(ctx, func(msg *amqp.LedgerEventMessage) error {
				return exporter.HandleLedgerEvent(ctx, msg)
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("sync-worker stopped gracefully")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.DataBackend {
	case "postgres":
		return storage.NewPostgresStore(context.Background(), cfg.PostgresURL)
	default:
		return storage.NewSQLiteStore(cfg.SQLiteDBPath)
	}
}
