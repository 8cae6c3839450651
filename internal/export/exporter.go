package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"divvy/internal/amqp"
	"divvy/internal/core"
	"divvy/internal/report"
	"divvy/internal/storage"
)

// Exporter reacts to ledger events by mirroring confirmed transactions to a
// spreadsheet and rewriting the affected month's dashboard block. Rows are
// append-only; updates and deletions only refresh the summary.
type Exporter struct {
	store  storage.Store
	writer LedgerWriter
}

func NewExporter(store storage.Store, writer LedgerWriter) *Exporter {
	return &Exporter{store: store, writer: writer}
}

// HandleLedgerEvent processes one event from the ledger queue. Returning an
// error requeues the message, so transient spreadsheet failures retry.
func (e *Exporter) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	tx, err := e.store.GetTransaction(ctx, msg.OrganizationID, msg.TransactionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before we got to it. Without the row we cannot tell
			// which month to refresh, so there is nothing left to do.
			slog.WarnContext(ctx, "ledger event for missing transaction, skipping",
				"org_id", msg.OrganizationID, "transaction_id", msg.TransactionID)
			return nil
		}
		return fmt.Errorf("load transaction %d: %w", msg.TransactionID, err)
	}

	if msg.Action == "created" && tx.Status == core.StatusConfirmed {
		ref, err := e.writer.AppendTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("append transaction %d: %w", tx.ID, err)
		}
		slog.InfoContext(ctx, "exported transaction",
			"org_id", tx.OrganizationID, "transaction_id", tx.ID, "row", ref)
	}

	return e.refreshSummary(ctx, tx)
}

func (e *Exporter) refreshSummary(ctx context.Context, tx core.Transaction) error {
	year, month := tx.Date.Year(), tx.Date.Month()

	txs, err := e.store.ListTransactions(ctx, tx.OrganizationID, year, month)
	if err != nil {
		return fmt.Errorf("list transactions for %d-%02d: %w", year, month, err)
	}
	centers, err := e.store.ListCostCenters(ctx, tx.OrganizationID)
	if err != nil {
		return fmt.Errorf("list cost centers: %w", err)
	}

	summary := report.Summarize(year, month, txs, centers)
	if err := e.writer.WriteMonthlySummary(ctx, summary); err != nil {
		return fmt.Errorf("write summary for %d-%02d: %w", year, month, err)
	}
	slog.InfoContext(ctx, "refreshed monthly summary",
		"org_id", tx.OrganizationID, "year", year, "month", int(month))
	return nil
}
