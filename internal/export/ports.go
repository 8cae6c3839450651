// Package export mirrors the ledger into a spreadsheet so the household can
// keep its familiar sheet-based overview next to the app.
package export

import (
	"context"

	"divvy/internal/core"
	"divvy/internal/report"
)

// Ports for outbound adapters.
type (
	// TransactionAppender writes one confirmed transaction as a new row.
	TransactionAppender interface {
		AppendTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	// SummaryWriter replaces the dashboard block for one month.
	SummaryWriter interface {
		WriteMonthlySummary(ctx context.Context, s report.Summary) error
	}

	// LedgerWriter is what the exporter needs from a spreadsheet backend.
	LedgerWriter interface {
		TransactionAppender
		SummaryWriter
	}
)
