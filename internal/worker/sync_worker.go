// Package worker holds the long-running background processors: the bank link
// sync worker fed by the message queue, and the periodic bills processor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"divvy/internal/amqp"
	"divvy/internal/banksync"
	"divvy/internal/core"
	"divvy/internal/storage"
)

// lookback bounds the first transaction pull for a never-synced link.
const initialLookback = 90 * 24 * time.Hour

// Provider is the slice of the banksync client the worker needs.
type Provider interface {
	TriggerSync(ctx context.Context, providerLinkID string) error
	WaitForSync(ctx context.Context, providerLinkID string) (string, error)
	ListAccounts(ctx context.Context, providerLinkID string) ([]banksync.Account, error)
	ListTransactions(ctx context.Context, providerAccountID string, since time.Time) ([]banksync.Transaction, error)
}

// SyncWorker pulls accounts and transactions from the provider into the
// store, one link per message.
type SyncWorker struct {
	store    storage.Store
	provider Provider
	now      func() time.Time
}

func NewSyncWorker(store storage.Store, provider Provider) *SyncWorker {
	return &SyncWorker{store: store, provider: provider, now: time.Now}
}

// HandleSyncMessage processes one queued sync request end to end. The upserts
// are idempotent, so a redelivered message is harmless.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LinkSyncMessage) error {
	link, err := w.store.GetBankLink(ctx, msg.OrganizationID, msg.LinkID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Link removed while the message sat in the queue. Drop it.
			slog.WarnContext(ctx, "sync message for missing link, dropping",
				"link_id", msg.LinkID, "org_id", msg.OrganizationID)
			return nil
		}
		return fmt.Errorf("load bank link: %w", err)
	}
	return w.syncLink(ctx, link)
}

func (w *SyncWorker) syncLink(ctx context.Context, link core.BankLink) error {
	slog.InfoContext(ctx, "syncing bank link",
		"link_id", link.ID, "org_id", link.OrganizationID, "institution", link.Institution)

	if err := w.provider.TriggerSync(ctx, link.ProviderLinkID); err != nil {
		w.markFailed(ctx, link, core.LinkError)
		return fmt.Errorf("trigger provider sync: %w", err)
	}

	status, err := w.provider.WaitForSync(ctx, link.ProviderLinkID)
	if err != nil {
		w.markFailed(ctx, link, core.LinkError)
		return fmt.Errorf("wait for provider sync: %w", err)
	}
	switch status {
	case banksync.ProviderStatusValid:
		// proceed
	case banksync.ProviderStatusExpired:
		w.markFailed(ctx, link, core.LinkExpired)
		slog.WarnContext(ctx, "link expired at provider, reconnection required",
			"link_id", link.ID)
		return nil
	default:
		w.markFailed(ctx, link, core.LinkError)
		return fmt.Errorf("provider reported link status %q", status)
	}

	since := w.now().Add(-initialLookback)
	if link.LastSyncedAt != nil {
		since = *link.LastSyncedAt
	}

	accounts, err := w.provider.ListAccounts(ctx, link.ProviderLinkID)
	if err != nil {
		w.markFailed(ctx, link, core.LinkError)
		return fmt.Errorf("list provider accounts: %w", err)
	}

	var imported int
	for _, pa := range accounts {
		balance, err := banksync.ToMoney(pa.Balance)
		if err != nil {
			slog.ErrorContext(ctx, "skipping account with bad balance",
				"provider_account_id", pa.ID, "error", err)
			continue
		}
		account, err := w.store.UpsertProviderAccount(ctx, link.OrganizationID, link.ID,
			pa.ID, pa.Name, pa.Institution, balance)
		if err != nil {
			w.markFailed(ctx, link, core.LinkError)
			return fmt.Errorf("upsert account %s: %w", pa.ID, err)
		}

		n, err := w.importTransactions(ctx, link.OrganizationID, account.ID, pa.ID, since)
		if err != nil {
			w.markFailed(ctx, link, core.LinkError)
			return err
		}
		imported += n
	}

	syncedAt := w.now()
	if err := w.store.UpdateBankLinkStatus(ctx, link.OrganizationID, link.ID, core.LinkSynced, &syncedAt); err != nil {
		return fmt.Errorf("mark link synced: %w", err)
	}

	slog.InfoContext(ctx, "bank link synced",
		"link_id", link.ID, "accounts", len(accounts), "transactions", imported)
	return nil
}

func (w *SyncWorker) importTransactions(ctx context.Context, orgID, accountID int64, providerAccountID string, since time.Time) (int, error) {
	txs, err := w.provider.ListTransactions(ctx, providerAccountID, since)
	if err != nil {
		return 0, fmt.Errorf("list transactions for %s: %w", providerAccountID, err)
	}

	var imported int
	for _, pt := range txs {
		amount, err := banksync.ToMoney(pt.Amount)
		if err != nil {
			slog.ErrorContext(ctx, "skipping transaction with bad amount",
				"provider_tx_id", pt.ID, "error", err)
			continue
		}
		kind, err := banksync.ToKind(pt.Type)
		if err != nil {
			slog.ErrorContext(ctx, "skipping transaction with unknown flow type",
				"provider_tx_id", pt.ID, "error", err)
			continue
		}
		date, err := time.Parse("2006-01-02", pt.ValueDate)
		if err != nil {
			slog.ErrorContext(ctx, "skipping transaction with bad value date",
				"provider_tx_id", pt.ID, "value_date", pt.ValueDate)
			continue
		}

		err = w.store.UpsertProviderTransaction(ctx, orgID, storage.ProviderTransaction{
			ProviderID:  pt.ID,
			AccountID:   accountID,
			Description: pt.Description,
			Amount:      amount,
			Kind:        kind,
			Date:        date,
			Category:    pt.Category,
		})
		if err != nil {
			return imported, fmt.Errorf("upsert transaction %s: %w", pt.ID, err)
		}
		imported++
	}
	return imported, nil
}

func (w *SyncWorker) markFailed(ctx context.Context, link core.BankLink, status core.LinkStatus) {
	if err := w.store.UpdateBankLinkStatus(ctx, link.OrganizationID, link.ID, status, nil); err != nil {
		slog.ErrorContext(ctx, "failed to record link failure",
			"link_id", link.ID, "status", status, "error", err)
	}
}

// ProcessPendingLinks is the backup pass for links whose queue message was
// lost: anything still pending_sync gets synced directly.
func (w *SyncWorker) ProcessPendingLinks(ctx context.Context) error {
	links, err := w.store.ListPendingBankLinks(ctx)
	if err != nil {
		return fmt.Errorf("list pending links: %w", err)
	}
	if len(links) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "processing pending link backlog", "count", len(links))
	for _, link := range links {
		if err := w.syncLink(ctx, link); err != nil {
			slog.ErrorContext(ctx, "backlog sync failed", "link_id", link.ID, "error", err)
		}
	}
	return nil
}
