package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"divvy/internal/banksync"
	"divvy/internal/core"
	"divvy/internal/storage"
)

// SyncPublisher enqueues link sync requests for the sync worker.
type SyncPublisher interface {
	PublishLinkSync(ctx context.Context, orgID, linkID int64) error
}

// ProviderAPI is the slice of the provider client the link service needs.
type ProviderAPI interface {
	CreateWidgetSession(ctx context.Context) (banksync.WidgetSession, error)
	DeleteLink(ctx context.Context, providerLinkID string) error
}

// LinkService owns the bank link lifecycle: widget sessions, registration
// after the connect flow, and revocation. The actual data pull happens in the
// sync worker, fed through the sync queue.
type LinkService struct {
	store    storage.Store
	provider ProviderAPI
	queue    SyncPublisher
}

func NewLinkService(store storage.Store, provider ProviderAPI, queue SyncPublisher) *LinkService {
	return &LinkService{store: store, provider: provider, queue: queue}
}

// StartWidgetSession opens a provider connect session for the frontend.
func (s *LinkService) StartWidgetSession(ctx context.Context) (banksync.WidgetSession, error) {
	ws, err := s.provider.CreateWidgetSession(ctx)
	if err != nil {
		return banksync.WidgetSession{}, fmt.Errorf("create widget session: %w", err)
	}
	return ws, nil
}

// Register stores a link the user just connected through the widget and
// queues its first sync. The link starts as pending_sync; the worker moves
// it on.
func (s *LinkService) Register(ctx context.Context, orgID int64, providerLinkID, institution string) (core.BankLink, error) {
	if providerLinkID == "" {
		return core.BankLink{}, fmt.Errorf("provider link id required")
	}
	link, err := s.store.CreateBankLink(ctx, core.BankLink{
		OrganizationID: orgID,
		ProviderLinkID: providerLinkID,
		Institution:    institution,
		Status:         core.LinkPendingSync,
	})
	if err != nil {
		return core.BankLink{}, fmt.Errorf("save bank link: %w", err)
	}

	if err := s.enqueueSync(ctx, orgID, link.ID); err != nil {
		// The worker's backlog pass will pick the pending link up.
		slog.ErrorContext(ctx, "failed to queue link sync",
			"error", err, "link_id", link.ID, "org_id", orgID)
	}
	return link, nil
}

// RequestSync queues a refresh for an existing link. Terminal links must be
// re-registered instead.
func (s *LinkService) RequestSync(ctx context.Context, orgID, linkID int64) error {
	link, err := s.store.GetBankLink(ctx, orgID, linkID)
	if err != nil {
		return err
	}
	if link.Status.Terminal() {
		return fmt.Errorf("%w: link %d is %s and must be reconnected", core.ErrInvalidState, linkID, link.Status)
	}
	if err := s.store.UpdateBankLinkStatus(ctx, orgID, linkID, core.LinkPendingSync, nil); err != nil {
		return err
	}
	return s.enqueueSync(ctx, orgID, linkID)
}

// Remove revokes the link at the provider and deletes it locally. Synced
// accounts survive with their link reference cleared.
func (s *LinkService) Remove(ctx context.Context, orgID, linkID int64) error {
	link, err := s.store.GetBankLink(ctx, orgID, linkID)
	if err != nil {
		return err
	}
	if err := s.provider.DeleteLink(ctx, link.ProviderLinkID); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("revoke provider link: %w", err)
	}
	return s.store.DeleteBankLink(ctx, orgID, linkID)
}

func (s *LinkService) enqueueSync(ctx context.Context, orgID, linkID int64) error {
	if s.queue == nil {
		slog.WarnContext(ctx, "sync queue not available, link stays pending", "link_id", linkID)
		return nil
	}
	return s.queue.PublishLinkSync(ctx, orgID, linkID)
}
