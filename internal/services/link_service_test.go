package services

import (
	"context"
	"errors"
	"testing"

	"divvy/internal/banksync"
	"divvy/internal/core"
	"divvy/internal/storage"
)

type fakeProvider struct {
	deleted  []string
	sessions int
}

func (p *fakeProvider) CreateWidgetSession(context.Context) (banksync.WidgetSession, error) {
	p.sessions++
	return banksync.WidgetSession{ID: "ws_1", ConnectURL: "https://connect.example/ws_1"}, nil
}

func (p *fakeProvider) DeleteLink(_ context.Context, providerLinkID string) error {
	p.deleted = append(p.deleted, providerLinkID)
	return nil
}

func TestRegisterQueuesFirstSync(t *testing.T) {
	store := storage.NewMemoryStore()
	queue := &eventRecorder{}
	svc := NewLinkService(store, &fakeProvider{}, queue)
	ctx := context.Background()

	link, err := svc.Register(ctx, 1, "lnk_abc", "Banco Azul")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if link.Status != core.LinkPendingSync {
		t.Errorf("new link status = %s, want pending_sync", link.Status)
	}
	if len(queue.events) != 1 || queue.events[0].action != "link_sync" || queue.events[0].txID != link.ID {
		t.Errorf("expected one link_sync message, got %+v", queue.events)
	}
}

func TestRegisterSurvivesQueueOutage(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewLinkService(store, &fakeProvider{}, &eventRecorder{fail: true})

	link, err := svc.Register(context.Background(), 1, "lnk_abc", "Banco Azul")
	if err != nil {
		t.Fatalf("Register should not fail on queue outage: %v", err)
	}
	got, _ := store.GetBankLink(context.Background(), 1, link.ID)
	if got.Status != core.LinkPendingSync {
		t.Error("link should stay pending for the backlog pass")
	}
}

func TestRegisterRequiresProviderID(t *testing.T) {
	svc := NewLinkService(storage.NewMemoryStore(), &fakeProvider{}, nil)
	if _, err := svc.Register(context.Background(), 1, "", "Banco"); err == nil {
		t.Error("expected error for empty provider link id")
	}
}

func TestRequestSyncRejectsTerminalLinks(t *testing.T) {
	store := storage.NewMemoryStore()
	queue := &eventRecorder{}
	svc := NewLinkService(store, &fakeProvider{}, queue)
	ctx := context.Background()

	link, _ := store.CreateBankLink(ctx, core.BankLink{
		OrganizationID: 1, ProviderLinkID: "lnk_old", Status: core.LinkExpired,
	})
	if err := svc.RequestSync(ctx, 1, link.ID); err == nil {
		t.Error("expected error requesting sync for an expired link")
	}

	healthy, _ := store.CreateBankLink(ctx, core.BankLink{
		OrganizationID: 1, ProviderLinkID: "lnk_ok", Status: core.LinkSynced,
	})
	if err := svc.RequestSync(ctx, 1, healthy.ID); err != nil {
		t.Fatalf("RequestSync: %v", err)
	}
	got, _ := store.GetBankLink(ctx, 1, healthy.ID)
	if got.Status != core.LinkPendingSync {
		t.Errorf("link status = %s, want pending_sync while queued", got.Status)
	}
	if len(queue.events) != 1 {
		t.Errorf("expected one queued sync, got %d", len(queue.events))
	}
}

func TestRemoveRevokesAtProvider(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := &fakeProvider{}
	svc := NewLinkService(store, provider, nil)
	ctx := context.Background()

	link, _ := store.CreateBankLink(ctx, core.BankLink{
		OrganizationID: 1, ProviderLinkID: "lnk_abc", Status: core.LinkSynced,
	})
	acct, _ := store.UpsertProviderAccount(ctx, 1, link.ID, "acc_1", "Conta", "Banco", core.Money{Cents: 100})

	if err := svc.Remove(ctx, 1, link.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != "lnk_abc" {
		t.Errorf("provider revocation missing: %+v", provider.deleted)
	}
	if _, err := store.GetBankLink(ctx, 1, link.ID); !errors.Is(err, core.ErrNotFound) {
		t.Error("link should be deleted locally")
	}

	// The synced account survives, detached from the link.
	got, err := store.GetAccount(ctx, 1, acct.ID)
	if err != nil {
		t.Fatalf("account should survive link removal: %v", err)
	}
	if got.LinkID != nil {
		t.Error("surviving account should be detached from the deleted link")
	}
}

func TestStartWidgetSession(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewLinkService(storage.NewMemoryStore(), provider, nil)

	ws, err := svc.StartWidgetSession(context.Background())
	if err != nil {
		t.Fatalf("StartWidgetSession: %v", err)
	}
	if ws.ConnectURL == "" || provider.sessions != 1 {
		t.Errorf("unexpected session: %+v (sessions=%d)", ws, provider.sessions)
	}
}
