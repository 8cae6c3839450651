package worker

import (
	"context"
	"testing"
	"time"

	"divvy/internal/core"
	"divvy/internal/storage"
)

func newBillsFixture(t *testing.T) (*BillsProcessor, *storage.MemoryStore, int64) {
	t.Helper()
	store := storage.NewMemoryStore()
	org, err := store.CreateOrganization(context.Background(), core.Organization{Name: "Test Family"})
	if err != nil {
		t.Fatalf("seed org: %v", err)
	}
	p := NewBillsProcessor(store, BillsProcessorConfig{Interval: time.Hour})
	p.now = func() time.Time { return time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC) }
	return p, store, org.ID
}

func TestRunOnceNeverCreatesBills(t *testing.T) {
	p, store, org := newBillsFixture(t)
	ctx := context.Background()

	// Due 2025-03-01, never paid, two periods behind. Only payment spawns a
	// successor; the scan must leave this as a single overdue row.
	stale, _ := store.CreateBill(ctx, core.Bill{
		OrganizationID: org, Description: "Rent", Amount: core.Money{Cents: 80000},
		DueDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Status: core.BillPending,
		Category: "Housing", Recurring: true, Frequency: core.Monthly,
	})

	if err := p.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if err := p.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}

	bills, _ := store.ListBills(ctx, org)
	if len(bills) != 1 {
		t.Fatalf("unpaid recurring bill spawned extra rows: got %d bills", len(bills))
	}
	if bills[0].ID != stale.ID || bills[0].Status != core.BillPending {
		t.Errorf("stored bill changed: %+v", bills[0])
	}
	if bills[0].EffectiveStatus(p.now()) != core.BillOverdue {
		t.Errorf("bill should read as overdue, got %s", bills[0].EffectiveStatus(p.now()))
	}
}

func TestRunOnceLeavesCurrentBillsAlone(t *testing.T) {
	p, store, org := newBillsFixture(t)
	ctx := context.Background()

	// Due later this month, nothing to report.
	store.CreateBill(ctx, core.Bill{
		OrganizationID: org, Description: "Internet", Amount: core.Money{Cents: 4500},
		DueDate: time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), Status: core.BillPending,
		Category: "Utilities", Recurring: true, Frequency: core.Monthly,
	})
	// Non-recurring overdue bill: logged, never duplicated.
	store.CreateBill(ctx, core.Bill{
		OrganizationID: org, Description: "Dentist", Amount: core.Money{Cents: 12000},
		DueDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Status: core.BillPending,
		Category: "Health",
	})
	// Paid recurring bill: its successor was spawned at payment time.
	store.CreateBill(ctx, core.Bill{
		OrganizationID: org, Description: "Gym", Amount: core.Money{Cents: 3500},
		DueDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Status: core.BillPaid,
		Category: "Health", Recurring: true, Frequency: core.Monthly,
	})

	if err := p.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	bills, _ := store.ListBills(ctx, org)
	if len(bills) != 3 {
		t.Errorf("processor should not have created bills: got %d", len(bills))
	}
}

func TestStartStop(t *testing.T) {
	p, _, _ := newBillsFixture(t)
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stopping again is a no-op.
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("repeat Stop: %v", err)
	}
}
