package export_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"divvy/internal/amqp"
	"divvy/internal/core"
	"divvy/internal/export"
	"divvy/internal/export/memory"
	"divvy/internal/storage"
)

func seedLedger(t *testing.T) (*storage.MemoryStore, core.Transaction) {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()

	org, err := store.CreateOrganization(ctx, core.Organization{Name: "Casa"})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	cc, err := store.CreateCostCenter(ctx, core.CostCenter{
		OrganizationID: org.ID, Name: "Anna", Active: true, DefaultSplitPercentage: 50,
	})
	if err != nil {
		t.Fatalf("create cost center: %v", err)
	}

	tx, err := store.CreateTransaction(ctx, core.Transaction{
		OrganizationID: org.ID,
		Kind:           core.KindExpense,
		Description:    "Groceries",
		Amount:         core.Money{Cents: 4550},
		Date:           time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
		CostCenterID:   &cc.ID,
		Category:       "Food",
		Status:         core.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return store, tx
}

func TestCreatedEventAppendsRowAndSummary(t *testing.T) {
	store, tx := seedLedger(t)
	writer := memory.NewWriter()
	exp := export.NewExporter(store, writer)

	msg := amqp.NewLedgerEventMessage(tx.OrganizationID, tx.ID, "created")
	if err := exp.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleLedgerEvent: %v", err)
	}

	rows := writer.Rows()
	if len(rows) != 1 || rows[0].Description != "Groceries" {
		t.Fatalf("rows = %+v, want the groceries row", rows)
	}
	s, ok := writer.Summary(2025, 3)
	if !ok {
		t.Fatal("summary for 2025-03 not written")
	}
	if s.TotalExpenses.Cents != 4550 {
		t.Errorf("TotalExpenses = %d, want 4550", s.TotalExpenses.Cents)
	}
}

func TestPendingTransactionIsNotAppended(t *testing.T) {
	store, tx := seedLedger(t)
	tx.ID = 0
	tx.Description = "Imported"
	tx.Status = core.StatusPending
	pending, err := store.CreateTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("create pending transaction: %v", err)
	}

	writer := memory.NewWriter()
	exp := export.NewExporter(store, writer)
	msg := amqp.NewLedgerEventMessage(pending.OrganizationID, pending.ID, "created")
	if err := exp.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleLedgerEvent: %v", err)
	}

	if len(writer.Rows()) != 0 {
		t.Error("pending transactions must not be exported as rows")
	}
	if _, ok := writer.Summary(2025, 3); !ok {
		t.Error("summary should still be refreshed")
	}
}

func TestUpdatedEventOnlyRefreshesSummary(t *testing.T) {
	store, tx := seedLedger(t)
	writer := memory.NewWriter()
	exp := export.NewExporter(store, writer)

	msg := amqp.NewLedgerEventMessage(tx.OrganizationID, tx.ID, "updated")
	if err := exp.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleLedgerEvent: %v", err)
	}

	if len(writer.Rows()) != 0 {
		t.Error("updates must not append new rows")
	}
	if _, ok := writer.Summary(2025, 3); !ok {
		t.Error("summary for 2025-03 not written")
	}
}

func TestMissingTransactionIsDropped(t *testing.T) {
	store, tx := seedLedger(t)
	writer := memory.NewWriter()
	exp := export.NewExporter(store, writer)

	msg := amqp.NewLedgerEventMessage(tx.OrganizationID, 9999, "deleted")
	if err := exp.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Errorf("missing transaction should not requeue, got %v", err)
	}
	if len(writer.Rows()) != 0 {
		t.Error("nothing should be written for a missing transaction")
	}
}

func TestWriterFailureRequeues(t *testing.T) {
	store, tx := seedLedger(t)
	writer := memory.NewWriter()
	writer.FailWith = errors.New("sheet unavailable")
	exp := export.NewExporter(store, writer)

	msg := amqp.NewLedgerEventMessage(tx.OrganizationID, tx.ID, "created")
	if err := exp.HandleLedgerEvent(context.Background(), msg); err == nil {
		t.Error("writer failure should surface so the message requeues")
	}
}
