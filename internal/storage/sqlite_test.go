package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"divvy/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "divvy_test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedOrg(t *testing.T, s *SQLiteStore) int64 {
	t.Helper()
	res, err := s.db.Exec(`INSERT INTO organizations (name) VALUES ('Test Family')`)
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestCostCenterRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s)

	created, err := s.CreateCostCenter(ctx, core.CostCenter{
		OrganizationID: org, Name: "Ana", Color: "#3b82f6", Active: true,
		DefaultSplitPercentage: 60,
	})
	if err != nil {
		t.Fatalf("CreateCostCenter: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := s.GetCostCenter(ctx, org, created.ID)
	if err != nil {
		t.Fatalf("GetCostCenter: %v", err)
	}
	if got.Name != "Ana" || got.DefaultSplitPercentage != 60 || !got.Active {
		t.Errorf("unexpected cost center: %+v", got)
	}

	got.Active = false
	if err := s.UpdateCostCenter(ctx, got); err != nil {
		t.Fatalf("UpdateCostCenter: %v", err)
	}
	got, _ = s.GetCostCenter(ctx, org, created.ID)
	if got.Active {
		t.Error("expected cost center deactivated")
	}

	if _, err := s.GetCostCenter(ctx, org, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionWithSplits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s)

	ana, _ := s.CreateCostCenter(ctx, core.CostCenter{OrganizationID: org, Name: "Ana", Active: true})
	rui, _ := s.CreateCostCenter(ctx, core.CostCenter{OrganizationID: org, Name: "Rui", Active: true})

	tx := core.Transaction{
		OrganizationID: org, Kind: core.KindExpense, Description: "Groceries",
		Amount: core.Money{Cents: 10000}, Date: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Shared: true, Category: "Food", Status: core.StatusConfirmed,
		Splits: []core.Split{
			{CostCenterID: ana.ID, Percentage: 60, Amount: core.Money{Cents: 6000}},
			{CostCenterID: rui.ID, Percentage: 40, Amount: core.Money{Cents: 4000}},
		},
	}
	created, err := s.CreateTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := s.GetTransaction(ctx, org, created.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if len(got.Splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(got.Splits))
	}
	if got.Splits[0].Amount.Cents+got.Splits[1].Amount.Cents != 10000 {
		t.Error("split amounts do not sum to total")
	}
	if !got.Date.Equal(tx.Date) {
		t.Errorf("date round trip: got %v want %v", got.Date, tx.Date)
	}

	// Replacing splits must not leave the old set behind.
	got.Splits = []core.Split{{CostCenterID: ana.ID, Percentage: 100, Amount: core.Money{Cents: 10000}}}
	if err := s.UpdateTransaction(ctx, got); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	got, _ = s.GetTransaction(ctx, org, created.ID)
	if len(got.Splits) != 1 || got.Splits[0].Percentage != 100 {
		t.Errorf("expected single 100%% split, got %+v", got.Splits)
	}

	list, err := s.ListTransactions(ctx, org, 2025, time.March)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 transaction in march, got %d", len(list))
	}
	if len(list[0].Splits) != 1 {
		t.Error("list did not eager-load splits")
	}

	empty, _ := s.ListTransactions(ctx, org, 2025, time.April)
	if len(empty) != 0 {
		t.Errorf("expected no transactions in april, got %d", len(empty))
	}

	if err := s.DeleteTransaction(ctx, org, created.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, err := s.GetTransaction(ctx, org, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPayAndRevertBill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s)

	bill, err := s.CreateBill(ctx, core.Bill{
		OrganizationID: org, Description: "Rent", Amount: core.Money{Cents: 80000},
		DueDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Status: core.BillPending,
		Category: "Housing", Recurring: true, Frequency: core.Monthly,
	})
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}

	bill.PaymentMethod = "bank_transfer"
	expense := core.Transaction{
		OrganizationID: org, Kind: core.KindExpense, Description: "Rent",
		Amount: bill.Amount, Date: bill.DueDate, Category: "Housing",
		PaymentMethod: "bank_transfer", Status: core.StatusConfirmed,
	}
	successor := bill
	successor.ID = 0
	successor.Status = core.BillPending
	successor.PaymentMethod = ""
	successor.DueDate = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	spawned, err := s.PayBill(ctx, bill, expense, &successor)
	if err != nil {
		t.Fatalf("PayBill: %v", err)
	}
	if spawned.ID == 0 {
		t.Fatal("expected spawned expense id")
	}

	paid, _ := s.GetBill(ctx, org, bill.ID)
	if paid.Status != core.BillPaid {
		t.Errorf("bill status = %s, want paid", paid.Status)
	}
	if paid.ExpenseID == nil || *paid.ExpenseID != spawned.ID {
		t.Error("bill not linked to spawned expense")
	}

	bills, _ := s.ListBills(ctx, org)
	if len(bills) != 2 {
		t.Fatalf("expected paid bill plus successor, got %d bills", len(bills))
	}

	// Paying an already paid bill must fail without side effects.
	if _, err := s.PayBill(ctx, paid, expense, nil); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound paying paid bill, got %v", err)
	}
	txs, _ := s.ListTransactions(ctx, org, 2025, time.April)
	if len(txs) != 1 {
		t.Errorf("double pay leaked transactions: got %d", len(txs))
	}

	if err := s.RevertBill(ctx, paid); err != nil {
		t.Fatalf("RevertBill: %v", err)
	}
	reverted, _ := s.GetBill(ctx, org, bill.ID)
	if reverted.Status != core.BillPending || reverted.ExpenseID != nil {
		t.Errorf("revert left bill as %+v", reverted)
	}
	txs, _ = s.ListTransactions(ctx, org, 2025, time.April)
	if len(txs) != 0 {
		t.Errorf("revert left spawned expense behind: %d transactions", len(txs))
	}
}

func TestTransferBetweenAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s)

	from, _ := s.CreateAccount(ctx, core.BankAccount{OrganizationID: org, Name: "Checking", Balance: core.Money{Cents: 50000}})
	to, _ := s.CreateAccount(ctx, core.BankAccount{OrganizationID: org, Name: "Savings", Balance: core.Money{Cents: 10000}})

	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := s.TransferBetweenAccounts(ctx, org, from.ID, to.ID, core.Money{Cents: 20000}, "monthly savings", date); err != nil {
		t.Fatalf("TransferBetweenAccounts: %v", err)
	}

	f, _ := s.GetAccount(ctx, org, from.ID)
	g, _ := s.GetAccount(ctx, org, to.ID)
	if f.Balance.Cents != 30000 || g.Balance.Cents != 30000 {
		t.Errorf("balances after transfer: from=%d to=%d", f.Balance.Cents, g.Balance.Cents)
	}

	txs, _ := s.ListTransactions(ctx, org, 2025, time.June)
	if len(txs) != 2 {
		t.Fatalf("expected paired ledger rows, got %d", len(txs))
	}

	// A transfer to a missing account must roll back the debit.
	if err := s.TransferBetweenAccounts(ctx, org, from.ID, 9999, core.Money{Cents: 1000}, "oops", date); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	f, _ = s.GetAccount(ctx, org, from.ID)
	if f.Balance.Cents != 30000 {
		t.Errorf("failed transfer changed balance: %d", f.Balance.Cents)
	}
}

func TestProviderUpsertsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s)

	link, _ := s.CreateBankLink(ctx, core.BankLink{
		OrganizationID: org, ProviderLinkID: "lnk_abc", Institution: "Banco Azul",
		Status: core.LinkPendingSync,
	})

	a1, err := s.UpsertProviderAccount(ctx, org, link.ID, "acc_1", "Conta Corrente", "Banco Azul", core.Money{Cents: 123400})
	if err != nil {
		t.Fatalf("UpsertProviderAccount: %v", err)
	}
	a2, err := s.UpsertProviderAccount(ctx, org, link.ID, "acc_1", "Conta Corrente", "Banco Azul", core.Money{Cents: 150000})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if a1.ID != a2.ID {
		t.Errorf("upsert created duplicate account: %d vs %d", a1.ID, a2.ID)
	}
	if a2.Balance.Cents != 150000 {
		t.Errorf("upsert did not refresh balance: %d", a2.Balance.Cents)
	}

	pt := ProviderTransaction{
		ProviderID: "tx_1", AccountID: a1.ID, Description: "SUPERMERCADO",
		Amount: core.Money{Cents: 4550}, Kind: core.KindExpense,
		Date: time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC), Category: "Food",
	}
	if err := s.UpsertProviderTransaction(ctx, org, pt); err != nil {
		t.Fatalf("UpsertProviderTransaction: %v", err)
	}
	if err := s.UpsertProviderTransaction(ctx, org, pt); err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}
	txs, _ := s.ListTransactions(ctx, org, 2025, time.July)
	if len(txs) != 1 {
		t.Fatalf("expected 1 imported transaction, got %d", len(txs))
	}
	if txs[0].Status != core.StatusPending {
		t.Errorf("imported transaction status = %s, want pending", txs[0].Status)
	}

	now := time.Now().UTC()
	if err := s.UpdateBankLinkStatus(ctx, org, link.ID, core.LinkSynced, &now); err != nil {
		t.Fatalf("UpdateBankLinkStatus: %v", err)
	}
	got, _ := s.GetBankLink(ctx, org, link.ID)
	if got.Status != core.LinkSynced || got.LastSyncedAt == nil {
		t.Errorf("link after sync: %+v", got)
	}
}

func TestContributionAdvancesGoal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := seedOrg(t, s)

	goal, err := s.CreateGoal(ctx, core.Goal{
		OrganizationID: org, Name: "Vacation", Target: core.Money{Cents: 100000},
		Status: core.GoalActive,
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	date := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	g, err := s.AddContribution(ctx, org, core.Contribution{GoalID: goal.ID, Amount: core.Money{Cents: 40000}, Date: date})
	if err != nil {
		t.Fatalf("AddContribution: %v", err)
	}
	if g.Current.Cents != 40000 || g.Status != core.GoalActive {
		t.Errorf("after first contribution: %+v", g)
	}

	g, err = s.AddContribution(ctx, org, core.Contribution{GoalID: goal.ID, Amount: core.Money{Cents: 60000}, Date: date})
	if err != nil {
		t.Fatalf("AddContribution: %v", err)
	}
	if g.Status != core.GoalAchieved {
		t.Errorf("goal not achieved at target: %+v", g)
	}

	contribs, _ := s.ListContributions(ctx, org)
	if len(contribs) != 2 {
		t.Errorf("expected 2 contributions, got %d", len(contribs))
	}

	badge := core.EarnedBadge{OrganizationID: org, Code: core.BadgeGoalAchieved, EarnedAt: time.Now().UTC()}
	if err := s.SaveEarnedBadge(ctx, badge); err != nil {
		t.Fatalf("SaveEarnedBadge: %v", err)
	}
	if err := s.SaveEarnedBadge(ctx, badge); err != nil {
		t.Fatalf("repeat SaveEarnedBadge: %v", err)
	}
	badges, _ := s.ListEarnedBadges(ctx, org)
	if len(badges) != 1 {
		t.Errorf("badge saved twice: got %d", len(badges))
	}
}
