package report

import (
	"testing"
	"time"

	"divvy/internal/core"
)

func ccID(v int64) *int64 { return &v }

var testCenters = []core.CostCenter{
	{ID: 1, Name: "Casa", Shared: true, Active: true},
	{ID: 2, Name: "Ana", Active: true, DefaultSplitPercentage: 60, Color: "#16a34a"},
	{ID: 3, Name: "José", Active: true, DefaultSplitPercentage: 40},
	{ID: 4, Name: "Old Member", Active: false, DefaultSplitPercentage: 50},
}

func TestTotalsByOwnerWithSplits(t *testing.T) {
	txs := []core.Transaction{
		{
			ID: 1, Kind: core.KindExpense, Amount: core.Money{Cents: 100000}, Shared: true,
			Splits: []core.Split{
				{CostCenterID: 2, Percentage: 60, Amount: core.Money{Cents: 60000}},
				{CostCenterID: 3, Percentage: 40, Amount: core.Money{Cents: 40000}},
			},
		},
		{ID: 2, Kind: core.KindExpense, Amount: core.Money{Cents: 2500}, CostCenterID: ccID(2)},
	}

	totals := TotalsByOwner(txs, testCenters)

	if got := totals["Casa"].Cents; got != 100000 {
		t.Errorf("shared owner total = %d, want 100000", got)
	}
	if got := totals["Ana"].Cents; got != 62500 {
		t.Errorf("Ana total = %d, want 62500 (split + own)", got)
	}
	if got := totals["José"].Cents; got != 40000 {
		t.Errorf("José total = %d, want 40000", got)
	}
}

func TestTotalsByOwnerDefaultFallback(t *testing.T) {
	// A shared transaction with no split rows falls back to each active
	// individual center's default percentage; inactive centers are skipped.
	txs := []core.Transaction{
		{ID: 1, Kind: core.KindExpense, Amount: core.Money{Cents: 10000}, Shared: true},
	}

	totals := TotalsByOwner(txs, testCenters)

	if got := totals["Ana"].Cents; got != 6000 {
		t.Errorf("Ana fallback total = %d, want 6000", got)
	}
	if got := totals["José"].Cents; got != 4000 {
		t.Errorf("José fallback total = %d, want 4000", got)
	}
	if _, ok := totals["Old Member"]; ok {
		t.Error("inactive center must not appear in fallback totals")
	}
}

func TestTotalsByCategoryAndMonth(t *testing.T) {
	txs := []core.Transaction{
		{Category: "Groceries", Amount: core.Money{Cents: 100}, Date: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{Category: "Groceries", Amount: core.Money{Cents: 200}, Date: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)},
		{Category: "Rent", Amount: core.Money{Cents: 5000}, Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	byCat := TotalsByCategory(txs)
	if byCat["Groceries"].Cents != 300 || byCat["Rent"].Cents != 5000 {
		t.Errorf("category totals = %v", byCat)
	}

	byMonth := TotalsByMonth(txs)
	if byMonth["2025-01"].Cents != 300 || byMonth["2025-02"].Cents != 5000 {
		t.Errorf("month totals = %v", byMonth)
	}
}

func TestSummarize(t *testing.T) {
	txs := []core.Transaction{
		{Kind: core.KindExpense, Category: "Rent", Amount: core.Money{Cents: 110000}, CostCenterID: ccID(2), Status: core.StatusConfirmed},
		{Kind: core.KindIncome, Category: "Salary", Amount: core.Money{Cents: 100000}, CostCenterID: ccID(2), Status: core.StatusConfirmed},
		{Kind: core.KindExpense, Category: "Ghost", Amount: core.Money{Cents: 99999}, CostCenterID: ccID(2), Status: core.StatusCancelled},
	}

	s := Summarize(2025, time.January, txs, testCenters)

	if s.TotalExpenses.Cents != 110000 {
		t.Errorf("total expenses = %d, want 110000 (cancelled excluded)", s.TotalExpenses.Cents)
	}
	if s.TotalIncome.Cents != 100000 {
		t.Errorf("total income = %d, want 100000", s.TotalIncome.Cents)
	}
	if s.Balance.Cents != -10000 {
		t.Errorf("balance = %d, want -10000", s.Balance.Cents)
	}
	// ratio 1.1 -> 100 - 10 = 90
	if s.Score != 90 {
		t.Errorf("score = %d, want 90", s.Score)
	}
	if len(s.ExpensesByOwner) != 1 || s.ExpensesByOwner[0].Owner != "Ana" {
		t.Fatalf("owners = %+v, want single Ana row", s.ExpensesByOwner)
	}
	if s.ExpensesByOwner[0].Color != "#16a34a" {
		t.Errorf("owner color = %q, want stored center color", s.ExpensesByOwner[0].Color)
	}
}
