// Package report folds already-fetched transactions into the per-owner,
// per-category, and per-month totals the dashboard displays. Everything here
// is pure computation; fetching is the caller's problem.
package report

import (
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"divvy/internal/core"
)

// SharedOwner labels the organization-wide pseudo-owner in per-owner totals
// when no shared cost center provides a name.
const SharedOwner = "Shared"

// OwnerTotal is one row of the per-owner breakdown.
type OwnerTotal struct {
	Owner  string
	Color  string
	Amount core.Money
}

// Summary is a month's dashboard payload.
type Summary struct {
	Year          int
	Month         int
	TotalExpenses core.Money
	TotalIncome   core.Money
	Balance       core.Money
	Score         int
	ExpensesByOwner    []OwnerTotal
	ExpensesByCategory map[string]core.Money
	IncomeByCategory   map[string]core.Money
}

// TotalsByOwner attributes amounts to display owners.
//
// Shared transactions count in full under the shared pseudo-owner and also
// contribute each cost center's split amount to that owner's personal total.
// When a shared transaction predates explicit splits, each active individual
// cost center falls back to its current default split percentage; that path
// is logged because edits to defaults silently reshape historical totals.
func TotalsByOwner(txs []core.Transaction, centers []core.CostCenter) map[string]core.Money {
	byID := make(map[int64]core.CostCenter, len(centers))
	sharedName := SharedOwner
	for _, c := range centers {
		byID[c.ID] = c
		if c.Shared {
			sharedName = c.Name
		}
	}

	totals := make(map[string]core.Money)
	add := func(owner string, cents int64) {
		m := totals[owner]
		m.Cents += cents
		totals[owner] = m
	}

	for _, t := range txs {
		if !t.Shared {
			if t.CostCenterID == nil {
				slog.Warn("skipping unattributed transaction in owner totals", "transaction_id", t.ID)
				continue
			}
			c, ok := byID[*t.CostCenterID]
			if !ok {
				slog.Warn("transaction references unknown cost center", "transaction_id", t.ID, "cost_center_id", *t.CostCenterID)
				continue
			}
			add(c.Name, t.Amount.Cents)
			continue
		}

		add(sharedName, t.Amount.Cents)

		if len(t.Splits) > 0 {
			for _, sp := range t.Splits {
				if c, ok := byID[sp.CostCenterID]; ok {
					add(c.Name, sp.Amount.Cents)
				}
			}
			continue
		}

		// Legacy rows created before splits were materialized.
		slog.Warn("shared transaction has no splits, falling back to default percentages", "transaction_id", t.ID)
		for _, c := range centers {
			if !c.Active || c.Shared {
				continue
			}
			add(c.Name, defaultShare(t.Amount, c.DefaultSplitPercentage))
		}
	}
	return totals
}

// defaultShare computes amount × percentage / 100 in cents, half-up. Rounding
// is per-center on this path; the fallback makes no exact-sum promise.
func defaultShare(amount core.Money, percentage float64) int64 {
	return decimal.NewFromInt(amount.Cents).
		Mul(decimal.NewFromFloat(percentage)).
		Div(decimal.NewFromInt(100)).
		Round(0).IntPart()
}

// TotalsByCategory groups full transaction amounts by category name.
func TotalsByCategory(txs []core.Transaction) map[string]core.Money {
	totals := make(map[string]core.Money)
	for _, t := range txs {
		m := totals[t.Category]
		m.Cents += t.Amount.Cents
		totals[t.Category] = m
	}
	return totals
}

// TotalsByMonth groups full transaction amounts into "YYYY-MM" buckets.
func TotalsByMonth(txs []core.Transaction) map[string]core.Money {
	totals := make(map[string]core.Money)
	for _, t := range txs {
		key := t.Date.Format("2006-01")
		m := totals[key]
		m.Cents += t.Amount.Cents
		totals[key] = m
	}
	return totals
}

// Summarize builds the month dashboard from one month's transactions (both
// kinds, splits eagerly loaded) and the organization's cost centers.
func Summarize(year int, month time.Month, txs []core.Transaction, centers []core.CostCenter) Summary {
	var expenses, income []core.Transaction
	for _, t := range txs {
		if t.Status == core.StatusCancelled {
			continue
		}
		switch t.Kind {
		case core.KindExpense:
			expenses = append(expenses, t)
		case core.KindIncome:
			income = append(income, t)
		}
	}

	s := Summary{
		Year:               year,
		Month:              int(month),
		ExpensesByCategory: TotalsByCategory(expenses),
		IncomeByCategory:   TotalsByCategory(income),
	}
	for _, t := range expenses {
		s.TotalExpenses.Cents += t.Amount.Cents
	}
	for _, t := range income {
		s.TotalIncome.Cents += t.Amount.Cents
	}
	s.Balance = core.Money{Cents: s.TotalIncome.Cents - s.TotalExpenses.Cents}
	s.Score = core.FinancialScore(s.TotalExpenses, s.TotalIncome)

	byOwner := TotalsByOwner(expenses, centers)
	for owner, amount := range byOwner {
		s.ExpensesByOwner = append(s.ExpensesByOwner, OwnerTotal{
			Owner:  owner,
			Color:  ownerColor(owner, centers),
			Amount: amount,
		})
	}
	sortOwners(s.ExpensesByOwner)
	return s
}

func ownerColor(owner string, centers []core.CostCenter) string {
	for _, c := range centers {
		if core.SameName(c.Name, owner) {
			if c.Color != "" {
				return c.Color
			}
			if c.Shared {
				return core.SharedColor
			}
			break
		}
	}
	return core.ColorFor(owner)
}

// sortOwners orders rows by descending amount, then name, so the breakdown
// is stable for rendering and tests.
func sortOwners(rows []OwnerTotal) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Amount.Cents != rows[j].Amount.Cents {
			return rows[i].Amount.Cents > rows[j].Amount.Cents
		}
		return rows[i].Owner < rows[j].Owner
	})
}
