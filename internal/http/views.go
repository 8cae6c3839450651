package http

import (
	"time"

	"divvy/internal/core"
	"divvy/internal/report"
)

const dateLayout = "2006-01-02"

// moneyView renders an amount as cents plus a display string. Cents are the
// authoritative value; the string is a convenience for frontends.
type moneyView struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

func money(m core.Money) moneyView {
	return moneyView{Cents: m.Cents, Formatted: m.String()}
}

type organizationView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func orgView(o core.Organization) organizationView {
	return organizationView{ID: o.ID, Name: o.Name}
}

type costCenterView struct {
	ID                     int64   `json:"id"`
	Name                   string  `json:"name"`
	Color                  string  `json:"color"`
	Active                 bool    `json:"active"`
	Shared                 bool    `json:"shared"`
	DefaultSplitPercentage float64 `json:"default_split_percentage"`
	UserID                 *string `json:"user_id,omitempty"`
}

func centerView(c core.CostCenter) costCenterView {
	return costCenterView{
		ID:                     c.ID,
		Name:                   c.Name,
		Color:                  c.Color,
		Active:                 c.Active,
		Shared:                 c.Shared,
		DefaultSplitPercentage: c.DefaultSplitPercentage,
		UserID:                 c.UserID,
	}
}

type splitView struct {
	CostCenterID int64     `json:"cost_center_id"`
	Percentage   float64   `json:"percentage"`
	Amount       moneyView `json:"amount"`
}

type transactionView struct {
	ID            int64       `json:"id"`
	Kind          string      `json:"kind"`
	Description   string      `json:"description"`
	Amount        moneyView   `json:"amount"`
	Date          string      `json:"date"`
	Shared        bool        `json:"shared"`
	CostCenterID  *int64      `json:"cost_center_id,omitempty"`
	Category      string      `json:"category"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Status        string      `json:"status"`
	Splits        []splitView `json:"splits,omitempty"`
}

func txView(t core.Transaction) transactionView {
	v := transactionView{
		ID:            t.ID,
		Kind:          string(t.Kind),
		Description:   t.Description,
		Amount:        money(t.Amount),
		Date:          t.Date.Format(dateLayout),
		Shared:        t.Shared,
		CostCenterID:  t.CostCenterID,
		Category:      t.Category,
		PaymentMethod: t.PaymentMethod,
		Status:        string(t.Status),
	}
	for _, sp := range t.Splits {
		v.Splits = append(v.Splits, splitView{
			CostCenterID: sp.CostCenterID,
			Percentage:   sp.Percentage,
			Amount:       money(sp.Amount),
		})
	}
	return v
}

func txViews(txs []core.Transaction) []transactionView {
	out := make([]transactionView, len(txs))
	for i, t := range txs {
		out[i] = txView(t)
	}
	return out
}

type billView struct {
	ID            int64     `json:"id"`
	Description   string    `json:"description"`
	Amount        moneyView `json:"amount"`
	DueDate       string    `json:"due_date"`
	Status        string    `json:"status"`
	Category      string    `json:"category"`
	CostCenterID  *int64    `json:"cost_center_id,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Recurring     bool      `json:"recurring"`
	Frequency     string    `json:"frequency,omitempty"`
	ExpenseID     *int64    `json:"expense_id,omitempty"`
}

func billToView(b core.Bill) billView {
	return billView{
		ID:            b.ID,
		Description:   b.Description,
		Amount:        money(b.Amount),
		DueDate:       b.DueDate.Format(dateLayout),
		Status:        string(b.Status),
		Category:      b.Category,
		CostCenterID:  b.CostCenterID,
		PaymentMethod: b.PaymentMethod,
		Recurring:     b.Recurring,
		Frequency:     string(b.Frequency),
		ExpenseID:     b.ExpenseID,
	}
}

type goalView struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Target   moneyView `json:"target"`
	Current  moneyView `json:"current"`
	Deadline string    `json:"deadline,omitempty"`
	Status   string    `json:"status"`
}

func goalToView(g core.Goal) goalView {
	v := goalView{
		ID:      g.ID,
		Name:    g.Name,
		Target:  money(g.Target),
		Current: money(g.Current),
		Status:  string(g.Status),
	}
	if !g.Deadline.IsZero() {
		v.Deadline = g.Deadline.Format(dateLayout)
	}
	return v
}

type accountView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Institution string    `json:"institution,omitempty"`
	Balance     moneyView `json:"balance"`
	LinkID      *int64    `json:"link_id,omitempty"`
}

func accountToView(a core.BankAccount) accountView {
	return accountView{
		ID:          a.ID,
		Name:        a.Name,
		Institution: a.Institution,
		Balance:     money(a.Balance),
		LinkID:      a.LinkID,
	}
}

type linkView struct {
	ID             int64  `json:"id"`
	ProviderLinkID string `json:"provider_link_id"`
	Institution    string `json:"institution,omitempty"`
	Status         string `json:"status"`
	LastSyncedAt   string `json:"last_synced_at,omitempty"`
}

func linkToView(l core.BankLink) linkView {
	v := linkView{
		ID:             l.ID,
		ProviderLinkID: l.ProviderLinkID,
		Institution:    l.Institution,
		Status:         string(l.Status),
	}
	if l.LastSyncedAt != nil {
		v.LastSyncedAt = l.LastSyncedAt.Format(time.RFC3339)
	}
	return v
}

type badgeView struct {
	Code     string `json:"code"`
	EarnedAt string `json:"earned_at"`
}

type ownerTotalView struct {
	Owner  string    `json:"owner"`
	Color  string    `json:"color"`
	Amount moneyView `json:"amount"`
}

type summaryView struct {
	Year               int                  `json:"year"`
	Month              int                  `json:"month"`
	TotalExpenses      moneyView            `json:"total_expenses"`
	TotalIncome        moneyView            `json:"total_income"`
	Balance            moneyView            `json:"balance"`
	Score              int                  `json:"score"`
	ExpensesByOwner    []ownerTotalView     `json:"expenses_by_owner"`
	ExpensesByCategory map[string]moneyView `json:"expenses_by_category"`
	IncomeByCategory   map[string]moneyView `json:"income_by_category"`
}

func summaryToView(s report.Summary) summaryView {
	v := summaryView{
		Year:               s.Year,
		Month:              s.Month,
		TotalExpenses:      money(s.TotalExpenses),
		TotalIncome:        money(s.TotalIncome),
		Balance:            money(s.Balance),
		Score:              s.Score,
		ExpensesByCategory: make(map[string]moneyView, len(s.ExpensesByCategory)),
		IncomeByCategory:   make(map[string]moneyView, len(s.IncomeByCategory)),
	}
	for _, o := range s.ExpensesByOwner {
		v.ExpensesByOwner = append(v.ExpensesByOwner, ownerTotalView{
			Owner:  o.Owner,
			Color:  o.Color,
			Amount: money(o.Amount),
		})
	}
	for name, m := range s.ExpensesByCategory {
		v.ExpensesByCategory[name] = money(m)
	}
	for name, m := range s.IncomeByCategory {
		v.IncomeByCategory[name] = money(m)
	}
	return v
}
