// Package storage persists the divvy domain. Store is the single port the
// services and handlers depend on; SQLite is the default implementation,
// Postgres the alternative for shared deployments, and the in-memory store
// backs tests.
package storage

import (
	"context"
	"time"

	"divvy/internal/core"
)

// ProviderTransaction is a transaction as reported by the open-banking
// provider, before it becomes a ledger row.
type ProviderTransaction struct {
	ProviderID  string
	AccountID   int64
	Description string
	Amount      core.Money
	Kind        core.TransactionKind
	Date        time.Time
	Category    string
}

type Store interface {
	// Organizations
	ListOrganizations(ctx context.Context) ([]core.Organization, error)
	CreateOrganization(ctx context.Context, o core.Organization) (core.Organization, error)

	// Cost centers
	ListCostCenters(ctx context.Context, orgID int64) ([]core.CostCenter, error)
	GetCostCenter(ctx context.Context, orgID, id int64) (core.CostCenter, error)
	CreateCostCenter(ctx context.Context, c core.CostCenter) (core.CostCenter, error)
	UpdateCostCenter(ctx context.Context, c core.CostCenter) error

	// Transactions. Create and Update write the row and its splits in one
	// transaction; Update replaces the split set wholesale.
	ListTransactions(ctx context.Context, orgID int64, year int, month time.Month) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, orgID, id int64) (core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, orgID, id int64) error

	// Bills. PayBill atomically inserts the spawned expense (with splits),
	// marks the bill paid, and inserts the successor when recurring.
	// RevertBill atomically deletes the spawned expense and resets the bill.
	ListBills(ctx context.Context, orgID int64) ([]core.Bill, error)
	GetBill(ctx context.Context, orgID, id int64) (core.Bill, error)
	CreateBill(ctx context.Context, b core.Bill) (core.Bill, error)
	UpdateBill(ctx context.Context, b core.Bill) error
	PayBill(ctx context.Context, bill core.Bill, expense core.Transaction, successor *core.Bill) (core.Transaction, error)
	RevertBill(ctx context.Context, bill core.Bill) error

	// Bank accounts
	ListAccounts(ctx context.Context, orgID int64) ([]core.BankAccount, error)
	GetAccount(ctx context.Context, orgID, id int64) (core.BankAccount, error)
	CreateAccount(ctx context.Context, a core.BankAccount) (core.BankAccount, error)
	// TransferBetweenAccounts debits one account, credits the other, and
	// records the paired confirmed transactions, all atomically.
	TransferBetweenAccounts(ctx context.Context, orgID, fromID, toID int64, amount core.Money, description string, date time.Time) error

	// Open-banking links
	ListBankLinks(ctx context.Context, orgID int64) ([]core.BankLink, error)
	GetBankLink(ctx context.Context, orgID, id int64) (core.BankLink, error)
	CreateBankLink(ctx context.Context, l core.BankLink) (core.BankLink, error)
	UpdateBankLinkStatus(ctx context.Context, orgID, id int64, status core.LinkStatus, syncedAt *time.Time) error
	DeleteBankLink(ctx context.Context, orgID, id int64) error
	// ListPendingBankLinks spans organizations; the sync worker's backlog
	// pass uses it to recover links whose queue message was lost.
	ListPendingBankLinks(ctx context.Context) ([]core.BankLink, error)
	// UpsertProviderAccount and UpsertProviderTransaction are idempotent by
	// provider identifier so sync retries never duplicate rows.
	UpsertProviderAccount(ctx context.Context, orgID, linkID int64, providerAccountID, name, institution string, balance core.Money) (core.BankAccount, error)
	UpsertProviderTransaction(ctx context.Context, orgID int64, pt ProviderTransaction) error

	// Goals and badges
	ListGoals(ctx context.Context, orgID int64) ([]core.Goal, error)
	GetGoal(ctx context.Context, orgID, id int64) (core.Goal, error)
	CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
	UpdateGoal(ctx context.Context, g core.Goal) error
	DeleteGoal(ctx context.Context, orgID, id int64) error
	// AddContribution inserts the contribution and advances the goal's
	// current amount (flipping status to achieved when warranted) atomically.
	AddContribution(ctx context.Context, orgID int64, c core.Contribution) (core.Goal, error)
	ListContributions(ctx context.Context, orgID int64) ([]core.Contribution, error)
	ListEarnedBadges(ctx context.Context, orgID int64) ([]core.EarnedBadge, error)
	SaveEarnedBadge(ctx context.Context, b core.EarnedBadge) error

	Close() error
}
