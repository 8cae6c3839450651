package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"divvy/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteStore is the default Store implementation: a single local database
// file, migrated on open.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error. Every multi-row
// write goes through here; partial writes must never be visible.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// --- organizations ---

func (s *SQLiteStore) ListOrganizations(ctx context.Context) ([]core.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []core.Organization
	for rows.Next() {
		var o core.Organization
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (s *SQLiteStore) CreateOrganization(ctx context.Context, o core.Organization) (core.Organization, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO organizations (name) VALUES (?)`, o.Name)
	if err != nil {
		return core.Organization{}, fmt.Errorf("create organization: %w", err)
	}
	o.ID, _ = res.LastInsertId()
	return o, nil
}

// --- cost centers ---

func (s *SQLiteStore) ListCostCenters(ctx context.Context, orgID int64) ([]core.CostCenter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, color, active, shared, default_split_percentage, user_id
		FROM cost_centers WHERE organization_id = ? ORDER BY shared DESC, name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list cost centers: %w", err)
	}
	defer rows.Close()

	var centers []core.CostCenter
	for rows.Next() {
		c, err := scanCostCenter(rows)
		if err != nil {
			return nil, err
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

func (s *SQLiteStore) GetCostCenter(ctx context.Context, orgID, id int64) (core.CostCenter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, color, active, shared, default_split_percentage, user_id
		FROM cost_centers WHERE organization_id = ? AND id = ?`, orgID, id)
	c, err := scanCostCenter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CostCenter{}, core.ErrNotFound
	}
	return c, err
}

func (s *SQLiteStore) CreateCostCenter(ctx context.Context, c core.CostCenter) (core.CostCenter, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_centers (organization_id, name, color, active, shared, default_split_percentage, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.OrganizationID, c.Name, c.Color, c.Active, c.Shared, c.DefaultSplitPercentage, c.UserID)
	if err != nil {
		return core.CostCenter{}, fmt.Errorf("create cost center: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return c, nil
}

func (s *SQLiteStore) UpdateCostCenter(ctx context.Context, c core.CostCenter) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cost_centers SET name = ?, color = ?, active = ?, shared = ?, default_split_percentage = ?, user_id = ?
		WHERE organization_id = ? AND id = ?`,
		c.Name, c.Color, c.Active, c.Shared, c.DefaultSplitPercentage, c.UserID, c.OrganizationID, c.ID)
	if err != nil {
		return fmt.Errorf("update cost center: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCostCenter(r rowScanner) (core.CostCenter, error) {
	var c core.CostCenter
	err := r.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Color, &c.Active, &c.Shared, &c.DefaultSplitPercentage, &c.UserID)
	if err != nil {
		return core.CostCenter{}, err
	}
	return c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- transactions ---

const txColumns = `id, organization_id, kind, description, amount_cents, date, shared,
	cost_center_id, category, payment_method, status`

func (s *SQLiteStore) ListTransactions(ctx context.Context, orgID int64, year int, month time.Month) ([]core.Transaction, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE organization_id = ? AND date >= ? AND date < ?
		ORDER BY date, id`,
		orgID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Eager-load splits for the whole month in one pass.
	for i := range txs {
		splits, err := s.loadSplits(ctx, s.db, txs[i].ID)
		if err != nil {
			return nil, err
		}
		txs[i].Splits = splits
	}
	return txs, nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, orgID, id int64) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE organization_id = ? AND id = ?`, orgID, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, err
	}
	t.Splits, err = s.loadSplits(ctx, s.db, t.ID)
	return t, err
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) loadSplits(ctx context.Context, q querier, txID int64) ([]core.Split, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, transaction_id, cost_center_id, percentage, amount_cents
		FROM splits WHERE transaction_id = ? ORDER BY id`, txID)
	if err != nil {
		return nil, fmt.Errorf("load splits: %w", err)
	}
	defer rows.Close()

	var splits []core.Split
	for rows.Next() {
		var sp core.Split
		if err := rows.Scan(&sp.ID, &sp.TransactionID, &sp.CostCenterID, &sp.Percentage, &sp.Amount.Cents); err != nil {
			return nil, err
		}
		splits = append(splits, sp)
	}
	return splits, rows.Err()
}

func scanTransaction(r rowScanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		dateStr string
	)
	err := r.Scan(&t.ID, &t.OrganizationID, &t.Kind, &t.Description, &t.Amount.Cents, &dateStr,
		&t.Shared, &t.CostCenterID, &t.Category, &t.PaymentMethod, &t.Status)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Date, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", dateStr, err)
	}
	return t, nil
}

func insertTransactionTx(ctx context.Context, tx *sql.Tx, t core.Transaction) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (organization_id, kind, description, amount_cents, date, shared,
			cost_center_id, category, payment_method, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrganizationID, t.Kind, t.Description, t.Amount.Cents, t.Date.Format(dateLayout),
		t.Shared, t.CostCenterID, t.Category, t.PaymentMethod, t.Status)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, _ := res.LastInsertId()
	for _, sp := range t.Splits {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO splits (transaction_id, cost_center_id, percentage, amount_cents)
			VALUES (?, ?, ?, ?)`, id, sp.CostCenterID, sp.Percentage, sp.Amount.Cents); err != nil {
			return 0, fmt.Errorf("insert split: %w", err)
		}
	}
	return id, nil
}

func (s *SQLiteStore) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		id, err := insertTransactionTx(ctx, tx, t)
		if err != nil {
			return err
		}
		t.ID = id
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	for i := range t.Splits {
		t.Splits[i].TransactionID = t.ID
	}
	return t, nil
}

func (s *SQLiteStore) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions SET description = ?, amount_cents = ?, date = ?, shared = ?,
				cost_center_id = ?, category = ?, payment_method = ?, status = ?
			WHERE organization_id = ? AND id = ?`,
			t.Description, t.Amount.Cents, t.Date.Format(dateLayout), t.Shared,
			t.CostCenterID, t.Category, t.PaymentMethod, t.Status, t.OrganizationID, t.ID)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		// Replace the split set wholesale; delete-then-insert is safe here
		// because it happens inside one transaction.
		if _, err := tx.ExecContext(ctx, `DELETE FROM splits WHERE transaction_id = ?`, t.ID); err != nil {
			return fmt.Errorf("delete old splits: %w", err)
		}
		for _, sp := range t.Splits {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO splits (transaction_id, cost_center_id, percentage, amount_cents)
				VALUES (?, ?, ?, ?)`, t.ID, sp.CostCenterID, sp.Percentage, sp.Amount.Cents); err != nil {
				return fmt.Errorf("insert split: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteTransaction(ctx context.Context, orgID, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res)
}

// --- bills ---

const billColumns = `id, organization_id, description, amount_cents, due_date, status, category,
	cost_center_id, payment_method, recurring, frequency, expense_id`

func (s *SQLiteStore) ListBills(ctx context.Context, orgID int64) ([]core.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+billColumns+` FROM bills WHERE organization_id = ? ORDER BY due_date, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (s *SQLiteStore) GetBill(ctx context.Context, orgID, id int64) (core.Bill, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+billColumns+` FROM bills WHERE organization_id = ? AND id = ?`, orgID, id)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, core.ErrNotFound
	}
	return b, err
}

func scanBill(r rowScanner) (core.Bill, error) {
	var (
		b       core.Bill
		dueStr  string
		freqStr string
	)
	err := r.Scan(&b.ID, &b.OrganizationID, &b.Description, &b.Amount.Cents, &dueStr, &b.Status,
		&b.Category, &b.CostCenterID, &b.PaymentMethod, &b.Recurring, &freqStr, &b.ExpenseID)
	if err != nil {
		return core.Bill{}, err
	}
	b.Frequency = core.RecurrenceFrequency(freqStr)
	b.DueDate, err = time.Parse(dateLayout, dueStr)
	if err != nil {
		return core.Bill{}, fmt.Errorf("parse bill due date %q: %w", dueStr, err)
	}
	return b, nil
}

func (s *SQLiteStore) CreateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bills (organization_id, description, amount_cents, due_date, status, category,
			cost_center_id, payment_method, recurring, frequency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.OrganizationID, b.Description, b.Amount.Cents, b.DueDate.Format(dateLayout), b.Status,
		b.Category, b.CostCenterID, b.PaymentMethod, b.Recurring, string(b.Frequency))
	if err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}
	b.ID, _ = res.LastInsertId()
	return b, nil
}

func (s *SQLiteStore) UpdateBill(ctx context.Context, b core.Bill) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bills SET description = ?, amount_cents = ?, due_date = ?, status = ?, category = ?,
			cost_center_id = ?, payment_method = ?, recurring = ?, frequency = ?, expense_id = ?
		WHERE organization_id = ? AND id = ?`,
		b.Description, b.Amount.Cents, b.DueDate.Format(dateLayout), b.Status, b.Category,
		b.CostCenterID, b.PaymentMethod, b.Recurring, string(b.Frequency), b.ExpenseID,
		b.OrganizationID, b.ID)
	if err != nil {
		return fmt.Errorf("update bill: %w", err)
	}
	return requireRow(res)
}

// PayBill performs the whole mark-paid chain atomically: spawned expense with
// splits, bill status flip, and the recurring successor when present.
func (s *SQLiteStore) PayBill(ctx context.Context, bill core.Bill, expense core.Transaction, successor *core.Bill) (core.Transaction, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		expID, err := insertTransactionTx(ctx, tx, expense)
		if err != nil {
			return err
		}
		expense.ID = expID

		res, err := tx.ExecContext(ctx, `
			UPDATE bills SET status = ?, payment_method = ?, expense_id = ?
			WHERE organization_id = ? AND id = ? AND status = 'pending'`,
			core.BillPaid, bill.PaymentMethod, expID, bill.OrganizationID, bill.ID)
		if err != nil {
			return fmt.Errorf("mark bill paid: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}

		if successor != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO bills (organization_id, description, amount_cents, due_date, status, category,
					cost_center_id, payment_method, recurring, frequency)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				successor.OrganizationID, successor.Description, successor.Amount.Cents,
				successor.DueDate.Format(dateLayout), successor.Status, successor.Category,
				successor.CostCenterID, successor.PaymentMethod, successor.Recurring,
				string(successor.Frequency)); err != nil {
				return fmt.Errorf("insert successor bill: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return expense, nil
}

// RevertBill deletes the spawned expense (splits cascade) and resets the
// bill to pending, atomically.
func (s *SQLiteStore) RevertBill(ctx context.Context, bill core.Bill) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bills SET status = ?, expense_id = NULL
			WHERE organization_id = ? AND id = ? AND status = 'paid'`,
			core.BillPending, bill.OrganizationID, bill.ID)
		if err != nil {
			return fmt.Errorf("revert bill: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		if bill.ExpenseID != nil {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM transactions WHERE organization_id = ? AND id = ?`,
				bill.OrganizationID, *bill.ExpenseID); err != nil {
				return fmt.Errorf("delete spawned expense: %w", err)
			}
		}
		return nil
	})
}

// --- bank accounts ---

func (s *SQLiteStore) ListAccounts(ctx context.Context, orgID int64) ([]core.BankAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, institution, balance_cents, link_id
		FROM bank_accounts WHERE organization_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.BankAccount
	for rows.Next() {
		var a core.BankAccount
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Institution, &a.Balance.Cents, &a.LinkID); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStore) GetAccount(ctx context.Context, orgID, id int64) (core.BankAccount, error) {
	var a core.BankAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, institution, balance_cents, link_id
		FROM bank_accounts WHERE organization_id = ? AND id = ?`, orgID, id).
		Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Institution, &a.Balance.Cents, &a.LinkID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BankAccount{}, core.ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, a core.BankAccount) (core.BankAccount, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (organization_id, name, institution, balance_cents, link_id)
		VALUES (?, ?, ?, ?, ?)`,
		a.OrganizationID, a.Name, a.Institution, a.Balance.Cents, a.LinkID)
	if err != nil {
		return core.BankAccount{}, fmt.Errorf("create account: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return a, nil
}

func (s *SQLiteStore) TransferBetweenAccounts(ctx context.Context, orgID, fromID, toID int64, amount core.Money, description string, date time.Time) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bank_accounts SET balance_cents = balance_cents - ?
			WHERE organization_id = ? AND id = ?`, amount.Cents, orgID, fromID)
		if err != nil {
			return fmt.Errorf("debit account: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE bank_accounts SET balance_cents = balance_cents + ?
			WHERE organization_id = ? AND id = ?`, amount.Cents, orgID, toID)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		// Record the paired ledger rows so the transfer shows up in both
		// account histories.
		out := core.Transaction{
			OrganizationID: orgID, Kind: core.KindExpense, Description: description,
			Amount: amount, Date: date, Category: "Transfer", Status: core.StatusConfirmed,
		}
		in := out
		in.Kind = core.KindIncome
		if _, err := insertTransactionTx(ctx, tx, out); err != nil {
			return err
		}
		if _, err := insertTransactionTx(ctx, tx, in); err != nil {
			return err
		}
		return nil
	})
}

// --- bank links ---

func (s *SQLiteStore) ListBankLinks(ctx context.Context, orgID int64) ([]core.BankLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, provider_link_id, institution, status, last_synced_at
		FROM bank_links WHERE organization_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list bank links: %w", err)
	}
	defer rows.Close()

	var links []core.BankLink
	for rows.Next() {
		var l core.BankLink
		if err := rows.Scan(&l.ID, &l.OrganizationID, &l.ProviderLinkID, &l.Institution, &l.Status, &l.LastSyncedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *SQLiteStore) GetBankLink(ctx context.Context, orgID, id int64) (core.BankLink, error) {
	var l core.BankLink
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, provider_link_id, institution, status, last_synced_at
		FROM bank_links WHERE organization_id = ? AND id = ?`, orgID, id).
		Scan(&l.ID, &l.OrganizationID, &l.ProviderLinkID, &l.Institution, &l.Status, &l.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BankLink{}, core.ErrNotFound
	}
	return l, err
}

func (s *SQLiteStore) CreateBankLink(ctx context.Context, l core.BankLink) (core.BankLink, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_links (organization_id, provider_link_id, institution, status)
		VALUES (?, ?, ?, ?)`,
		l.OrganizationID, l.ProviderLinkID, l.Institution, l.Status)
	if err != nil {
		return core.BankLink{}, fmt.Errorf("create bank link: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return l, nil
}

func (s *SQLiteStore) UpdateBankLinkStatus(ctx context.Context, orgID, id int64, status core.LinkStatus, syncedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_links SET status = ?, last_synced_at = COALESCE(?, last_synced_at)
		WHERE organization_id = ? AND id = ?`, status, syncedAt, orgID, id)
	if err != nil {
		return fmt.Errorf("update bank link status: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteBankLink(ctx context.Context, orgID, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bank_links WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete bank link: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListPendingBankLinks(ctx context.Context) ([]core.BankLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, provider_link_id, institution, status, last_synced_at
		FROM bank_links WHERE status = ? ORDER BY id`, core.LinkPendingSync)
	if err != nil {
		return nil, fmt.Errorf("list pending bank links: %w", err)
	}
	defer rows.Close()

	var links []core.BankLink
	for rows.Next() {
		var l core.BankLink
		if err := rows.Scan(&l.ID, &l.OrganizationID, &l.ProviderLinkID, &l.Institution, &l.Status, &l.LastSyncedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *SQLiteStore) UpsertProviderAccount(ctx context.Context, orgID, linkID int64, providerAccountID, name, institution string, balance core.Money) (core.BankAccount, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (organization_id, name, institution, balance_cents, link_id, provider_account_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_account_id) WHERE provider_account_id IS NOT NULL DO UPDATE SET
			name = excluded.name, balance_cents = excluded.balance_cents`,
		orgID, name, institution, balance.Cents, linkID, providerAccountID)
	if err != nil {
		return core.BankAccount{}, fmt.Errorf("upsert provider account: %w", err)
	}
	var a core.BankAccount
	err = s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, institution, balance_cents, link_id
		FROM bank_accounts WHERE provider_account_id = ?`, providerAccountID).
		Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Institution, &a.Balance.Cents, &a.LinkID)
	return a, err
}

func (s *SQLiteStore) UpsertProviderTransaction(ctx context.Context, orgID int64, pt ProviderTransaction) error {
	// Imported rows arrive unassigned (no cost center, not shared) and
	// pending so they surface for manual review.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (organization_id, kind, description, amount_cents, date, shared,
			category, status, account_id, provider_tx_id)
		VALUES (?, ?, ?, ?, ?, 0, ?, 'pending', ?, ?)
		ON CONFLICT (provider_tx_id) WHERE provider_tx_id IS NOT NULL DO UPDATE SET
			description = excluded.description, amount_cents = excluded.amount_cents`,
		orgID, pt.Kind, pt.Description, pt.Amount.Cents, pt.Date.Format(dateLayout),
		pt.Category, pt.AccountID, pt.ProviderID)
	if err != nil {
		return fmt.Errorf("upsert provider transaction: %w", err)
	}
	return nil
}

// --- goals, contributions, badges ---

func (s *SQLiteStore) ListGoals(ctx context.Context, orgID int64) ([]core.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, target_cents, current_cents, deadline, status
		FROM goals WHERE organization_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *SQLiteStore) GetGoal(ctx context.Context, orgID, id int64) (core.Goal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, target_cents, current_cents, deadline, status
		FROM goals WHERE organization_id = ? AND id = ?`, orgID, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, core.ErrNotFound
	}
	return g, err
}

func scanGoal(r rowScanner) (core.Goal, error) {
	var (
		g           core.Goal
		deadlineStr string
	)
	err := r.Scan(&g.ID, &g.OrganizationID, &g.Name, &g.Target.Cents, &g.Current.Cents, &deadlineStr, &g.Status)
	if err != nil {
		return core.Goal{}, err
	}
	if deadlineStr != "" {
		g.Deadline, err = time.Parse(dateLayout, deadlineStr)
		if err != nil {
			return core.Goal{}, fmt.Errorf("parse goal deadline %q: %w", deadlineStr, err)
		}
	}
	return g, nil
}

func (s *SQLiteStore) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	deadline := ""
	if !g.Deadline.IsZero() {
		deadline = g.Deadline.Format(dateLayout)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (organization_id, name, target_cents, current_cents, deadline, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.OrganizationID, g.Name, g.Target.Cents, g.Current.Cents, deadline, g.Status)
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}
	g.ID, _ = res.LastInsertId()
	return g, nil
}

func (s *SQLiteStore) UpdateGoal(ctx context.Context, g core.Goal) error {
	deadline := ""
	if !g.Deadline.IsZero() {
		deadline = g.Deadline.Format(dateLayout)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE goals SET name = ?, target_cents = ?, current_cents = ?, deadline = ?, status = ?
		WHERE organization_id = ? AND id = ?`,
		g.Name, g.Target.Cents, g.Current.Cents, deadline, g.Status, g.OrganizationID, g.ID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteGoal(ctx context.Context, orgID, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM goals WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) AddContribution(ctx context.Context, orgID int64, c core.Contribution) (core.Goal, error) {
	var updated core.Goal
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, organization_id, name, target_cents, current_cents, deadline, status
			FROM goals WHERE organization_id = ? AND id = ?`, orgID, c.GoalID)
		g, err := scanGoal(row)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contributions (goal_id, amount_cents, date) VALUES (?, ?, ?)`,
			c.GoalID, c.Amount.Cents, c.Date.Format(dateLayout)); err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}

		g.Current.Cents += c.Amount.Cents
		if g.Current.Cents >= g.Target.Cents {
			g.Status = core.GoalAchieved
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE goals SET current_cents = ?, status = ? WHERE id = ?`,
			g.Current.Cents, g.Status, g.ID); err != nil {
			return fmt.Errorf("advance goal: %w", err)
		}
		updated = g
		return nil
	})
	return updated, err
}

func (s *SQLiteStore) ListContributions(ctx context.Context, orgID int64) ([]core.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.goal_id, c.amount_cents, c.date
		FROM contributions c JOIN goals g ON g.id = c.goal_id
		WHERE g.organization_id = ? ORDER BY c.id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var contribs []core.Contribution
	for rows.Next() {
		var (
			c       core.Contribution
			dateStr string
		)
		if err := rows.Scan(&c.ID, &c.GoalID, &c.Amount.Cents, &dateStr); err != nil {
			return nil, err
		}
		c.Date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse contribution date %q: %w", dateStr, err)
		}
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}

func (s *SQLiteStore) ListEarnedBadges(ctx context.Context, orgID int64) ([]core.EarnedBadge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization_id, code, earned_at FROM earned_badges
		WHERE organization_id = ? ORDER BY earned_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list earned badges: %w", err)
	}
	defer rows.Close()

	var badges []core.EarnedBadge
	for rows.Next() {
		var b core.EarnedBadge
		if err := rows.Scan(&b.OrganizationID, &b.Code, &b.EarnedAt); err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func (s *SQLiteStore) SaveEarnedBadge(ctx context.Context, b core.EarnedBadge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO earned_badges (organization_id, code, earned_at) VALUES (?, ?, ?)
		ON CONFLICT (organization_id, code) DO NOTHING`,
		b.OrganizationID, b.Code, b.EarnedAt)
	if err != nil {
		return fmt.Errorf("save earned badge: %w", err)
	}
	return nil
}
