package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"divvy/internal/core"
)

// PostgresStore backs shared deployments. Opening it runs the embedded
// migrations, same as the SQLite store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if err := RunPostgresMigrations(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// --- organizations ---

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]core.Organization, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM organizations ORDER BY id`)
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

func (s *PostgresStore) CreateOrganization(ctx context.Context, o core.Organization) (core.Organization, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO organizations (name) VALUES ($1) RETURNING id`, o.Name).Scan(&o.ID)
	if err != nil {
		return core.Organization{}, fmt.Errorf("create organization: %w", err)
	}
	return o, nil
}

// --- cost centers ---

func (s *PostgresStore) ListCostCenters(ctx context.Context, orgID int64) ([]core.CostCenter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, name, color, active, shared, default_split_percentage, user_id
		FROM cost_centers WHERE organization_id = $1 ORDER BY shared DESC, name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list cost centers: %w", err)
	}
	defer rows.Close()

	var centers []core.CostCenter
	for rows.Next() {
		var c core.CostCenter
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Color, &c.Active, &c.Shared,
			&c.DefaultSplitPercentage, &c.UserID); err != nil {
			return nil, err
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

func (s *PostgresStore) GetCostCenter(ctx context.Context, orgID, id int64) (core.CostCenter, error) {
	var c core.CostCenter
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, color, active, shared, default_split_percentage, user_id
		FROM cost_centers WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Color, &c.Active, &c.Shared,
			&c.DefaultSplitPercentage, &c.UserID)
	return c, mapNoRows(err)
}

func (s *PostgresStore) CreateCostCenter(ctx context.Context, c core.CostCenter) (core.CostCenter, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cost_centers (organization_id, name, color, active, shared, default_split_percentage, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		c.OrganizationID, c.Name, c.Color, c.Active, c.Shared, c.DefaultSplitPercentage, c.UserID).
		Scan(&c.ID)
	if err != nil {
		return core.CostCenter{}, fmt.Errorf("create cost center: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCostCenter(ctx context.Context, c core.CostCenter) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cost_centers SET name = $1, color = $2, active = $3, shared = $4,
			default_split_percentage = $5, user_id = $6
		WHERE organization_id = $7 AND id = $8`,
		c.Name, c.Color, c.Active, c.Shared, c.DefaultSplitPercentage, c.UserID, c.OrganizationID, c.ID)
	if err != nil {
		return fmt.Errorf("update cost center: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- transactions ---

const pgTxColumns = `id, organization_id, kind, description, amount_cents, date, shared,
	cost_center_id, category, payment_method, status`

func (s *PostgresStore) ListTransactions(ctx context.Context, orgID int64, year int, month time.Month) ([]core.Transaction, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgTxColumns+` FROM transactions
		WHERE organization_id = $1 AND date >= $2 AND date < $3
		ORDER BY date, id`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Kind, &t.Description, &t.Amount.Cents,
			&t.Date, &t.Shared, &t.CostCenterID, &t.Category, &t.PaymentMethod, &t.Status); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range txs {
		splits, err := s.loadSplits(ctx, txs[i].ID)
		if err != nil {
			return nil, err
		}
		txs[i].Splits = splits
	}
	return txs, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, orgID, id int64) (core.Transaction, error) {
	var t core.Transaction
	err := s.pool.QueryRow(ctx, `
		SELECT `+pgTxColumns+` FROM transactions WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&t.ID, &t.OrganizationID, &t.Kind, &t.Description, &t.Amount.Cents,
			&t.Date, &t.Shared, &t.CostCenterID, &t.Category, &t.PaymentMethod, &t.Status)
	if err != nil {
		return core.Transaction{}, mapNoRows(err)
	}
	t.Splits, err = s.loadSplits(ctx, t.ID)
	return t, err
}

func (s *PostgresStore) loadSplits(ctx context.Context, txID int64) ([]core.Split, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, transaction_id, cost_center_id, percentage, amount_cents
		FROM splits WHERE transaction_id = $1 ORDER BY id`, txID)
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

func insertTransactionPg(ctx context.Context, tx pgx.Tx, t core.Transaction) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (organization_id, kind, description, amount_cents, date, shared,
			cost_center_id, category, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		t.OrganizationID, t.Kind, t.Description, t.Amount.Cents, t.Date, t.Shared,
		t.CostCenterID, t.Category, t.PaymentMethod, t.Status).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	for _, sp := range t.Splits {
		if _, err := tx.Exec(ctx, `
			INSERT INTO splits (transaction_id, cost_center_id, percentage, amount_cents)
			VALUES ($1, $2, $3, $4)`, id, sp.CostCenterID, sp.Percentage, sp.Amount.Cents); err != nil {
			return 0, fmt.Errorf("insert split: %w", err)
		}
	}
	return id, nil
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		id, err := insertTransactionPg(ctx, tx, t)
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

func (s *PostgresStore) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE transactions SET description = $1, amount_cents = $2, date = $3, shared = $4,
				cost_center_id = $5, category = $6, payment_method = $7, status = $8
			WHERE organization_id = $9 AND id = $10`,
			t.Description, t.Amount.Cents, t.Date, t.Shared, t.CostCenterID, t.Category,
			t.PaymentMethod, t.Status, t.OrganizationID, t.ID)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM splits WHERE transaction_id = $1`, t.ID); err != nil {
			return fmt.Errorf("delete old splits: %w", err)
		}
		for _, sp := range t.Splits {
			if _, err := tx.Exec(ctx, `
				INSERT INTO splits (transaction_id, cost_center_id, percentage, amount_cents)
				VALUES ($1, $2, $3, $4)`, t.ID, sp.CostCenterID, sp.Percentage, sp.Amount.Cents); err != nil {
				return fmt.Errorf("insert split: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) DeleteTransaction(ctx context.Context, orgID, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM transactions WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- bills ---

const pgBillColumns = `id, organization_id, description, amount_cents, due_date, status, category,
	cost_center_id, payment_method, recurring, frequency, expense_id`

func scanBillPg(row pgx.Row) (core.Bill, error) {
	var b core.Bill
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Description, &b.Amount.Cents, &b.DueDate,
		&b.Status, &b.Category, &b.CostCenterID, &b.PaymentMethod, &b.Recurring, &b.Frequency, &b.ExpenseID)
	return b, err
}

func (s *PostgresStore) ListBills(ctx context.Context, orgID int64) ([]core.Bill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgBillColumns+` FROM bills WHERE organization_id = $1 ORDER BY due_date, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBillPg(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (s *PostgresStore) GetBill(ctx context.Context, orgID, id int64) (core.Bill, error) {
	b, err := scanBillPg(s.pool.QueryRow(ctx, `
		SELECT `+pgBillColumns+` FROM bills WHERE organization_id = $1 AND id = $2`, orgID, id))
	return b, mapNoRows(err)
}

func (s *PostgresStore) CreateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bills (organization_id, description, amount_cents, due_date, status, category,
			cost_center_id, payment_method, recurring, frequency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		b.OrganizationID, b.Description, b.Amount.Cents, b.DueDate, b.Status, b.Category,
		b.CostCenterID, b.PaymentMethod, b.Recurring, b.Frequency).Scan(&b.ID)
	if err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) UpdateBill(ctx context.Context, b core.Bill) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bills SET description = $1, amount_cents = $2, due_date = $3, status = $4,
			category = $5, cost_center_id = $6, payment_method = $7, recurring = $8,
			frequency = $9, expense_id = $10
		WHERE organization_id = $11 AND id = $12`,
		b.Description, b.Amount.Cents, b.DueDate, b.Status, b.Category, b.CostCenterID,
		b.PaymentMethod, b.Recurring, b.Frequency, b.ExpenseID, b.OrganizationID, b.ID)
	if err != nil {
		return fmt.Errorf("update bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PayBill(ctx context.Context, bill core.Bill, expense core.Transaction, successor *core.Bill) (core.Transaction, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		expID, err := insertTransactionPg(ctx, tx, expense)
		if err != nil {
			return err
		}
		expense.ID = expID

		tag, err := tx.Exec(ctx, `
			UPDATE bills SET status = $1, payment_method = $2, expense_id = $3
			WHERE organization_id = $4 AND id = $5 AND status = 'pending'`,
			core.BillPaid, bill.PaymentMethod, expID, bill.OrganizationID, bill.ID)
		if err != nil {
			return fmt.Errorf("mark bill paid: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.ErrNotFound
		}

		if successor != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO bills (organization_id, description, amount_cents, due_date, status, category,
					cost_center_id, payment_method, recurring, frequency)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				successor.OrganizationID, successor.Description, successor.Amount.Cents,
				successor.DueDate, successor.Status, successor.Category, successor.CostCenterID,
				successor.PaymentMethod, successor.Recurring, successor.Frequency); err != nil {
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

func (s *PostgresStore) RevertBill(ctx context.Context, bill core.Bill) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE bills SET status = $1, expense_id = NULL
			WHERE organization_id = $2 AND id = $3 AND status = 'paid'`,
			core.BillPending, bill.OrganizationID, bill.ID)
		if err != nil {
			return fmt.Errorf("revert bill: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.ErrNotFound
		}
		if bill.ExpenseID != nil {
			if _, err := tx.Exec(ctx, `
				DELETE FROM transactions WHERE organization_id = $1 AND id = $2`,
				bill.OrganizationID, *bill.ExpenseID); err != nil {
				return fmt.Errorf("delete spawned expense: %w", err)
			}
		}
		return nil
	})
}

// --- bank accounts ---

func (s *PostgresStore) ListAccounts(ctx context.Context, orgID int64) ([]core.BankAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, name, institution, balance_cents, link_id
		FROM bank_accounts WHERE organization_id = $1 ORDER BY name`, orgID)
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

func (s *PostgresStore) GetAccount(ctx context.Context, orgID, id int64) (core.BankAccount, error) {
	var a core.BankAccount
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, institution, balance_cents, link_id
		FROM bank_accounts WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Institution, &a.Balance.Cents, &a.LinkID)
	return a, mapNoRows(err)
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a core.BankAccount) (core.BankAccount, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bank_accounts (organization_id, name, institution, balance_cents, link_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		a.OrganizationID, a.Name, a.Institution, a.Balance.Cents, a.LinkID).Scan(&a.ID)
	if err != nil {
		return core.BankAccount{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) TransferBetweenAccounts(ctx context.Context, orgID, fromID, toID int64, amount core.Money, description string, date time.Time) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE bank_accounts SET balance_cents = balance_cents - $1
			WHERE organization_id = $2 AND id = $3`, amount.Cents, orgID, fromID)
		if err != nil {
			return fmt.Errorf("debit account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.ErrNotFound
		}
		tag, err = tx.Exec(ctx, `
			UPDATE bank_accounts SET balance_cents = balance_cents + $1
			WHERE organization_id = $2 AND id = $3`, amount.Cents, orgID, toID)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.ErrNotFound
		}
		out := core.Transaction{
			OrganizationID: orgID, Kind: core.KindExpense, Description: description,
			Amount: amount, Date: date, Category: "Transfer", Status: core.StatusConfirmed,
		}
		in := out
		in.Kind = core.KindIncome
		if _, err := insertTransactionPg(ctx, tx, out); err != nil {
			return err
		}
		if _, err := insertTransactionPg(ctx, tx, in); err != nil {
			return err
		}
		return nil
	})
}

// --- bank links ---

func (s *PostgresStore) ListBankLinks(ctx context.Context, orgID int64) ([]core.BankLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, provider_link_id, institution, status, last_synced_at
		FROM bank_links WHERE organization_id = $1 ORDER BY id`, orgID)
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

func (s *PostgresStore) GetBankLink(ctx context.Context, orgID, id int64) (core.BankLink, error) {
	var l core.BankLink
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, provider_link_id, institution, status, last_synced_at
		FROM bank_links WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&l.ID, &l.OrganizationID, &l.ProviderLinkID, &l.Institution, &l.Status, &l.LastSyncedAt)
	return l, mapNoRows(err)
}

func (s *PostgresStore) CreateBankLink(ctx context.Context, l core.BankLink) (core.BankLink, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bank_links (organization_id, provider_link_id, institution, status)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		l.OrganizationID, l.ProviderLinkID, l.Institution, l.Status).Scan(&l.ID)
	if err != nil {
		return core.BankLink{}, fmt.Errorf("create bank link: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) UpdateBankLinkStatus(ctx context.Context, orgID, id int64, status core.LinkStatus, syncedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bank_links SET status = $1, last_synced_at = COALESCE($2, last_synced_at)
		WHERE organization_id = $3 AND id = $4`, status, syncedAt, orgID, id)
	if err != nil {
		return fmt.Errorf("update bank link status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteBankLink(ctx context.Context, orgID, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM bank_links WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete bank link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPendingBankLinks(ctx context.Context) ([]core.BankLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, provider_link_id, institution, status, last_synced_at
		FROM bank_links WHERE status = $1 ORDER BY id`, core.LinkPendingSync)
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

func (s *PostgresStore) UpsertProviderAccount(ctx context.Context, orgID, linkID int64, providerAccountID, name, institution string, balance core.Money) (core.BankAccount, error) {
	var a core.BankAccount
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bank_accounts (organization_id, name, institution, balance_cents, link_id, provider_account_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_account_id) DO UPDATE SET
			name = EXCLUDED.name, balance_cents = EXCLUDED.balance_cents
		RETURNING id, organization_id, name, institution, balance_cents, link_id`,
		orgID, name, institution, balance.Cents, linkID, providerAccountID).
		Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Institution, &a.Balance.Cents, &a.LinkID)
	if err != nil {
		return core.BankAccount{}, fmt.Errorf("upsert provider account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpsertProviderTransaction(ctx context.Context, orgID int64, pt ProviderTransaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (organization_id, kind, description, amount_cents, date, shared,
			category, status, account_id, provider_tx_id)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, 'pending', $7, $8)
		ON CONFLICT (provider_tx_id) DO UPDATE SET
			description = EXCLUDED.description, amount_cents = EXCLUDED.amount_cents`,
		orgID, pt.Kind, pt.Description, pt.Amount.Cents, pt.Date, pt.Category, pt.AccountID, pt.ProviderID)
	if err != nil {
		return fmt.Errorf("upsert provider transaction: %w", err)
	}
	return nil
}

// --- goals, contributions, badges ---

func (s *PostgresStore) ListGoals(ctx context.Context, orgID int64) ([]core.Goal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, name, target_cents, current_cents, COALESCE(deadline, '0001-01-01'::date), status
		FROM goals WHERE organization_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		var g core.Goal
		if err := rows.Scan(&g.ID, &g.OrganizationID, &g.Name, &g.Target.Cents, &g.Current.Cents,
			&g.Deadline, &g.Status); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *PostgresStore) GetGoal(ctx context.Context, orgID, id int64) (core.Goal, error) {
	var g core.Goal
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, target_cents, current_cents, COALESCE(deadline, '0001-01-01'::date), status
		FROM goals WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&g.ID, &g.OrganizationID, &g.Name, &g.Target.Cents, &g.Current.Cents, &g.Deadline, &g.Status)
	return g, mapNoRows(err)
}

func (s *PostgresStore) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	var deadline *time.Time
	if !g.Deadline.IsZero() {
		deadline = &g.Deadline
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO goals (organization_id, name, target_cents, current_cents, deadline, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		g.OrganizationID, g.Name, g.Target.Cents, g.Current.Cents, deadline, g.Status).Scan(&g.ID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) UpdateGoal(ctx context.Context, g core.Goal) error {
	var deadline *time.Time
	if !g.Deadline.IsZero() {
		deadline = &g.Deadline
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE goals SET name = $1, target_cents = $2, current_cents = $3, deadline = $4, status = $5
		WHERE organization_id = $6 AND id = $7`,
		g.Name, g.Target.Cents, g.Current.Cents, deadline, g.Status, g.OrganizationID, g.ID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteGoal(ctx context.Context, orgID, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM goals WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddContribution(ctx context.Context, orgID int64, c core.Contribution) (core.Goal, error) {
	var updated core.Goal
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var g core.Goal
		err := tx.QueryRow(ctx, `
			SELECT id, organization_id, name, target_cents, current_cents, COALESCE(deadline, '0001-01-01'::date), status
			FROM goals WHERE organization_id = $1 AND id = $2 FOR UPDATE`, orgID, c.GoalID).
			Scan(&g.ID, &g.OrganizationID, &g.Name, &g.Target.Cents, &g.Current.Cents, &g.Deadline, &g.Status)
		if err != nil {
			return mapNoRows(err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO contributions (goal_id, amount_cents, date) VALUES ($1, $2, $3)`,
			c.GoalID, c.Amount.Cents, c.Date); err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}

		g.Current.Cents += c.Amount.Cents
		if g.Current.Cents >= g.Target.Cents {
			g.Status = core.GoalAchieved
		}
		if _, err := tx.Exec(ctx, `
			UPDATE goals SET current_cents = $1, status = $2 WHERE id = $3`,
			g.Current.Cents, g.Status, g.ID); err != nil {
			return fmt.Errorf("advance goal: %w", err)
		}
		updated = g
		return nil
	})
	return updated, err
}

func (s *PostgresStore) ListContributions(ctx context.Context, orgID int64) ([]core.Contribution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.goal_id, c.amount_cents, c.date
		FROM contributions c JOIN goals g ON g.id = c.goal_id
		WHERE g.organization_id = $1 ORDER BY c.id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var contribs []core.Contribution
	for rows.Next() {
		var c core.Contribution
		if err := rows.Scan(&c.ID, &c.GoalID, &c.Amount.Cents, &c.Date); err != nil {
			return nil, err
		}
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}

func (s *PostgresStore) ListEarnedBadges(ctx context.Context, orgID int64) ([]core.EarnedBadge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT organization_id, code, earned_at FROM earned_badges
		WHERE organization_id = $1 ORDER BY earned_at`, orgID)
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

func (s *PostgresStore) SaveEarnedBadge(ctx context.Context, b core.EarnedBadge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO earned_badges (organization_id, code, earned_at) VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, code) DO NOTHING`,
		b.OrganizationID, b.Code, b.EarnedAt)
	if err != nil {
		return fmt.Errorf("save earned badge: %w", err)
	}
	return nil
}
