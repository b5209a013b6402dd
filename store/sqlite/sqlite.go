/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists every engine entity and implements the atomic Commit contract.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

MONEY STORAGE:
  All amounts are stored as integer cents. This is what lets balance and
  summary updates be expressed as native atomic increments
  ("SET balance_cents = balance_cents + ?") instead of read-modify-write.

ATOMIC COMMITS:
  Commit runs inside a single sql.Tx: the transaction row, the balance
  increments on both touched accounts, the bill marker and the pay-period
  summary deltas either all land or none do. The period's net change is
  re-derived from its three totals inside the same transaction after the
  increments apply.

IDEMPOTENCY ENFORCEMENT:
  Partial unique indexes back the catch-up existence checks at the
  database level:
  - one transaction per (user, recurring definition, occurrence date)
  - one transaction per (user, income source, occurrence date, account)
  Even if two catch-up invocations race past the existence checks, the
  second insert fails and its whole batch rolls back.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/budget.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface and Batch contract
  - engine/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/keel/budget-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path. Use ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		user_id TEXT PRIMARY KEY,
		pay_frequency TEXT NOT NULL,
		pay_anchor TEXT NOT NULL,
		semimonthly_days TEXT,
		primary_account_id TEXT,
		net_pay_cents INTEGER NOT NULL DEFAULT 0,
		category_budgets TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		account_type TEXT NOT NULL,
		balance_cents INTEGER NOT NULL DEFAULT 0,
		credit_limit_cents INTEGER NOT NULL DEFAULT 0,
		apr TEXT,
		due_day INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE TABLE IF NOT EXISTS bills (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		due_day INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		auto_pay BOOLEAN NOT NULL DEFAULT FALSE,
		auto_mark_paid BOOLEAN NOT NULL DEFAULT FALSE,
		last_paid TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_bills_user_active
		ON bills(user_id, is_active, due_day);

	CREATE TABLE IF NOT EXISTS recurring (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		frequency TEXT NOT NULL,
		account_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		next_due TEXT NOT NULL,
		last_processed TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_recurring_user_due
		ON recurring(user_id, is_active, next_due);

	CREATE TABLE IF NOT EXISTS income_sources (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		frequency TEXT NOT NULL,
		anchor TEXT NOT NULL,
		semimonthly_days TEXT,
		deposits TEXT NOT NULL,
		auto_add BOOLEAN NOT NULL DEFAULT TRUE,
		last_processed TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE TABLE IF NOT EXISTS goals (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		target_cents INTEGER NOT NULL,
		current_cents INTEGER NOT NULL DEFAULT 0,
		linked_account_id TEXT,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_goals_linked_account
		ON goals(user_id, linked_account_id) WHERE linked_account_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS transactions (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		txn_date TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		description TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		to_account_id TEXT,
		bill_id TEXT,
		category TEXT,
		period_id TEXT NOT NULL,
		recurring_id TEXT,
		income_source_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_period
		ON transactions(user_id, period_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(user_id, txn_date DESC);

	-- One posted transaction per catch-up occurrence. These back the
	-- existence checks at the database level, so racing catch-up
	-- invocations cannot double-post.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_recurring_occurrence
		ON transactions(user_id, recurring_id, txn_date)
		WHERE recurring_id IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_income_occurrence
		ON transactions(user_id, income_source_id, txn_date, account_id)
		WHERE income_source_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS pay_periods (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		income_cents INTEGER NOT NULL DEFAULT 0,
		bills_cents INTEGER NOT NULL DEFAULT 0,
		discretionary_cents INTEGER NOT NULL DEFAULT 0,
		net_change_cents INTEGER NOT NULL DEFAULT 0,
		transaction_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(d engine.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func scanDate(ns sql.NullString) (engine.Date, error) {
	if !ns.Valid || ns.String == "" {
		return engine.Date{}, nil
	}
	return engine.ParseDate(ns.String)
}

func scanTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func internal(op string, err error) error {
	return engine.Internal(op, err)
}

// =============================================================================
// USERS
// =============================================================================

// ResetUser deletes every row the user owns, in one transaction.
func (s *Store) ResetUser(ctx context.Context, user engine.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internal("failed to begin reset", err)
	}
	defer tx.Rollback()

	tables := []string{
		"transactions", "pay_periods", "goals", "income_sources",
		"recurring", "bills", "accounts", "settings",
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, user); err != nil {
			return internal("failed to reset "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return internal("failed to commit reset", err)
	}
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Store) GetSettings(ctx context.Context, user engine.UserID) (*engine.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT pay_frequency, pay_anchor, semimonthly_days, primary_account_id, net_pay_cents, category_budgets
		FROM settings WHERE user_id = ?`, user)

	var (
		freq, anchor  string
		days, budgets sql.NullString
		primary       sql.NullString
		netPayCents   int64
	)
	err := row.Scan(&freq, &anchor, &days, &primary, &netPayCents, &budgets)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internal("failed to load settings", err)
	}

	anchorDate, err := engine.ParseDate(anchor)
	if err != nil {
		return nil, internal("corrupt pay anchor", err)
	}

	out := engine.Settings{
		PayFrequency:     engine.Frequency(freq),
		PayAnchor:        anchorDate,
		PrimaryAccountID: engine.AccountID(primary.String),
		NetPay:           engine.MoneyFromCents(netPayCents),
	}
	if days.Valid && days.String != "" {
		if err := json.Unmarshal([]byte(days.String), &out.SemimonthlyDays); err != nil {
			return nil, internal("corrupt semimonthly days", err)
		}
	}
	if budgets.Valid && budgets.String != "" {
		if err := json.Unmarshal([]byte(budgets.String), &out.CategoryBudgets); err != nil {
			return nil, internal("corrupt category budgets", err)
		}
	}
	return &out, nil
}

func (s *Store) SaveSettings(ctx context.Context, user engine.UserID, cfg engine.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, _ := json.Marshal(cfg.SemimonthlyDays)
	budgets, _ := json.Marshal(cfg.CategoryBudgets)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, pay_frequency, pay_anchor, semimonthly_days, primary_account_id, net_pay_cents, category_budgets, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			pay_frequency = excluded.pay_frequency,
			pay_anchor = excluded.pay_anchor,
			semimonthly_days = excluded.semimonthly_days,
			primary_account_id = excluded.primary_account_id,
			net_pay_cents = excluded.net_pay_cents,
			category_budgets = excluded.category_budgets,
			updated_at = excluded.updated_at`,
		user, string(cfg.PayFrequency), cfg.PayAnchor.String(), string(days),
		nullString(string(cfg.PrimaryAccountID)), cfg.NetPay.Cents(), string(budgets), nowRFC3339())
	if err != nil {
		return internal("failed to save settings", err)
	}
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountCols = `id, name, account_type, balance_cents, credit_limit_cents, apr, due_day, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*engine.Account, error) {
	var (
		a       engine.Account
		balance int64
		limit   int64
		apr     sql.NullString
		created string
		updated string
	)
	err := row.Scan(&a.ID, &a.Name, &a.Type, &balance, &limit, &apr, &a.DueDay, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internal("failed to load account", err)
	}
	a.Balance = engine.MoneyFromCents(balance)
	a.CreditLimit = engine.MoneyFromCents(limit)
	if apr.Valid && apr.String != "" {
		a.APR = engine.MustParseMoney(apr.String)
	}
	a.CreatedAt = scanTime(created)
	a.UpdatedAt = scanTime(updated)
	return &a, nil
}

func (s *Store) GetAccount(ctx context.Context, user engine.UserID, id engine.AccountID) (*engine.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE user_id = ? AND id = ?`, user, id)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context, user engine.UserID) ([]engine.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE user_id = ? ORDER BY created_at ASC, id ASC`, user)
	if err != nil {
		return nil, internal("failed to list accounts", err)
	}
	defer rows.Close()

	var out []engine.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) SaveAccount(ctx context.Context, user engine.UserID, a engine.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, id, name, account_type, balance_cents, credit_limit_cents, apr, due_day, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			name = excluded.name,
			account_type = excluded.account_type,
			balance_cents = excluded.balance_cents,
			credit_limit_cents = excluded.credit_limit_cents,
			apr = excluded.apr,
			due_day = excluded.due_day,
			updated_at = excluded.updated_at`,
		user, a.ID, a.Name, string(a.Type), a.Balance.Cents(), a.CreditLimit.Cents(),
		nullString(a.APR.String()), a.DueDay, now, now)
	if err != nil {
		return internal("failed to save account", err)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, user engine.UserID, id engine.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE user_id = ? AND id = ?`, user, id)
	if err != nil {
		return internal("failed to delete account", err)
	}
	return nil
}

// =============================================================================
// BILLS
// =============================================================================

const billCols = `id, name, amount_cents, due_day, is_active, auto_pay, auto_mark_paid, last_paid, created_at, updated_at`

func scanBill(row interface{ Scan(...any) error }) (*engine.Bill, error) {
	var (
		b        engine.Bill
		amount   int64
		lastPaid sql.NullString
		created  string
		updated  string
	)
	err := row.Scan(&b.ID, &b.Name, &amount, &b.DueDay, &b.Active, &b.AutoPay, &b.AutoMarkPaid, &lastPaid, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internal("failed to load bill", err)
	}
	b.Amount = engine.MoneyFromCents(amount)
	if b.LastPaid, err = scanDate(lastPaid); err != nil {
		return nil, internal("corrupt last-paid date", err)
	}
	b.CreatedAt = scanTime(created)
	b.UpdatedAt = scanTime(updated)
	return &b, nil
}

func (s *Store) GetBill(ctx context.Context, user engine.UserID, id engine.BillID) (*engine.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+billCols+` FROM bills WHERE user_id = ? AND id = ?`, user, id)
	return scanBill(row)
}

func (s *Store) ListBills(ctx context.Context, user engine.UserID, activeOnly bool) ([]engine.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + billCols + ` FROM bills WHERE user_id = ?`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY due_day ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, user)
	if err != nil {
		return nil, internal("failed to list bills", err)
	}
	defer rows.Close()

	var out []engine.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) SaveBill(ctx context.Context, user engine.UserID, b engine.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bills (user_id, id, name, amount_cents, due_day, is_active, auto_pay, auto_mark_paid, last_paid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			name = excluded.name,
			amount_cents = excluded.amount_cents,
			due_day = excluded.due_day,
			is_active = excluded.is_active,
			auto_pay = excluded.auto_pay,
			auto_mark_paid = excluded.auto_mark_paid,
			last_paid = excluded.last_paid,
			updated_at = excluded.updated_at`,
		user, b.ID, b.Name, b.Amount.Cents(), b.DueDay, b.Active, b.AutoPay, b.AutoMarkPaid,
		nullDate(b.LastPaid), now, now)
	if err != nil {
		return internal("failed to save bill", err)
	}
	return nil
}

func (s *Store) DeleteBill(ctx context.Context, user engine.UserID, id engine.BillID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM bills WHERE user_id = ? AND id = ?`, user, id)
	if err != nil {
		return internal("failed to delete bill", err)
	}
	return nil
}

// =============================================================================
// RECURRING DEFINITIONS
// =============================================================================

const recurringCols = `id, description, amount_cents, tx_type, frequency, account_id, start_date, next_due, last_processed, is_active, created_at, updated_at`

func scanRecurring(row interface{ Scan(...any) error }) (*engine.RecurringDefinition, error) {
	var (
		r        engine.RecurringDefinition
		amount   int64
		start    string
		nextDue  string
		lastProc sql.NullString
		created  string
		updated  string
	)
	err := row.Scan(&r.ID, &r.Description, &amount, &r.Kind, &r.Frequency, &r.AccountID,
		&start, &nextDue, &lastProc, &r.Active, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internal("failed to load recurring definition", err)
	}
	r.Amount = engine.MoneyFromCents(amount)
	if r.StartDate, err = engine.ParseDate(start); err != nil {
		return nil, internal("corrupt start date", err)
	}
	if r.NextDue, err = engine.ParseDate(nextDue); err != nil {
		return nil, internal("corrupt next-due date", err)
	}
	if r.LastProcessed, err = scanDate(lastProc); err != nil {
		return nil, internal("corrupt last-processed date", err)
	}
	r.CreatedAt = scanTime(created)
	r.UpdatedAt = scanTime(updated)
	return &r, nil
}

func (s *Store) queryRecurring(ctx context.Context, query string, args ...any) ([]engine.RecurringDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internal("failed to list recurring definitions", err)
	}
	defer rows.Close()

	var out []engine.RecurringDefinition
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) ListRecurring(ctx context.Context, user engine.UserID) ([]engine.RecurringDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecurring(ctx,
		`SELECT `+recurringCols+` FROM recurring WHERE user_id = ? ORDER BY next_due ASC, id ASC`, user)
}

func (s *Store) ListDueRecurring(ctx context.Context, user engine.UserID, today engine.Date) ([]engine.RecurringDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecurring(ctx,
		`SELECT `+recurringCols+` FROM recurring
		 WHERE user_id = ? AND is_active AND next_due <= ?
		 ORDER BY next_due ASC, id ASC`, user, today.String())
}

func (s *Store) SaveRecurring(ctx context.Context, user engine.UserID, r engine.RecurringDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring (user_id, id, description, amount_cents, tx_type, frequency, account_id, start_date, next_due, last_processed, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			description = excluded.description,
			amount_cents = excluded.amount_cents,
			tx_type = excluded.tx_type,
			frequency = excluded.frequency,
			account_id = excluded.account_id,
			start_date = excluded.start_date,
			next_due = excluded.next_due,
			last_processed = excluded.last_processed,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		user, r.ID, r.Description, r.Amount.Cents(), string(r.Kind), string(r.Frequency),
		r.AccountID, r.StartDate.String(), r.NextDue.String(), nullDate(r.LastProcessed),
		r.Active, now, now)
	if err != nil {
		return internal("failed to save recurring definition", err)
	}
	return nil
}

func (s *Store) DeleteRecurring(ctx context.Context, user engine.UserID, id engine.RecurringID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM recurring WHERE user_id = ? AND id = ?`, user, id)
	if err != nil {
		return internal("failed to delete recurring definition", err)
	}
	return nil
}

// =============================================================================
// INCOME SOURCES
// =============================================================================

const sourceCols = `id, name, frequency, anchor, semimonthly_days, deposits, auto_add, last_processed, is_active, created_at, updated_at`

func scanSource(row interface{ Scan(...any) error }) (*engine.IncomeSource, error) {
	var (
		src      engine.IncomeSource
		anchor   string
		days     sql.NullString
		deposits string
		lastProc sql.NullString
		created  string
		updated  string
	)
	err := row.Scan(&src.ID, &src.Name, &src.Frequency, &anchor, &days, &deposits,
		&src.AutoAdd, &lastProc, &src.Active, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internal("failed to load income source", err)
	}
	if src.Anchor, err = engine.ParseDate(anchor); err != nil {
		return nil, internal("corrupt anchor date", err)
	}
	if days.Valid && days.String != "" {
		if err := json.Unmarshal([]byte(days.String), &src.SemimonthlyDays); err != nil {
			return nil, internal("corrupt semimonthly days", err)
		}
	}
	if err := json.Unmarshal([]byte(deposits), &src.Deposits); err != nil {
		return nil, internal("corrupt deposits", err)
	}
	if src.LastProcessed, err = scanDate(lastProc); err != nil {
		return nil, internal("corrupt last-processed date", err)
	}
	src.CreatedAt = scanTime(created)
	src.UpdatedAt = scanTime(updated)
	return &src, nil
}

func (s *Store) ListIncomeSources(ctx context.Context, user engine.UserID, activeOnly bool) ([]engine.IncomeSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + sourceCols + ` FROM income_sources WHERE user_id = ?`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, user)
	if err != nil {
		return nil, internal("failed to list income sources", err)
	}
	defer rows.Close()

	var out []engine.IncomeSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

func (s *Store) SaveIncomeSource(ctx context.Context, user engine.UserID, src engine.IncomeSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, _ := json.Marshal(src.SemimonthlyDays)
	deposits, _ := json.Marshal(src.Deposits)

	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO income_sources (user_id, id, name, frequency, anchor, semimonthly_days, deposits, auto_add, last_processed, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			name = excluded.name,
			frequency = excluded.frequency,
			anchor = excluded.anchor,
			semimonthly_days = excluded.semimonthly_days,
			deposits = excluded.deposits,
			auto_add = excluded.auto_add,
			last_processed = excluded.last_processed,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		user, src.ID, src.Name, string(src.Frequency), src.Anchor.String(), string(days),
		string(deposits), src.AutoAdd, nullDate(src.LastProcessed), src.Active, now, now)
	if err != nil {
		return internal("failed to save income source", err)
	}
	return nil
}

func (s *Store) DeleteIncomeSource(ctx context.Context, user engine.UserID, id engine.IncomeSourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM income_sources WHERE user_id = ? AND id = ?`, user, id)
	if err != nil {
		return internal("failed to delete income source", err)
	}
	return nil
}

// =============================================================================
// SAVINGS GOALS
// =============================================================================

const goalCols = `id, name, target_cents, current_cents, linked_account_id, is_completed, created_at, updated_at`

func scanGoal(row interface{ Scan(...any) error }) (*engine.SavingsGoal, error) {
	var (
		g       engine.SavingsGoal
		target  int64
		current int64
		linked  sql.NullString
		created string
		updated string
	)
	err := row.Scan(&g.ID, &g.Name, &target, &current, &linked, &g.Completed, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internal("failed to load savings goal", err)
	}
	g.Target = engine.MoneyFromCents(target)
	g.Current = engine.MoneyFromCents(current)
	g.LinkedAccountID = engine.AccountID(linked.String)
	g.CreatedAt = scanTime(created)
	g.UpdatedAt = scanTime(updated)
	return &g, nil
}

func (s *Store) queryGoals(ctx context.Context, query string, args ...any) ([]engine.SavingsGoal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internal("failed to list savings goals", err)
	}
	defer rows.Close()

	var out []engine.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *Store) ListGoals(ctx context.Context, user engine.UserID) ([]engine.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryGoals(ctx,
		`SELECT `+goalCols+` FROM goals WHERE user_id = ? ORDER BY created_at ASC, id ASC`, user)
}

func (s *Store) ListGoalsByAccount(ctx context.Context, user engine.UserID, id engine.AccountID) ([]engine.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryGoals(ctx,
		`SELECT `+goalCols+` FROM goals WHERE user_id = ? AND linked_account_id = ? ORDER BY id ASC`, user, id)
}

func (s *Store) SaveGoal(ctx context.Context, user engine.UserID, g engine.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (user_id, id, name, target_cents, current_cents, linked_account_id, is_completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			name = excluded.name,
			target_cents = excluded.target_cents,
			current_cents = excluded.current_cents,
			linked_account_id = excluded.linked_account_id,
			is_completed = excluded.is_completed,
			updated_at = excluded.updated_at`,
		user, g.ID, g.Name, g.Target.Cents(), g.Current.Cents(),
		nullString(string(g.LinkedAccountID)), g.Completed, now, now)
	if err != nil {
		return internal("failed to save savings goal", err)
	}
	return nil
}

func (s *Store) DeleteGoal(ctx context.Context, user engine.UserID, id engine.GoalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ? AND id = ?`, user, id)
	if err != nil {
		return internal("failed to delete savings goal", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS AND PAY PERIODS
// =============================================================================

const txnCols = `id, txn_date, amount_cents, description, tx_type, account_id, to_account_id, bill_id, category, period_id, recurring_id, income_source_id, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*engine.Transaction, error) {
	var (
		t         engine.Transaction
		date      string
		amount    int64
		toAccount sql.NullString
		billID    sql.NullString
		category  sql.NullString
		recurring sql.NullString
		income    sql.NullString
		created   string
		updated   string
	)
	err := row.Scan(&t.ID, &date, &amount, &t.Description, &t.Kind, &t.AccountID,
		&toAccount, &billID, &category, &t.PeriodID, &recurring, &income, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internal("failed to load transaction", err)
	}
	if t.Date, err = engine.ParseDate(date); err != nil {
		return nil, internal("corrupt transaction date", err)
	}
	t.Amount = engine.MoneyFromCents(amount)
	t.ToAccountID = engine.AccountID(toAccount.String)
	t.BillID = engine.BillID(billID.String)
	t.Category = category.String
	t.RecurringID = engine.RecurringID(recurring.String)
	t.IncomeSourceID = engine.IncomeSourceID(income.String)
	t.CreatedAt = scanTime(created)
	t.UpdatedAt = scanTime(updated)
	return &t, nil
}

func (s *Store) GetTransaction(ctx context.Context, user engine.UserID, id engine.TransactionID) (*engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+txnCols+` FROM transactions WHERE user_id = ? AND id = ?`, user, id)
	return scanTransaction(row)
}

func (s *Store) ListTransactions(ctx context.Context, user engine.UserID, f engine.TransactionFilter) ([]engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + txnCols + ` FROM transactions WHERE user_id = ?`
	args := []any{user}

	if f.PeriodID != "" {
		query += ` AND period_id = ?`
		args = append(args, f.PeriodID)
	}
	if f.AccountID != "" {
		query += ` AND (account_id = ? OR to_account_id = ?)`
		args = append(args, f.AccountID, f.AccountID)
	}
	if !f.From.IsZero() {
		query += ` AND txn_date >= ?`
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		query += ` AND txn_date <= ?`
		args = append(args, f.To.String())
	}

	query += ` ORDER BY txn_date DESC, created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internal("failed to list transactions", err)
	}
	defer rows.Close()

	var out []engine.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) GetPeriodSummary(ctx context.Context, user engine.UserID, id engine.PeriodID) (*engine.PeriodSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, period_start, period_end, income_cents, bills_cents, discretionary_cents, net_change_cents, transaction_count
		FROM pay_periods WHERE user_id = ? AND id = ?`, user, id)

	var (
		p      engine.PeriodSummary
		start  string
		end    string
		income int64
		bills  int64
		disc   int64
		net    int64
	)
	err := row.Scan(&p.ID, &start, &end, &income, &bills, &disc, &net, &p.TransactionCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internal("failed to load pay period", err)
	}
	if p.Start, err = engine.ParseDate(start); err != nil {
		return nil, internal("corrupt period start", err)
	}
	if p.End, err = engine.ParseDate(end); err != nil {
		return nil, internal("corrupt period end", err)
	}
	p.IncomeTotal = engine.MoneyFromCents(income)
	p.BillsTotal = engine.MoneyFromCents(bills)
	p.DiscretionaryTotal = engine.MoneyFromCents(disc)
	p.NetChange = engine.MoneyFromCents(net)
	return &p, nil
}

func (s *Store) RecurringTransactionExists(ctx context.Context, user engine.UserID, id engine.RecurringID, date engine.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ? AND recurring_id = ? AND txn_date = ?`,
		user, id, date.String()).Scan(&count)
	if err != nil {
		return false, internal("failed existence check", err)
	}
	return count > 0, nil
}

func (s *Store) IncomeTransactionExists(ctx context.Context, user engine.UserID, id engine.IncomeSourceID, date engine.Date, account engine.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ? AND income_source_id = ? AND txn_date = ? AND account_id = ?`,
		user, id, date.String(), account).Scan(&count)
	if err != nil {
		return false, internal("failed existence check", err)
	}
	return count > 0, nil
}

// =============================================================================
// COMMIT - one sql.Tx per batch, increments only
// =============================================================================

func (s *Store) Commit(ctx context.Context, user engine.UserID, batch engine.Batch) error {
	if batch.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	now := nowRFC3339()

	for _, p := range batch.EnsurePeriods {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pay_periods (user_id, id, period_start, period_end, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, id) DO NOTHING`,
			user, p.ID, p.Start.String(), p.End.String(), now, now)
		if err != nil {
			return internal("failed to ensure pay period", err)
		}
	}

	for _, t := range batch.PutTransactions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (user_id, `+txnCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, id) DO UPDATE SET
				txn_date = excluded.txn_date,
				amount_cents = excluded.amount_cents,
				description = excluded.description,
				tx_type = excluded.tx_type,
				bill_id = excluded.bill_id,
				category = excluded.category,
				period_id = excluded.period_id,
				updated_at = excluded.updated_at`,
			user, t.ID, t.Date.String(), t.Amount.Cents(), t.Description, string(t.Kind),
			t.AccountID, nullString(string(t.ToAccountID)), nullString(string(t.BillID)),
			nullString(t.Category), t.PeriodID, nullString(string(t.RecurringID)),
			nullString(string(t.IncomeSourceID)),
			t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return internal("failed to write transaction", err)
		}
	}

	for _, id := range batch.DeleteTransactionIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transactions WHERE user_id = ? AND id = ?`, user, id); err != nil {
			return internal("failed to delete transaction", err)
		}
	}

	for _, d := range batch.BalanceDeltas {
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ?
			WHERE user_id = ? AND id = ?`,
			d.Delta.Cents(), now, user, d.AccountID)
		if err != nil {
			return internal("failed to apply balance delta", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return engine.NotFoundf("account %s not found", d.AccountID)
		}
	}

	for _, d := range batch.SummaryDeltas {
		res, err := tx.ExecContext(ctx, `
			UPDATE pay_periods SET
				income_cents = income_cents + ?,
				bills_cents = bills_cents + ?,
				discretionary_cents = discretionary_cents + ?,
				transaction_count = transaction_count + ?,
				updated_at = ?
			WHERE user_id = ? AND id = ?`,
			d.Income.Cents(), d.Bills.Cents(), d.Discretionary.Cents(), d.Count, now, user, d.PeriodID)
		if err != nil {
			return internal("failed to apply summary delta", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return engine.NotFoundf("pay period %s not found", d.PeriodID)
		}
		// Net change is always re-derived from the three totals.
		if _, err := tx.ExecContext(ctx, `
			UPDATE pay_periods SET net_change_cents = income_cents - bills_cents - discretionary_cents
			WHERE user_id = ? AND id = ?`, user, d.PeriodID); err != nil {
			return internal("failed to derive net change", err)
		}
	}

	for _, m := range batch.BillPayments {
		res, err := tx.ExecContext(ctx, `
			UPDATE bills SET last_paid = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
			m.PaidOn.String(), now, user, m.BillID)
		if err != nil {
			return internal("failed to mark bill paid", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return engine.NotFoundf("bill %s not found", m.BillID)
		}
	}

	for _, a := range batch.RecurringAdvances {
		res, err := tx.ExecContext(ctx, `
			UPDATE recurring SET next_due = ?, last_processed = ?, updated_at = ?
			WHERE user_id = ? AND id = ?`,
			a.NextDue.String(), a.LastProcessed.String(), now, user, a.ID)
		if err != nil {
			return internal("failed to advance recurring definition", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return engine.NotFoundf("recurring definition %s not found", a.ID)
		}
	}

	for _, a := range batch.IncomeAdvances {
		res, err := tx.ExecContext(ctx, `
			UPDATE income_sources SET last_processed = ?, updated_at = ?
			WHERE user_id = ? AND id = ?`,
			a.LastProcessed.String(), now, user, a.ID)
		if err != nil {
			return internal("failed to advance income source", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return engine.NotFoundf("income source %s not found", a.ID)
		}
	}

	for _, g := range batch.GoalProgress {
		if _, err := tx.ExecContext(ctx, `
			UPDATE goals SET current_cents = ?, is_completed = ?, updated_at = ?
			WHERE user_id = ? AND id = ?`,
			g.Current.Cents(), g.Completed, now, user, g.ID); err != nil {
			return internal("failed to update savings goal", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return internal("failed to commit batch", err)
	}
	return nil
}
