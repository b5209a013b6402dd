/*
store.go - Persistence interface for the ledger engine

PURPOSE:
  Defines the contract between the engine and the datastore. Reads are plain
  per-user lookups; ALL writes that the engine owns (balances, period
  totals, paid markers, processed markers, transaction records) flow through
  a single Commit(Batch) call.

ATOMIC BATCHES:
  Commit is all-or-nothing. A posted transaction touches up to five
  documents (the record, two balances, a bill marker, a period summary);
  either every effect lands or none do. A timed-out request therefore leaves
  the store in whatever state its last committed batch produced, never a
  half-applied one.

ATOMIC INCREMENTS:
  Balance and summary changes are expressed as signed DELTAS, never as
  absolute values, so concurrent postings cannot lose updates. SQLite
  implements them as "SET balance_cents = balance_cents + ?"; the in-memory
  store applies them under its lock. NetChange is re-derived from the three
  totals inside Commit after the increments are applied.

IDEMPOTENCY LOOKUPS:
  RecurringTransactionExists / IncomeTransactionExists are the existence
  checks the catch-up processor keys on. They are authoritative: if the
  last-processed marker and the existence check disagree, the processor
  skips the posting.

IMPLEMENTATIONS:
  - store/sqlite: production store, one sql.Tx per Commit
  - engine/store: in-memory store for tests and dev
*/
package engine

import "context"

// =============================================================================
// BATCH - All-or-nothing write set
// =============================================================================

// BalanceDelta is an atomic increment against one account's balance.
type BalanceDelta struct {
	AccountID AccountID
	Delta     Money
}

// SummaryDelta is an atomic increment against one period summary.
type SummaryDelta struct {
	PeriodID      PeriodID
	Income        Money
	Bills         Money
	Discretionary Money
	Count         int
}

// BillPaidMark sets a bill's last-paid date.
type BillPaidMark struct {
	BillID BillID
	PaidOn Date
}

// RecurringAdvance persists a recurring definition's new markers.
type RecurringAdvance struct {
	ID            RecurringID
	NextDue       Date
	LastProcessed Date
}

// IncomeAdvance persists an income source's last-processed marker.
type IncomeAdvance struct {
	ID            IncomeSourceID
	LastProcessed Date
}

// GoalProgress resyncs a linked savings goal to its account balance.
type GoalProgress struct {
	ID        GoalID
	Current   Money
	Completed bool
}

// Batch is one atomic write set. Zero-value slices are simply skipped.
type Batch struct {
	// EnsurePeriods creates summaries (zero totals) where absent. Creation
	// is idempotent: the summary ID is the period start date.
	EnsurePeriods []PeriodSummary

	PutTransactions      []Transaction
	DeleteTransactionIDs []TransactionID

	BalanceDeltas []BalanceDelta
	SummaryDeltas []SummaryDelta

	BillPayments      []BillPaidMark
	RecurringAdvances []RecurringAdvance
	IncomeAdvances    []IncomeAdvance
	GoalProgress      []GoalProgress
}

// IsEmpty reports whether the batch carries no writes.
func (b Batch) IsEmpty() bool {
	return len(b.EnsurePeriods) == 0 && len(b.PutTransactions) == 0 &&
		len(b.DeleteTransactionIDs) == 0 && len(b.BalanceDeltas) == 0 &&
		len(b.SummaryDeltas) == 0 && len(b.BillPayments) == 0 &&
		len(b.RecurringAdvances) == 0 && len(b.IncomeAdvances) == 0 &&
		len(b.GoalProgress) == 0
}

// =============================================================================
// TRANSACTION QUERIES
// =============================================================================

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	PeriodID  PeriodID
	AccountID AccountID // matches source or destination
	From      Date
	To        Date
	Limit     int
	Offset    int
}

// =============================================================================
// STORE
// =============================================================================

// Store is the engine's view of persistence. Every method is scoped to one
// user; the engine never reads or writes across users.
type Store interface {
	// ResetUser deletes everything the user owns. Used by the demo
	// scenario loader before seeding.
	ResetUser(ctx context.Context, user UserID) error

	// Settings
	GetSettings(ctx context.Context, user UserID) (*Settings, error)
	SaveSettings(ctx context.Context, user UserID, s Settings) error

	// Accounts
	GetAccount(ctx context.Context, user UserID, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context, user UserID) ([]Account, error)
	SaveAccount(ctx context.Context, user UserID, a Account) error
	DeleteAccount(ctx context.Context, user UserID, id AccountID) error

	// Bills
	GetBill(ctx context.Context, user UserID, id BillID) (*Bill, error)
	ListBills(ctx context.Context, user UserID, activeOnly bool) ([]Bill, error)
	SaveBill(ctx context.Context, user UserID, b Bill) error
	DeleteBill(ctx context.Context, user UserID, id BillID) error

	// Recurring definitions
	ListRecurring(ctx context.Context, user UserID) ([]RecurringDefinition, error)
	ListDueRecurring(ctx context.Context, user UserID, today Date) ([]RecurringDefinition, error)
	SaveRecurring(ctx context.Context, user UserID, r RecurringDefinition) error
	DeleteRecurring(ctx context.Context, user UserID, id RecurringID) error

	// Income sources
	ListIncomeSources(ctx context.Context, user UserID, activeOnly bool) ([]IncomeSource, error)
	SaveIncomeSource(ctx context.Context, user UserID, s IncomeSource) error
	DeleteIncomeSource(ctx context.Context, user UserID, id IncomeSourceID) error

	// Savings goals
	ListGoals(ctx context.Context, user UserID) ([]SavingsGoal, error)
	ListGoalsByAccount(ctx context.Context, user UserID, id AccountID) ([]SavingsGoal, error)
	SaveGoal(ctx context.Context, user UserID, g SavingsGoal) error
	DeleteGoal(ctx context.Context, user UserID, id GoalID) error

	// Transactions and period summaries (engine-owned; written via Commit)
	GetTransaction(ctx context.Context, user UserID, id TransactionID) (*Transaction, error)
	ListTransactions(ctx context.Context, user UserID, f TransactionFilter) ([]Transaction, error)
	GetPeriodSummary(ctx context.Context, user UserID, id PeriodID) (*PeriodSummary, error)

	// Idempotency lookups for catch-up posting.
	RecurringTransactionExists(ctx context.Context, user UserID, id RecurringID, date Date) (bool, error)
	IncomeTransactionExists(ctx context.Context, user UserID, id IncomeSourceID, date Date, account AccountID) (bool, error)

	// Commit applies the batch atomically: all effects or none.
	Commit(ctx context.Context, user UserID, b Batch) error
}
