/*
Package engine implements the pay-period ledger engine.

PURPOSE:
  This package contains the domain types and algorithms behind the budgeting
  application: pay-period boundary math, the balance-effect matrix that maps
  transaction kinds onto asset and liability accounts, atomic transaction
  posting with period aggregation, safe-to-spend calculation, and idempotent
  catch-up of recurring bills and income.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal amount, persisted as integer cents
  - Account: asset (checking/savings) or liability (credit card)
  - Transaction: a single posted ledger entry, tagged with its pay period
  - PeriodSummary: additive running totals for one pay period
  - Bill / RecurringDefinition / IncomeSource / SavingsGoal

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float arithmetic
  2. Single writer: balances and period totals change only through the
     Processor and CatchUp components, always via additive deltas
  3. Type safety: distinct ID types keep account/bill/period IDs apart

SEE ALSO:
  - period.go: pay-period boundary calculation
  - effect.go: the kind x account-kind balance matrix
  - processor.go: posting, editing and reversing transactions
  - catchup.go: recurring/income catch-up
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount with cent-level persistence
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money      { return Money{Value: decimal.NewFromFloat(value)} }
func MoneyFromCents(cents int64) Money  { return Money{Value: decimal.New(cents, -2)} }
func ZeroMoney() Money                  { return Money{Value: decimal.Zero} }

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money     { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money     { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money            { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool          { return m.Value.IsZero() }
func (m Money) IsNegative() bool      { return m.Value.IsNegative() }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool    { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }

// Cents rounds to the nearest cent. Storage is integer cents so the store
// can use native atomic increments.
func (m Money) Cents() int64 {
	return m.Value.Round(2).Shift(2).IntPart()
}

func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}

func (m Money) String() string { return m.Value.StringFixed(2) }

// Money marshals as a JSON number with two decimal places.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Value.StringFixed(2)), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*m = ZeroMoney()
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*m = Money{Value: d}
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type AccountID string
type TransactionID string
type BillID string
type RecurringID string
type IncomeSourceID string
type GoalID string

// PeriodID identifies a pay-period summary. It is the period's start date in
// YYYY-MM-DD form, which makes summary creation naturally idempotent.
type PeriodID string

func PeriodIDFor(start Date) PeriodID { return PeriodID(start.String()) }

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountType is the concrete account flavor users pick.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
)

// AccountKind is the sign convention the balance matrix cares about.
type AccountKind string

const (
	KindAsset     AccountKind = "asset"     // balance = money held
	KindLiability AccountKind = "liability" // balance = money owed
)

func (t AccountType) Kind() AccountKind {
	if t == AccountCreditCard {
		return KindLiability
	}
	return KindAsset
}

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCreditCard:
		return true
	}
	return false
}

type Account struct {
	ID      AccountID   `json:"id"`
	Name    string      `json:"name"`
	Type    AccountType `json:"type"`
	Balance Money       `json:"currentBalance"`

	// Liability-only fields
	CreditLimit Money `json:"creditLimit,omitempty"`
	APR         Money `json:"apr,omitempty"`
	DueDay      int   `json:"dueDay,omitempty"` // 0 = unset

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionKind string

const (
	TxIncome      TransactionKind = "income"
	TxPurchase    TransactionKind = "purchase"
	TxBillPayment TransactionKind = "bill_payment"
	TxTransfer    TransactionKind = "transfer"
	TxCardPayment TransactionKind = "card_payment"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TxIncome, TxPurchase, TxBillPayment, TxTransfer, TxCardPayment:
		return true
	}
	return false
}

// DualAccount reports whether the kind touches a destination account.
// Dual-account transactions are immutable once posted: their paired effects
// make partial edits ambiguous, so they must be deleted and recreated.
func (k TransactionKind) DualAccount() bool {
	return k == TxTransfer || k == TxCardPayment
}

type Transaction struct {
	ID          TransactionID   `json:"id"`
	Date        Date            `json:"date"`
	Amount      Money           `json:"amount"` // always non-negative
	Description string          `json:"description"`
	Kind        TransactionKind `json:"type"`
	AccountID   AccountID       `json:"accountId"`
	ToAccountID AccountID       `json:"toAccountId,omitempty"` // transfer/card payment only
	BillID      BillID          `json:"billId,omitempty"`
	Category    string          `json:"category,omitempty"`
	PeriodID    PeriodID        `json:"payPeriodId"`

	// Set when the catch-up processor created this transaction; the pair
	// (RecurringID|IncomeSourceID, Date, AccountID) is the idempotency key.
	RecurringID    RecurringID    `json:"recurringId,omitempty"`
	IncomeSourceID IncomeSourceID `json:"incomeSourceId,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// =============================================================================
// PAY-PERIOD SUMMARY
// =============================================================================

// PeriodSummary holds the running totals for one pay period. Totals are only
// ever moved by additive deltas; NetChange is re-derived from the three
// totals after every update, never accumulated independently.
type PeriodSummary struct {
	ID                 PeriodID `json:"id"`
	Start              Date     `json:"periodStart"`
	End                Date     `json:"periodEnd"`
	IncomeTotal        Money    `json:"incomeTotal"`
	BillsTotal         Money    `json:"billsTotal"`
	DiscretionaryTotal Money    `json:"discretionaryTotal"`
	NetChange          Money    `json:"netChange"`
	TransactionCount   int      `json:"transactionCount"`
}

// =============================================================================
// BILLS
// =============================================================================

type Bill struct {
	ID           BillID `json:"id"`
	Name         string `json:"name"`
	Amount       Money  `json:"amount"`
	DueDay       int    `json:"dueDay"` // 1-31, clamped per month
	Active       bool   `json:"isActive"`
	AutoPay      bool   `json:"isAutoPay"`
	AutoMarkPaid bool   `json:"autoMarkPaid"`
	LastPaid     Date   `json:"lastPaidDate"` // zero = never paid

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// PaidWithin reports whether the bill counts as paid for the period starting
// at periodStart: LastPaid is set and falls on or after the period start.
func (b Bill) PaidWithin(periodStart Date) bool {
	return !b.LastPaid.IsZero() && b.LastPaid.OnOrAfter(periodStart)
}

// =============================================================================
// RECURRING DEFINITIONS & INCOME SOURCES
// =============================================================================

type RecurringDefinition struct {
	ID            RecurringID     `json:"id"`
	Description   string          `json:"description"`
	Amount        Money           `json:"amount"`
	Kind          TransactionKind `json:"type"` // income or purchase
	Frequency     Frequency       `json:"frequency"`
	AccountID     AccountID       `json:"accountId"`
	StartDate     Date            `json:"startDate"`
	NextDue       Date            `json:"nextDueDate"`
	LastProcessed Date            `json:"lastProcessedDate"` // zero = never
	Active        bool            `json:"isActive"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Deposit is one leg of an income source: where the money lands and how much.
type Deposit struct {
	AccountID AccountID `json:"accountId"`
	Amount    Money     `json:"amount"`
}

type IncomeSource struct {
	ID              IncomeSourceID `json:"id"`
	Name            string         `json:"name"`
	Frequency       Frequency      `json:"frequency"`
	Anchor          Date           `json:"anchorDate"`
	SemimonthlyDays []int          `json:"semimonthlyDays,omitempty"`
	Deposits        []Deposit      `json:"deposits"`
	AutoAdd         bool           `json:"autoAdd"`
	LastProcessed   Date           `json:"lastProcessedDate"` // zero = never
	Active          bool           `json:"isActive"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Schedule returns the source's pay schedule for period math.
func (s IncomeSource) Schedule() Schedule {
	return Schedule{Frequency: s.Frequency, Anchor: s.Anchor, SemimonthlyDays: s.SemimonthlyDays}
}

// =============================================================================
// SAVINGS GOALS
// =============================================================================

// SavingsGoal tracks progress toward a target. When LinkedAccountID is set
// the goal's progress IS that account's balance and is resynced by the
// engine after transfers; otherwise Current is independent state.
type SavingsGoal struct {
	ID              GoalID    `json:"id"`
	Name            string    `json:"name"`
	Target          Money     `json:"targetAmount"`
	Current         Money     `json:"currentAmount"`
	LinkedAccountID AccountID `json:"linkedAccountId,omitempty"`
	Completed       bool      `json:"isCompleted"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// =============================================================================
// USER SETTINGS
// =============================================================================

// Settings is the pay-schedule configuration the CRUD layer writes and the
// engine reads. PrimaryAccountID is the default source account and the one
// safe-to-spend is computed against.
type Settings struct {
	PayFrequency     Frequency        `json:"payFrequency"`
	PayAnchor        Date             `json:"payAnchorDate"`
	SemimonthlyDays  []int            `json:"semimonthlyDays,omitempty"`
	PrimaryAccountID AccountID        `json:"primaryAccountId"`
	NetPay           Money            `json:"netPayAmount"`
	CategoryBudgets  map[string]Money `json:"categoryBudgets,omitempty"`
}

func (s Settings) Schedule() Schedule {
	return Schedule{Frequency: s.PayFrequency, Anchor: s.PayAnchor, SemimonthlyDays: s.SemimonthlyDays}
}
