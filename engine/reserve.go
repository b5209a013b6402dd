/*
reserve.go - Safe-to-spend calculation and the dashboard overview

The reserve calculator answers one question: of the money in the primary
account, how much can be spent before the next paycheck without missing a
bill? Bills due on or before the next pay date and not yet paid this period
form the required reserve; safeAmount = max(0, balance - reserve).

The overview is a read-only composite of the period calculator, the reserve
calculator and plain store reads. Its only side effects are lazy creation
of the current period summary and the best-effort auto-mark-paid sweep,
neither of which may fail the read.
*/
package engine

import (
	"context"
	"log"
)

// Reserve computes safe-to-spend and assembles the dashboard overview.
type Reserve struct {
	Store Store
}

func NewReserve(store Store) *Reserve {
	return &Reserve{Store: store}
}

// UpcomingBill is a bill due between today and the next pay date.
type UpcomingBill struct {
	ID      BillID `json:"id"`
	Name    string `json:"name"`
	Amount  Money  `json:"amount"`
	DueDate Date   `json:"dueDate"`
	Paid    bool   `json:"isPaidThisPeriod"`
	AutoPay bool   `json:"isAutoPay"`
}

// SafeToSpend is the reserve calculation result.
type SafeToSpend struct {
	CurrentBalance  Money `json:"currentBalance"`
	RequiredReserve Money `json:"requiredReserve"`
	SafeAmount      Money `json:"safeAmount"`
}

// PaySchedule is the user's pay cadence as shown on the dashboard.
type PaySchedule struct {
	Frequency   Frequency `json:"frequency"`
	NetPay      Money     `json:"netPayAmount"`
	NextPayDate Date      `json:"nextPayDate"`
}

// OverviewResult is the full dashboard state.
type OverviewResult struct {
	Accounts       []Account `json:"accounts"`
	PrimaryAccount Account   `json:"account"`

	CashBalance     Money `json:"cashBalance"`
	CreditOwed      Money `json:"creditOwed"`
	CreditLimit     Money `json:"totalCreditLimit"`
	CreditAvailable Money `json:"totalCreditAvailable"`
	NetWorth        Money `json:"totalBalance"` // cash minus debt

	PaySchedule        PaySchedule      `json:"paySchedule"`
	CurrentPeriod      PeriodSummary    `json:"currentPeriod"`
	SpendingByCategory map[string]Money `json:"spendingByCategory"`
	CategoryBudgets    map[string]Money `json:"categoryBudgets"`

	SavingsGoals       []SavingsGoal `json:"savingsGoals"`
	UpcomingBills      []UpcomingBill `json:"upcomingBills"`
	SafeToSpend        SafeToSpend    `json:"safeToSpend"`
	RecentTransactions []Transaction  `json:"recentTransactions"`
}

// Overview computes the dashboard state for today.
func (r *Reserve) Overview(ctx context.Context, user UserID, today Date) (*OverviewResult, error) {
	settings, err := r.Store.GetSettings(ctx, user)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, NotFoundf("user settings not found, complete setup first")
	}

	accounts, err := r.Store.ListAccounts(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, NotFoundf("no accounts found")
	}

	cash, owed, limit := ZeroMoney(), ZeroMoney(), ZeroMoney()
	var primary *Account
	for i := range accounts {
		a := &accounts[i]
		if a.Type.Kind() == KindLiability {
			owed = owed.Add(a.Balance)
			limit = limit.Add(a.CreditLimit)
		} else {
			cash = cash.Add(a.Balance)
		}
		if a.ID == settings.PrimaryAccountID {
			primary = a
		}
	}
	if primary == nil {
		// Fall back to the first asset account, then any account.
		for i := range accounts {
			if accounts[i].Type.Kind() == KindAsset {
				primary = &accounts[i]
				break
			}
		}
		if primary == nil {
			primary = &accounts[0]
		}
	}

	period, err := settings.Schedule().PeriodFor(today)
	if err != nil {
		return nil, err
	}

	summary, err := r.currentSummary(ctx, user, period)
	if err != nil {
		return nil, err
	}

	bills, err := r.Store.ListBills(ctx, user, true)
	if err != nil {
		return nil, err
	}

	upcoming, reserve := upcomingBills(bills, today, period)
	r.autoMarkPaid(ctx, user, bills, today, period)

	safe := primary.Balance.Sub(reserve)
	if safe.IsNegative() {
		safe = ZeroMoney()
	}

	goals, err := r.Store.ListGoals(ctx, user)
	if err != nil {
		return nil, err
	}

	periodTxns, err := r.Store.ListTransactions(ctx, user, TransactionFilter{PeriodID: period.ID()})
	if err != nil {
		return nil, err
	}
	byCategory := make(map[string]Money)
	for _, t := range periodTxns {
		if t.Kind == TxPurchase && t.Category != "" {
			byCategory[t.Category] = byCategory[t.Category].Add(t.Amount)
		}
	}

	recent, err := r.Store.ListTransactions(ctx, user, TransactionFilter{
		From:  today.AddDays(-7),
		To:    today,
		Limit: 50,
	})
	if err != nil {
		return nil, err
	}

	return &OverviewResult{
		Accounts:       accounts,
		PrimaryAccount: *primary,
		CashBalance:    cash,
		CreditOwed:     owed,
		CreditLimit:    limit,
		CreditAvailable: limit.Sub(owed),
		NetWorth:        cash.Sub(owed),
		PaySchedule: PaySchedule{
			Frequency:   settings.PayFrequency,
			NetPay:      settings.NetPay,
			NextPayDate: period.NextStart,
		},
		CurrentPeriod:      *summary,
		SpendingByCategory: byCategory,
		CategoryBudgets:    settings.CategoryBudgets,
		SavingsGoals:       goals,
		UpcomingBills:      upcoming,
		SafeToSpend: SafeToSpend{
			CurrentBalance:  primary.Balance,
			RequiredReserve: reserve,
			SafeAmount:      safe,
		},
		RecentTransactions: recent,
	}, nil
}

// currentSummary reads the period summary, creating it lazily on first
// overview read for the period.
func (r *Reserve) currentSummary(ctx context.Context, user UserID, period PayPeriod) (*PeriodSummary, error) {
	summary, err := r.Store.GetPeriodSummary(ctx, user, period.ID())
	if err != nil {
		return nil, err
	}
	if summary != nil {
		return summary, nil
	}

	created := PeriodSummary{ID: period.ID(), Start: period.Start, End: period.End}
	if err := r.Store.Commit(ctx, user, Batch{EnsurePeriods: []PeriodSummary{created}}); err != nil {
		return nil, err
	}
	return &created, nil
}

// upcomingBills collects bills due on or before the next pay date and sums
// the reserve for the unpaid ones. Paid bills are listed but excluded from
// the reserve.
func upcomingBills(bills []Bill, today Date, period PayPeriod) ([]UpcomingBill, Money) {
	upcoming := make([]UpcomingBill, 0, len(bills))
	reserve := ZeroMoney()

	for _, b := range bills {
		due := NextBillDue(b.DueDay, today)
		if due.After(period.NextStart) {
			continue
		}
		paid := b.PaidWithin(period.Start)
		upcoming = append(upcoming, UpcomingBill{
			ID:      b.ID,
			Name:    b.Name,
			Amount:  b.Amount,
			DueDate: due,
			Paid:    paid,
			AutoPay: b.AutoPay,
		})
		if !paid {
			reserve = reserve.Add(b.Amount)
		}
	}
	return upcoming, reserve
}

// autoMarkPaid marks auto-mark-paid bills whose due date has passed this
// period without a manual payment. Best effort: failures are logged and
// never block the overview read.
func (r *Reserve) autoMarkPaid(ctx context.Context, user UserID, bills []Bill, today Date, period PayPeriod) {
	var marks []BillPaidMark
	for _, b := range bills {
		if !b.AutoMarkPaid || b.PaidWithin(period.Start) {
			continue
		}
		lastDue := LastBillDue(b.DueDay, today)
		if lastDue.Before(today) && lastDue.OnOrAfter(period.Start) {
			marks = append(marks, BillPaidMark{BillID: b.ID, PaidOn: lastDue})
		}
	}
	if len(marks) == 0 {
		return
	}
	if err := r.Store.Commit(ctx, user, Batch{BillPayments: marks}); err != nil {
		log.Printf("auto-mark-paid sweep failed for user %s: %v", user, err)
	}
}
