package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/keel/budget-engine/engine"
	"github.com/keel/budget-engine/engine/store"
)

// =============================================================================
// SAFE-TO-SPEND
// =============================================================================

func seedBill(t *testing.T, s engine.Store, b engine.Bill) {
	t.Helper()
	if err := s.SaveBill(context.Background(), testUser, b); err != nil {
		t.Fatalf("seed bill: %v", err)
	}
}

func overview(t *testing.T, r *engine.Reserve, today engine.Date) *engine.OverviewResult {
	t.Helper()
	result, err := r.Overview(context.Background(), testUser, today)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}
	return result
}

func TestSafeToSpend_ReservesUnpaidBills(t *testing.T) {
	// GIVEN: primary balance 500 and unpaid bills of 300 + 120 due before
	//        the next pay date
	// THEN: safe to spend = 500 - 420 = 80

	s := newTestStore(t)
	r := engine.NewReserve(s)
	today := date(2025, time.January, 20) // period 01-17 .. 01-30

	seedBill(t, s, engine.Bill{ID: "rent", Name: "Rent", Amount: engine.NewMoney(300), DueDay: 25, Active: true})
	seedBill(t, s, engine.Bill{ID: "power", Name: "Power", Amount: engine.NewMoney(120), DueDay: 28, Active: true})

	result := overview(t, r, today)

	wantMoney(t, result.SafeToSpend.CurrentBalance, 500, "current balance")
	wantMoney(t, result.SafeToSpend.RequiredReserve, 420, "required reserve")
	wantMoney(t, result.SafeToSpend.SafeAmount, 80, "safe amount")
}

func TestSafeToSpend_ClampsToZero(t *testing.T) {
	// Reserve above the balance clamps to 0, never negative.

	s := newTestStore(t)
	r := engine.NewReserve(s)

	seedBill(t, s, engine.Bill{ID: "rent", Name: "Rent", Amount: engine.NewMoney(520), DueDay: 25, Active: true})

	result := overview(t, r, date(2025, time.January, 20))
	wantMoney(t, result.SafeToSpend.SafeAmount, 0, "safe amount")
}

func TestSafeToSpend_PaidBillsExcludedFromReserve(t *testing.T) {
	// GIVEN: a bill paid inside the current period
	// THEN: it still appears in upcoming bills, marked paid, but adds
	//       nothing to the reserve

	s := newTestStore(t)
	r := engine.NewReserve(s)

	seedBill(t, s, engine.Bill{
		ID: "rent", Name: "Rent", Amount: engine.NewMoney(300), DueDay: 25,
		Active: true, LastPaid: date(2025, time.January, 18),
	})

	result := overview(t, r, date(2025, time.January, 20))

	wantMoney(t, result.SafeToSpend.RequiredReserve, 0, "required reserve")
	if len(result.UpcomingBills) != 1 {
		t.Fatalf("upcoming bills = %d, want 1", len(result.UpcomingBills))
	}
	if !result.UpcomingBills[0].Paid {
		t.Error("bill should be marked paid")
	}
}

func TestSafeToSpend_PaidBoundaryIsPeriodStart(t *testing.T) {
	// lastPaid exactly on the period start counts as paid this period;
	// one day earlier does not.

	cases := []struct {
		name     string
		lastPaid engine.Date
		paid     bool
	}{
		{"paid on period start", date(2025, time.January, 17), true},
		{"paid day before period start", date(2025, time.January, 16), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestStore(t)
			r := engine.NewReserve(s)

			seedBill(t, s, engine.Bill{
				ID: "rent", Name: "Rent", Amount: engine.NewMoney(300), DueDay: 25,
				Active: true, LastPaid: c.lastPaid,
			})

			result := overview(t, r, date(2025, time.January, 20))
			if result.UpcomingBills[0].Paid != c.paid {
				t.Errorf("paid = %v, want %v", result.UpcomingBills[0].Paid, c.paid)
			}
		})
	}
}

func TestSafeToSpend_BillsAfterNextPayDateIgnored(t *testing.T) {
	// A bill due after the next pay date belongs to the next paycheck's
	// problem and is not reserved now.

	s := newTestStore(t)
	r := engine.NewReserve(s)

	// Period for Jan 20 runs to Jan 30; next pay Jan 31. Due day 5 next
	// falls on Feb 5, past the next pay date.
	seedBill(t, s, engine.Bill{ID: "later", Name: "Later", Amount: engine.NewMoney(100), DueDay: 5, Active: true})

	result := overview(t, r, date(2025, time.January, 20))

	if len(result.UpcomingBills) != 0 {
		t.Errorf("upcoming bills = %d, want 0", len(result.UpcomingBills))
	}
	wantMoney(t, result.SafeToSpend.SafeAmount, 500, "safe amount")
}

// =============================================================================
// OVERVIEW AGGREGATES
// =============================================================================

func TestOverview_AccountTotals(t *testing.T) {
	// checking 500 + savings 200 cash, card owes 150 of a 1000 limit.

	s := newTestStore(t)
	r := engine.NewReserve(s)

	result := overview(t, r, date(2025, time.January, 20))

	wantMoney(t, result.CashBalance, 700, "cash")
	wantMoney(t, result.CreditOwed, 150, "owed")
	wantMoney(t, result.CreditLimit, 1000, "limit")
	wantMoney(t, result.CreditAvailable, 850, "available credit")
	wantMoney(t, result.NetWorth, 550, "net worth")
	if result.PrimaryAccount.ID != "checking" {
		t.Errorf("primary = %s, want checking", result.PrimaryAccount.ID)
	}
}

func TestOverview_CreatesCurrentPeriodLazily(t *testing.T) {
	s := newTestStore(t)
	r := engine.NewReserve(s)
	ctx := context.Background()

	result := overview(t, r, date(2025, time.January, 20))

	if result.CurrentPeriod.ID != engine.PeriodID("2025-01-17") {
		t.Errorf("period = %s, want 2025-01-17", result.CurrentPeriod.ID)
	}

	// The summary row now exists in the store.
	summary, err := s.GetPeriodSummary(ctx, testUser, engine.PeriodID("2025-01-17"))
	if err != nil || summary == nil {
		t.Fatalf("summary not created: %v", err)
	}
}

func TestOverview_SpendingByCategory(t *testing.T) {
	// Only purchases feed category spending; transfers and income do not.

	s := newTestStore(t)
	p := engine.NewProcessor(s)
	r := engine.NewReserve(s)

	post(t, p, engine.PostRequest{Date: date(2025, time.January, 20), Amount: engine.NewMoney(30), Description: "dinner", Kind: engine.TxPurchase, AccountID: "checking", Category: "food"})
	post(t, p, engine.PostRequest{Date: date(2025, time.January, 21), Amount: engine.NewMoney(12), Description: "lunch", Kind: engine.TxPurchase, AccountID: "checking", Category: "food"})
	post(t, p, engine.PostRequest{Date: date(2025, time.January, 21), Amount: engine.NewMoney(100), Description: "pay", Kind: engine.TxIncome, AccountID: "checking", Category: "income"})

	result := overview(t, r, date(2025, time.January, 22))

	wantMoney(t, result.SpendingByCategory["food"], 42, "food spending")
	if _, ok := result.SpendingByCategory["income"]; ok {
		t.Error("income must not appear in spending by category")
	}
}

func TestOverview_WithoutSettings(t *testing.T) {
	s := store.NewMemory()
	r := engine.NewReserve(s)

	_, err := r.Overview(context.Background(), testUser, date(2025, time.January, 20))
	if engine.KindOf(err) != engine.KindNotFound {
		t.Errorf("kind = %v, want not found", engine.KindOf(err))
	}
}

// =============================================================================
// AUTO MARK PAID
// =============================================================================

func TestOverview_AutoMarkPaidSweep(t *testing.T) {
	// GIVEN: an auto-mark-paid bill whose due date (18th) passed within
	//        the current period and no payment was recorded
	// WHEN: the overview runs on the 20th
	// THEN: the bill is marked paid as of its due date

	s := newTestStore(t)
	r := engine.NewReserve(s)
	ctx := context.Background()

	seedBill(t, s, engine.Bill{
		ID: "sub", Name: "Subscription", Amount: engine.NewMoney(15), DueDay: 18,
		Active: true, AutoMarkPaid: true,
	})

	overview(t, r, date(2025, time.January, 20))

	bill, err := s.GetBill(ctx, testUser, "sub")
	if err != nil || bill == nil {
		t.Fatalf("bill: %v", err)
	}
	if !bill.LastPaid.Equal(date(2025, time.January, 18)) {
		t.Errorf("last paid = %s, want 2025-01-18", bill.LastPaid)
	}
}

func TestOverview_AutoMarkPaidSkipsFutureDue(t *testing.T) {
	// Due date still ahead: nothing to mark.

	s := newTestStore(t)
	r := engine.NewReserve(s)
	ctx := context.Background()

	seedBill(t, s, engine.Bill{
		ID: "sub", Name: "Subscription", Amount: engine.NewMoney(15), DueDay: 25,
		Active: true, AutoMarkPaid: true,
	})

	overview(t, r, date(2025, time.January, 20))

	bill, _ := s.GetBill(ctx, testUser, "sub")
	if !bill.LastPaid.IsZero() {
		t.Errorf("last paid = %s, want unset", bill.LastPaid)
	}
}
