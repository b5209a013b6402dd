/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate a user's ledger with realistic
	data for testing and demos. Each scenario creates settings, accounts,
	bills, recurring definitions, and posted transactions that demonstrate
	specific features.

AVAILABLE SCENARIOS:

	fresh-start:     Settings plus a single checking account, nothing posted
	steady-paycheck: Biweekly pay, bills, recurring charges, spending history
	debt-paydown:    Credit card debt, card payments, linked savings goal

HOW SCENARIOS WORK:
 1. Reset the requesting user's data (ResetUser)
 2. Save settings anchored to a recent pay date
 3. Create accounts, bills, recurring definitions, income sources, goals
 4. Post transactions through the Processor so balances and period
    summaries are derived the same way live traffic derives them

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "steady-paycheck"}

NOTE:

	Loading a scenario wipes the requesting user's data first. Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: writeJSON / writeError helpers
  - server.go: Route registration
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/keel/budget-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-start",
		Name:        "Fresh Start",
		Description: "Biweekly pay schedule and one checking account, no history",
	},
	{
		ID:          "steady-paycheck",
		Name:        "Steady Paycheck",
		Description: "Biweekly income, monthly bills, recurring charges, recent spending",
	},
	{
		ID:          "debt-paydown",
		Name:        "Debt Paydown",
		Description: "Credit card debt with payments and a linked savings goal",
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario wipes the requesting user's data and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req struct {
		ScenarioID string `json:"scenarioId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.ResetUser(ctx, user); err != nil {
		writeError(w, err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-start":
		err = h.loadFreshStart(ctx, user)
	case "steady-paycheck":
		err = h.loadSteadyPaycheck(ctx, user)
	case "debt-paydown":
		err = h.loadDebtPaydown(ctx, user)
	default:
		writeError(w, engine.Validationf("unknown scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// lastPayday anchors demo schedules a week back so the current period
// always contains some history.
func lastPayday() engine.Date {
	return engine.Today().AddDays(-7)
}

func (h *Handler) loadFreshStart(ctx context.Context, user engine.UserID) error {
	settings := engine.Settings{
		PayFrequency:     engine.FreqBiweekly,
		PayAnchor:        lastPayday(),
		PrimaryAccountID: "acct-checking",
		NetPay:           engine.NewMoney(2400),
	}
	if err := h.Store.SaveSettings(ctx, user, settings); err != nil {
		return err
	}
	return h.Store.SaveAccount(ctx, user, engine.Account{
		ID:      "acct-checking",
		Name:    "Checking",
		Type:    engine.AccountChecking,
		Balance: engine.NewMoney(2500),
	})
}

func (h *Handler) loadSteadyPaycheck(ctx context.Context, user engine.UserID) error {
	payday := lastPayday()

	settings := engine.Settings{
		PayFrequency:     engine.FreqBiweekly,
		PayAnchor:        payday,
		PrimaryAccountID: "acct-checking",
		NetPay:           engine.NewMoney(2400),
		CategoryBudgets: map[string]engine.Money{
			"food":     engine.NewMoney(400),
			"gas":      engine.NewMoney(150),
			"shopping": engine.NewMoney(200),
		},
	}
	if err := h.Store.SaveSettings(ctx, user, settings); err != nil {
		return err
	}

	accounts := []engine.Account{
		{ID: "acct-checking", Name: "Checking", Type: engine.AccountChecking, Balance: engine.NewMoney(1800)},
		{ID: "acct-savings", Name: "Savings", Type: engine.AccountSavings, Balance: engine.NewMoney(5200)},
	}
	for _, a := range accounts {
		if err := h.Store.SaveAccount(ctx, user, a); err != nil {
			return err
		}
	}

	bills := []engine.Bill{
		{ID: "bill-rent", Name: "Rent", Amount: engine.NewMoney(1450), DueDay: 1, Active: true},
		{ID: "bill-internet", Name: "Internet", Amount: engine.NewMoney(70), DueDay: 15, Active: true, AutoPay: true, AutoMarkPaid: true},
		{ID: "bill-phone", Name: "Phone", Amount: engine.NewMoney(55), DueDay: 20, Active: true, AutoPay: true},
	}
	for _, b := range bills {
		if err := h.Store.SaveBill(ctx, user, b); err != nil {
			return err
		}
	}

	recurring := []engine.RecurringDefinition{
		{
			ID: "rec-gym", Description: "Gym membership", Amount: engine.NewMoney(35),
			Kind: engine.TxPurchase, Frequency: engine.FreqMonthly, AccountID: "acct-checking",
			StartDate: payday, NextDue: payday.AddMonths(1), Active: true,
		},
		{
			ID: "rec-streaming", Description: "Streaming bundle", Amount: engine.NewMoney(22),
			Kind: engine.TxPurchase, Frequency: engine.FreqMonthly, AccountID: "acct-checking",
			StartDate: payday, NextDue: payday.AddMonths(1), Active: true,
		},
	}
	for _, def := range recurring {
		if err := h.Store.SaveRecurring(ctx, user, def); err != nil {
			return err
		}
	}

	income := engine.IncomeSource{
		ID:        "inc-job",
		Name:      "Paycheck",
		Frequency: engine.FreqBiweekly,
		Anchor:    payday,
		Deposits: []engine.Deposit{
			{AccountID: "acct-checking", Amount: engine.NewMoney(2200)},
			{AccountID: "acct-savings", Amount: engine.NewMoney(200)},
		},
		AutoAdd: true,
		Active:  true,
	}
	if err := h.Store.SaveIncomeSource(ctx, user, income); err != nil {
		return err
	}

	// Post history through the engine so balances and the period summary
	// are derived, not hand-written.
	posts := []engine.PostRequest{
		{Date: payday, Amount: engine.NewMoney(2400), Description: "Paycheck", Kind: engine.TxIncome, Category: "income"},
		{Date: payday.AddDays(1), Amount: engine.NewMoney(118.40), Description: "Groceries", Kind: engine.TxPurchase, Category: "food"},
		{Date: payday.AddDays(3), Amount: engine.NewMoney(46), Description: "Gas", Kind: engine.TxPurchase, Category: "gas"},
		{Date: payday.AddDays(4), Amount: engine.NewMoney(70), Description: "Internet", Kind: engine.TxBillPayment, BillID: "bill-internet", Category: "bills"},
		{Date: payday.AddDays(5), Amount: engine.NewMoney(62.75), Description: "Dinner out", Kind: engine.TxPurchase, Category: "food"},
	}
	for _, p := range posts {
		if _, err := h.Processor.Post(ctx, user, p); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadDebtPaydown(ctx context.Context, user engine.UserID) error {
	if err := h.loadSteadyPaycheck(ctx, user); err != nil {
		return err
	}

	card := engine.Account{
		ID:          "acct-card",
		Name:        "Rewards Card",
		Type:        engine.AccountCreditCard,
		Balance:     engine.NewMoney(1840),
		CreditLimit: engine.NewMoney(5000),
		APR:         engine.NewMoney(24.99),
		DueDay:      25,
	}
	if err := h.Store.SaveAccount(ctx, user, card); err != nil {
		return err
	}

	goal := engine.SavingsGoal{
		ID:              "goal-emergency",
		Name:            "Emergency Fund",
		Target:          engine.NewMoney(10000),
		Current:         engine.NewMoney(5200),
		LinkedAccountID: "acct-savings",
	}
	if err := h.Store.SaveGoal(ctx, user, goal); err != nil {
		return err
	}

	payday := lastPayday()
	posts := []engine.PostRequest{
		{Date: payday.AddDays(2), Amount: engine.NewMoney(84.30), Description: "Online order", Kind: engine.TxPurchase, AccountID: "acct-card", Category: "shopping"},
		{Date: payday.AddDays(6), Amount: engine.NewMoney(300), Description: "Card payment", Kind: engine.TxCardPayment, AccountID: "acct-checking", ToAccountID: "acct-card"},
	}
	for _, p := range posts {
		if _, err := h.Processor.Post(ctx, user, p); err != nil {
			return err
		}
	}
	return nil
}
