/*
handlers_test.go - HTTP-level tests for the REST API

Exercises the full stack behind the router: middleware, JSON envelope,
error-to-status mapping, and the handlers against the in-memory store.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keel/budget-engine/api"
	"github.com/keel/budget-engine/engine"
	"github.com/keel/budget-engine/engine/store"
)

const testUser = "user-1"

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestRouter() *chi.Mux {
	return api.NewRouter(api.NewHandler(store.NewMemory()))
}

// doJSON issues a request with the test user header and returns the recorder.
func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", testUser)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the envelope's data field into out, failing on an
// unsuccessful envelope.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v (data %s)", err, env.Data)
		}
	}
}

// wantErrorCode asserts an error envelope with the given status and code.
func wantErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if rec.Code != status {
		t.Errorf("expected status %d, got %d (body %s)", status, rec.Code, rec.Body.String())
	}
	var env struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if env.Success {
		t.Errorf("expected success=false, got %s", rec.Body.String())
	}
	if env.Error.Code != code {
		t.Errorf("expected error code %s, got %s", code, env.Error.Code)
	}
	if env.Error.Message == "" {
		t.Error("expected a non-empty error message")
	}
}

// seedBudget configures settings and a checking account through the API,
// anchored a week back so today falls inside the first period.
func seedBudget(t *testing.T, router http.Handler) {
	t.Helper()

	rec := doJSON(t, router, "POST", "/api/accounts", map[string]any{
		"id":             "checking",
		"name":           "Checking",
		"type":           "checking",
		"currentBalance": 500.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed account: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "PUT", "/api/settings", map[string]any{
		"payFrequency":     "biweekly",
		"payAnchorDate":    engine.Today().AddDays(-7).String(),
		"primaryAccountId": "checking",
		"netPayAmount":     2000.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed settings: status %d, body %s", rec.Code, rec.Body.String())
	}
}

type transactionResult struct {
	Transaction engine.Transaction `json:"transaction"`
	Balance     engine.Money       `json:"accountBalance"`
	ToBalance   *engine.Money      `json:"toAccountBalance"`
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRequireUser_MissingHeader(t *testing.T) {
	// GIVEN: A router
	router := newTestRouter()

	// WHEN: Requesting without an X-User-ID header
	req := httptest.NewRequest("GET", "/api/accounts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// THEN: The request is rejected as a validation error
	wantErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestUserIsolation(t *testing.T) {
	// GIVEN: Data seeded for one user
	router := newTestRouter()
	seedBudget(t, router)

	// WHEN: Another user lists accounts
	req := httptest.NewRequest("GET", "/api/accounts", nil)
	req.Header.Set("X-User-ID", "someone-else")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// THEN: They see nothing
	var accounts []engine.Account
	decodeData(t, rec, &accounts)
	if len(accounts) != 0 {
		t.Errorf("expected no accounts for other user, got %d", len(accounts))
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestCreateTransaction_Flow(t *testing.T) {
	// GIVEN: A configured budget
	router := newTestRouter()
	seedBudget(t, router)

	// WHEN: Posting income against the primary account
	rec := doJSON(t, router, "POST", "/api/transactions", map[string]any{
		"date":        engine.Today().String(),
		"amount":      100.0,
		"description": "Paycheck",
		"type":        "income",
	})

	// THEN: 201 with the transaction and the new balance
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}
	var result transactionResult
	decodeData(t, rec, &result)
	if result.Transaction.ID == "" {
		t.Error("expected a generated transaction id")
	}
	if result.Transaction.AccountID != "checking" {
		t.Errorf("expected primary account default, got %q", result.Transaction.AccountID)
	}
	if !result.Balance.Equal(engine.NewMoney(600)) {
		t.Errorf("expected balance 600, got %s", result.Balance)
	}

	// AND: The transaction is listed and fetchable
	var txns []engine.Transaction
	decodeData(t, doJSON(t, router, "GET", "/api/transactions", nil), &txns)
	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txns))
	}

	var fetched engine.Transaction
	decodeData(t, doJSON(t, router, "GET", "/api/transactions/"+string(result.Transaction.ID), nil), &fetched)
	if fetched.ID != result.Transaction.ID {
		t.Errorf("expected transaction %s, got %s", result.Transaction.ID, fetched.ID)
	}
}

func TestCreateTransaction_Errors(t *testing.T) {
	router := newTestRouter()
	seedBudget(t, router)

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{
			name:   "malformed date",
			body:   map[string]any{"date": "01/20/2025", "amount": 10.0, "description": "x", "type": "purchase"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "negative amount",
			body:   map[string]any{"date": engine.Today().String(), "amount": -10.0, "description": "x", "type": "purchase"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown kind",
			body:   map[string]any{"date": engine.Today().String(), "amount": 10.0, "description": "x", "type": "withdrawal"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown account",
			body:   map[string]any{"date": engine.Today().String(), "amount": 10.0, "description": "x", "type": "purchase", "accountId": "nope"},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := doJSON(t, router, "POST", "/api/transactions", c.body)
			wantErrorCode(t, rec, c.status, c.code)
		})
	}
}

func TestUpdateTransaction_DualAccountConflict(t *testing.T) {
	// GIVEN: A posted card payment
	router := newTestRouter()
	seedBudget(t, router)

	rec := doJSON(t, router, "POST", "/api/accounts", map[string]any{
		"id": "card", "name": "Card", "type": "credit_card", "currentBalance": 150.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed card: %d", rec.Code)
	}

	var result transactionResult
	decodeData(t, doJSON(t, router, "POST", "/api/transactions", map[string]any{
		"date":        engine.Today().String(),
		"amount":      50.0,
		"description": "Card payment",
		"type":        "card_payment",
		"accountId":   "checking",
		"toAccountId": "card",
	}), &result)

	// WHEN: Editing its amount
	rec = doJSON(t, router, "PUT", "/api/transactions/"+string(result.Transaction.ID), map[string]any{
		"amount": 75.0,
	})

	// THEN: 409, dual-account postings are delete-and-repost only
	wantErrorCode(t, rec, http.StatusConflict, "CONFLICT")
}

func TestDeleteTransaction_RestoresBalance(t *testing.T) {
	// GIVEN: A posted purchase
	router := newTestRouter()
	seedBudget(t, router)

	var result transactionResult
	decodeData(t, doJSON(t, router, "POST", "/api/transactions", map[string]any{
		"date":        engine.Today().String(),
		"amount":      40.0,
		"description": "Groceries",
		"type":        "purchase",
		"category":    "food",
	}), &result)

	// WHEN: Deleting it
	rec := doJSON(t, router, "DELETE", "/api/transactions/"+string(result.Transaction.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}

	// THEN: The balance is back where it started
	var accounts []engine.Account
	decodeData(t, doJSON(t, router, "GET", "/api/accounts", nil), &accounts)
	if len(accounts) != 1 || !accounts[0].Balance.Equal(engine.NewMoney(500)) {
		t.Errorf("expected restored balance 500, got %+v", accounts)
	}

	// AND: Deleting again is a 404
	rec = doJSON(t, router, "DELETE", "/api/transactions/"+string(result.Transaction.ID), nil)
	wantErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")
}

// =============================================================================
// OVERVIEW
// =============================================================================

func TestGetOverview(t *testing.T) {
	// GIVEN: A budget with one posted purchase
	router := newTestRouter()
	seedBudget(t, router)

	rec := doJSON(t, router, "POST", "/api/transactions", map[string]any{
		"date":        engine.Today().String(),
		"amount":      30.0,
		"description": "Takeout",
		"type":        "purchase",
		"category":    "food",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: %d", rec.Code)
	}

	// WHEN: Fetching the overview
	var overview engine.OverviewResult
	decodeData(t, doJSON(t, router, "GET", "/api/overview", nil), &overview)

	// THEN: Balances, period totals, and category spending line up
	if !overview.CashBalance.Equal(engine.NewMoney(470)) {
		t.Errorf("expected cash 470, got %s", overview.CashBalance)
	}
	if overview.PrimaryAccount.ID != "checking" {
		t.Errorf("expected primary account checking, got %q", overview.PrimaryAccount.ID)
	}
	if !overview.CurrentPeriod.DiscretionaryTotal.Equal(engine.NewMoney(30)) {
		t.Errorf("expected discretionary 30, got %s", overview.CurrentPeriod.DiscretionaryTotal)
	}
	if !overview.SpendingByCategory["food"].Equal(engine.NewMoney(30)) {
		t.Errorf("expected food spending 30, got %v", overview.SpendingByCategory)
	}
}

func TestGetOverview_NoSettings(t *testing.T) {
	router := newTestRouter()
	rec := doJSON(t, router, "GET", "/api/overview", nil)
	wantErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")
}

// =============================================================================
// ENTITIES
// =============================================================================

func TestSaveAccount_PutHonorsURLID(t *testing.T) {
	// GIVEN: An existing account
	router := newTestRouter()
	seedBudget(t, router)

	// WHEN: Updating it via PUT with no id in the body
	var acct engine.Account
	decodeData(t, doJSON(t, router, "PUT", "/api/accounts/checking", map[string]any{
		"name":           "Everyday Checking",
		"type":           "checking",
		"currentBalance": 750.0,
	}), &acct)

	// THEN: The URL id wins, no second account is created
	if acct.ID != "checking" {
		t.Errorf("expected id checking, got %q", acct.ID)
	}
	var accounts []engine.Account
	decodeData(t, doJSON(t, router, "GET", "/api/accounts", nil), &accounts)
	if len(accounts) != 1 {
		t.Errorf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].Name != "Everyday Checking" {
		t.Errorf("expected renamed account, got %q", accounts[0].Name)
	}
}

func TestSaveBill_Validation(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, "POST", "/api/bills", map[string]any{
		"name": "Rent", "amount": 1200.0, "dueDay": 32,
	})
	wantErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestListEndpoints_EmptyAreArrays(t *testing.T) {
	// Empty collections must serialize as [] rather than null.
	router := newTestRouter()

	for _, path := range []string{"/api/accounts", "/api/bills", "/api/recurring", "/api/income-sources", "/api/goals", "/api/transactions"} {
		rec := doJSON(t, router, "GET", path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
			continue
		}
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if string(env.Data) == "null" {
			t.Errorf("%s: expected [], got null", path)
		}
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_RoundTrip(t *testing.T) {
	router := newTestRouter()

	// GIVEN: No settings yet
	rec := doJSON(t, router, "GET", "/api/settings", nil)
	wantErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")

	// WHEN: Saving and re-reading
	seedBudget(t, router)
	var settings engine.Settings
	decodeData(t, doJSON(t, router, "GET", "/api/settings", nil), &settings)

	// THEN: The saved schedule comes back
	if settings.PayFrequency != engine.FreqBiweekly {
		t.Errorf("expected biweekly, got %q", settings.PayFrequency)
	}
	if settings.PrimaryAccountID != "checking" {
		t.Errorf("expected primary checking, got %q", settings.PrimaryAccountID)
	}
}

func TestSaveSettings_SemimonthlyNeedsTwoDays(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, "PUT", "/api/settings", map[string]any{
		"payFrequency":    "semimonthly",
		"payAnchorDate":   engine.Today().String(),
		"semimonthlyDays": []int{15},
	})
	wantErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

// =============================================================================
// CATCH-UP ROUTES
// =============================================================================

func TestProcessRecurring_PostsDueOccurrences(t *testing.T) {
	// GIVEN: A recurring charge that came due yesterday
	router := newTestRouter()
	seedBudget(t, router)

	rec := doJSON(t, router, "POST", "/api/recurring", map[string]any{
		"description": "Gym",
		"amount":      35.0,
		"type":        "purchase",
		"frequency":   "monthly",
		"accountId":   "checking",
		"startDate":   engine.Today().AddDays(-1).String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed recurring: %d (body %s)", rec.Code, rec.Body.String())
	}

	// WHEN: Processing twice
	var first, second struct {
		Processed int `json:"processed"`
	}
	decodeData(t, doJSON(t, router, "POST", "/api/recurring/process", nil), &first)
	decodeData(t, doJSON(t, router, "POST", "/api/recurring/process", nil), &second)

	// THEN: One posting, then idempotent
	if first.Processed != 1 {
		t.Errorf("expected 1 processed, got %d", first.Processed)
	}
	if second.Processed != 0 {
		t.Errorf("expected 0 on second run, got %d", second.Processed)
	}

	var accounts []engine.Account
	decodeData(t, doJSON(t, router, "GET", "/api/accounts", nil), &accounts)
	if !accounts[0].Balance.Equal(engine.NewMoney(465)) {
		t.Errorf("expected balance 465, got %s", accounts[0].Balance)
	}
}
