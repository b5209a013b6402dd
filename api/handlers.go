/*
handlers.go - HTTP API handlers for the budget engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Transactions:
    GET    /api/transactions           List (period/account/date filters)
    POST   /api/transactions           Post a transaction
    GET    /api/transactions/{id}      Get one transaction
    PUT    /api/transactions/{id}      Edit (single-account kinds only)
    DELETE /api/transactions/{id}      Delete with full reversal

  Dashboard:
    GET    /api/overview               Accounts, period, safe-to-spend

  Catch-up:
    POST   /api/recurring/process      Post due recurring occurrences
    POST   /api/income/process         Post due income deposits

  Entities:
    CRUD under /api/accounts, /api/bills, /api/recurring,
    /api/income-sources, /api/goals, plus GET/PUT /api/settings

  Demo data:
    GET  /api/scenarios  POST /api/scenarios/load  (scenarios.go)

USER SCOPING:
  Every route requires an X-User-ID header. It is trusted as-is; an
  authenticating proxy is expected to set it in production.

ERROR HANDLING:
  Engine errors map onto HTTP status by kind:
  - VALIDATION_ERROR -> 400
  - NOT_FOUND        -> 404
  - CONFLICT         -> 409
  - INTERNAL_ERROR   -> 500 (generic message, cause logged server-side)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keel/budget-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     engine.Store
	Processor *engine.Processor
	Reserve   *engine.Reserve
	CatchUp   *engine.CatchUp
}

// NewHandler creates a new handler with the given store.
func NewHandler(store engine.Store) *Handler {
	return &Handler{
		Store:     store,
		Processor: engine.NewProcessor(store),
		Reserve:   engine.NewReserve(store),
		CatchUp:   engine.NewCatchUp(store),
	}
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction posts a transaction.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}

	post, err := req.Post()
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Processor.Post(r.Context(), user, post)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, TransactionResult{
		Transaction: result.Transaction,
		Balance:     result.AccountBalance,
		ToBalance:   result.ToAccountBalance,
	})
}

// ListTransactions returns transactions matching the query filters.
// GET /api/transactions?periodId=&accountId=&from=&to=&limit=&offset=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	q := r.URL.Query()

	f := engine.TransactionFilter{
		PeriodID:  engine.PeriodID(q.Get("periodId")),
		AccountID: engine.AccountID(q.Get("accountId")),
	}
	if s := q.Get("from"); s != "" {
		d, err := engine.ParseDate(s)
		if err != nil {
			writeError(w, engine.Validationf("invalid from date %q", s))
			return
		}
		f.From = d
	}
	if s := q.Get("to"); s != "" {
		d, err := engine.ParseDate(s)
		if err != nil {
			writeError(w, engine.Validationf("invalid to date %q", s))
			return
		}
		f.To = d
	}
	f.Limit = intQuery(q.Get("limit"))
	f.Offset = intQuery(q.Get("offset"))

	txns, err := h.Store.ListTransactions(r.Context(), user, f)
	if err != nil {
		writeError(w, err)
		return
	}
	if txns == nil {
		txns = []engine.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// GetTransaction returns one transaction.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	id := engine.TransactionID(chi.URLParam(r, "id"))

	txn, err := h.Store.GetTransaction(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if txn == nil {
		writeError(w, engine.NotFoundf("transaction %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// UpdateTransaction edits a transaction in place.
// PUT /api/transactions/{id}
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	id := engine.TransactionID(chi.URLParam(r, "id"))

	var req UpdateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}

	edit, err := req.Edit()
	if err != nil {
		writeError(w, err)
		return
	}

	txn, err := h.Processor.Edit(r.Context(), user, id, edit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// DeleteTransaction removes a transaction, reversing all its effects.
// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	id := engine.TransactionID(chi.URLParam(r, "id"))

	if err := h.Processor.Delete(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// =============================================================================
// DASHBOARD AND CATCH-UP
// =============================================================================

// GetOverview returns the dashboard state for today.
// GET /api/overview
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	result, err := h.Reserve.Overview(r.Context(), user, engine.Today())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ProcessRecurring posts every due recurring occurrence up to today.
// POST /api/recurring/process
func (h *Handler) ProcessRecurring(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	n, err := h.CatchUp.ProcessRecurringDue(r.Context(), user, engine.Today())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessResult{Processed: n})
}

// ProcessIncome posts due income deposits for today's period.
// POST /api/income/process
func (h *Handler) ProcessIncome(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	n, err := h.CatchUp.ProcessIncomeDue(r.Context(), user, engine.Today())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessResult{Processed: n})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	accounts, err := h.Store.ListAccounts(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	if accounts == nil {
		accounts = []engine.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// SaveAccount creates or updates an account.
func (h *Handler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req SaveAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = id
	}
	if req.Name == "" {
		writeError(w, engine.Validationf("account name is required"))
		return
	}
	acctType := engine.AccountType(req.Type)
	if !acctType.Valid() {
		writeError(w, engine.Validationf("invalid account type %q", req.Type))
		return
	}

	acct := engine.Account{
		ID:          engine.AccountID(req.ID),
		Name:        req.Name,
		Type:        acctType,
		Balance:     engine.NewMoney(req.Balance),
		CreditLimit: engine.NewMoney(req.CreditLimit),
		APR:         engine.NewMoney(req.APR),
		DueDay:      req.DueDay,
	}
	if acct.ID == "" {
		acct.ID = engine.AccountID("acct_" + uuid.NewString())
	}

	if err := h.Store.SaveAccount(r.Context(), user, acct); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// DeleteAccount removes an account.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	id := engine.AccountID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteAccount(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

// ListBills returns bills, optionally only active ones.
// GET /api/bills?active=true
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	activeOnly := r.URL.Query().Get("active") == "true"

	bills, err := h.Store.ListBills(r.Context(), user, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if bills == nil {
		bills = []engine.Bill{}
	}
	writeJSON(w, http.StatusOK, bills)
}

// SaveBill creates or updates a bill.
func (h *Handler) SaveBill(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req SaveBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = id
	}
	if req.Name == "" {
		writeError(w, engine.Validationf("bill name is required"))
		return
	}
	if req.DueDay < 1 || req.DueDay > 31 {
		writeError(w, engine.Validationf("due day must be between 1 and 31"))
		return
	}

	bill := engine.Bill{
		ID:           engine.BillID(req.ID),
		Name:         req.Name,
		Amount:       engine.NewMoney(req.Amount),
		DueDay:       req.DueDay,
		Active:       true,
		AutoPay:      req.AutoPay,
		AutoMarkPaid: req.AutoMarkPaid,
	}
	if req.Active != nil {
		bill.Active = *req.Active
	}
	if req.LastPaid != "" {
		d, err := engine.ParseDate(req.LastPaid)
		if err != nil {
			writeError(w, engine.Validationf("invalid last paid date %q", req.LastPaid))
			return
		}
		bill.LastPaid = d
	}
	if bill.ID == "" {
		bill.ID = engine.BillID("bill_" + uuid.NewString())
	}

	if err := h.Store.SaveBill(r.Context(), user, bill); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

// DeleteBill removes a bill.
func (h *Handler) DeleteBill(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	id := engine.BillID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteBill(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// =============================================================================
// RECURRING HANDLERS
// =============================================================================

// ListRecurring returns all recurring definitions.
func (h *Handler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	defs, err := h.Store.ListRecurring(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	if defs == nil {
		defs = []engine.RecurringDefinition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// SaveRecurring creates or updates a recurring definition.
func (h *Handler) SaveRecurring(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req SaveRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = id
	}
	kind := engine.TransactionKind(req.Type)
	if kind != engine.TxIncome && kind != engine.TxPurchase && kind != engine.TxBillPayment {
		writeError(w, engine.Validationf("recurring type must be income, purchase or bill_payment"))
		return
	}
	freq := engine.Frequency(req.Frequency)
	if !engine.ValidRecurringFrequency(freq) {
		writeError(w, engine.Validationf("invalid frequency %q", req.Frequency))
		return
	}
	if req.AccountID == "" {
		writeError(w, engine.Validationf("recurring account is required"))
		return
	}
	start, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, engine.Validationf("invalid start date %q", req.StartDate))
		return
	}

	def := engine.RecurringDefinition{
		ID:          engine.RecurringID(req.ID),
		Description: req.Description,
		Amount:      engine.NewMoney(req.Amount),
		Kind:        kind,
		Frequency:   freq,
		AccountID:   engine.AccountID(req.AccountID),
		StartDate:   start,
		NextDue:     start,
		Active:      true,
	}
	if req.NextDue != "" {
		d, err := engine.ParseDate(req.NextDue)
		if err != nil {
			writeError(w, engine.Validationf("invalid next due date %q", req.NextDue))
			return
		}
		def.NextDue = d
	}
	if req.Active != nil {
		def.Active = *req.Active
	}
	if def.ID == "" {
		def.ID = engine.RecurringID("rec_" + uuid.NewString())
	}

	if err := h.Store.SaveRecurring(r.Context(), user, def); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// DeleteRecurring removes a recurring definition. Existing posted
// transactions are kept.
func (h *Handler) DeleteRecurring(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	id := engine.RecurringID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteRecurring(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// =============================================================================
// INCOME SOURCE HANDLERS
// =============================================================================

// ListIncomeSources returns income sources, optionally only active ones.
func (h *Handler) ListIncomeSources(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	activeOnly := r.URL.Query().Get("active") == "true"

	sources, err := h.Store.ListIncomeSources(r.Context(), user, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if sources == nil {
		sources = []engine.IncomeSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// SaveIncomeSource creates or updates an income source.
func (h *Handler) SaveIncomeSource(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req SaveIncomeSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = id
	}
	if req.Name == "" {
		writeError(w, engine.Validationf("income source name is required"))
		return
	}
	freq := engine.Frequency(req.Frequency)
	if !engine.ValidPayFrequency(freq) {
		writeError(w, engine.Validationf("invalid frequency %q", req.Frequency))
		return
	}
	anchor, err := engine.ParseDate(req.Anchor)
	if err != nil {
		writeError(w, engine.Validationf("invalid anchor date %q", req.Anchor))
		return
	}
	if len(req.Deposits) == 0 {
		writeError(w, engine.Validationf("at least one deposit is required"))
		return
	}

	src := engine.IncomeSource{
		ID:              engine.IncomeSourceID(req.ID),
		Name:            req.Name,
		Frequency:       freq,
		Anchor:          anchor,
		SemimonthlyDays: req.SemimonthlyDays,
		AutoAdd:         true,
		Active:          true,
	}
	for _, d := range req.Deposits {
		if d.AccountID == "" {
			writeError(w, engine.Validationf("deposit account is required"))
			return
		}
		src.Deposits = append(src.Deposits, engine.Deposit{
			AccountID: engine.AccountID(d.AccountID),
			Amount:    engine.NewMoney(d.Amount),
		})
	}
	if req.AutoAdd != nil {
		src.AutoAdd = *req.AutoAdd
	}
	if req.Active != nil {
		src.Active = *req.Active
	}
	if src.ID == "" {
		src.ID = engine.IncomeSourceID("inc_" + uuid.NewString())
	}

	if err := h.Store.SaveIncomeSource(r.Context(), user, src); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// DeleteIncomeSource removes an income source.
func (h *Handler) DeleteIncomeSource(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	id := engine.IncomeSourceID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteIncomeSource(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// =============================================================================
// GOAL HANDLERS
// =============================================================================

// ListGoals returns all savings goals.
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	goals, err := h.Store.ListGoals(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	if goals == nil {
		goals = []engine.SavingsGoal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

// SaveGoal creates or updates a savings goal. Goals linked to a savings
// account track that account's balance on transfers.
func (h *Handler) SaveGoal(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req SaveGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = id
	}
	if req.Name == "" {
		writeError(w, engine.Validationf("goal name is required"))
		return
	}

	goal := engine.SavingsGoal{
		ID:              engine.GoalID(req.ID),
		Name:            req.Name,
		Target:          engine.NewMoney(req.Target),
		Current:         engine.NewMoney(req.Current),
		LinkedAccountID: engine.AccountID(req.LinkedAccountID),
	}
	goal.Completed = !goal.Current.LessThan(goal.Target) && !goal.Target.IsZero()
	if goal.ID == "" {
		goal.ID = engine.GoalID("goal_" + uuid.NewString())
	}

	if err := h.Store.SaveGoal(r.Context(), user, goal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// DeleteGoal removes a savings goal.
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	id := engine.GoalID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteGoal(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSettings returns the user's settings.
// GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	settings, err := h.Store.GetSettings(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	if settings == nil {
		writeError(w, engine.NotFoundf("settings not found, complete setup first"))
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// SaveSettings replaces the user's settings.
// PUT /api/settings
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req SaveSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.Validationf("invalid request body"))
		return
	}
	freq := engine.Frequency(req.PayFrequency)
	if !engine.ValidPayFrequency(freq) {
		writeError(w, engine.Validationf("invalid pay frequency %q", req.PayFrequency))
		return
	}
	anchor, err := engine.ParseDate(req.PayAnchor)
	if err != nil {
		writeError(w, engine.Validationf("invalid pay anchor date %q", req.PayAnchor))
		return
	}
	if freq == engine.FreqSemimonthly && len(req.SemimonthlyDays) != 2 {
		writeError(w, engine.Validationf("semimonthly frequency needs exactly two pay days"))
		return
	}

	settings := engine.Settings{
		PayFrequency:     freq,
		PayAnchor:        anchor,
		SemimonthlyDays:  req.SemimonthlyDays,
		PrimaryAccountID: engine.AccountID(req.PrimaryAccountID),
		NetPay:           engine.NewMoney(req.NetPay),
	}
	if len(req.CategoryBudgets) > 0 {
		settings.CategoryBudgets = make(map[string]engine.Money, len(req.CategoryBudgets))
		for k, v := range req.CategoryBudgets {
			settings.CategoryBudgets[k] = engine.NewMoney(v)
		}
	}

	if err := h.Store.SaveSettings(r.Context(), user, settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	if kind == engine.KindInternal {
		log.Printf("[api] internal error: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Error:   &ErrorBody{Code: string(kind), Message: engine.MessageOf(err)},
	})
}

func statusFor(kind engine.ErrorKind) int {
	switch kind {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
