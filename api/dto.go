/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

ENVELOPE:
  Every response uses the same envelope:
    success: {"success": true, "data": ...}
    failure: {"success": false, "error": {"code": "...", "message": "..."}}
  Internal errors never leak details to clients; the generic message is
  substituted and the cause stays in the server log.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - Domain types (engine.Transaction, engine.Account, ...) serialize
    directly as response data; their JSON tags are the API contract.

VALIDATION:
  Requests parse dates and amounts into engine types here; semantic
  validation lives in the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: The domain types these map onto
*/
package api

import (
	"github.com/keel/budget-engine/engine"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope is the uniform response wrapper.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries a stable machine code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// TRANSACTION REQUESTS
// =============================================================================

// CreateTransactionRequest is the request to post a transaction.
type CreateTransactionRequest struct {
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	AccountID   string  `json:"accountId,omitempty"`
	ToAccountID string  `json:"toAccountId,omitempty"`
	BillID      string  `json:"billId,omitempty"`
	Category    string  `json:"category,omitempty"`
}

// Post converts the request into an engine PostRequest.
func (r CreateTransactionRequest) Post() (engine.PostRequest, error) {
	date, err := engine.ParseDate(r.Date)
	if err != nil {
		return engine.PostRequest{}, engine.Validationf("invalid date %q, want YYYY-MM-DD", r.Date)
	}
	return engine.PostRequest{
		Date:        date,
		Amount:      engine.NewMoney(r.Amount),
		Description: r.Description,
		Kind:        engine.TransactionKind(r.Type),
		AccountID:   engine.AccountID(r.AccountID),
		ToAccountID: engine.AccountID(r.ToAccountID),
		BillID:      engine.BillID(r.BillID),
		Category:    r.Category,
	}, nil
}

// UpdateTransactionRequest carries a partial edit. Absent fields keep
// their current values.
type UpdateTransactionRequest struct {
	Date        *string  `json:"date,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	Description *string  `json:"description,omitempty"`
	Type        *string  `json:"type,omitempty"`
	BillID      *string  `json:"billId,omitempty"`
	Category    *string  `json:"category,omitempty"`
}

// Edit converts the request into an engine EditRequest.
func (r UpdateTransactionRequest) Edit() (engine.EditRequest, error) {
	var out engine.EditRequest
	if r.Date != nil {
		d, err := engine.ParseDate(*r.Date)
		if err != nil {
			return out, engine.Validationf("invalid date %q, want YYYY-MM-DD", *r.Date)
		}
		out.Date = &d
	}
	if r.Amount != nil {
		m := engine.NewMoney(*r.Amount)
		out.Amount = &m
	}
	out.Description = r.Description
	if r.Type != nil {
		k := engine.TransactionKind(*r.Type)
		out.Kind = &k
	}
	if r.BillID != nil {
		b := engine.BillID(*r.BillID)
		out.BillID = &b
	}
	out.Category = r.Category
	return out, nil
}

// =============================================================================
// ENTITY REQUESTS
// =============================================================================

// SaveAccountRequest creates or updates an account.
type SaveAccountRequest struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Balance     float64 `json:"currentBalance"`
	CreditLimit float64 `json:"creditLimit,omitempty"`
	APR         float64 `json:"apr,omitempty"`
	DueDay      int     `json:"paymentDueDay,omitempty"`
}

// SaveBillRequest creates or updates a bill.
type SaveBillRequest struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	Amount       float64 `json:"amount"`
	DueDay       int     `json:"dueDay"`
	Active       *bool   `json:"isActive,omitempty"`
	AutoPay      bool    `json:"autoPay,omitempty"`
	AutoMarkPaid bool    `json:"autoMarkPaid,omitempty"`
	LastPaid     string  `json:"lastPaidDate,omitempty"`
}

// SaveRecurringRequest creates or updates a recurring definition.
type SaveRecurringRequest struct {
	ID          string  `json:"id,omitempty"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Frequency   string  `json:"frequency"`
	AccountID   string  `json:"accountId"`
	StartDate   string  `json:"startDate"`
	NextDue     string  `json:"nextDueDate,omitempty"`
	Active      *bool   `json:"isActive,omitempty"`
}

// DepositRequest is one split of an income source.
type DepositRequest struct {
	AccountID string  `json:"accountId"`
	Amount    float64 `json:"amount"`
}

// SaveIncomeSourceRequest creates or updates an income source.
type SaveIncomeSourceRequest struct {
	ID              string           `json:"id,omitempty"`
	Name            string           `json:"name"`
	Frequency       string           `json:"frequency"`
	Anchor          string           `json:"anchorDate"`
	SemimonthlyDays []int            `json:"semimonthlyDays,omitempty"`
	Deposits        []DepositRequest `json:"deposits"`
	AutoAdd         *bool            `json:"autoAdd,omitempty"`
	Active          *bool            `json:"isActive,omitempty"`
}

// SaveGoalRequest creates or updates a savings goal.
type SaveGoalRequest struct {
	ID              string  `json:"id,omitempty"`
	Name            string  `json:"name"`
	Target          float64 `json:"targetAmount"`
	Current         float64 `json:"currentAmount,omitempty"`
	LinkedAccountID string  `json:"linkedAccountId,omitempty"`
}

// SaveSettingsRequest replaces the user's settings.
type SaveSettingsRequest struct {
	PayFrequency     string             `json:"payFrequency"`
	PayAnchor        string             `json:"payAnchorDate"`
	SemimonthlyDays  []int              `json:"semimonthlyDays,omitempty"`
	PrimaryAccountID string             `json:"primaryAccountId,omitempty"`
	NetPay           float64            `json:"netPayAmount,omitempty"`
	CategoryBudgets  map[string]float64 `json:"categoryBudgets,omitempty"`
}

// =============================================================================
// RESPONSE SHAPES
// =============================================================================

// TransactionResult is returned from a post: the transaction plus the
// balances it produced.
type TransactionResult struct {
	Transaction engine.Transaction `json:"transaction"`
	Balance     engine.Money       `json:"accountBalance"`
	ToBalance   *engine.Money      `json:"toAccountBalance,omitempty"`
}

// ProcessResult reports how many catch-up transactions were posted.
type ProcessResult struct {
	Processed int `json:"processed"`
}
