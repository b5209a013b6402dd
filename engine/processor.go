/*
processor.go - Ledger transaction processor and reversal/edit handler

PURPOSE:
  Validates and atomically applies a single financial transaction: computes
  the balance delta per account kind (effect.go), tags the transaction with
  its pay period (period.go), updates the period summary by additive deltas,
  and links bill payments to their bill. Also the only component allowed to
  undo those effects (Delete) or replace them (Edit).

INVARIANTS:
  1. Account balances change only here and in catchup.go, always through
     Commit batches built from the effect matrix
  2. Reverse(Apply(tx)) restores every touched balance and summary exactly
  3. Transfer and card payment transactions are immutable: their dual
     effects make partial edits ambiguous, so Edit rejects them

SEE ALSO:
  - effect.go: the balance matrix both apply and reverse replay
  - store.go: the atomic Commit contract
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Processor posts, edits and deletes ledger transactions.
type Processor struct {
	Store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{Store: store}
}

// =============================================================================
// POSTING
// =============================================================================

// PostRequest is a validated-on-entry request to create one transaction.
type PostRequest struct {
	Date        Date
	Amount      Money
	Description string
	Kind        TransactionKind
	AccountID   AccountID // empty = settings primary account
	ToAccountID AccountID
	BillID      BillID
	Category    string
}

// PostResult carries the created transaction and the balances it produced.
type PostResult struct {
	Transaction      Transaction
	AccountBalance   Money
	ToAccountBalance *Money // nil for single-account kinds
}

// Post validates and atomically applies one transaction.
func (p *Processor) Post(ctx context.Context, user UserID, req PostRequest) (*PostResult, error) {
	if err := validatePost(req); err != nil {
		return nil, err
	}

	settings, err := p.Store.GetSettings(ctx, user)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, Validationf("user settings not found, complete setup first")
	}

	sourceID := req.AccountID
	if sourceID == "" {
		sourceID = settings.PrimaryAccountID
	}
	source, err := p.Store.GetAccount(ctx, user, sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, NotFoundf("source account %s not found", sourceID)
	}

	var dest *Account
	if req.Kind.DualAccount() {
		if req.ToAccountID == sourceID {
			return nil, Validationf("destination account must differ from source")
		}
		dest, err = p.Store.GetAccount(ctx, user, req.ToAccountID)
		if err != nil {
			return nil, err
		}
		if dest == nil {
			return nil, NotFoundf("destination account %s not found", req.ToAccountID)
		}
		if req.Kind == TxCardPayment && dest.Type.Kind() != KindLiability {
			return nil, Validationf("card payment destination must be a credit card account")
		}
	}

	if req.BillID != "" && req.Kind == TxBillPayment {
		bill, err := p.Store.GetBill(ctx, user, req.BillID)
		if err != nil {
			return nil, err
		}
		if bill == nil {
			return nil, NotFoundf("bill %s not found", req.BillID)
		}
	}

	period, err := settings.Schedule().PeriodFor(req.Date)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	txn := Transaction{
		ID:          newTransactionID(),
		Date:        req.Date,
		Amount:      req.Amount,
		Description: req.Description,
		Kind:        req.Kind,
		AccountID:   sourceID,
		Category:    req.Category,
		PeriodID:    period.ID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Kind.DualAccount() {
		txn.ToAccountID = req.ToAccountID
	}
	if req.Kind == TxBillPayment {
		txn.BillID = req.BillID
	}

	batch := postingBatch(txn, source.Type.Kind(), period)

	if txn.BillID != "" {
		batch.BillPayments = append(batch.BillPayments, BillPaidMark{BillID: txn.BillID, PaidOn: txn.Date})
	}

	sourceDelta := SourceDelta(txn.Kind, source.Type.Kind(), txn.Amount)
	newSourceBalance := source.Balance.Add(sourceDelta)

	var newDestBalance *Money
	if dest != nil {
		destDelta := DestDelta(txn.Kind, txn.Amount)
		b := dest.Balance.Add(destDelta)
		newDestBalance = &b

		// A transfer into a goal-linked savings account resyncs the goal's
		// progress to the new balance.
		if txn.Kind == TxTransfer && dest.Type == AccountSavings {
			goals, err := p.Store.ListGoalsByAccount(ctx, user, dest.ID)
			if err != nil {
				return nil, err
			}
			for _, g := range goals {
				batch.GoalProgress = append(batch.GoalProgress, GoalProgress{
					ID:        g.ID,
					Current:   b,
					Completed: !b.LessThan(g.Target),
				})
			}
		}
	}

	if err := p.Store.Commit(ctx, user, batch); err != nil {
		return nil, err
	}

	return &PostResult{
		Transaction:      txn,
		AccountBalance:   newSourceBalance,
		ToAccountBalance: newDestBalance,
	}, nil
}

// postingBatch builds the atomic write set for one new transaction: the
// record, the balance increments, the lazily-created period summary and its
// additive deltas. Shared with the catch-up processor.
func postingBatch(txn Transaction, sourceKind AccountKind, period PayPeriod) Batch {
	batch := Batch{
		EnsurePeriods:   []PeriodSummary{{ID: period.ID(), Start: period.Start, End: period.End}},
		PutTransactions: []Transaction{txn},
	}

	if d := SourceDelta(txn.Kind, sourceKind, txn.Amount); !d.IsZero() {
		batch.BalanceDeltas = append(batch.BalanceDeltas, BalanceDelta{AccountID: txn.AccountID, Delta: d})
	}
	if txn.ToAccountID != "" {
		if d := DestDelta(txn.Kind, txn.Amount); !d.IsZero() {
			batch.BalanceDeltas = append(batch.BalanceDeltas, BalanceDelta{AccountID: txn.ToAccountID, Delta: d})
		}
	}

	batch.SummaryDeltas = append(batch.SummaryDeltas, summaryDelta(period.ID(), txn.Kind, txn.Amount, 1, 1))
	return batch
}

func validatePost(req PostRequest) error {
	if req.Date.IsZero() {
		return Validationf("date is required")
	}
	if req.Amount.IsNegative() {
		return Validationf("amount must be non-negative")
	}
	if req.Description == "" {
		return Validationf("description is required")
	}
	if !req.Kind.Valid() {
		return Validationf("invalid transaction type: %s", req.Kind)
	}
	if req.Kind.DualAccount() && req.ToAccountID == "" {
		return Validationf("toAccountId is required for %s transactions", req.Kind)
	}
	return nil
}

// =============================================================================
// REVERSAL (delete)
// =============================================================================

// Delete removes a transaction and undoes every effect it had: account
// balances, bill marker aside (paid history is kept), and the owning
// period's totals.
func (p *Processor) Delete(ctx context.Context, user UserID, id TransactionID) error {
	txn, err := p.Store.GetTransaction(ctx, user, id)
	if err != nil {
		return err
	}
	if txn == nil {
		return NotFoundf("transaction %s not found", id)
	}

	batch, err := p.reversalBatch(ctx, user, txn)
	if err != nil {
		return err
	}
	batch.DeleteTransactionIDs = append(batch.DeleteTransactionIDs, txn.ID)

	return p.Store.Commit(ctx, user, batch)
}

// reversalBatch negates the original balance and summary effects of txn by
// replaying the matrix with the transaction's original kind and amount.
func (p *Processor) reversalBatch(ctx context.Context, user UserID, txn *Transaction) (Batch, error) {
	source, err := p.Store.GetAccount(ctx, user, txn.AccountID)
	if err != nil {
		return Batch{}, err
	}
	if source == nil {
		return Batch{}, NotFoundf("source account %s not found", txn.AccountID)
	}

	var batch Batch
	if d := SourceDelta(txn.Kind, source.Type.Kind(), txn.Amount); !d.IsZero() {
		batch.BalanceDeltas = append(batch.BalanceDeltas, BalanceDelta{AccountID: txn.AccountID, Delta: d.Neg()})
	}
	if txn.ToAccountID != "" {
		if d := DestDelta(txn.Kind, txn.Amount); !d.IsZero() {
			batch.BalanceDeltas = append(batch.BalanceDeltas, BalanceDelta{AccountID: txn.ToAccountID, Delta: d.Neg()})
		}
	}

	batch.SummaryDeltas = append(batch.SummaryDeltas, summaryDelta(txn.PeriodID, txn.Kind, txn.Amount, -1, -1))
	return batch, nil
}

// =============================================================================
// EDIT
// =============================================================================

// EditRequest carries the updatable fields; nil means "unchanged".
type EditRequest struct {
	Date        *Date
	Amount      *Money
	Description *string
	Kind        *TransactionKind
	BillID      *BillID
	Category    *string
}

// Edit replaces a transaction's effects as one unit: undo the old balance
// and summary effect, recompute the pay period for the (possibly changed)
// date, apply the new effect. TransactionCount moves only when the period
// identity changes.
func (p *Processor) Edit(ctx context.Context, user UserID, id TransactionID, req EditRequest) (*Transaction, error) {
	old, err := p.Store.GetTransaction(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, NotFoundf("transaction %s not found", id)
	}

	if old.Kind.DualAccount() {
		return nil, Conflictf("%s transactions cannot be edited, delete and recreate instead", old.Kind)
	}
	if req.Kind != nil {
		if !req.Kind.Valid() || req.Kind.DualAccount() {
			return nil, Validationf("invalid transaction type for edit: %s", *req.Kind)
		}
	}
	if req.Amount != nil && req.Amount.IsNegative() {
		return nil, Validationf("amount must be non-negative")
	}
	if req.Description != nil && *req.Description == "" {
		return nil, Validationf("description must be non-empty")
	}

	settings, err := p.Store.GetSettings(ctx, user)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, Validationf("user settings not found, complete setup first")
	}

	source, err := p.Store.GetAccount(ctx, user, old.AccountID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, NotFoundf("source account %s not found", old.AccountID)
	}
	sourceKind := source.Type.Kind()

	updated := *old
	if req.Date != nil {
		updated.Date = *req.Date
	}
	if req.Amount != nil {
		updated.Amount = *req.Amount
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.Kind != nil {
		updated.Kind = *req.Kind
	}
	if req.BillID != nil {
		updated.BillID = *req.BillID
	}
	if req.Category != nil {
		updated.Category = *req.Category
	}
	updated.UpdatedAt = time.Now().UTC()

	newPeriod, err := settings.Schedule().PeriodFor(updated.Date)
	if err != nil {
		return nil, err
	}
	updated.PeriodID = newPeriod.ID()
	periodChanged := updated.PeriodID != old.PeriodID

	// Net balance adjustment: new effect minus old effect on the same account.
	oldDelta := SourceDelta(old.Kind, sourceKind, old.Amount)
	newDelta := SourceDelta(updated.Kind, sourceKind, updated.Amount)

	batch := Batch{
		EnsurePeriods:   []PeriodSummary{{ID: newPeriod.ID(), Start: newPeriod.Start, End: newPeriod.End}},
		PutTransactions: []Transaction{updated},
	}
	if adj := newDelta.Sub(oldDelta); !adj.IsZero() {
		batch.BalanceDeltas = append(batch.BalanceDeltas, BalanceDelta{AccountID: old.AccountID, Delta: adj})
	}

	oldCount, newCount := 0, 0
	if periodChanged {
		oldCount, newCount = -1, 1
	}
	batch.SummaryDeltas = append(batch.SummaryDeltas,
		summaryDelta(old.PeriodID, old.Kind, old.Amount, -1, oldCount),
		summaryDelta(updated.PeriodID, updated.Kind, updated.Amount, 1, newCount),
	)

	if err := p.Store.Commit(ctx, user, batch); err != nil {
		return nil, err
	}
	return &updated, nil
}

// =============================================================================
// ID GENERATION
// =============================================================================

func newTransactionID() TransactionID {
	return TransactionID("txn_" + uuid.NewString())
}
