/*
catchup.go - Idempotent recurring/income catch-up processing

PURPOSE:
  Walks each active recurring definition and income source forward from its
  last-processed marker to "today", posting one transaction per missed
  occurrence. Invoked on demand (there is no background scheduler); because
  clients retry and tabs race, re-invoking with the same "today" must never
  post an occurrence twice.

IDEMPOTENCY:
  Two mechanisms guard every posting:
  1. The definition's marker (next-due / last-processed) is the fast path
     that skips already-handled occurrences wholesale.
  2. An existence check on (definition id, occurrence date[, account id])
     guards each individual insert and is authoritative.
  When the two disagree, the occurrence is skipped: not-posting always wins
  over double-posting.

PERIOD TAGGING:
  Each created transaction is tagged with the pay period enclosing its
  OCCURRENCE date, not the period containing "today". Catching up a bill
  from three weeks ago books it into the period it belonged to.
*/
package engine

import (
	"context"
	"time"
)

// CatchUp posts transactions for recurring definitions and income sources
// whose occurrences have come due.
type CatchUp struct {
	Store Store
}

func NewCatchUp(store Store) *CatchUp {
	return &CatchUp{Store: store}
}

// =============================================================================
// RECURRING DEFINITIONS
// =============================================================================

// ProcessRecurringDue posts one transaction per missed occurrence of every
// active definition with NextDue <= today. Returns the number posted. Safe
// to call any number of times.
func (c *CatchUp) ProcessRecurringDue(ctx context.Context, user UserID, today Date) (int, error) {
	settings, err := c.Store.GetSettings(ctx, user)
	if err != nil {
		return 0, err
	}
	if settings == nil {
		return 0, NotFoundf("user settings not found")
	}
	schedule := settings.Schedule()

	due, err := c.Store.ListDueRecurring(ctx, user, today)
	if err != nil {
		return 0, err
	}

	posted := 0
	for _, def := range due {
		n, err := c.processDefinition(ctx, user, schedule, def, today)
		if err != nil {
			return posted, err
		}
		posted += n
	}
	return posted, nil
}

// processDefinition walks one definition forward. Each definition is
// processed sequentially; its whole catch-up lands in a single batch so a
// failure leaves the marker untouched and the next invocation retries
// cleanly from it.
func (c *CatchUp) processDefinition(ctx context.Context, user UserID, schedule Schedule, def RecurringDefinition, today Date) (int, error) {
	account, err := c.Store.GetAccount(ctx, user, def.AccountID)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, NotFoundf("account %s for recurring definition %s not found", def.AccountID, def.ID)
	}

	var batch Batch
	posted := 0
	now := time.Now().UTC()

	due := def.NextDue
	for due.OnOrBefore(today) {
		// Existence check is authoritative: a previous invocation may have
		// posted this occurrence before its marker update was observed.
		exists, err := c.Store.RecurringTransactionExists(ctx, user, def.ID, due)
		if err != nil {
			return 0, err
		}
		if !exists {
			period, err := schedule.PeriodFor(due)
			if err != nil {
				return 0, err
			}
			txn := Transaction{
				ID:          newTransactionID(),
				Date:        due,
				Amount:      def.Amount,
				Description: def.Description,
				Kind:        def.Kind,
				AccountID:   def.AccountID,
				RecurringID: def.ID,
				PeriodID:    period.ID(),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			merge(&batch, postingBatch(txn, account.Type.Kind(), period))
			posted++
		}
		due = NextOccurrence(def.Frequency, due)
	}

	batch.RecurringAdvances = append(batch.RecurringAdvances, RecurringAdvance{
		ID:            def.ID,
		NextDue:       due,
		LastProcessed: today,
	})

	if err := c.Store.Commit(ctx, user, batch); err != nil {
		return 0, err
	}
	return posted, nil
}

// =============================================================================
// INCOME SOURCES
// =============================================================================

// ProcessIncomeDue posts the deposits of every active auto-add income source
// whose current pay date has arrived and was not yet processed. Returns the
// number of deposit transactions created. Safe to call any number of times.
func (c *CatchUp) ProcessIncomeDue(ctx context.Context, user UserID, today Date) (int, error) {
	sources, err := c.Store.ListIncomeSources(ctx, user, true)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, src := range sources {
		if !src.AutoAdd {
			continue
		}
		n, err := c.processSource(ctx, user, src, today)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

// processSource posts one income transaction per deposit for the source's
// current pay date. The pay date is the start of the period enclosing
// today under the source's own schedule.
func (c *CatchUp) processSource(ctx context.Context, user UserID, src IncomeSource, today Date) (int, error) {
	period, err := src.Schedule().PeriodFor(today)
	if err != nil {
		return 0, err
	}
	payDate := period.Start

	// Marker fast path: the pay date was already handled.
	if !src.LastProcessed.IsZero() && src.LastProcessed.OnOrAfter(payDate) {
		return 0, nil
	}

	var batch Batch
	created := 0
	now := time.Now().UTC()

	for _, dep := range src.Deposits {
		// Existence check keyed on (source, pay date, account) guards each
		// deposit even when the marker lags behind.
		exists, err := c.Store.IncomeTransactionExists(ctx, user, src.ID, payDate, dep.AccountID)
		if err != nil {
			return 0, err
		}
		if exists {
			continue
		}

		account, err := c.Store.GetAccount(ctx, user, dep.AccountID)
		if err != nil {
			return 0, err
		}
		if account == nil {
			return 0, NotFoundf("account %s for income source %s not found", dep.AccountID, src.ID)
		}

		txn := Transaction{
			ID:             newTransactionID(),
			Date:           payDate,
			Amount:         dep.Amount,
			Description:    src.Name,
			Kind:           TxIncome,
			Category:       "income",
			AccountID:      dep.AccountID,
			IncomeSourceID: src.ID,
			PeriodID:       period.ID(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		merge(&batch, postingBatch(txn, account.Type.Kind(), period))
		created++
	}

	batch.IncomeAdvances = append(batch.IncomeAdvances, IncomeAdvance{
		ID:            src.ID,
		LastProcessed: payDate,
	})

	if err := c.Store.Commit(ctx, user, batch); err != nil {
		return 0, err
	}
	return created, nil
}

// merge folds one posting batch into an accumulating batch.
func merge(dst *Batch, src Batch) {
	dst.EnsurePeriods = append(dst.EnsurePeriods, src.EnsurePeriods...)
	dst.PutTransactions = append(dst.PutTransactions, src.PutTransactions...)
	dst.BalanceDeltas = append(dst.BalanceDeltas, src.BalanceDeltas...)
	dst.SummaryDeltas = append(dst.SummaryDeltas, src.SummaryDeltas...)
	dst.BillPayments = append(dst.BillPayments, src.BillPayments...)
	dst.GoalProgress = append(dst.GoalProgress, src.GoalProgress...)
}
