// Package store provides an in-memory engine.Store for tests and local dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/keel/budget-engine/engine"
)

// Memory implements engine.Store with per-user buckets behind one mutex.
// Commit applies its batch under the lock and restores a snapshot on error,
// giving the same all-or-nothing semantics as the SQLite store.
type Memory struct {
	mu    sync.RWMutex
	users map[engine.UserID]*bucket
}

type bucket struct {
	settings     *engine.Settings
	accounts     map[engine.AccountID]engine.Account
	bills        map[engine.BillID]engine.Bill
	recurring    map[engine.RecurringID]engine.RecurringDefinition
	sources      map[engine.IncomeSourceID]engine.IncomeSource
	goals        map[engine.GoalID]engine.SavingsGoal
	transactions map[engine.TransactionID]engine.Transaction
	summaries    map[engine.PeriodID]engine.PeriodSummary
}

func NewMemory() *Memory {
	return &Memory{users: make(map[engine.UserID]*bucket)}
}

func (m *Memory) bucketFor(user engine.UserID) *bucket {
	b, ok := m.users[user]
	if !ok {
		b = &bucket{
			accounts:     make(map[engine.AccountID]engine.Account),
			bills:        make(map[engine.BillID]engine.Bill),
			recurring:    make(map[engine.RecurringID]engine.RecurringDefinition),
			sources:      make(map[engine.IncomeSourceID]engine.IncomeSource),
			goals:        make(map[engine.GoalID]engine.SavingsGoal),
			transactions: make(map[engine.TransactionID]engine.Transaction),
			summaries:    make(map[engine.PeriodID]engine.PeriodSummary),
		}
		m.users[user] = b
	}
	return b
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) ResetUser(_ context.Context, user engine.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, user)
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Memory) GetSettings(_ context.Context, user engine.UserID) (*engine.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok || b.settings == nil {
		return nil, nil
	}
	s := *b.settings
	return &s, nil
}

func (m *Memory) SaveSettings(_ context.Context, user engine.UserID, s engine.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketFor(user).settings = &s
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) GetAccount(_ context.Context, user engine.UserID, id engine.AccountID) (*engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	a, ok := b.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListAccounts(_ context.Context, user engine.UserID) ([]engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	out := make([]engine.Account, 0, len(b.accounts))
	for _, a := range b.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveAccount(_ context.Context, user engine.UserID, a engine.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketFor(user).accounts[a.ID] = a
	return nil
}

func (m *Memory) DeleteAccount(_ context.Context, user engine.UserID, id engine.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucketFor(user).accounts, id)
	return nil
}

// =============================================================================
// BILLS
// =============================================================================

func (m *Memory) GetBill(_ context.Context, user engine.UserID, id engine.BillID) (*engine.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	bill, ok := b.bills[id]
	if !ok {
		return nil, nil
	}
	return &bill, nil
}

func (m *Memory) ListBills(_ context.Context, user engine.UserID, activeOnly bool) ([]engine.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	var out []engine.Bill
	for _, bill := range b.bills {
		if activeOnly && !bill.Active {
			continue
		}
		out = append(out, bill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDay < out[j].DueDay })
	return out, nil
}

func (m *Memory) SaveBill(_ context.Context, user engine.UserID, b engine.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketFor(user).bills[b.ID] = b
	return nil
}

func (m *Memory) DeleteBill(_ context.Context, user engine.UserID, id engine.BillID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucketFor(user).bills, id)
	return nil
}

// =============================================================================
// RECURRING DEFINITIONS
// =============================================================================

func (m *Memory) ListRecurring(_ context.Context, user engine.UserID) ([]engine.RecurringDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	var out []engine.RecurringDefinition
	for _, r := range b.recurring {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDue.Before(out[j].NextDue) })
	return out, nil
}

func (m *Memory) ListDueRecurring(_ context.Context, user engine.UserID, today engine.Date) ([]engine.RecurringDefinition, error) {
	all, _ := m.ListRecurring(nil, user)
	var out []engine.RecurringDefinition
	for _, r := range all {
		if r.Active && r.NextDue.OnOrBefore(today) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) SaveRecurring(_ context.Context, user engine.UserID, r engine.RecurringDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketFor(user).recurring[r.ID] = r
	return nil
}

func (m *Memory) DeleteRecurring(_ context.Context, user engine.UserID, id engine.RecurringID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucketFor(user).recurring, id)
	return nil
}

// =============================================================================
// INCOME SOURCES
// =============================================================================

func (m *Memory) ListIncomeSources(_ context.Context, user engine.UserID, activeOnly bool) ([]engine.IncomeSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	var out []engine.IncomeSource
	for _, s := range b.sources {
		if activeOnly && !s.Active {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveIncomeSource(_ context.Context, user engine.UserID, s engine.IncomeSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketFor(user).sources[s.ID] = s
	return nil
}

func (m *Memory) DeleteIncomeSource(_ context.Context, user engine.UserID, id engine.IncomeSourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucketFor(user).sources, id)
	return nil
}

// =============================================================================
// SAVINGS GOALS
// =============================================================================

func (m *Memory) ListGoals(_ context.Context, user engine.UserID) ([]engine.SavingsGoal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	var out []engine.SavingsGoal
	for _, g := range b.goals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListGoalsByAccount(_ context.Context, user engine.UserID, id engine.AccountID) ([]engine.SavingsGoal, error) {
	all, _ := m.ListGoals(nil, user)
	var out []engine.SavingsGoal
	for _, g := range all {
		if g.LinkedAccountID == id {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *Memory) SaveGoal(_ context.Context, user engine.UserID, g engine.SavingsGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketFor(user).goals[g.ID] = g
	return nil
}

func (m *Memory) DeleteGoal(_ context.Context, user engine.UserID, id engine.GoalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucketFor(user).goals, id)
	return nil
}

// =============================================================================
// TRANSACTIONS & PERIOD SUMMARIES
// =============================================================================

func (m *Memory) GetTransaction(_ context.Context, user engine.UserID, id engine.TransactionID) (*engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	t, ok := b.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListTransactions(_ context.Context, user engine.UserID, f engine.TransactionFilter) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}

	var out []engine.Transaction
	for _, t := range b.transactions {
		if f.PeriodID != "" && t.PeriodID != f.PeriodID {
			continue
		}
		if f.AccountID != "" && t.AccountID != f.AccountID && t.ToAccountID != f.AccountID {
			continue
		}
		if !f.From.IsZero() && t.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && t.Date.After(f.To) {
			continue
		}
		out = append(out, t)
	}

	// Newest first, matching the SQLite store's ordering.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) GetPeriodSummary(_ context.Context, user engine.UserID, id engine.PeriodID) (*engine.PeriodSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	s, ok := b.summaries[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) RecurringTransactionExists(_ context.Context, user engine.UserID, id engine.RecurringID, date engine.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return false, nil
	}
	for _, t := range b.transactions {
		if t.RecurringID == id && t.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) IncomeTransactionExists(_ context.Context, user engine.UserID, id engine.IncomeSourceID, date engine.Date, account engine.AccountID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.users[user]
	if !ok {
		return false, nil
	}
	for _, t := range b.transactions {
		if t.IncomeSourceID == id && t.Date.Equal(date) && t.AccountID == account {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// COMMIT
// =============================================================================

// Commit applies the batch under the write lock. Any failure restores the
// pre-batch snapshot so no partial effect is ever visible.
func (m *Memory) Commit(_ context.Context, user engine.UserID, batch engine.Batch) error {
	if batch.IsEmpty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucketFor(user)
	snap := b.snapshot()

	if err := b.apply(batch); err != nil {
		m.users[user] = snap
		return err
	}
	return nil
}

func (b *bucket) apply(batch engine.Batch) error {
	for _, p := range batch.EnsurePeriods {
		if _, ok := b.summaries[p.ID]; !ok {
			b.summaries[p.ID] = p
		}
	}

	for _, t := range batch.PutTransactions {
		b.transactions[t.ID] = t
	}
	for _, id := range batch.DeleteTransactionIDs {
		delete(b.transactions, id)
	}

	for _, d := range batch.BalanceDeltas {
		a, ok := b.accounts[d.AccountID]
		if !ok {
			return engine.NotFoundf("account %s not found", d.AccountID)
		}
		a.Balance = a.Balance.Add(d.Delta)
		b.accounts[d.AccountID] = a
	}

	for _, d := range batch.SummaryDeltas {
		s, ok := b.summaries[d.PeriodID]
		if !ok {
			return engine.NotFoundf("pay period %s not found", d.PeriodID)
		}
		s.IncomeTotal = s.IncomeTotal.Add(d.Income)
		s.BillsTotal = s.BillsTotal.Add(d.Bills)
		s.DiscretionaryTotal = s.DiscretionaryTotal.Add(d.Discretionary)
		s.TransactionCount += d.Count
		s.NetChange = s.IncomeTotal.Sub(s.BillsTotal).Sub(s.DiscretionaryTotal)
		b.summaries[d.PeriodID] = s
	}

	for _, mark := range batch.BillPayments {
		bill, ok := b.bills[mark.BillID]
		if !ok {
			return engine.NotFoundf("bill %s not found", mark.BillID)
		}
		bill.LastPaid = mark.PaidOn
		b.bills[mark.BillID] = bill
	}

	for _, adv := range batch.RecurringAdvances {
		r, ok := b.recurring[adv.ID]
		if !ok {
			return engine.NotFoundf("recurring definition %s not found", adv.ID)
		}
		r.NextDue = adv.NextDue
		r.LastProcessed = adv.LastProcessed
		b.recurring[adv.ID] = r
	}

	for _, adv := range batch.IncomeAdvances {
		s, ok := b.sources[adv.ID]
		if !ok {
			return engine.NotFoundf("income source %s not found", adv.ID)
		}
		s.LastProcessed = adv.LastProcessed
		b.sources[adv.ID] = s
	}

	for _, gp := range batch.GoalProgress {
		g, ok := b.goals[gp.ID]
		if !ok {
			return engine.NotFoundf("savings goal %s not found", gp.ID)
		}
		g.Current = gp.Current
		g.Completed = gp.Completed
		b.goals[gp.ID] = g
	}

	return nil
}

func (b *bucket) snapshot() *bucket {
	snap := &bucket{
		accounts:     make(map[engine.AccountID]engine.Account, len(b.accounts)),
		bills:        make(map[engine.BillID]engine.Bill, len(b.bills)),
		recurring:    make(map[engine.RecurringID]engine.RecurringDefinition, len(b.recurring)),
		sources:      make(map[engine.IncomeSourceID]engine.IncomeSource, len(b.sources)),
		goals:        make(map[engine.GoalID]engine.SavingsGoal, len(b.goals)),
		transactions: make(map[engine.TransactionID]engine.Transaction, len(b.transactions)),
		summaries:    make(map[engine.PeriodID]engine.PeriodSummary, len(b.summaries)),
	}
	if b.settings != nil {
		s := *b.settings
		snap.settings = &s
	}
	for k, v := range b.accounts {
		snap.accounts[k] = v
	}
	for k, v := range b.bills {
		snap.bills[k] = v
	}
	for k, v := range b.recurring {
		snap.recurring[k] = v
	}
	for k, v := range b.sources {
		snap.sources[k] = v
	}
	for k, v := range b.goals {
		snap.goals[k] = v
	}
	for k, v := range b.transactions {
		snap.transactions[k] = v
	}
	for k, v := range b.summaries {
		snap.summaries[k] = v
	}
	return snap
}
