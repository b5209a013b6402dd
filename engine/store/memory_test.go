/*
memory_test.go - Tests for the in-memory store's Commit semantics
*/
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/keel/budget-engine/engine"
	"github.com/keel/budget-engine/engine/store"
)

const testUser = engine.UserID("user-1")

func date(y, m, d int) engine.Date {
	return engine.NewDate(y, time.Month(m), d)
}

func seed(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	ctx := context.Background()

	if err := m.SaveSettings(ctx, testUser, engine.Settings{
		PayFrequency:     engine.FreqBiweekly,
		PayAnchor:        date(2025, 1, 3),
		PrimaryAccountID: "checking",
	}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if err := m.SaveAccount(ctx, testUser, engine.Account{
		ID: "checking", Name: "Checking", Type: engine.AccountChecking,
		Balance: engine.NewMoney(500),
	}); err != nil {
		t.Fatalf("save account: %v", err)
	}
	return m
}

func TestCommit_RestoresSnapshotOnFailure(t *testing.T) {
	// GIVEN: A batch that applies a transaction and a balance delta before
	// failing on a missing account
	m := seed(t)
	ctx := context.Background()

	p := engine.PeriodSummary{
		ID: engine.PeriodIDFor(date(2025, 1, 3)), Start: date(2025, 1, 3), End: date(2025, 1, 16),
	}
	err := m.Commit(ctx, testUser, engine.Batch{
		EnsurePeriods: []engine.PeriodSummary{p},
		PutTransactions: []engine.Transaction{{
			ID: "tx-1", Date: date(2025, 1, 5), Amount: engine.NewMoney(100),
			Description: "Paycheck", Kind: engine.TxIncome,
			AccountID: "checking", PeriodID: p.ID,
		}},
		BalanceDeltas: []engine.BalanceDelta{
			{AccountID: "checking", Delta: engine.NewMoney(100)},
			{AccountID: "ghost", Delta: engine.NewMoney(-100)},
		},
	})

	// THEN: The failure leaves no partial effect behind
	if engine.KindOf(err) != engine.KindNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	acct, err := m.GetAccount(ctx, testUser, "checking")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !acct.Balance.Equal(engine.NewMoney(500)) {
		t.Errorf("expected balance 500 after rollback, got %s", acct.Balance)
	}
	txn, err := m.GetTransaction(ctx, testUser, "tx-1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn != nil {
		t.Error("expected no transaction after rollback")
	}
	summary, err := m.GetPeriodSummary(ctx, testUser, p.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary != nil {
		t.Error("expected ensured period to roll back too")
	}
}

func TestCommit_EmptyBatchIsNoop(t *testing.T) {
	m := seed(t)
	if err := m.Commit(context.Background(), testUser, engine.Batch{}); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestResetUser_DropsBucket(t *testing.T) {
	m := seed(t)
	ctx := context.Background()

	if err := m.ResetUser(ctx, testUser); err != nil {
		t.Fatalf("reset: %v", err)
	}
	settings, err := m.GetSettings(ctx, testUser)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings != nil {
		t.Error("expected settings gone after reset")
	}
	accounts, err := m.ListAccounts(ctx, testUser)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("expected no accounts, got %d", len(accounts))
	}
}
