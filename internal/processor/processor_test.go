package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/events"
	"banking_ledger/internal/repository"
	"banking_ledger/internal/repository/memory"
	"banking_ledger/internal/settlement"
	"banking_ledger/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

var (
	noon      = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	threeAM   = time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	testDelay = 2 * time.Second
)

type testEnv struct {
	store     *memory.Store
	proc      *TransactionProcessor
	queue     *settlement.MemoryQueue
	publisher *events.MemoryPublisher
	notifier  *recordingNotifier
	metrics   *metrics.MetricsCollector
}

type recordingNotifier struct {
	alerts []*domain.FraudAlert
}

func (n *recordingNotifier) NotifyFraudAlert(ctx context.Context, tx *domain.Transaction, alert *domain.FraudAlert) error {
	n.alerts = append(n.alerts, alert)
	return nil
}

func newTestEnv(t *testing.T, at time.Time) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		store:     memory.NewStore(),
		queue:     settlement.NewMemoryQueue(100, nil),
		publisher: events.NewMemoryPublisher(),
		notifier:  &recordingNotifier{},
		metrics:   metrics.NewMetricsCollector(nil),
	}
	env.proc = NewTransactionProcessor(env.store, Options{
		Metrics:         env.metrics,
		Publisher:       env.publisher,
		Queue:           env.queue,
		Notifier:        env.notifier,
		SettlementDelay: testDelay,
		Clock:           func() time.Time { return at },
	})

	accounts := []*domain.Account{
		{ID: "acc-1", UserID: "user-1", Name: "Checking", AccountNumber: "1001", Type: domain.AccountChecking, Currency: "USD", Balance: dec("20000"), AvailableBalance: dec("20000"), Status: domain.AccountActive},
		{ID: "acc-2", UserID: "user-1", Name: "Savings", AccountNumber: "1002", Type: domain.AccountSavings, Currency: "USD", Balance: dec("500"), AvailableBalance: dec("500"), Status: domain.AccountActive},
		{ID: "acc-3", UserID: "user-2", Name: "Other", AccountNumber: "2001", Type: domain.AccountChecking, Currency: "USD", Balance: dec("100"), AvailableBalance: dec("100"), Status: domain.AccountActive},
		{ID: "acc-4", UserID: "user-1", Name: "Frozen", AccountNumber: "1003", Type: domain.AccountChecking, Currency: "USD", Balance: dec("100"), AvailableBalance: dec("100"), Status: domain.AccountFrozen},
	}
	for _, account := range accounts {
		if err := env.store.Accounts().Create(ctx, account); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	account, err := e.store.Accounts().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return account.Balance
}

func (e *testEnv) seedRecent(t *testing.T, userID string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		tx := domain.NewTransaction(userID, "acc-1", domain.TypeDeposit, dec("1"), "USD")
		tx.CreatedAt = at.Add(-time.Duration(i+1) * time.Minute)
		tx.Status = domain.StatusCompleted
		if err := e.store.Transactions().Create(context.Background(), tx); err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
	}
}

func (e *testEnv) seedDailyLimit(t *testing.T, userID, amount string, at time.Time) {
	t.Helper()
	limit := &domain.TransactionLimit{
		ID:              "limit-" + userID,
		UserID:          userID,
		Period:          domain.LimitDaily,
		LimitAmount:     dec(amount),
		RemainingAmount: dec(amount),
		ResetsAt:        domain.LimitDaily.Next(at),
	}
	if err := e.store.Limits().Save(context.Background(), limit); err != nil {
		t.Fatalf("seed limit: %v", err)
	}
}

func (e *testEnv) limitRemaining(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	limits, err := e.store.Limits().ListByUser(context.Background(), userID)
	if err != nil || len(limits) == 0 {
		t.Fatalf("list limits: %v (%d)", err, len(limits))
	}
	return limits[0].RemainingAmount
}

func withdrawal(amount string) CreateRequest {
	return CreateRequest{
		UserID:      "user-1",
		AccountID:   "acc-1",
		Type:        domain.TypeWithdrawal,
		Amount:      dec(amount),
		Description: "ATM",
	}
}

func TestCreateTransaction_DepositAcceptedAndQueued(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	res, err := env.proc.CreateTransaction(ctx, CreateRequest{
		UserID: "user-1", AccountID: "acc-2", Type: domain.TypeDeposit, Amount: dec("250.50"), Description: "Paycheck",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx := res.Transaction
	if tx.Status != domain.StatusPending {
		t.Errorf("expected pending, got %s", tx.Status)
	}
	if tx.Currency != "USD" {
		t.Errorf("expected currency from account, got %q", tx.Currency)
	}
	if res.Alert != nil || res.Assessment.Flagged {
		t.Errorf("expected no alert, got %+v", res.Assessment)
	}
	if got := env.balance(t, "acc-2"); !got.Equal(dec("750.50")) {
		t.Errorf("expected 750.50, got %s", got)
	}
	if env.queue.Len() != 1 {
		t.Errorf("expected one settlement task, got %d", env.queue.Len())
	}
	if len(env.publisher.OfType(domain.EventTransactionCreated)) != 1 {
		t.Errorf("expected one created event, got %+v", env.publisher.Events())
	}
	if n, err := testutil.GatherAndCount(env.metrics.Registry(), "ledger_transactions_total"); err != nil || n != 1 {
		t.Errorf("expected one transaction series, got %d err=%v", n, err)
	}
}

func TestCreateTransaction_CriticalRiskBlocks(t *testing.T) {
	env := newTestEnv(t, threeAM)
	ctx := context.Background()
	env.seedRecent(t, "user-1", 6, threeAM)
	env.seedDailyLimit(t, "user-1", "50000", threeAM)

	res, err := env.proc.CreateTransaction(ctx, withdrawal("15000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Assessment.Score != 75 || res.Assessment.Level != domain.RiskCritical {
		t.Fatalf("expected 75 CRITICAL, got %d %s", res.Assessment.Score, res.Assessment.Level)
	}
	if res.Transaction.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", res.Transaction.Status)
	}
	if res.Alert == nil || res.Alert.RiskLevel != domain.RiskCritical {
		t.Fatalf("expected critical alert, got %+v", res.Alert)
	}
	if got := env.balance(t, "acc-1"); !got.Equal(dec("20000")) {
		t.Errorf("balance must not change, got %s", got)
	}
	if got := env.limitRemaining(t, "user-1"); !got.Equal(dec("50000")) {
		t.Errorf("limit must not be consumed, got %s", got)
	}
	if env.queue.Len() != 0 {
		t.Errorf("blocked transactions are not settled, got %d tasks", env.queue.Len())
	}
	if len(env.notifier.alerts) != 1 {
		t.Errorf("expected one notification, got %d", len(env.notifier.alerts))
	}
	if len(env.publisher.OfType(domain.EventTransactionBlocked)) != 1 {
		t.Error("expected a blocked event")
	}

	stored, alert, err := env.proc.Get(ctx, "user-1", res.Transaction.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusFailed || stored.RiskScore != 75 || alert == nil {
		t.Errorf("unexpected stored state %+v alert=%v", stored, alert)
	}
}

func TestCreateTransaction_HighRiskBlocks(t *testing.T) {
	env := newTestEnv(t, threeAM)
	env.proc = NewTransactionProcessor(env.store, Options{
		OffHoursWeight: 20,
		Clock:          func() time.Time { return threeAM },
	})

	res, err := env.proc.CreateTransaction(context.Background(), withdrawal("15000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Assessment.Level != domain.RiskHigh || res.Transaction.Status != domain.StatusFailed {
		t.Fatalf("expected HIGH and failed, got %s %s", res.Assessment.Level, res.Transaction.Status)
	}
	if got := env.balance(t, "acc-1"); !got.Equal(dec("20000")) {
		t.Errorf("balance must not change, got %s", got)
	}
}

func TestCreateTransaction_VelocityBoundary(t *testing.T) {
	cases := []struct {
		name    string
		prior   int
		flagged bool
	}{
		{"five including current", 4, false},
		{"six including current", 5, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, noon)
			env.seedRecent(t, "user-1", tc.prior, noon)

			res, err := env.proc.CreateTransaction(context.Background(), withdrawal("20"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Assessment.Flagged != tc.flagged {
				t.Fatalf("expected flagged=%v, got %+v", tc.flagged, res.Assessment)
			}
			if tc.flagged {
				if res.Alert == nil || res.Alert.RiskLevel != domain.RiskMedium {
					t.Errorf("expected MEDIUM alert, got %+v", res.Alert)
				}
				if res.Transaction.Status != domain.StatusPending {
					t.Errorf("MEDIUM must not block, got %s", res.Transaction.Status)
				}
			}
			if got := env.balance(t, "acc-1"); !got.Equal(dec("19980")) {
				t.Errorf("expected 19980, got %s", got)
			}
		})
	}
}

func TestCreateTransaction_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	req := withdrawal("600")
	req.AccountID = "acc-2"
	_, err := env.proc.CreateTransaction(ctx, req)
	if !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if got := env.balance(t, "acc-2"); !got.Equal(dec("500")) {
		t.Errorf("balance must not change, got %s", got)
	}
	_, total, _ := env.store.Transactions().List(ctx, repository.TransactionFilter{UserID: "user-1", Limit: 10})
	if total != 0 {
		t.Errorf("no transaction should be stored, got %d", total)
	}
}

func TestCreateTransaction_OverdraftCoversShortfall(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	overdrawn := &domain.Account{
		ID: "acc-5", UserID: "user-1", Name: "Overdraft", AccountNumber: "1005",
		Type: domain.AccountChecking, Currency: "USD",
		Balance: dec("500"), AvailableBalance: dec("500"), OverdraftLimit: dec("200"),
		Status: domain.AccountActive,
	}
	if err := env.store.Accounts().Create(ctx, overdrawn); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	req := withdrawal("700")
	req.AccountID = "acc-5"
	res, err := env.proc.CreateTransaction(ctx, req)
	if err != nil {
		t.Fatalf("withdrawal within overdraft: %v", err)
	}
	if res.Transaction.Status != domain.StatusPending {
		t.Errorf("expected pending, got %s", res.Transaction.Status)
	}
	if got := env.balance(t, "acc-5"); !got.Equal(dec("-200")) {
		t.Errorf("expected balance -200, got %s", got)
	}

	req = withdrawal("0.01")
	req.AccountID = "acc-5"
	if _, err := env.proc.CreateTransaction(ctx, req); !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds past the overdraft, got %v", err)
	}
}

func TestCreateTransaction_CurrencyMaximumAppliesWithoutCurrency(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	for _, currency := range []string{"USD", ""} {
		req := CreateRequest{
			UserID:    "user-1",
			AccountID: "acc-1",
			Type:      domain.TypeDeposit,
			Amount:    dec("2000000"),
			Currency:  currency,
		}
		if _, err := env.proc.CreateTransaction(ctx, req); !errors.Is(err, ErrValidation) {
			t.Errorf("currency %q: expected ErrValidation, got %v", currency, err)
		}
	}

	_, total, _ := env.store.Transactions().List(ctx, repository.TransactionFilter{UserID: "user-1", Limit: 10})
	if total != 0 {
		t.Errorf("no transaction should be stored, got %d", total)
	}
	if got := env.balance(t, "acc-1"); !got.Equal(dec("20000")) {
		t.Errorf("balance must not change, got %s", got)
	}
}

func TestCreateTransaction_AccountChecks(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	cases := []struct {
		name    string
		account string
		want    error
	}{
		{"missing", "acc-missing", repository.ErrNotFound},
		{"not owned", "acc-3", ErrForbidden},
		{"frozen", "acc-4", ErrAccountInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := withdrawal("10")
			req.AccountID = tc.account
			if _, err := env.proc.CreateTransaction(ctx, req); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	req := withdrawal("10")
	req.Currency = "EUR"
	if _, err := env.proc.CreateTransaction(ctx, req); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}

	req = withdrawal("0")
	if _, err := env.proc.CreateTransaction(ctx, req); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestCreateTransaction_LimitExceeded(t *testing.T) {
	env := newTestEnv(t, noon)
	env.seedDailyLimit(t, "user-1", "100", noon)

	_, err := env.proc.CreateTransaction(context.Background(), withdrawal("150"))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if got := env.limitRemaining(t, "user-1"); !got.Equal(dec("100")) {
		t.Errorf("limit must not change, got %s", got)
	}
}

func TestCreateTransaction_InternalTransfer(t *testing.T) {
	env := newTestEnv(t, noon)

	req := withdrawal("300")
	req.Type = domain.TypeTransfer
	req.ToAccountID = "acc-3"
	if _, err := env.proc.CreateTransaction(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := env.balance(t, "acc-1"); !got.Equal(dec("19700")) {
		t.Errorf("expected source 19700, got %s", got)
	}
	if got := env.balance(t, "acc-3"); !got.Equal(dec("400")) {
		t.Errorf("expected destination 400, got %s", got)
	}
}

func TestCreateTransaction_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	req := withdrawal("40")
	req.IdempotencyKey = "key-1"

	first, err := env.proc.CreateTransaction(ctx, req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := env.proc.CreateTransaction(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if !second.Replayed || second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Transaction.ID, second.Transaction)
	}
	if got := env.balance(t, "acc-1"); !got.Equal(dec("19960")) {
		t.Errorf("replay must not apply twice, got %s", got)
	}

	req.Amount = dec("41")
	if _, err := env.proc.CreateTransaction(ctx, req); !errors.Is(err, ErrIdempotencyConflict) {
		t.Errorf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestCancel_RestoresBalanceAndLimit(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()
	env.seedDailyLimit(t, "user-1", "1000", noon)

	res, err := env.proc.CreateTransaction(ctx, withdrawal("250"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := env.limitRemaining(t, "user-1"); !got.Equal(dec("750")) {
		t.Fatalf("expected limit 750 after intake, got %s", got)
	}

	cancelled, err := env.proc.Cancel(ctx, "user-1", res.Transaction.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if got := env.balance(t, "acc-1"); !got.Equal(dec("20000")) {
		t.Errorf("expected balance restored, got %s", got)
	}
	if got := env.limitRemaining(t, "user-1"); !got.Equal(dec("1000")) {
		t.Errorf("expected limit restored, got %s", got)
	}

	if _, err := env.proc.Cancel(ctx, "user-1", res.Transaction.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("expected ErrNotCancellable, got %v", err)
	}
	if _, err := env.proc.Cancel(ctx, "user-2", res.Transaction.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestSettle_IdempotentAndFinal(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	res, err := env.proc.CreateTransaction(ctx, withdrawal("25"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := res.Transaction.ID

	if err := env.proc.Settle(ctx, id); err != nil {
		t.Fatalf("settle: %v", err)
	}
	first, _, _ := env.proc.Get(ctx, "user-1", id)
	if first.Status != domain.StatusCompleted || first.ProcessedAt == nil {
		t.Fatalf("expected completed with processed_at, got %+v", first)
	}

	if err := env.proc.Settle(ctx, id); err != nil {
		t.Fatalf("second settle: %v", err)
	}
	second, _, _ := env.proc.Get(ctx, "user-1", id)
	if !second.UpdatedAt.Equal(first.UpdatedAt) || second.Status != domain.StatusCompleted {
		t.Errorf("second settle must not change the transaction")
	}
	if n := len(env.publisher.OfType(domain.EventTransactionSettled)); n != 1 {
		t.Errorf("expected one settled event, got %d", n)
	}

	if _, err := env.proc.Cancel(ctx, "user-1", id); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("expected ErrNotCancellable, got %v", err)
	}
	if got := env.balance(t, "acc-1"); !got.Equal(dec("19975")) {
		t.Errorf("settled amount must stay debited, got %s", got)
	}
}

func TestSettle_SkipsFailed(t *testing.T) {
	env := newTestEnv(t, threeAM)
	ctx := context.Background()
	env.seedRecent(t, "user-1", 6, threeAM)

	res, err := env.proc.CreateTransaction(ctx, withdrawal("15000"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.proc.Settle(ctx, res.Transaction.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	got, _, _ := env.proc.Get(ctx, "user-1", res.Transaction.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("failed transactions stay failed, got %s", got.Status)
	}
}

func TestUpdate_PartialAndTransitions(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	res, err := env.proc.CreateTransaction(ctx, withdrawal("100"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := res.Transaction.ID

	category := "groceries"
	updated, err := env.proc.Update(ctx, "user-1", id, UpdateRequest{
		Category: &category,
		Metadata: map[string]string{"note": "weekly"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Category != "groceries" || updated.Metadata["note"] != "weekly" || updated.Description != "ATM" {
		t.Errorf("unexpected partial update result %+v", updated)
	}

	failed := domain.StatusFailed
	if _, err := env.proc.Update(ctx, "user-1", id, UpdateRequest{Status: &failed}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if got := env.balance(t, "acc-1"); !got.Equal(dec("20000")) {
		t.Errorf("failing must reverse the balance, got %s", got)
	}

	pending := domain.StatusPending
	if _, err := env.proc.Update(ctx, "user-1", id, UpdateRequest{Status: &pending}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdate_CancelledDelegatesToCancel(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	res, err := env.proc.CreateTransaction(ctx, withdrawal("100"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled := domain.StatusCancelled
	updated, err := env.proc.Update(ctx, "user-1", res.Transaction.ID, UpdateRequest{Status: &cancelled})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusCancelled {
		t.Errorf("expected cancelled, got %s", updated.Status)
	}
	if got := env.balance(t, "acc-1"); !got.Equal(dec("20000")) {
		t.Errorf("expected balance restored, got %s", got)
	}
}

func TestList_EnrichesAndSummarizes(t *testing.T) {
	env := newTestEnv(t, threeAM)
	ctx := context.Background()

	if _, err := env.proc.CreateTransaction(ctx, CreateRequest{UserID: "user-1", AccountID: "acc-2", Type: domain.TypeDeposit, Amount: dec("300")}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	flagged, err := env.proc.CreateTransaction(ctx, withdrawal("6000"))
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}

	result, err := env.proc.List(ctx, repository.TransactionFilter{UserID: "user-1", Limit: 20})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 2 || len(result.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d/%d", len(result.Transactions), result.Total)
	}
	if !result.Summary.TotalIncome.Equal(dec("300")) || !result.Summary.TotalExpenses.Equal(dec("6000")) {
		t.Errorf("unexpected summary %+v", result.Summary)
	}
	if result.Accounts["acc-1"] == nil || result.Accounts["acc-2"] == nil {
		t.Errorf("expected accounts for enrichment, got %v", result.Accounts)
	}
	if result.Alerts[flagged.Transaction.ID] == nil {
		t.Errorf("expected alert for %s", flagged.Transaction.ID)
	}

	if _, err := env.proc.List(ctx, repository.TransactionFilter{}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation without user, got %v", err)
	}
}

func TestRequeuePending(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	res, err := env.proc.CreateTransaction(ctx, withdrawal("10"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.seedRecent(t, "user-1", 2, noon) // completed, not requeued

	queue := settlement.NewMemoryQueue(10, nil)
	env.proc.queue = queue

	n, err := env.proc.RequeuePending(ctx)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 || queue.Len() != 1 {
		t.Fatalf("expected one task, got n=%d len=%d", n, queue.Len())
	}

	consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var got settlement.Task
	_ = queue.Consume(consumeCtx, func(ctx context.Context, task settlement.Task) error {
		got = task
		cancel()
		return nil
	})
	if got.TransactionID != res.Transaction.ID || !got.NotBefore.Equal(noon.Add(testDelay)) {
		t.Errorf("unexpected task %+v", got)
	}
}

func TestAccountsAndLimitsViews(t *testing.T) {
	env := newTestEnv(t, noon)
	ctx := context.Background()

	accounts, err := env.proc.ListAccounts(ctx, "user-1")
	if err != nil || len(accounts) != 3 {
		t.Fatalf("expected 3 accounts, got %d err=%v", len(accounts), err)
	}
	if _, err := env.proc.GetAccount(ctx, "user-1", "acc-3"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	expired := &domain.TransactionLimit{
		ID: "l1", UserID: "user-1", Period: domain.LimitDaily,
		LimitAmount: dec("500"), RemainingAmount: dec("20"), ResetsAt: noon.Add(-time.Hour),
	}
	_ = env.store.Limits().Save(ctx, expired)

	limits, err := env.proc.ListLimits(ctx, "user-1")
	if err != nil || len(limits) != 1 {
		t.Fatalf("list limits: %v", err)
	}
	if !limits[0].RemainingAmount.Equal(dec("500")) {
		t.Errorf("expired limit should read as refilled, got %s", limits[0].RemainingAmount)
	}
}
