package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"
	"banking_ledger/internal/settlement"
	"banking_ledger/pkg/metrics"
	"banking_ledger/pkg/validator"

	"github.com/shopspring/decimal"
)

const DefaultVelocityWindow = time.Hour

type Publisher interface {
	Publish(ctx context.Context, event domain.TransactionEvent) error
}

type SettlementQueue interface {
	Enqueue(ctx context.Context, task settlement.Task) error
}

type Notifier interface {
	NotifyFraudAlert(ctx context.Context, tx *domain.Transaction, alert *domain.FraudAlert) error
}

type Options struct {
	Logger    *slog.Logger
	Metrics   *metrics.MetricsCollector
	Publisher Publisher
	Queue     SettlementQueue
	Notifier  Notifier

	OffHoursWeight  int
	VelocityWindow  time.Duration
	SettlementDelay time.Duration
	RuleCacheTTL    time.Duration

	// Clock stamps new transactions. Defaults to time.Now in UTC.
	Clock func() time.Time
}

type TransactionProcessor struct {
	store      repository.Store
	scorer     *RiskScorer
	ruleEngine *RuleEngine
	alerts     *FraudAlertWriter
	balances   BalanceUpdater
	validator  *validator.TransactionValidator
	metrics    *metrics.MetricsCollector
	publisher  Publisher
	queue      SettlementQueue
	notifier   Notifier
	logger     *slog.Logger

	velocityWindow  time.Duration
	settlementDelay time.Duration
	now             func() time.Time
}

func NewTransactionProcessor(store repository.Store, opts Options) *TransactionProcessor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewMetricsCollector(logger)
	}
	now := opts.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	window := opts.VelocityWindow
	if window <= 0 {
		window = DefaultVelocityWindow
	}
	delay := max(opts.SettlementDelay, 0)

	return &TransactionProcessor{
		store:           store,
		scorer:          NewRiskScorer(opts.OffHoursWeight),
		ruleEngine:      NewRuleEngine(store.Rules(), opts.RuleCacheTTL, logger),
		alerts:          NewFraudAlertWriter(logger),
		validator:       validator.NewTransactionValidator(),
		metrics:         collector,
		publisher:       opts.Publisher,
		queue:           opts.Queue,
		notifier:        opts.Notifier,
		logger:          logger,
		velocityWindow:  window,
		settlementDelay: delay,
		now:             now,
	}
}

type CreateRequest struct {
	UserID         string
	AccountID      string
	ToAccountID    string
	Type           domain.TransactionType
	Amount         decimal.Decimal
	Currency       string
	Category       string
	Description    string
	MerchantName   string
	Location       string
	Reference      string
	IdempotencyKey string
	Metadata       map[string]string
}

type Result struct {
	Transaction *domain.Transaction
	Alert       *domain.FraudAlert
	Assessment  domain.RiskAssessment
	// Replayed is set when an earlier request with the same idempotency
	// key produced Transaction.
	Replayed bool
}

// CreateTransaction runs intake: ownership and status checks, limits,
// funds, insertion as pending, risk scoring and, unless the risk level
// blocks it, limit consumption and balance updates. All of it commits
// atomically; events, metrics, notifications and the settlement task
// follow the commit.
func (p *TransactionProcessor) CreateTransaction(ctx context.Context, req CreateRequest) (*Result, error) {
	start := time.Now()

	if req.IdempotencyKey != "" {
		replay, err := p.findReplay(ctx, req)
		if err != nil || replay != nil {
			return replay, err
		}
	}

	now := p.now()
	tx := domain.NewTransaction(req.UserID, req.AccountID, req.Type, req.Amount, req.Currency)
	tx.CreatedAt, tx.UpdatedAt = now, now
	tx.ToAccountID = req.ToAccountID
	tx.Category = req.Category
	tx.Description = req.Description
	tx.MerchantName = req.MerchantName
	tx.Location = req.Location
	tx.Reference = req.Reference
	tx.IdempotencyKey = req.IdempotencyKey
	for k, v := range req.Metadata {
		tx.AddMetadata(k, v)
	}

	if err := p.validator.ValidateTransaction(tx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	rules, err := p.ruleEngine.ActiveRules(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "Scoring without custom rules",
			slog.String("error", err.Error()))
	}

	var (
		assessment domain.RiskAssessment
		alert      *domain.FraudAlert
	)
	err = p.store.WithinTx(ctx, func(store repository.Store) error {
		source, err := p.lockParticipants(ctx, store, tx)
		if err != nil {
			return err
		}
		// The currency may only be known once the account is loaded.
		if err := p.validator.ValidateAmount(tx.Amount, tx.Currency); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}

		var limits []*domain.TransactionLimit
		if tx.Type.Outgoing() {
			limits, err = checkLimits(ctx, store.Limits(), tx.UserID, tx.Amount, now)
			if err != nil {
				return err
			}
			if source.SpendingPower().LessThan(tx.Amount) {
				return fmt.Errorf("%w: account %s can cover %s", repository.ErrInsufficientFunds, source.ID, source.SpendingPower().StringFixed(2))
			}
		}

		if err := store.Transactions().Create(ctx, tx); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		recent, err := store.Transactions().CountByUserSince(ctx, tx.UserID, now.Add(-p.velocityWindow))
		if err != nil {
			return fmt.Errorf("count recent transactions: %w", err)
		}

		input := NewRiskInput(tx, recent)
		assessment = p.scorer.Score(input)
		results := p.ruleEngine.Evaluate(ctx, rules, Facts{
			Transaction: tx,
			Hour:        input.Hour,
			RecentCount: recent,
			BaseScore:   assessment.Score,
		})
		assessment = p.ruleEngine.Apply(ctx, results, assessment)

		alert, err = p.alerts.Record(ctx, store, tx, assessment)
		if err != nil {
			return err
		}
		if assessment.Level.Blocks() {
			return nil
		}

		if err := consumeLimits(ctx, store.Limits(), limits, tx.Amount, now); err != nil {
			return err
		}
		return p.balances.Apply(ctx, store.Accounts(), tx)
	})
	if err != nil {
		if req.IdempotencyKey != "" && errors.Is(err, repository.ErrDuplicate) {
			// A concurrent request with the same key won the insert.
			if replay, replayErr := p.findReplay(ctx, req); replay != nil || replayErr != nil {
				return replay, replayErr
			}
		}
		return nil, err
	}

	blocked := assessment.Level.Blocks()
	eventType := domain.EventTransactionCreated
	if blocked {
		eventType = domain.EventTransactionBlocked
	}
	p.publish(ctx, domain.NewTransactionEvent(eventType, tx, assessment.Level))

	p.metrics.RecordTransaction(string(tx.Type), string(tx.Status), time.Since(start), tx.RiskScore)
	if alert != nil {
		p.metrics.RecordFraudAlert(string(alert.RiskLevel))
		if blocked && p.notifier != nil {
			if err := p.notifier.NotifyFraudAlert(ctx, tx, alert); err != nil {
				p.logger.ErrorContext(ctx, "Failed to send fraud notification",
					slog.String("transaction_id", tx.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	if !blocked {
		p.observeBalances(ctx, tx)
		p.enqueueSettlement(ctx, tx)
	}

	p.logger.InfoContext(ctx, "Transaction created",
		slog.String("transaction_id", tx.ID),
		slog.String("type", string(tx.Type)),
		slog.String("status", string(tx.Status)),
		slog.Int("risk_score", tx.RiskScore))

	return &Result{Transaction: tx, Alert: alert, Assessment: assessment}, nil
}

// lockParticipants locks the source account and, for internal transfers,
// the destination, in id order. It returns the source.
func (p *TransactionProcessor) lockParticipants(ctx context.Context, store repository.Store, tx *domain.Transaction) (*domain.Account, error) {
	accounts, err := lockAccounts(ctx, store, tx)
	if err != nil {
		return nil, err
	}

	source := accounts[tx.AccountID]
	if source.UserID != tx.UserID {
		return nil, fmt.Errorf("%w: account %s", ErrForbidden, source.ID)
	}
	if !source.IsActive() {
		return nil, fmt.Errorf("%w: account %s is %s", ErrAccountInactive, source.ID, source.Status)
	}
	if tx.Currency == "" {
		tx.Currency = source.Currency
	} else if tx.Currency != source.Currency {
		return nil, fmt.Errorf("%w: account %s holds %s", ErrCurrencyMismatch, source.ID, source.Currency)
	}

	if tx.IsInternalTransfer() {
		dest := accounts[tx.ToAccountID]
		if !dest.IsActive() {
			return nil, fmt.Errorf("%w: account %s is %s", ErrAccountInactive, dest.ID, dest.Status)
		}
		if dest.Currency != source.Currency {
			return nil, fmt.Errorf("%w: %s to %s", ErrCurrencyMismatch, source.Currency, dest.Currency)
		}
	}
	return source, nil
}

func lockAccounts(ctx context.Context, store repository.Store, tx *domain.Transaction) (map[string]*domain.Account, error) {
	ids := []string{tx.AccountID}
	if tx.IsInternalTransfer() {
		ids = append(ids, tx.ToAccountID)
	}
	slices.Sort(ids)

	accounts := make(map[string]*domain.Account, len(ids))
	for _, id := range ids {
		account, err := store.Accounts().GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		accounts[id] = account
	}
	return accounts, nil
}

func (p *TransactionProcessor) findReplay(ctx context.Context, req CreateRequest) (*Result, error) {
	existing, err := p.store.Transactions().FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find idempotent transaction: %w", err)
	}

	if existing.AccountID != req.AccountID || existing.Type != req.Type || !existing.Amount.Equal(req.Amount) {
		return nil, fmt.Errorf("%w: key %s", ErrIdempotencyConflict, req.IdempotencyKey)
	}

	alert, err := p.alertFor(ctx, existing.ID)
	if err != nil {
		return nil, err
	}

	assessment := NewAssessment(existing.RiskScore, []string{})
	if alert != nil {
		assessment.Rules = alert.Rules
	}

	p.logger.InfoContext(ctx, "Replaying idempotent request",
		slog.String("transaction_id", existing.ID),
		slog.String("idempotency_key", req.IdempotencyKey))

	return &Result{Transaction: existing, Alert: alert, Assessment: assessment, Replayed: true}, nil
}

func (p *TransactionProcessor) alertFor(ctx context.Context, transactionID string) (*domain.FraudAlert, error) {
	alert, err := p.store.FraudAlerts().GetByTransactionID(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return alert, err
}

func (p *TransactionProcessor) Get(ctx context.Context, userID, id string) (*domain.Transaction, *domain.FraudAlert, error) {
	tx, err := p.store.Transactions().GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if tx.UserID != userID {
		return nil, nil, fmt.Errorf("%w: transaction %s", ErrForbidden, id)
	}

	alert, err := p.alertFor(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return tx, alert, nil
}

type ListResult struct {
	Transactions []*domain.Transaction
	Total        int64
	Summary      repository.TransactionSummary
	Accounts     map[string]*domain.Account
	Alerts       map[string]*domain.FraudAlert
}

// List returns one page of the user's transactions together with the
// summary of the whole filtered set and the accounts and alerts needed
// to render the page.
func (p *TransactionProcessor) List(ctx context.Context, filter repository.TransactionFilter) (*ListResult, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrValidation)
	}

	txs, total, err := p.store.Transactions().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	summary, err := p.store.Transactions().Summarize(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}

	accounts, err := p.store.Accounts().ListByUser(ctx, filter.UserID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	byID := make(map[string]*domain.Account, len(accounts))
	for _, account := range accounts {
		byID[account.ID] = account
	}

	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	alerts, err := p.store.FraudAlerts().ListByTransactionIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list fraud alerts: %w", err)
	}

	return &ListResult{
		Transactions: txs,
		Total:        total,
		Summary:      summary,
		Accounts:     byID,
		Alerts:       alerts,
	}, nil
}

// UpdateRequest carries a partial update; nil fields are left alone and
// Metadata is merged into the existing map.
type UpdateRequest struct {
	Status      *domain.TransactionStatus
	Category    *string
	Description *string
	Metadata    map[string]string
}

func (p *TransactionProcessor) Update(ctx context.Context, userID, id string, req UpdateRequest) (*domain.Transaction, error) {
	var (
		updated *domain.Transaction
		from    domain.TransactionStatus
	)
	err := p.store.WithinTx(ctx, func(store repository.Store) error {
		tx, err := p.getOwnedForUpdate(ctx, store, userID, id)
		if err != nil {
			return err
		}
		from = tx.Status
		now := p.now()

		if req.Category != nil {
			tx.Category = *req.Category
		}
		if req.Description != nil {
			tx.Description = *req.Description
		}
		for k, v := range req.Metadata {
			tx.AddMetadata(k, v)
		}

		if req.Status != nil && *req.Status != tx.Status {
			if err := p.transition(ctx, store, tx, *req.Status, now); err != nil {
				return err
			}
		}

		tx.UpdatedAt = now
		if err := store.Transactions().Update(ctx, tx); err != nil {
			return fmt.Errorf("update transaction %s: %w", tx.ID, err)
		}
		updated = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := domain.EventTransactionUpdated
	switch {
	case from == updated.Status:
	case updated.Status == domain.StatusCancelled:
		eventType = domain.EventTransactionCancelled
	case updated.Status == domain.StatusFailed:
		eventType = domain.EventTransactionFailed
	case updated.Status == domain.StatusCompleted:
		eventType = domain.EventTransactionSettled
	}
	p.publish(ctx, domain.NewTransactionEvent(eventType, updated, LevelForScore(updated.RiskScore)))
	if from != updated.Status && updated.Status.Terminal() && updated.Status != domain.StatusCompleted {
		p.observeBalances(ctx, updated)
	}

	return updated, nil
}

func (p *TransactionProcessor) transition(ctx context.Context, store repository.Store, tx *domain.Transaction, to domain.TransactionStatus, now time.Time) error {
	if to == domain.StatusCancelled {
		return p.cancelLocked(ctx, store, tx, now)
	}
	if !tx.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, tx.Status, to)
	}

	switch to {
	case domain.StatusFailed:
		if err := p.undo(ctx, store, tx, now); err != nil {
			return err
		}
	case domain.StatusCompleted:
		tx.ProcessedAt = &now
	}
	tx.Status = to
	return nil
}

// Cancel moves a pending transaction to cancelled and gives back its
// balance and limit effects.
func (p *TransactionProcessor) Cancel(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	var cancelled *domain.Transaction
	err := p.store.WithinTx(ctx, func(store repository.Store) error {
		tx, err := p.getOwnedForUpdate(ctx, store, userID, id)
		if err != nil {
			return err
		}

		now := p.now()
		if err := p.cancelLocked(ctx, store, tx, now); err != nil {
			return err
		}
		tx.UpdatedAt = now
		if err := store.Transactions().Update(ctx, tx); err != nil {
			return fmt.Errorf("update transaction %s: %w", tx.ID, err)
		}
		cancelled = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.publish(ctx, domain.NewTransactionEvent(domain.EventTransactionCancelled, cancelled, LevelForScore(cancelled.RiskScore)))
	p.observeBalances(ctx, cancelled)
	p.logger.InfoContext(ctx, "Transaction cancelled",
		slog.String("transaction_id", cancelled.ID))

	return cancelled, nil
}

func (p *TransactionProcessor) cancelLocked(ctx context.Context, store repository.Store, tx *domain.Transaction, now time.Time) error {
	if tx.Status != domain.StatusPending {
		return fmt.Errorf("%w: transaction %s is %s", ErrNotCancellable, tx.ID, tx.Status)
	}
	if err := p.undo(ctx, store, tx, now); err != nil {
		return err
	}
	tx.Status = domain.StatusCancelled
	return nil
}

// undo reverses the balance updates and limit consumption of an accepted
// transaction.
func (p *TransactionProcessor) undo(ctx context.Context, store repository.Store, tx *domain.Transaction, now time.Time) error {
	if _, err := lockAccounts(ctx, store, tx); err != nil {
		return err
	}
	if err := p.balances.Reverse(ctx, store.Accounts(), tx); err != nil {
		return err
	}
	return restoreLimits(ctx, store.Limits(), tx, now)
}

func (p *TransactionProcessor) getOwnedForUpdate(ctx context.Context, store repository.Store, userID, id string) (*domain.Transaction, error) {
	tx, err := store.Transactions().GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, fmt.Errorf("%w: transaction %s", ErrForbidden, id)
	}
	return tx, nil
}

// Settle completes a pending or processing transaction. Terminal
// transactions are left as they are, so redelivered tasks are harmless.
func (p *TransactionProcessor) Settle(ctx context.Context, transactionID string) error {
	var settled *domain.Transaction
	err := p.store.WithinTx(ctx, func(store repository.Store) error {
		tx, err := store.Transactions().GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if tx.Status.Terminal() {
			return nil
		}

		now := p.now()
		if tx.Status == domain.StatusPending {
			tx.Status = domain.StatusProcessing
			tx.UpdatedAt = now
			if err := store.Transactions().Update(ctx, tx); err != nil {
				return fmt.Errorf("mark transaction %s processing: %w", tx.ID, err)
			}
		}

		tx.Status = domain.StatusCompleted
		tx.ProcessedAt = &now
		tx.UpdatedAt = now
		if err := store.Transactions().Update(ctx, tx); err != nil {
			return fmt.Errorf("complete transaction %s: %w", tx.ID, err)
		}
		settled = tx
		return nil
	})
	if err != nil {
		return err
	}
	if settled == nil {
		p.logger.DebugContext(ctx, "Settlement skipped for terminal transaction",
			slog.String("transaction_id", transactionID))
		return nil
	}

	p.publish(ctx, domain.NewTransactionEvent(domain.EventTransactionSettled, settled, LevelForScore(settled.RiskScore)))
	p.logger.InfoContext(ctx, "Transaction settled",
		slog.String("transaction_id", settled.ID))
	return nil
}

// RequeuePending enqueues a settlement task for every transaction still
// waiting to settle, e.g. after a restart.
func (p *TransactionProcessor) RequeuePending(ctx context.Context) (int, error) {
	if p.queue == nil {
		return 0, nil
	}

	txs, err := p.store.Transactions().ListByStatus(ctx, domain.StatusPending, domain.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list unsettled transactions: %w", err)
	}

	for i, tx := range txs {
		if err := p.queue.Enqueue(ctx, p.settlementTask(tx)); err != nil {
			return i, fmt.Errorf("requeue transaction %s: %w", tx.ID, err)
		}
	}

	p.logger.InfoContext(ctx, "Requeued unsettled transactions", slog.Int("count", len(txs)))
	return len(txs), nil
}

func (p *TransactionProcessor) settlementTask(tx *domain.Transaction) settlement.Task {
	return settlement.Task{
		TransactionID: tx.ID,
		NotBefore:     tx.CreatedAt.Add(p.settlementDelay),
		EnqueuedAt:    time.Now().UTC(),
	}
}

func (p *TransactionProcessor) enqueueSettlement(ctx context.Context, tx *domain.Transaction) {
	if p.queue == nil {
		return
	}
	// A lost task is picked up again by RequeuePending on the next start.
	if err := p.queue.Enqueue(ctx, p.settlementTask(tx)); err != nil {
		p.logger.ErrorContext(ctx, "Failed to enqueue settlement",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()))
	}
}

func (p *TransactionProcessor) publish(ctx context.Context, event domain.TransactionEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish transaction event",
			slog.String("transaction_id", event.TransactionID),
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()))
	}
}

func (p *TransactionProcessor) observeBalances(ctx context.Context, tx *domain.Transaction) {
	for _, update := range tx.BalanceUpdates() {
		account, err := p.store.Accounts().GetByID(ctx, update.AccountID)
		if err != nil {
			continue
		}
		balance, _ := account.Balance.Float64()
		p.metrics.UpdateAccountBalance(account.ID, account.Currency, balance)
	}
}

func (p *TransactionProcessor) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	return p.store.Accounts().ListByUser(ctx, userID)
}

func (p *TransactionProcessor) GetAccount(ctx context.Context, userID, id string) (*domain.Account, error) {
	account, err := p.store.Accounts().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, fmt.Errorf("%w: account %s", ErrForbidden, id)
	}
	return account, nil
}

func (p *TransactionProcessor) ListFraudAlerts(ctx context.Context, userID string, limit, offset int) ([]*domain.FraudAlert, error) {
	return p.store.FraudAlerts().ListByUser(ctx, userID, limit, offset)
}

// ListLimits reports limits as they stand now; expired periods show as
// refilled without being written back.
func (p *TransactionProcessor) ListLimits(ctx context.Context, userID string) ([]*domain.TransactionLimit, error) {
	limits, err := p.store.Limits().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := p.now()
	for _, limit := range limits {
		limit.ResetIfExpired(now)
	}
	return limits, nil
}

// InvalidateRules drops the cached rule set.
func (p *TransactionProcessor) InvalidateRules() {
	p.ruleEngine.InvalidateCache()
}

// Ping reports whether the store is reachable.
func (p *TransactionProcessor) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}
