package repository

import (
	"context"
	"errors"
	"time"

	"banking_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetForUpdate reads the account and holds its row lock until the
	// surrounding WithinTx returns.
	GetForUpdate(ctx context.Context, id string) (*domain.Account, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Account, error)
	// ApplyDelta adds delta to both balance and available balance.
	ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) error
	UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Transaction, error)
	Update(ctx context.Context, tx *domain.Transaction) error
	List(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, int64, error)
	Summarize(ctx context.Context, filter TransactionFilter) (TransactionSummary, error)
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error)
	ListByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.Transaction, error)
}

type FraudAlertRepository interface {
	Create(ctx context.Context, alert *domain.FraudAlert) error
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.FraudAlert, error)
	ListByTransactionIDs(ctx context.Context, transactionIDs []string) (map[string]*domain.FraudAlert, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.FraudAlert, error)
}

type LimitRepository interface {
	// Save inserts or replaces the limit identified by its ID.
	Save(ctx context.Context, limit *domain.TransactionLimit) error
	ListByUser(ctx context.Context, userID string) ([]*domain.TransactionLimit, error)
	ListByUserForUpdate(ctx context.Context, userID string) ([]*domain.TransactionLimit, error)
}

type RuleRepository interface {
	Save(ctx context.Context, rule *domain.Rule) error
	GetByID(ctx context.Context, id string) (*domain.Rule, error)
	GetActiveRules(ctx context.Context) ([]*domain.Rule, error)
	Update(ctx context.Context, rule *domain.Rule) error
	Deactivate(ctx context.Context, id string) error
}

// Store groups the repositories and runs units of work against them.
// Repositories obtained from the Store passed to fn share one database
// transaction; returning an error from fn rolls all of it back.
type Store interface {
	Accounts() AccountRepository
	Transactions() TransactionRepository
	FraudAlerts() FraudAlertRepository
	Limits() LimitRepository
	Rules() RuleRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

type TransactionFilter struct {
	UserID    string
	AccountID string
	Type      domain.TransactionType
	Status    domain.TransactionStatus
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Search    string
	Limit     int
	Offset    int
}

// TransactionSummary aggregates the filtered set. Count covers every
// matching transaction; the totals leave out failed and cancelled ones.
type TransactionSummary struct {
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	Count         int64
}

func (s TransactionSummary) NetFlow() decimal.Decimal {
	return s.TotalIncome.Sub(s.TotalExpenses)
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")

	ErrInsufficientFunds = errors.New("insufficient funds")
)
