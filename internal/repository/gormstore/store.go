package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banking_ledger/internal/repository"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ repository.Store = (*Store)(nil)

// Store implements repository.Store on top of GORM. Inside WithinTx every
// repository shares the same *gorm.DB transaction handle.
type Store struct {
	db   *gorm.DB
	inTx bool
}

// Config returns the GORM settings shared by every dialect: UTC timestamps,
// translated constraint errors and a quiet logger.
func Config() *gorm.Config {
	return &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

// Open connects to Postgres and returns a Store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the ledger tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&accountModel{},
		&transactionModel{},
		&fraudAlertModel{},
		&limitModel{},
		&ruleModel{},
	)
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Accounts() repository.AccountRepository {
	return &AccountRepository{db: s.db}
}

func (s *Store) Transactions() repository.TransactionRepository {
	return &TransactionRepository{db: s.db}
}

func (s *Store) FraudAlerts() repository.FraudAlertRepository {
	return &FraudAlertRepository{db: s.db}
}

func (s *Store) Limits() repository.LimitRepository {
	return &LimitRepository{db: s.db}
}

func (s *Store) Rules() repository.RuleRepository {
	return &RuleRepository{db: s.db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// forUpdate adds SELECT ... FOR UPDATE. Dialects without row locks ignore it.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func translate(err error, entity, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s %s", repository.ErrNotFound, entity, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s %s", repository.ErrDuplicate, entity, id)
	default:
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
}
