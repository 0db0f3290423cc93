package memory

import (
	"context"
	"maps"
	"sync"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"
)

var (
	_ repository.Store                 = (*Store)(nil)
	_ repository.AccountRepository     = (*AccountRepository)(nil)
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
	_ repository.FraudAlertRepository  = (*FraudAlertRepository)(nil)
	_ repository.LimitRepository       = (*LimitRepository)(nil)
	_ repository.RuleRepository        = (*RuleRepository)(nil)
)

type state struct {
	accounts     map[string]domain.Account
	transactions map[string]domain.Transaction
	alerts       map[string]domain.FraudAlert // keyed by transaction id
	limits       map[string]domain.TransactionLimit
	rules        map[string]domain.Rule
}

func newState() *state {
	return &state{
		accounts:     make(map[string]domain.Account),
		transactions: make(map[string]domain.Transaction),
		alerts:       make(map[string]domain.FraudAlert),
		limits:       make(map[string]domain.TransactionLimit),
		rules:        make(map[string]domain.Rule),
	}
}

// clone copies the maps; values that hold references are copied on write
// by the repositories, so a shallow copy of each map is enough.
func (s *state) clone() *state {
	return &state{
		accounts:     maps.Clone(s.accounts),
		transactions: maps.Clone(s.transactions),
		alerts:       maps.Clone(s.alerts),
		limits:       maps.Clone(s.limits),
		rules:        maps.Clone(s.rules),
	}
}

// Store keeps all records in process memory. Writers are serialized; a
// WithinTx unit of work runs against a private copy of the state which
// replaces the shared one only when fn succeeds.
type Store struct {
	mu    *sync.RWMutex
	write *sync.Mutex
	st    *state
	inTx  bool
}

func NewStore() *Store {
	return &Store{
		mu:    &sync.RWMutex{},
		write: &sync.Mutex{},
		st:    newState(),
	}
}

func (s *Store) Accounts() repository.AccountRepository { return &AccountRepository{store: s} }
func (s *Store) Transactions() repository.TransactionRepository { return &TransactionRepository{store: s} }
func (s *Store) FraudAlerts() repository.FraudAlertRepository { return &FraudAlertRepository{store: s} }
func (s *Store) Limits() repository.LimitRepository { return &LimitRepository{store: s} }
func (s *Store) Rules() repository.RuleRepository { return &RuleRepository{store: s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.write.Lock()
	defer s.write.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	draft := s.st.clone()
	s.mu.RUnlock()

	if err := fn(&Store{st: draft, inTx: true}); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = draft
	s.mu.Unlock()
	return nil
}

func (s *Store) view(fn func(st *state) error) error {
	if s.inTx {
		return fn(s.st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) update(fn func(st *state) error) error {
	if s.inTx {
		return fn(s.st)
	}
	s.write.Lock()
	defer s.write.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}
