package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

type AccountRepository struct {
	store *Store
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	return r.store.update(func(st *state) error {
		if _, exists := st.accounts[account.ID]; exists {
			return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
		}
		now := time.Now().UTC()
		if account.CreatedAt.IsZero() {
			account.CreatedAt = now
		}
		account.UpdatedAt = now
		st.accounts[account.ID] = *account
		return nil
	})
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var out *domain.Account
	err := r.store.view(func(st *state) error {
		account, exists := st.accounts[id]
		if !exists {
			return fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
		}
		out = &account
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra locking: inside WithinTx the caller already
// owns the store's write lock.
func (r *AccountRepository) GetForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	var result []*domain.Account
	err := r.store.view(func(st *state) error {
		for _, account := range st.accounts {
			if account.UserID == userID {
				account := account
				result = append(result, &account)
			}
		}
		return nil
	})

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, err
}

func (r *AccountRepository) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) error {
	return r.store.update(func(st *state) error {
		account, exists := st.accounts[id]
		if !exists {
			return fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
		}
		account.Balance = account.Balance.Add(delta)
		account.AvailableBalance = account.AvailableBalance.Add(delta)
		account.UpdatedAt = time.Now().UTC()
		st.accounts[id] = account
		return nil
	})
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	return r.store.update(func(st *state) error {
		account, exists := st.accounts[id]
		if !exists {
			return fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
		}
		account.Status = status
		account.UpdatedAt = time.Now().UTC()
		st.accounts[id] = account
		return nil
	})
}
