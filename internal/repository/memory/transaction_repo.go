package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

type TransactionRepository struct {
	store *Store
}

func copyTransaction(tx domain.Transaction) *domain.Transaction {
	tx.Metadata = maps.Clone(tx.Metadata)
	if tx.ProcessedAt != nil {
		processed := *tx.ProcessedAt
		tx.ProcessedAt = &processed
	}
	return &tx
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	return r.store.update(func(st *state) error {
		if _, exists := st.transactions[tx.ID]; exists {
			return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
		}
		if tx.IdempotencyKey != "" {
			for _, existing := range st.transactions {
				if existing.UserID == tx.UserID && existing.IdempotencyKey == tx.IdempotencyKey {
					return fmt.Errorf("%w: idempotency key %s", repository.ErrDuplicate, tx.IdempotencyKey)
				}
			}
		}
		st.transactions[tx.ID] = *copyTransaction(*tx)
		return nil
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.store.view(func(st *state) error {
		tx, exists := st.transactions[id]
		if !exists {
			return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
		}
		out = copyTransaction(tx)
		return nil
	})
	return out, err
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.store.view(func(st *state) error {
		for _, tx := range st.transactions {
			if tx.UserID == userID && tx.IdempotencyKey == key {
				out = copyTransaction(tx)
				return nil
			}
		}
		return fmt.Errorf("%w: idempotency key %s", repository.ErrNotFound, key)
	})
	return out, err
}

func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	return r.store.update(func(st *state) error {
		if _, exists := st.transactions[tx.ID]; !exists {
			return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, tx.ID)
		}
		tx.UpdatedAt = time.Now().UTC()
		st.transactions[tx.ID] = *copyTransaction(*tx)
		return nil
	})
}

func (r *TransactionRepository) List(ctx context.Context, filter repository.TransactionFilter) ([]*domain.Transaction, int64, error) {
	var matched []*domain.Transaction
	err := r.store.view(func(st *state) error {
		for _, tx := range st.transactions {
			if matches(filter, &tx) {
				matched = append(matched, copyTransaction(tx))
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := min(max(filter.Offset, 0), len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}
	return matched[start:end], total, nil
}

func (r *TransactionRepository) Summarize(ctx context.Context, filter repository.TransactionFilter) (repository.TransactionSummary, error) {
	summary := repository.TransactionSummary{
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	err := r.store.view(func(st *state) error {
		for _, tx := range st.transactions {
			if !matches(filter, &tx) {
				continue
			}
			summary.Count++
			if tx.Status == domain.StatusFailed || tx.Status == domain.StatusCancelled {
				continue
			}
			if tx.Type.Outgoing() {
				summary.TotalExpenses = summary.TotalExpenses.Add(tx.Amount)
			} else {
				summary.TotalIncome = summary.TotalIncome.Add(tx.Amount)
			}
		}
		return nil
	})
	return summary, err
}

func (r *TransactionRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.store.view(func(st *state) error {
		for _, tx := range st.transactions {
			if tx.UserID == userID && !tx.CreatedAt.Before(since) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *TransactionRepository) ListByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	err := r.store.view(func(st *state) error {
		for _, tx := range st.transactions {
			if slices.Contains(statuses, tx.Status) {
				result = append(result, copyTransaction(tx))
			}
		}
		return nil
	})

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, err
}

func matches(f repository.TransactionFilter, tx *domain.Transaction) bool {
	if f.UserID != "" && tx.UserID != f.UserID {
		return false
	}
	if f.AccountID != "" && tx.AccountID != f.AccountID && tx.ToAccountID != f.AccountID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.From != nil && tx.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.CreatedAt.After(*f.To) {
		return false
	}
	if f.MinAmount != nil && tx.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(tx.Description), term) &&
			!strings.Contains(strings.ToLower(tx.MerchantName), term) &&
			!strings.Contains(strings.ToLower(tx.Reference), term) {
			return false
		}
	}
	return true
}
