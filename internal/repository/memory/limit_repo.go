package memory

import (
	"context"
	"sort"
	"time"

	"banking_ledger/internal/domain"
)

type LimitRepository struct {
	store *Store
}

func (r *LimitRepository) Save(ctx context.Context, limit *domain.TransactionLimit) error {
	return r.store.update(func(st *state) error {
		limit.UpdatedAt = time.Now().UTC()
		st.limits[limit.ID] = *limit
		return nil
	})
}

func (r *LimitRepository) ListByUser(ctx context.Context, userID string) ([]*domain.TransactionLimit, error) {
	var result []*domain.TransactionLimit
	err := r.store.view(func(st *state) error {
		for _, limit := range st.limits {
			if limit.UserID == userID {
				limit := limit
				result = append(result, &limit)
			}
		}
		return nil
	})

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, err
}

func (r *LimitRepository) ListByUserForUpdate(ctx context.Context, userID string) ([]*domain.TransactionLimit, error) {
	return r.ListByUser(ctx, userID)
}
