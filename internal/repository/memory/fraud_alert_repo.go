package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"
)

type FraudAlertRepository struct {
	store *Store
}

func copyAlert(alert domain.FraudAlert) *domain.FraudAlert {
	alert.Rules = slices.Clone(alert.Rules)
	return &alert
}

func (r *FraudAlertRepository) Create(ctx context.Context, alert *domain.FraudAlert) error {
	return r.store.update(func(st *state) error {
		if _, exists := st.alerts[alert.TransactionID]; exists {
			return fmt.Errorf("%w: fraud alert for transaction %s", repository.ErrDuplicate, alert.TransactionID)
		}
		st.alerts[alert.TransactionID] = *copyAlert(*alert)
		return nil
	})
}

func (r *FraudAlertRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.FraudAlert, error) {
	var out *domain.FraudAlert
	err := r.store.view(func(st *state) error {
		alert, exists := st.alerts[transactionID]
		if !exists {
			return fmt.Errorf("%w: fraud alert for transaction %s", repository.ErrNotFound, transactionID)
		}
		out = copyAlert(alert)
		return nil
	})
	return out, err
}

func (r *FraudAlertRepository) ListByTransactionIDs(ctx context.Context, transactionIDs []string) (map[string]*domain.FraudAlert, error) {
	result := make(map[string]*domain.FraudAlert)
	err := r.store.view(func(st *state) error {
		for _, id := range transactionIDs {
			if alert, exists := st.alerts[id]; exists {
				result[id] = copyAlert(alert)
			}
		}
		return nil
	})
	return result, err
}

func (r *FraudAlertRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.FraudAlert, error) {
	var result []*domain.FraudAlert
	err := r.store.view(func(st *state) error {
		for _, alert := range st.alerts {
			if alert.UserID == userID {
				result = append(result, copyAlert(alert))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	start := min(offset, len(result))
	end := len(result)
	if limit > 0 {
		end = min(start+limit, len(result))
	}
	return result[start:end], nil
}
