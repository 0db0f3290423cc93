package memory

import (
	"context"
	"fmt"
	"sort"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"
)

type RuleRepository struct {
	store *Store
}

func (r *RuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	return r.store.update(func(st *state) error {
		if _, exists := st.rules[rule.ID]; exists {
			return fmt.Errorf("%w: rule %s", repository.ErrDuplicate, rule.ID)
		}
		rule.Version = 1
		st.rules[rule.ID] = *rule
		return nil
	})
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*domain.Rule, error) {
	var out *domain.Rule
	err := r.store.view(func(st *state) error {
		rule, exists := st.rules[id]
		if !exists {
			return fmt.Errorf("%w: rule %s", repository.ErrNotFound, id)
		}
		out = &rule
		return nil
	})
	return out, err
}

func (r *RuleRepository) GetActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	var result []*domain.Rule
	err := r.store.view(func(st *state) error {
		for _, rule := range st.rules {
			if rule.IsActive {
				rule := rule
				result = append(result, &rule)
			}
		}
		return nil
	})

	sort.Slice(result, func(i, j int) bool {
		return result[i].Priority > result[j].Priority
	})
	return result, err
}

func (r *RuleRepository) Update(ctx context.Context, rule *domain.Rule) error {
	return r.store.update(func(st *state) error {
		existing, exists := st.rules[rule.ID]
		if !exists {
			return fmt.Errorf("%w: rule %s", repository.ErrNotFound, rule.ID)
		}
		rule.Version = existing.Version + 1
		st.rules[rule.ID] = *rule
		return nil
	})
}

func (r *RuleRepository) Deactivate(ctx context.Context, id string) error {
	return r.store.update(func(st *state) error {
		rule, exists := st.rules[id]
		if !exists {
			return fmt.Errorf("%w: rule %s", repository.ErrNotFound, id)
		}
		rule.IsActive = false
		st.rules[id] = rule
		return nil
	})
}
