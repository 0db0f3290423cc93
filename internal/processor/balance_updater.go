package processor

import (
	"context"
	"fmt"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"
)

// BalanceUpdater moves money between accounts. It must be called with
// repositories bound to the unit of work that holds the account locks.
type BalanceUpdater struct{}

func (BalanceUpdater) Apply(ctx context.Context, accounts repository.AccountRepository, tx *domain.Transaction) error {
	for _, update := range tx.BalanceUpdates() {
		if err := accounts.ApplyDelta(ctx, update.AccountID, update.Amount); err != nil {
			return fmt.Errorf("apply balance to account %s: %w", update.AccountID, err)
		}
	}
	return nil
}

// Reverse undoes Apply.
func (BalanceUpdater) Reverse(ctx context.Context, accounts repository.AccountRepository, tx *domain.Transaction) error {
	for _, update := range tx.BalanceUpdates() {
		if err := accounts.ApplyDelta(ctx, update.AccountID, update.Amount.Neg()); err != nil {
			return fmt.Errorf("reverse balance on account %s: %w", update.AccountID, err)
		}
	}
	return nil
}
