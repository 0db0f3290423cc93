package processor

import (
	"context"
	"fmt"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

// checkLimits locks the user's limits, refreshes expired ones and fails
// when any of them cannot cover amount.
func checkLimits(ctx context.Context, limits repository.LimitRepository, userID string, amount decimal.Decimal, now time.Time) ([]*domain.TransactionLimit, error) {
	list, err := limits.ListByUserForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list limits: %w", err)
	}

	for _, limit := range list {
		limit.ResetIfExpired(now)
		if !limit.Allows(amount) {
			return nil, fmt.Errorf("%w: %s limit has %s remaining", ErrLimitExceeded, limit.Period, limit.RemainingAmount.StringFixed(2))
		}
	}
	return list, nil
}

func consumeLimits(ctx context.Context, limits repository.LimitRepository, list []*domain.TransactionLimit, amount decimal.Decimal, now time.Time) error {
	for _, limit := range list {
		limit.Consume(amount)
		limit.UpdatedAt = now
		if err := limits.Save(ctx, limit); err != nil {
			return fmt.Errorf("save limit %s: %w", limit.ID, err)
		}
	}
	return nil
}

// restoreLimits gives tx's amount back to limits whose current period
// still contains it. Expired limits are simply refilled.
func restoreLimits(ctx context.Context, limits repository.LimitRepository, tx *domain.Transaction, now time.Time) error {
	if !tx.Type.Outgoing() {
		return nil
	}

	list, err := limits.ListByUserForUpdate(ctx, tx.UserID)
	if err != nil {
		return fmt.Errorf("list limits: %w", err)
	}

	for _, limit := range list {
		switch {
		case limit.ResetIfExpired(now):
		case limit.Covers(tx.CreatedAt):
			limit.Restore(tx.Amount)
		default:
			continue
		}
		limit.UpdatedAt = now
		if err := limits.Save(ctx, limit); err != nil {
			return fmt.Errorf("save limit %s: %w", limit.ID, err)
		}
	}
	return nil
}
