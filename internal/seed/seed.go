// Package seed loads demo users, accounts, limits and fraud rules.
// Running it twice leaves the data unchanged.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

var Users = []string{"demo-user-1", "demo-user-2"}

type Result struct {
	Accounts int
	Limits   int
	Rules    int
}

func accounts(now time.Time) []*domain.Account {
	mk := func(id, userID, name, number string, t domain.AccountType, currency string, balance, overdraft int64) *domain.Account {
		return &domain.Account{
			ID:               id,
			UserID:           userID,
			Name:             name,
			AccountNumber:    number,
			Type:             t,
			Currency:         currency,
			Balance:          decimal.NewFromInt(balance),
			AvailableBalance: decimal.NewFromInt(balance),
			OverdraftLimit:   decimal.NewFromInt(overdraft),
			Status:           domain.AccountActive,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	return []*domain.Account{
		mk("demo-checking-1", "demo-user-1", "Everyday Checking", "****4821", domain.AccountChecking, "USD", 5000, 500),
		mk("demo-savings-1", "demo-user-1", "Rainy Day Savings", "****7310", domain.AccountSavings, "USD", 20000, 0),
		mk("demo-checking-2", "demo-user-2", "Girokonto", "****0954", domain.AccountChecking, "EUR", 3000, 0),
	}
}

func limits(userID string, now time.Time) []*domain.TransactionLimit {
	mk := func(period domain.LimitPeriod, amount int64) *domain.TransactionLimit {
		return &domain.TransactionLimit{
			ID:              fmt.Sprintf("%s-%s", userID, period),
			UserID:          userID,
			Period:          period,
			LimitAmount:     decimal.NewFromInt(amount),
			RemainingAmount: decimal.NewFromInt(amount),
			ResetsAt:        period.Next(now),
			UpdatedAt:       now,
		}
	}
	return []*domain.TransactionLimit{
		mk(domain.LimitDaily, 10000),
		mk(domain.LimitMonthly, 50000),
	}
}

func rules(now time.Time) []*domain.Rule {
	mk := func(id, name, description, condition, action string, priority int) *domain.Rule {
		return &domain.Rule{
			ID:          id,
			Name:        name,
			Type:        domain.RuleTypeFraud,
			Description: description,
			Condition:   condition,
			Action:      action,
			Priority:    priority,
			IsActive:    true,
			Version:     1,
			CreatedAt:   now,
		}
	}

	return []*domain.Rule{
		mk("rule-sanctioned-location", "sanctioned_location", "Payments to sanctioned locations",
			`{"field":"location","operator":"in","value":["KP","IR","SY"]}`,
			`{"type":"block_transaction","message":"sanctioned location"}`, 100),
		mk("rule-crypto-merchant", "crypto_merchant", "Crypto exchange merchants",
			`{"field":"merchant_name","operator":"contains","value":"crypto"}`,
			`{"type":"flag_transaction"}`, 50),
		mk("rule-large-amount", "large_amount_review", "Raise score for amounts from 5000",
			`{"field":"amount","operator":">=","value":"5000"}`,
			`{"type":"adjust_risk_score","params":{"adjustment":10}}`, 20),
		mk("rule-gambling", "gambling_notice", "Gambling category spend",
			`{"field":"category","operator":"==","value":"gambling"}`,
			`{"type":"notify","message":"gambling spend"}`, 10),
	}
}

// Run inserts the demo records that are missing.
func Run(ctx context.Context, store repository.Store, now time.Time, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var res Result

	err := store.WithinTx(ctx, func(tx repository.Store) error {
		for _, account := range accounts(now) {
			if _, err := tx.Accounts().GetByID(ctx, account.ID); err == nil {
				continue
			} else if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("get account %s: %w", account.ID, err)
			}
			if err := tx.Accounts().Create(ctx, account); err != nil {
				return fmt.Errorf("seed account %s: %w", account.ID, err)
			}
			res.Accounts++
		}

		for _, userID := range Users {
			existing, err := tx.Limits().ListByUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("list limits for %s: %w", userID, err)
			}
			if len(existing) > 0 {
				continue
			}
			for _, limit := range limits(userID, now) {
				if err := tx.Limits().Save(ctx, limit); err != nil {
					return fmt.Errorf("seed limit %s: %w", limit.ID, err)
				}
				res.Limits++
			}
		}

		for _, rule := range rules(now) {
			if _, err := tx.Rules().GetByID(ctx, rule.ID); err == nil {
				continue
			} else if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("get rule %s: %w", rule.ID, err)
			}
			if err := tx.Rules().Save(ctx, rule); err != nil {
				return fmt.Errorf("seed rule %s: %w", rule.ID, err)
			}
			res.Rules++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	logger.InfoContext(ctx, "Seed complete",
		slog.Int("accounts", res.Accounts),
		slog.Int("limits", res.Limits),
		slog.Int("rules", res.Rules))
	return res, nil
}
