package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string
type AccountType string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"

	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
	AccountCredit   AccountType = "credit"
)

type Account struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Name             string          `json:"name"`
	AccountNumber    string          `json:"account_number"`
	Type             AccountType     `json:"type"`
	Currency         string          `json:"currency"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	OverdraftLimit   decimal.Decimal `json:"overdraft_limit"`
	Status           AccountStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// SpendingPower is the largest outgoing amount the account can cover.
func (a *Account) SpendingPower() decimal.Decimal {
	return a.AvailableBalance.Add(a.OverdraftLimit)
}

func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}

// BalanceUpdate is a signed delta applied to both balance fields of one account.
type BalanceUpdate struct {
	AccountID string
	Amount    decimal.Decimal
	Timestamp time.Time
}
