package api

import (
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/processor"
	"banking_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

type CreateTransactionRequest struct {
	AccountID    string                 `json:"accountId" binding:"required"`
	Type         domain.TransactionType `json:"type" binding:"required,txtype"`
	Amount       decimal.Decimal        `json:"amount"`
	Description  string                 `json:"description" binding:"max=500"`
	Currency     string                 `json:"currency" binding:"omitempty,iso4217"`
	Category     string                 `json:"category" binding:"max=100"`
	ToAccountID  string                 `json:"toAccountId"`
	MerchantName string                 `json:"merchantName" binding:"max=200"`
	Location     string                 `json:"location" binding:"max=200"`
	Reference    string                 `json:"reference" binding:"max=100"`
	Metadata     map[string]string      `json:"metadata"`
}

type UpdateTransactionRequest struct {
	Status      *domain.TransactionStatus `json:"status" binding:"omitempty,txstatus"`
	Category    *string                   `json:"category" binding:"omitempty,max=100"`
	Description *string                   `json:"description" binding:"omitempty,max=500"`
	Metadata    map[string]string         `json:"metadata"`
}

// TransactionView is a transaction enriched for display.
type TransactionView struct {
	*domain.Transaction
	AccountName   string             `json:"account_name,omitempty"`
	AccountNumber string             `json:"account_number,omitempty"`
	FraudAlert    *domain.FraudAlert `json:"fraud_alert,omitempty"`
}

type FraudInfo struct {
	Flagged bool             `json:"flagged"`
	Score   int              `json:"score"`
	Level   domain.RiskLevel `json:"level"`
	Rules   []string         `json:"rules"`
	AlertID string           `json:"alert_id,omitempty"`
}

type CreateTransactionResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	Fraud       *FraudInfo          `json:"fraud,omitempty"`
	Replayed    bool                `json:"replayed,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

type Summary struct {
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetFlow       decimal.Decimal `json:"net_flow"`
	Count         int64           `json:"count"`
}

type ListTransactionsResponse struct {
	Transactions []TransactionView `json:"transactions"`
	Pagination   Pagination        `json:"pagination"`
	Summary      Summary           `json:"summary"`
}

func newFraudInfo(res *processor.Result) *FraudInfo {
	if !res.Assessment.Flagged {
		return nil
	}
	info := &FraudInfo{
		Flagged: true,
		Score:   res.Assessment.Score,
		Level:   res.Assessment.Level,
		Rules:   res.Assessment.Rules,
	}
	if res.Alert != nil {
		info.AlertID = res.Alert.ID
	}
	return info
}

func newSummary(s repository.TransactionSummary) Summary {
	return Summary{
		TotalIncome:   s.TotalIncome,
		TotalExpenses: s.TotalExpenses,
		NetFlow:       s.NetFlow(),
		Count:         s.Count,
	}
}

func newListResponse(result *processor.ListResult, page, limit int) ListTransactionsResponse {
	views := make([]TransactionView, 0, len(result.Transactions))
	for _, tx := range result.Transactions {
		view := TransactionView{Transaction: tx, FraudAlert: result.Alerts[tx.ID]}
		if account, ok := result.Accounts[tx.AccountID]; ok {
			view.AccountName = account.Name
			view.AccountNumber = account.AccountNumber
		}
		views = append(views, view)
	}

	return ListTransactionsResponse{
		Transactions: views,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      result.Total,
			TotalPages: (result.Total + int64(limit) - 1) / int64(limit),
		},
		Summary: newSummary(result.Summary),
	}
}

type DevTokenRequest struct {
	UserID    string `json:"user_id"`
	ExpiresIn int    `json:"expires_in"`
}

type DevTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}
