package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string
type TransactionStatus string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypePayment    TransactionType = "payment"
	TypeTransfer   TransactionType = "transfer"
	TypeFee        TransactionType = "fee"
	TypeRefund     TransactionType = "refund"

	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
)

var TransactionTypes = []TransactionType{
	TypeDeposit, TypeWithdrawal, TypePayment, TypeTransfer, TypeFee, TypeRefund,
}

func (t TransactionType) Valid() bool {
	for _, known := range TransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Outgoing reports whether the type debits the source account.
func (t TransactionType) Outgoing() bool {
	switch t {
	case TypeWithdrawal, TypePayment, TypeTransfer, TypeFee:
		return true
	default:
		return false
	}
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s TransactionStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	default:
		return 2
	}
}

// CanTransition enforces pending -> processing -> completed|failed|cancelled.
// Statuses never move backward and cancelled is only reachable from pending.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	if !to.Valid() || s.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return s == StatusPending
	}
	return to.rank() > s.rank()
}

type Transaction struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	AccountID      string            `json:"account_id"`
	ToAccountID    string            `json:"to_account_id,omitempty"`
	Type           TransactionType   `json:"type"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Category       string            `json:"category,omitempty"`
	Description    string            `json:"description"`
	MerchantName   string            `json:"merchant_name,omitempty"`
	Location       string            `json:"location,omitempty"`
	Reference      string            `json:"reference,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Status         TransactionStatus `json:"status"`
	RiskScore      int               `json:"risk_score"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ProcessedAt    *time.Time        `json:"processed_at,omitempty"`
}

func NewTransaction(userID, accountID string, t TransactionType, amount decimal.Decimal, currency string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		AccountID: accountID,
		Type:      t,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]string),
	}
}

func (tx *Transaction) WithDescription(desc string) *Transaction {
	tx.Description = desc
	return tx
}

func (tx *Transaction) WithDestination(toAccountID string) *Transaction {
	tx.ToAccountID = toAccountID
	return tx
}

func (tx *Transaction) AddMetadata(key, value string) {
	if tx.Metadata == nil {
		tx.Metadata = make(map[string]string)
	}
	tx.Metadata[key] = value
}

// IsInternalTransfer is true when the destination is an account of this ledger.
func (tx *Transaction) IsInternalTransfer() bool {
	return tx.Type == TypeTransfer && tx.ToAccountID != ""
}

// SignedAmount is the delta applied to the source account.
func (tx *Transaction) SignedAmount() decimal.Decimal {
	if tx.Type.Outgoing() {
		return tx.Amount.Neg()
	}
	return tx.Amount
}

// BalanceUpdates lists the deltas the transaction applies when accepted.
func (tx *Transaction) BalanceUpdates() []BalanceUpdate {
	updates := []BalanceUpdate{{
		AccountID: tx.AccountID,
		Amount:    tx.SignedAmount(),
		Timestamp: tx.CreatedAt,
	}}
	if tx.IsInternalTransfer() {
		updates = append(updates, BalanceUpdate{
			AccountID: tx.ToAccountID,
			Amount:    tx.Amount,
			Timestamp: tx.CreatedAt,
		})
	}
	return updates
}
