package domain

import "time"

type EventType string

const (
	EventTransactionCreated   EventType = "transaction.created"
	EventTransactionBlocked   EventType = "transaction.blocked"
	EventTransactionSettled   EventType = "transaction.settled"
	EventTransactionCancelled EventType = "transaction.cancelled"
	EventTransactionFailed    EventType = "transaction.failed"
	EventTransactionUpdated   EventType = "transaction.updated"
)

// TransactionEvent is published after a lifecycle change has been committed.
type TransactionEvent struct {
	Type          EventType         `json:"type"`
	TransactionID string            `json:"transaction_id"`
	UserID        string            `json:"user_id"`
	AccountID     string            `json:"account_id"`
	ToAccountID   string            `json:"to_account_id,omitempty"`
	TxType        TransactionType   `json:"tx_type"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Status        TransactionStatus `json:"status"`
	RiskScore     int               `json:"risk_score"`
	RiskLevel     RiskLevel         `json:"risk_level,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

func NewTransactionEvent(t EventType, tx *Transaction, level RiskLevel) TransactionEvent {
	return TransactionEvent{
		Type:          t,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		AccountID:     tx.AccountID,
		ToAccountID:   tx.ToAccountID,
		TxType:        tx.Type,
		Amount:        tx.Amount.StringFixed(2),
		Currency:      tx.Currency,
		Status:        tx.Status,
		RiskScore:     tx.RiskScore,
		RiskLevel:     level,
		Timestamp:     time.Now().UTC(),
	}
}
