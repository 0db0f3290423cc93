package audit

import (
	"fmt"
	"strconv"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/pkg/crypto"

	"github.com/shopspring/decimal"
)

// Document is one transaction lifecycle event as stored in the audit index.
type Document struct {
	TransactionID string    `json:"transactionId"`
	EventType     string    `json:"eventType"`
	UserID        string    `json:"userId"`
	AccountID     string    `json:"accountId"`
	ToAccountID   string    `json:"toAccountId,omitempty"`
	TxType        string    `json:"txType"`
	Amount        float64   `json:"amount"`
	AmountRaw     string    `json:"amountRaw"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	RiskScore     int       `json:"riskScore"`
	RiskLevel     string    `json:"riskLevel,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
	IndexedAt     time.Time `json:"indexedAt"`
	Signature     string    `json:"signature,omitempty"`
}

// ID is stable for a given event so redelivered messages overwrite
// rather than duplicate.
func (d Document) ID() string {
	return d.TransactionID + ":" + d.EventType + ":" + strconv.FormatInt(d.OccurredAt.UnixNano(), 10)
}

// NewDocument converts an event into an index document, signing the
// amount fields when a signer is given.
func NewDocument(event domain.TransactionEvent, signer *crypto.Signer) (Document, error) {
	if event.TransactionID == "" {
		return Document{}, fmt.Errorf("event %s has no transaction id", event.Type)
	}
	amount, err := decimal.NewFromString(event.Amount)
	if err != nil {
		return Document{}, fmt.Errorf("invalid amount %q: %w", event.Amount, err)
	}

	doc := Document{
		TransactionID: event.TransactionID,
		EventType:     string(event.Type),
		UserID:        event.UserID,
		AccountID:     event.AccountID,
		ToAccountID:   event.ToAccountID,
		TxType:        string(event.TxType),
		Amount:        amount.InexactFloat64(),
		AmountRaw:     amount.String(),
		Currency:      event.Currency,
		Status:        string(event.Status),
		RiskScore:     event.RiskScore,
		RiskLevel:     string(event.RiskLevel),
		OccurredAt:    event.Timestamp.UTC(),
	}
	if signer != nil {
		doc.Signature = signer.SignTransaction(doc.TransactionID, amount, doc.Currency, doc.OccurredAt.Unix())
	}
	return doc, nil
}
