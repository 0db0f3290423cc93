package domain

import (
	"time"

	"github.com/google/uuid"
)

type RiskLevel string
type AlertStatus string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"

	AlertOpen      AlertStatus = "open"
	AlertReviewed  AlertStatus = "reviewed"
	AlertDismissed AlertStatus = "dismissed"
)

// Blocks reports whether a transaction at this level must not proceed.
func (l RiskLevel) Blocks() bool {
	return l == RiskHigh || l == RiskCritical
}

// RiskAssessment is the output of scoring one transaction.
type RiskAssessment struct {
	Flagged bool      `json:"flagged"`
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Rules   []string  `json:"rules"`
}

type FraudAlert struct {
	ID            string      `json:"id"`
	TransactionID string      `json:"transaction_id"`
	UserID        string      `json:"user_id"`
	RiskLevel     RiskLevel   `json:"risk_level"`
	RiskScore     int         `json:"risk_score"`
	Rules         []string    `json:"rules"`
	Status        AlertStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

func NewFraudAlert(tx *Transaction, assessment RiskAssessment) *FraudAlert {
	return &FraudAlert{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		RiskLevel:     assessment.Level,
		RiskScore:     assessment.Score,
		Rules:         append([]string(nil), assessment.Rules...),
		Status:        AlertOpen,
		CreatedAt:     time.Now().UTC(),
	}
}
