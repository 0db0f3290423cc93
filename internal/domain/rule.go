package domain

import "time"

type RuleType string

const (
	RuleTypeFraud      RuleType = "fraud"
	RuleTypeCompliance RuleType = "compliance"
)

// Rule is an operator-defined check evaluated after the base risk score.
// Condition and Action hold JSON documents interpreted by the rule engine.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        RuleType  `json:"type"`
	Description string    `json:"description"`
	Condition   string    `json:"condition"`
	Action      string    `json:"action"`
	Priority    int       `json:"priority"`
	IsActive    bool      `json:"is_active"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}
