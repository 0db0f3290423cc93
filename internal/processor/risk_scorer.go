package processor

import (
	"banking_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	// FlagThreshold is the lowest score that produces a fraud alert.
	FlagThreshold = 30

	DefaultOffHoursWeight = 15
	velocityThreshold     = 5
)

var (
	largeAmount    = decimal.NewFromInt(10_000)
	elevatedAmount = decimal.NewFromInt(5_000)
	moderateAmount = decimal.NewFromInt(1_000)
)

// RiskInput holds everything the base score depends on.
type RiskInput struct {
	Amount decimal.Decimal
	// Hour is the UTC hour the transaction was created in.
	Hour int
	// RecentCount includes the transaction being scored.
	RecentCount int64
}

func NewRiskInput(tx *domain.Transaction, recentCount int64) RiskInput {
	return RiskInput{
		Amount:      tx.Amount,
		Hour:        tx.CreatedAt.UTC().Hour(),
		RecentCount: recentCount,
	}
}

type RiskPattern struct {
	Name        string
	Description string
	Detect      func(RiskInput) bool
	Weight      int
}

type RiskScorer struct {
	patterns []RiskPattern
}

func NewRiskScorer(offHoursWeight int) *RiskScorer {
	if offHoursWeight <= 0 {
		offHoursWeight = DefaultOffHoursWeight
	}

	return &RiskScorer{
		patterns: []RiskPattern{
			{
				Name:        "large_amount",
				Description: "Amount above 10,000",
				Detect: func(in RiskInput) bool {
					return in.Amount.GreaterThan(largeAmount)
				},
				Weight: 30,
			},
			{
				Name:        "elevated_amount",
				Description: "Amount above 5,000",
				Detect: func(in RiskInput) bool {
					return in.Amount.GreaterThan(elevatedAmount) && in.Amount.LessThanOrEqual(largeAmount)
				},
				Weight: 20,
			},
			{
				Name:        "moderate_amount",
				Description: "Amount above 1,000",
				Detect: func(in RiskInput) bool {
					return in.Amount.GreaterThan(moderateAmount) && in.Amount.LessThanOrEqual(elevatedAmount)
				},
				Weight: 10,
			},
			{
				Name:        "off_hours",
				Description: "Created between 23:00 and 05:59 UTC",
				Detect:      detectOffHours,
				Weight:      offHoursWeight,
			},
			{
				Name:        "high_velocity",
				Description: "More than 5 transactions in the trailing window",
				Detect: func(in RiskInput) bool {
					return in.RecentCount > velocityThreshold
				},
				Weight: 30,
			},
		},
	}
}

func (s *RiskScorer) Score(in RiskInput) domain.RiskAssessment {
	var score int
	rules := []string{}

	for _, pattern := range s.patterns {
		if pattern.Detect(in) {
			score += pattern.Weight
			rules = append(rules, pattern.Name)
		}
	}

	return NewAssessment(score, rules)
}

// NewAssessment clamps score to 0..100 and derives the level and flag.
func NewAssessment(score int, rules []string) domain.RiskAssessment {
	score = max(0, min(score, 100))
	return domain.RiskAssessment{
		Flagged: score >= FlagThreshold,
		Score:   score,
		Level:   LevelForScore(score),
		Rules:   rules,
	}
}

func LevelForScore(score int) domain.RiskLevel {
	switch {
	case score >= 70:
		return domain.RiskCritical
	case score >= 50:
		return domain.RiskHigh
	case score >= 30:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func detectOffHours(in RiskInput) bool {
	return in.Hour < 6 || in.Hour > 22
}

