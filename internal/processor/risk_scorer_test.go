package processor

import (
	"slices"
	"testing"

	"banking_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

func TestRiskScorer_Score(t *testing.T) {
	scorer := NewRiskScorer(DefaultOffHoursWeight)

	cases := []struct {
		name    string
		in      RiskInput
		score   int
		level   domain.RiskLevel
		flagged bool
		rules   []string
	}{
		{"quiet", RiskInput{Amount: decimal.NewFromInt(50), Hour: 12, RecentCount: 1}, 0, domain.RiskLow, false, []string{}},
		{"moderate", RiskInput{Amount: decimal.NewFromInt(1500), Hour: 12, RecentCount: 1}, 10, domain.RiskLow, false, []string{"moderate_amount"}},
		{"exactly 1000", RiskInput{Amount: decimal.NewFromInt(1000), Hour: 12, RecentCount: 1}, 0, domain.RiskLow, false, []string{}},
		{"elevated off hours", RiskInput{Amount: decimal.NewFromInt(6000), Hour: 23, RecentCount: 1}, 35, domain.RiskMedium, true, []string{"elevated_amount", "off_hours"}},
		{"large at noon", RiskInput{Amount: decimal.NewFromInt(10001), Hour: 12, RecentCount: 1}, 30, domain.RiskMedium, true, []string{"large_amount"}},
		{"velocity six", RiskInput{Amount: decimal.NewFromInt(10), Hour: 12, RecentCount: 6}, 30, domain.RiskMedium, true, []string{"high_velocity"}},
		{"velocity five", RiskInput{Amount: decimal.NewFromInt(10), Hour: 12, RecentCount: 5}, 0, domain.RiskLow, false, []string{}},
		{"hour six is business hours", RiskInput{Amount: decimal.NewFromInt(10), Hour: 6, RecentCount: 1}, 0, domain.RiskLow, false, []string{}},
		{"everything", RiskInput{Amount: decimal.NewFromInt(15000), Hour: 3, RecentCount: 7}, 75, domain.RiskCritical, true, []string{"large_amount", "off_hours", "high_velocity"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scorer.Score(tc.in)
			if got.Score != tc.score || got.Level != tc.level || got.Flagged != tc.flagged {
				t.Errorf("expected %d/%s/%v, got %d/%s/%v", tc.score, tc.level, tc.flagged, got.Score, got.Level, got.Flagged)
			}
			if !slices.Equal(got.Rules, tc.rules) {
				t.Errorf("expected rules %v, got %v", tc.rules, got.Rules)
			}
		})
	}
}

func TestRiskScorer_OffHoursWeight(t *testing.T) {
	got := NewRiskScorer(20).Score(RiskInput{Amount: decimal.NewFromInt(15000), Hour: 2, RecentCount: 1})
	if got.Score != 50 || got.Level != domain.RiskHigh {
		t.Errorf("expected 50 HIGH, got %d %s", got.Score, got.Level)
	}
}

func TestNewAssessment_Clamps(t *testing.T) {
	if a := NewAssessment(140, nil); a.Score != 100 || a.Level != domain.RiskCritical {
		t.Errorf("expected clamp to 100, got %+v", a)
	}
	if a := NewAssessment(-10, nil); a.Score != 0 || a.Flagged {
		t.Errorf("expected clamp to 0, got %+v", a)
	}
}
