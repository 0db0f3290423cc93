package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

const DefaultRuleCacheTTL = time.Minute

type RuleEngine struct {
	ruleRepo repository.RuleRepository
	logger   *slog.Logger
	ttl      time.Duration

	mu       sync.RWMutex
	cached   []*domain.Rule
	loadedAt time.Time
}

type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type RuleAction struct {
	Type    string                 `json:"type"`
	Params  map[string]interface{} `json:"params"`
	Message string                 `json:"message"`
}

type RuleResult struct {
	RuleID      string
	RuleName    string
	Priority    int
	Action      RuleAction
	Description string
}

// Facts is what a rule condition can look at.
type Facts struct {
	Transaction *domain.Transaction
	Hour        int
	RecentCount int64
	BaseScore   int
}

func NewRuleEngine(ruleRepo repository.RuleRepository, ttl time.Duration, logger *slog.Logger) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultRuleCacheTTL
	}

	return &RuleEngine{
		ruleRepo: ruleRepo,
		logger:   logger,
		ttl:      ttl,
	}
}

// ActiveRules returns the active rules, highest priority first, from a
// cache refreshed every ttl.
func (e *RuleEngine) ActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	e.mu.RLock()
	if e.cached != nil && time.Since(e.loadedAt) < e.ttl {
		rules := e.cached
		e.mu.RUnlock()
		return rules, nil
	}
	e.mu.RUnlock()

	rules, err := e.ruleRepo.GetActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}

	e.mu.Lock()
	e.cached = rules
	e.loadedAt = time.Now()
	e.mu.Unlock()

	return rules, nil
}

func (e *RuleEngine) InvalidateCache() {
	e.mu.Lock()
	e.cached = nil
	e.mu.Unlock()
}

// Evaluate returns the triggered rules in the order given. Rules that
// fail to parse are logged and skipped.
func (e *RuleEngine) Evaluate(ctx context.Context, rules []*domain.Rule, facts Facts) []RuleResult {
	var results []RuleResult

	for _, rule := range rules {
		triggered, action, err := e.evaluateRule(rule, facts)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to evaluate rule",
				slog.String("rule_id", rule.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !triggered {
			continue
		}

		results = append(results, RuleResult{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			Priority:    rule.Priority,
			Action:      action,
			Description: rule.Description,
		})
		e.logger.InfoContext(ctx, "Rule triggered",
			slog.String("rule_id", rule.ID),
			slog.String("rule_name", rule.Name),
			slog.String("transaction_id", facts.Transaction.ID))
	}

	return results
}

// Apply folds triggered rule actions into the base assessment.
func (e *RuleEngine) Apply(ctx context.Context, results []RuleResult, assessment domain.RiskAssessment) domain.RiskAssessment {
	score := assessment.Score
	rules := append([]string{}, assessment.Rules...)
	blocked := false

	for _, result := range results {
		switch result.Action.Type {
		case "flag", "flag_transaction":
			rules = append(rules, result.RuleName)
			score = max(score, FlagThreshold)
		case "adjust_risk_score":
			adjustment, _ := result.Action.Params["adjustment"].(float64)
			score += int(adjustment)
			rules = append(rules, result.RuleName)
			e.logger.InfoContext(ctx, "Risk score adjusted",
				slog.String("rule_name", result.RuleName),
				slog.Int("adjustment", int(adjustment)))
		case "block", "block_transaction":
			blocked = true
			rules = append(rules, result.RuleName)
		case "notify":
			e.logger.InfoContext(ctx, "Rule notification",
				slog.String("rule_name", result.RuleName),
				slog.String("message", result.Action.Message))
		default:
			e.logger.WarnContext(ctx, "Unknown rule action",
				slog.String("rule_name", result.RuleName),
				slog.String("action", result.Action.Type))
		}
	}

	if blocked {
		score = max(score, 70)
	}
	return NewAssessment(score, rules)
}

func (e *RuleEngine) evaluateRule(rule *domain.Rule, facts Facts) (bool, RuleAction, error) {
	var condition Condition
	if err := json.Unmarshal([]byte(rule.Condition), &condition); err != nil {
		return false, RuleAction{}, fmt.Errorf("invalid condition JSON: %w", err)
	}

	triggered, err := e.checkCondition(condition, facts)
	if err != nil || !triggered {
		return false, RuleAction{}, err
	}

	var action RuleAction
	if err := json.Unmarshal([]byte(rule.Action), &action); err != nil {
		return false, RuleAction{}, fmt.Errorf("invalid action JSON: %w", err)
	}
	return true, action, nil
}

func (e *RuleEngine) checkCondition(condition Condition, facts Facts) (bool, error) {
	tx := facts.Transaction

	switch condition.Field {
	case "amount":
		return checkAmountCondition(condition, tx.Amount)
	case "currency":
		return checkStringCondition(condition, tx.Currency)
	case "type":
		return checkStringCondition(condition, string(tx.Type))
	case "category":
		return checkStringCondition(condition, tx.Category)
	case "merchant_name":
		return checkStringCondition(condition, tx.MerchantName)
	case "location":
		return checkStringCondition(condition, tx.Location)
	case "hour":
		return checkNumericCondition(condition, float64(facts.Hour))
	case "recent_count":
		return checkNumericCondition(condition, float64(facts.RecentCount))
	case "risk_score":
		return checkNumericCondition(condition, float64(facts.BaseScore))
	case "metadata":
		return checkMetadataCondition(condition, tx.Metadata)
	default:
		return false, fmt.Errorf("unknown field: %s", condition.Field)
	}
}

func checkAmountCondition(condition Condition, amount decimal.Decimal) (bool, error) {
	var target decimal.Decimal
	switch v := condition.Value.(type) {
	case float64:
		target = decimal.NewFromFloat(v)
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return false, fmt.Errorf("invalid value for amount: %w", err)
		}
		target = parsed
	default:
		return false, fmt.Errorf("invalid value type for amount: %v", condition.Value)
	}

	return compare(condition.Operator, amount.Cmp(target))
}

func checkNumericCondition(condition Condition, value float64) (bool, error) {
	target, ok := condition.Value.(float64)
	if !ok {
		return false, fmt.Errorf("invalid value type for numeric field: %v", condition.Value)
	}

	cmp := 0
	switch {
	case value < target:
		cmp = -1
	case value > target:
		cmp = 1
	}
	return compare(condition.Operator, cmp)
}

func compare(operator string, cmp int) (bool, error) {
	switch operator {
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case "==":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}

func checkStringCondition(condition Condition, value string) (bool, error) {
	if condition.Operator == "in" {
		values, ok := condition.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("invalid value for 'in' operator")
		}
		for _, v := range values {
			if s, ok := v.(string); ok && strings.EqualFold(s, value) {
				return true, nil
			}
		}
		return false, nil
	}

	target, ok := condition.Value.(string)
	if !ok {
		return false, fmt.Errorf("invalid value type for string field: %v", condition.Value)
	}

	switch condition.Operator {
	case "==":
		return value == target, nil
	case "!=":
		return value != target, nil
	case "contains":
		return strings.Contains(strings.ToLower(value), strings.ToLower(target)), nil
	case "matches":
		re, err := regexp.Compile(target)
		if err != nil {
			return false, fmt.Errorf("invalid pattern: %w", err)
		}
		return re.MatchString(value), nil
	default:
		return false, fmt.Errorf("unknown operator: %s", condition.Operator)
	}
}

func checkMetadataCondition(condition Condition, metadata map[string]string) (bool, error) {
	conditions, ok := condition.Value.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("invalid value type for metadata condition")
	}

	for key, expectedValue := range conditions {
		actualValue, exists := metadata[key]
		if !exists {
			return false, nil
		}

		if actualValue != fmt.Sprintf("%v", expectedValue) {
			return false, nil
		}
	}

	return true, nil
}
