package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LimitPeriod string

const (
	LimitDaily   LimitPeriod = "daily"
	LimitWeekly  LimitPeriod = "weekly"
	LimitMonthly LimitPeriod = "monthly"
)

// Next returns the start of the period following t.
func (p LimitPeriod) Next(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case LimitWeekly:
		return day.AddDate(0, 0, 7)
	case LimitMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	default:
		return day.AddDate(0, 0, 1)
	}
}

// Start returns the beginning of the period that ends at resetsAt.
func (p LimitPeriod) Start(resetsAt time.Time) time.Time {
	switch p {
	case LimitWeekly:
		return resetsAt.AddDate(0, 0, -7)
	case LimitMonthly:
		return resetsAt.AddDate(0, -1, 0)
	default:
		return resetsAt.AddDate(0, 0, -1)
	}
}

// TransactionLimit is a per-user ceiling on outgoing amounts within a period.
type TransactionLimit struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Period          LimitPeriod     `json:"period"`
	LimitAmount     decimal.Decimal `json:"limit_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	ResetsAt        time.Time       `json:"resets_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ResetIfExpired refills the limit when its period has elapsed.
func (l *TransactionLimit) ResetIfExpired(now time.Time) bool {
	if now.Before(l.ResetsAt) {
		return false
	}
	l.RemainingAmount = l.LimitAmount
	l.ResetsAt = l.Period.Next(now)
	return true
}

func (l *TransactionLimit) Allows(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(l.RemainingAmount)
}

func (l *TransactionLimit) Consume(amount decimal.Decimal) {
	l.RemainingAmount = l.RemainingAmount.Sub(amount)
}

// Covers reports whether t falls in the limit's current period.
func (l *TransactionLimit) Covers(t time.Time) bool {
	return !t.Before(l.Period.Start(l.ResetsAt)) && t.Before(l.ResetsAt)
}

// Restore gives amount back, never above the configured ceiling.
func (l *TransactionLimit) Restore(amount decimal.Decimal) {
	l.RemainingAmount = decimal.Min(l.RemainingAmount.Add(amount), l.LimitAmount)
}
