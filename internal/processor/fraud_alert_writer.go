package processor

import (
	"context"
	"fmt"
	"log/slog"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"
)

type FraudAlertWriter struct {
	logger *slog.Logger
}

func NewFraudAlertWriter(logger *slog.Logger) *FraudAlertWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FraudAlertWriter{logger: logger}
}

// Record stores the assessment on tx. A flagged assessment gets an alert
// row, and a blocking level moves the transaction to failed. The returned
// alert is nil when nothing was flagged.
func (w *FraudAlertWriter) Record(ctx context.Context, store repository.Store, tx *domain.Transaction, assessment domain.RiskAssessment) (*domain.FraudAlert, error) {
	tx.RiskScore = assessment.Score

	var alert *domain.FraudAlert
	if assessment.Flagged {
		alert = domain.NewFraudAlert(tx, assessment)
		if err := store.FraudAlerts().Create(ctx, alert); err != nil {
			return nil, fmt.Errorf("create fraud alert: %w", err)
		}

		w.logger.WarnContext(ctx, "Transaction flagged",
			slog.String("transaction_id", tx.ID),
			slog.String("risk_level", string(assessment.Level)),
			slog.Int("risk_score", assessment.Score))
	}

	if assessment.Level.Blocks() {
		tx.Status = domain.StatusFailed
		tx.AddMetadata("failure_reason", "fraud_check")
	}

	if err := store.Transactions().Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	return alert, nil
}
