package gormstore

import (
	"context"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"gorm.io/gorm"
)

type FraudAlertRepository struct {
	db *gorm.DB
}

var _ repository.FraudAlertRepository = (*FraudAlertRepository)(nil)

func (r *FraudAlertRepository) Create(ctx context.Context, alert *domain.FraudAlert) error {
	model, err := toFraudAlertModel(alert)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err, "fraud alert for transaction", alert.TransactionID)
	}
	return nil
}

func (r *FraudAlertRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.FraudAlert, error) {
	var model fraudAlertModel
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&model).Error; err != nil {
		return nil, translate(err, "fraud alert for transaction", transactionID)
	}
	return model.toDomain()
}

func (r *FraudAlertRepository) ListByTransactionIDs(ctx context.Context, transactionIDs []string) (map[string]*domain.FraudAlert, error) {
	result := make(map[string]*domain.FraudAlert, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return result, nil
	}

	var models []fraudAlertModel
	if err := r.db.WithContext(ctx).Where("transaction_id IN ?", transactionIDs).Find(&models).Error; err != nil {
		return nil, err
	}
	for i := range models {
		alert, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		result[alert.TransactionID] = alert
	}
	return result, nil
}

func (r *FraudAlertRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.FraudAlert, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []fraudAlertModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]*domain.FraudAlert, 0, len(models))
	for i := range models {
		alert, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, alert)
	}
	return result, nil
}
