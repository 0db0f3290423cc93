package gormstore

import (
	"context"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"gorm.io/gorm"
)

type LimitRepository struct {
	db *gorm.DB
}

var _ repository.LimitRepository = (*LimitRepository)(nil)

func (r *LimitRepository) Save(ctx context.Context, limit *domain.TransactionLimit) error {
	limit.UpdatedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Save(toLimitModel(limit)).Error; err != nil {
		return translate(err, "limit", limit.ID)
	}
	return nil
}

func (r *LimitRepository) ListByUser(ctx context.Context, userID string) ([]*domain.TransactionLimit, error) {
	return r.list(r.db.WithContext(ctx), userID)
}

func (r *LimitRepository) ListByUserForUpdate(ctx context.Context, userID string) ([]*domain.TransactionLimit, error) {
	return r.list(forUpdate(r.db.WithContext(ctx)), userID)
}

func (r *LimitRepository) list(db *gorm.DB, userID string) ([]*domain.TransactionLimit, error) {
	var models []limitModel
	if err := db.Where("user_id = ?", userID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]*domain.TransactionLimit, 0, len(models))
	for i := range models {
		result = append(result, models[i].toDomain())
	}
	return result, nil
}
