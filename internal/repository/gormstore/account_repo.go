package gormstore

import (
	"context"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountRepository struct {
	db *gorm.DB
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	model := toAccountModel(account)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err, "account", account.ID)
	}
	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return r.get(forUpdate(r.db.WithContext(ctx)), id)
}

func (r *AccountRepository) get(db *gorm.DB, id string) (*domain.Account, error) {
	var model accountModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translate(err, "account", id)
	}
	return model.toDomain(), nil
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	var models []accountModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, translate(err, "accounts of user", userID)
	}

	result := make([]*domain.Account, 0, len(models))
	for i := range models {
		result = append(result, models[i].toDomain())
	}
	return result, nil
}

func (r *AccountRepository) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"balance":           gorm.Expr("balance + ?", delta),
			"available_balance": gorm.Expr("available_balance + ?", delta),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error, "account", id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "account", id)
	}
	return nil
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error, "account", id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "account", id)
	}
	return nil
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
