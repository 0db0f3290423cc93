package gormstore

import (
	"context"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"gorm.io/gorm"
)

type RuleRepository struct {
	db *gorm.DB
}

var _ repository.RuleRepository = (*RuleRepository)(nil)

func (r *RuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	rule.Version = 1
	if err := r.db.WithContext(ctx).Create(toRuleModel(rule)).Error; err != nil {
		return translate(err, "rule", rule.ID)
	}
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*domain.Rule, error) {
	var model ruleModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translate(err, "rule", id)
	}
	return model.toDomain(), nil
}

func (r *RuleRepository) GetActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	var models []ruleModel
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("priority DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]*domain.Rule, 0, len(models))
	for i := range models {
		result = append(result, models[i].toDomain())
	}
	return result, nil
}

func (r *RuleRepository) Update(ctx context.Context, rule *domain.Rule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ruleModel
		if err := forUpdate(tx).Where("id = ?", rule.ID).First(&existing).Error; err != nil {
			return translate(err, "rule", rule.ID)
		}
		rule.Version = existing.Version + 1
		model := toRuleModel(rule)
		model.CreatedAt = existing.CreatedAt
		return tx.Save(model).Error
	})
}

func (r *RuleRepository) Deactivate(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&ruleModel{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return translate(res.Error, "rule", id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "rule", id)
	}
	return nil
}
