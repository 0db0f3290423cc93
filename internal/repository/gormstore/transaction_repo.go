package gormstore

import (
	"context"
	"strings"
	"time"

	"banking_ledger/internal/domain"
	"banking_ledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

var _ repository.TransactionRepository = (*TransactionRepository)(nil)

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	model, err := toTransactionModel(tx)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err, "transaction", tx.ID)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.get(r.db.WithContext(ctx).Where("id = ?", id), id)
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.get(forUpdate(r.db.WithContext(ctx)).Where("id = ?", id), id)
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Transaction, error) {
	return r.get(r.db.WithContext(ctx).Where("user_id = ? AND idempotency_key = ?", userID, key), "idempotency key "+key)
}

func (r *TransactionRepository) get(db *gorm.DB, ref string) (*domain.Transaction, error) {
	var model transactionModel
	if err := db.First(&model).Error; err != nil {
		return nil, translate(err, "transaction", ref)
	}
	return model.toDomain()
}

func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	tx.UpdatedAt = time.Now().UTC()
	model, err := toTransactionModel(tx)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&transactionModel{}).
		Where("id = ?", tx.ID).
		Select("category", "description", "status", "risk_score", "metadata", "updated_at", "processed_at").
		Updates(model)
	if res.Error != nil {
		return translate(res.Error, "transaction", tx.ID)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "transaction", tx.ID)
	}
	return nil
}

func (r *TransactionRepository) List(ctx context.Context, filter repository.TransactionFilter) ([]*domain.Transaction, int64, error) {
	base := applyFilter(r.db.WithContext(ctx).Model(&transactionModel{}), filter).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := base.Order("created_at DESC, id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var models []transactionModel
	if err := query.Find(&models).Error; err != nil {
		return nil, 0, err
	}

	result, err := toTransactions(models)
	return result, total, err
}

func (r *TransactionRepository) Summarize(ctx context.Context, filter repository.TransactionFilter) (repository.TransactionSummary, error) {
	outgoing := make([]string, 0, len(domain.TransactionTypes))
	for _, t := range domain.TransactionTypes {
		if t.Outgoing() {
			outgoing = append(outgoing, string(t))
		}
	}
	excluded := []string{string(domain.StatusFailed), string(domain.StatusCancelled)}

	var row struct {
		Income   decimal.Decimal
		Expenses decimal.Decimal
		Count    int64
	}
	err := applyFilter(r.db.WithContext(ctx).Model(&transactionModel{}), filter).
		Select(
			"COALESCE(SUM(CASE WHEN status NOT IN ? AND type NOT IN ? THEN amount ELSE 0 END), 0) AS income, "+
				"COALESCE(SUM(CASE WHEN status NOT IN ? AND type IN ? THEN amount ELSE 0 END), 0) AS expenses, "+
				"COUNT(*) AS count",
			excluded, outgoing, excluded, outgoing,
		).
		Scan(&row).Error
	if err != nil {
		return repository.TransactionSummary{}, err
	}

	return repository.TransactionSummary{
		TotalIncome:   row.Income,
		TotalExpenses: row.Expenses,
		Count:         row.Count,
	}, nil
}

func (r *TransactionRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&transactionModel{}).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Count(&count).Error
	return count, err
}

func (r *TransactionRepository) ListByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.Transaction, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	var models []transactionModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", values).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toTransactions(models)
}

func toTransactions(models []transactionModel) ([]*domain.Transaction, error) {
	result := make([]*domain.Transaction, 0, len(models))
	for i := range models {
		tx, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, nil
}

func applyFilter(db *gorm.DB, f repository.TransactionFilter) *gorm.DB {
	if f.UserID != "" {
		db = db.Where("user_id = ?", f.UserID)
	}
	if f.AccountID != "" {
		db = db.Where("(account_id = ? OR to_account_id = ?)", f.AccountID, f.AccountID)
	}
	if f.Type != "" {
		db = db.Where("type = ?", string(f.Type))
	}
	if f.Status != "" {
		db = db.Where("status = ?", string(f.Status))
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		db = db.Where("created_at <= ?", f.To.UTC())
	}
	if f.MinAmount != nil {
		db = db.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		db = db.Where("amount <= ?", *f.MaxAmount)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		db = db.Where("(LOWER(description) LIKE ? OR LOWER(merchant_name) LIKE ? OR LOWER(reference) LIKE ?)", like, like, like)
	}
	return db
}
