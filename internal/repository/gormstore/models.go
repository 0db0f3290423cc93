package gormstore

import (
	"encoding/json"
	"time"

	"banking_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type accountModel struct {
	ID               string          `gorm:"primaryKey;type:varchar(36)"`
	UserID           string          `gorm:"type:varchar(64);index;not null"`
	Name             string          `gorm:"type:varchar(128);not null"`
	AccountNumber    string          `gorm:"type:varchar(34);uniqueIndex;not null"`
	Type             string          `gorm:"type:varchar(16);not null"`
	Currency         string          `gorm:"type:varchar(3);not null;default:'USD'"`
	Balance          decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	AvailableBalance decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	OverdraftLimit   decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	Status           string          `gorm:"type:varchar(16);not null;default:'active'"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (accountModel) TableName() string { return "bank_accounts" }

type transactionModel struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)"`
	UserID         string          `gorm:"type:varchar(64);not null;index:idx_tx_user_created,priority:1;uniqueIndex:idx_tx_user_idempotency,priority:1"`
	AccountID      string          `gorm:"type:varchar(36);not null;index"`
	ToAccountID    *string         `gorm:"type:varchar(36);index"`
	Type           string          `gorm:"type:varchar(16);not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	Category       string          `gorm:"type:varchar(64)"`
	Description    string          `gorm:"type:text"`
	MerchantName   string          `gorm:"type:varchar(128)"`
	Location       string          `gorm:"type:varchar(128)"`
	Reference      string          `gorm:"type:varchar(128)"`
	IdempotencyKey *string         `gorm:"type:varchar(128);uniqueIndex:idx_tx_user_idempotency,priority:2"`
	Status         string          `gorm:"type:varchar(16);not null;index"`
	RiskScore      int             `gorm:"not null;default:0"`
	Metadata       datatypes.JSON
	CreatedAt      time.Time `gorm:"index:idx_tx_user_created,priority:2"`
	UpdatedAt      time.Time
	ProcessedAt    *time.Time
}

func (transactionModel) TableName() string { return "bank_transactions" }

type fraudAlertModel struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	TransactionID string `gorm:"type:varchar(36);uniqueIndex;not null"`
	UserID        string `gorm:"type:varchar(64);index;not null"`
	RiskLevel     string `gorm:"type:varchar(16);not null"`
	RiskScore     int    `gorm:"not null"`
	Rules         datatypes.JSON
	Status        string `gorm:"type:varchar(16);not null;default:'open'"`
	CreatedAt     time.Time
}

func (fraudAlertModel) TableName() string { return "fraud_alerts" }

type limitModel struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)"`
	UserID          string          `gorm:"type:varchar(64);index;not null"`
	Period          string          `gorm:"type:varchar(16);not null"`
	LimitAmount     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	RemainingAmount decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	ResetsAt        time.Time
	UpdatedAt       time.Time
}

func (limitModel) TableName() string { return "transaction_limits" }

type ruleModel struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	Name        string `gorm:"type:varchar(128);not null"`
	Type        string `gorm:"type:varchar(16);not null"`
	Description string `gorm:"type:text"`
	Condition   string `gorm:"type:text"`
	Action      string `gorm:"type:text"`
	Priority    int    `gorm:"not null;default:0;index"`
	IsActive    bool   `gorm:"not null"`
	Version     int    `gorm:"not null;default:1"`
	CreatedAt   time.Time
}

func (ruleModel) TableName() string { return "fraud_rules" }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toAccountModel(a *domain.Account) *accountModel {
	return &accountModel{
		ID:               a.ID,
		UserID:           a.UserID,
		Name:             a.Name,
		AccountNumber:    a.AccountNumber,
		Type:             string(a.Type),
		Currency:         a.Currency,
		Balance:          a.Balance,
		AvailableBalance: a.AvailableBalance,
		OverdraftLimit:   a.OverdraftLimit,
		Status:           string(a.Status),
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func (m *accountModel) toDomain() *domain.Account {
	return &domain.Account{
		ID:               m.ID,
		UserID:           m.UserID,
		Name:             m.Name,
		AccountNumber:    m.AccountNumber,
		Type:             domain.AccountType(m.Type),
		Currency:         m.Currency,
		Balance:          m.Balance,
		AvailableBalance: m.AvailableBalance,
		OverdraftLimit:   m.OverdraftLimit,
		Status:           domain.AccountStatus(m.Status),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func toTransactionModel(tx *domain.Transaction) (*transactionModel, error) {
	var metadata datatypes.JSON
	if len(tx.Metadata) > 0 {
		raw, err := json.Marshal(tx.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = raw
	}
	return &transactionModel{
		ID:             tx.ID,
		UserID:         tx.UserID,
		AccountID:      tx.AccountID,
		ToAccountID:    optional(tx.ToAccountID),
		Type:           string(tx.Type),
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		Category:       tx.Category,
		Description:    tx.Description,
		MerchantName:   tx.MerchantName,
		Location:       tx.Location,
		Reference:      tx.Reference,
		IdempotencyKey: optional(tx.IdempotencyKey),
		Status:         string(tx.Status),
		RiskScore:      tx.RiskScore,
		Metadata:       metadata,
		CreatedAt:      tx.CreatedAt,
		UpdatedAt:      tx.UpdatedAt,
		ProcessedAt:    tx.ProcessedAt,
	}, nil
}

func (m *transactionModel) toDomain() (*domain.Transaction, error) {
	metadata := make(map[string]string)
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return nil, err
		}
	}
	tx := &domain.Transaction{
		ID:             m.ID,
		UserID:         m.UserID,
		AccountID:      m.AccountID,
		ToAccountID:    deref(m.ToAccountID),
		Type:           domain.TransactionType(m.Type),
		Amount:         m.Amount,
		Currency:       m.Currency,
		Category:       m.Category,
		Description:    m.Description,
		MerchantName:   m.MerchantName,
		Location:       m.Location,
		Reference:      m.Reference,
		IdempotencyKey: deref(m.IdempotencyKey),
		Status:         domain.TransactionStatus(m.Status),
		RiskScore:      m.RiskScore,
		Metadata:       metadata,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	if m.ProcessedAt != nil {
		processed := m.ProcessedAt.UTC()
		tx.ProcessedAt = &processed
	}
	return tx, nil
}

func toFraudAlertModel(a *domain.FraudAlert) (*fraudAlertModel, error) {
	rules, err := json.Marshal(a.Rules)
	if err != nil {
		return nil, err
	}
	return &fraudAlertModel{
		ID:            a.ID,
		TransactionID: a.TransactionID,
		UserID:        a.UserID,
		RiskLevel:     string(a.RiskLevel),
		RiskScore:     a.RiskScore,
		Rules:         rules,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
	}, nil
}

func (m *fraudAlertModel) toDomain() (*domain.FraudAlert, error) {
	var rules []string
	if len(m.Rules) > 0 {
		if err := json.Unmarshal(m.Rules, &rules); err != nil {
			return nil, err
		}
	}
	return &domain.FraudAlert{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		UserID:        m.UserID,
		RiskLevel:     domain.RiskLevel(m.RiskLevel),
		RiskScore:     m.RiskScore,
		Rules:         rules,
		Status:        domain.AlertStatus(m.Status),
		CreatedAt:     m.CreatedAt.UTC(),
	}, nil
}

func toLimitModel(l *domain.TransactionLimit) *limitModel {
	return &limitModel{
		ID:              l.ID,
		UserID:          l.UserID,
		Period:          string(l.Period),
		LimitAmount:     l.LimitAmount,
		RemainingAmount: l.RemainingAmount,
		ResetsAt:        l.ResetsAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (m *limitModel) toDomain() *domain.TransactionLimit {
	return &domain.TransactionLimit{
		ID:              m.ID,
		UserID:          m.UserID,
		Period:          domain.LimitPeriod(m.Period),
		LimitAmount:     m.LimitAmount,
		RemainingAmount: m.RemainingAmount,
		ResetsAt:        m.ResetsAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func toRuleModel(r *domain.Rule) *ruleModel {
	return &ruleModel{
		ID:          r.ID,
		Name:        r.Name,
		Type:        string(r.Type),
		Description: r.Description,
		Condition:   r.Condition,
		Action:      r.Action,
		Priority:    r.Priority,
		IsActive:    r.IsActive,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
	}
}

func (m *ruleModel) toDomain() *domain.Rule {
	return &domain.Rule{
		ID:          m.ID,
		Name:        m.Name,
		Type:        domain.RuleType(m.Type),
		Description: m.Description,
		Condition:   m.Condition,
		Action:      m.Action,
		Priority:    m.Priority,
		IsActive:    m.IsActive,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}
