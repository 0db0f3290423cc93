package validator

import (
	"errors"
	"fmt"
	"time"

	"banking_ledger/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid transaction amount")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidAccount  = errors.New("invalid account")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrSameAccount     = errors.New("cannot transfer to same account")
	ErrFutureTimestamp = errors.New("transaction date cannot be in the future")
)

// Money columns keep four fractional digits.
const amountScale = 4

var maxAmounts = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1_000_000),
	"EUR": decimal.NewFromInt(900_000),
	"GBP": decimal.NewFromInt(800_000),
}

type TransactionValidator struct {
	validate *validator.Validate
}

func NewTransactionValidator() *TransactionValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for empty tags or nil funcs.
	_ = RegisterValidations(v)
	return &TransactionValidator{validate: v}
}

// RegisterValidations adds the ledger's custom tags to v:
// "txtype" and "txstatus" for the domain enums.
func RegisterValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("txtype", func(fl validator.FieldLevel) bool {
		return domain.TransactionType(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("txstatus", func(fl validator.FieldLevel) bool {
		return domain.TransactionStatus(fl.Field().String()).Valid()
	})
}

// ValidateTransaction checks the fields every transaction needs before
// any account is touched. An empty currency is allowed; intake fills it
// from the source account.
func (v *TransactionValidator) ValidateTransaction(tx *domain.Transaction) error {
	var errs []error

	if !tx.Amount.IsPositive() || !tx.Amount.Equal(tx.Amount.Round(amountScale)) {
		errs = append(errs, ErrInvalidAmount)
	}

	if err := v.validate.Var(tx.Currency, "omitempty,iso4217"); err != nil {
		errs = append(errs, ErrInvalidCurrency)
	}

	if !tx.Type.Valid() {
		errs = append(errs, ErrInvalidType)
	}

	if tx.AccountID == "" {
		errs = append(errs, ErrInvalidAccount)
	}

	if tx.ToAccountID != "" {
		if tx.Type != domain.TypeTransfer {
			errs = append(errs, fmt.Errorf("%w: destination only applies to transfers", ErrInvalidAccount))
		}
		if tx.ToAccountID == tx.AccountID {
			errs = append(errs, ErrSameAccount)
		}
	}

	if tx.CreatedAt.After(time.Now().Add(5 * time.Minute)) {
		errs = append(errs, ErrFutureTimestamp)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %w", errors.Join(errs...))
	}

	return v.ValidateAmount(tx.Amount, tx.Currency)
}

func (v *TransactionValidator) ValidateAmount(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if max, exists := maxAmounts[currency]; exists && amount.GreaterThan(max) {
		return fmt.Errorf("%w: exceeds maximum limit for %s: %s", ErrInvalidAmount, currency, max)
	}

	return nil
}
