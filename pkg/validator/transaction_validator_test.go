package validator

import (
	"errors"
	"testing"
	"time"

	"banking_ledger/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func newTx(amount string, currency string) *domain.Transaction {
	tx := domain.NewTransaction("u1", "A1", domain.TypeDeposit, decimal.RequireFromString(amount), currency)
	return tx
}

func TestTransactionValidator_ValidTransaction(t *testing.T) {
	v := NewTransactionValidator()

	if err := v.ValidateTransaction(newTx("100.25", "USD")); err != nil {
		t.Fatalf("expected valid transaction, got err=%v", err)
	}
}

func TestTransactionValidator_EmptyCurrencyAllowed(t *testing.T) {
	v := NewTransactionValidator()

	if err := v.ValidateTransaction(newTx("10", "")); err != nil {
		t.Fatalf("expected empty currency to be accepted, got %v", err)
	}
}

func TestTransactionValidator_InvalidAmount(t *testing.T) {
	v := NewTransactionValidator()

	for _, amount := range []string{"0", "-5", "1.00001"} {
		err := v.ValidateTransaction(newTx(amount, "USD"))
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestTransactionValidator_InvalidCurrencyFormat(t *testing.T) {
	v := NewTransactionValidator()

	for _, currency := range []string{"US", "usd", "XYZ"} {
		if err := v.ValidateTransaction(newTx("50", currency)); !errors.Is(err, ErrInvalidCurrency) {
			t.Errorf("currency %q: expected ErrInvalidCurrency, got %v", currency, err)
		}
	}
}

func TestTransactionValidator_TransferRules(t *testing.T) {
	v := NewTransactionValidator()

	self := newTx("10", "USD")
	self.Type = domain.TypeTransfer
	self.WithDestination("A1")
	if err := v.ValidateTransaction(self); !errors.Is(err, ErrSameAccount) {
		t.Errorf("expected ErrSameAccount, got %v", err)
	}

	deposit := newTx("10", "USD").WithDestination("A2")
	if err := v.ValidateTransaction(deposit); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("expected ErrInvalidAccount for a deposit with destination, got %v", err)
	}
}

func TestTransactionValidator_ExceedsLimit(t *testing.T) {
	v := NewTransactionValidator()

	if err := v.ValidateAmount(decimal.NewFromInt(2_000_000), "USD"); err == nil {
		t.Fatal("expected error for exceeding limit, got nil")
	}
	if err := v.ValidateAmount(decimal.NewFromInt(2_000_000), "JPY"); err != nil {
		t.Fatalf("expected no ceiling for JPY, got %v", err)
	}
}

func TestTransactionValidator_FutureTimestamp(t *testing.T) {
	v := NewTransactionValidator()
	tx := newTx("10", "USD")
	tx.CreatedAt = time.Now().Add(48 * time.Hour)

	if err := v.ValidateTransaction(tx); !errors.Is(err, ErrFutureTimestamp) {
		t.Fatalf("expected ErrFutureTimestamp, got %v", err)
	}
}

func TestRegisterValidations_EnumTags(t *testing.T) {
	v := validator.New()
	if err := RegisterValidations(v); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := v.Var("payment", "txtype"); err != nil {
		t.Errorf("expected payment to be a valid type, got %v", err)
	}
	if err := v.Var("teleport", "txtype"); err == nil {
		t.Error("expected teleport to be rejected")
	}
	if err := v.Var("cancelled", "txstatus"); err != nil {
		t.Errorf("expected cancelled to be a valid status, got %v", err)
	}
}
