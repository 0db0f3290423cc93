package crypto

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSigner_SignAndVerify(t *testing.T) {
	s := NewSigner("secret", nil)
	body := []byte(`{"accountId":"acc-1","amount":"10.00"}`)

	sig := s.Sign(body)
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if err := s.Verify(body, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := s.Verify(append(body, ' '), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for altered body, got %v", err)
	}
	if err := s.Verify(body, "zz"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for non-hex, got %v", err)
	}
	if err := NewSigner("other", nil).Verify(body, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for other key, got %v", err)
	}
}

func TestSigner_Transaction(t *testing.T) {
	s := NewSigner("secret", nil)
	amount := decimal.RequireFromString("99.5")

	sig := s.SignTransaction("tx-1", amount, "USD", 1700000000)
	if err := s.VerifyTransaction("tx-1", decimal.RequireFromString("99.50"), "USD", 1700000000, sig); err != nil {
		t.Errorf("equal amounts must verify, got %v", err)
	}
	if err := s.VerifyTransaction("tx-1", amount, "EUR", 1700000000, sig); err == nil {
		t.Error("expected currency change to fail verification")
	}
}
