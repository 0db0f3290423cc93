package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Signer produces and checks hex HMAC-SHA256 signatures.
type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(data []byte, signature string) error {
	received, err := hex.DecodeString(signature)
	if err != nil {
		s.logger.Warn("Malformed signature", slog.Int("length", len(signature)))
		return fmt.Errorf("%w: not hex encoded", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), received) {
		s.logger.Warn("Signature verification failed", slog.Int("payload_bytes", len(data)))
		return ErrInvalidSignature
	}

	return nil
}

// SignTransaction signs the fields that identify a transaction.
func (s *Signer) SignTransaction(transactionID string, amount decimal.Decimal, currency string, timestamp int64) string {
	return s.Sign(transactionPayload(transactionID, amount, currency, timestamp))
}

func (s *Signer) VerifyTransaction(transactionID string, amount decimal.Decimal, currency string, timestamp int64, signature string) error {
	return s.Verify(transactionPayload(transactionID, amount, currency, timestamp), signature)
}

func transactionPayload(transactionID string, amount decimal.Decimal, currency string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%d", transactionID, amount.StringFixed(2), currency, timestamp))
}
