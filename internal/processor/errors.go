package processor

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("forbidden")
	ErrAccountInactive     = errors.New("account is not active")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrLimitExceeded       = errors.New("transaction limit exceeded")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotCancellable      = errors.New("transaction cannot be cancelled")
	ErrIdempotencyConflict = errors.New("idempotency key already used for a different request")
)
