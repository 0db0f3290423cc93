package api

import (
	"errors"
	"log/slog"
	"net/http"

	"banking_ledger/internal/api/middleware"
	"banking_ledger/internal/processor"
	"banking_ledger/internal/repository"
	"banking_ledger/pkg/crypto"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{processor.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{processor.ErrAccountInactive, http.StatusBadRequest, "ACCOUNT_INACTIVE"},
	{processor.ErrCurrencyMismatch, http.StatusBadRequest, "CURRENCY_MISMATCH"},
	{processor.ErrLimitExceeded, http.StatusBadRequest, "LIMIT_EXCEEDED"},
	{processor.ErrInvalidTransition, http.StatusBadRequest, "INVALID_TRANSITION"},
	{processor.ErrNotCancellable, http.StatusBadRequest, "NOT_CANCELLABLE"},
	{repository.ErrInsufficientFunds, http.StatusBadRequest, "INSUFFICIENT_FUNDS"},
	{crypto.ErrInvalidSignature, http.StatusUnauthorized, "INVALID_SIGNATURE"},
	{processor.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{repository.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{processor.ErrIdempotencyConflict, http.StatusConflict, "IDEMPOTENCY_CONFLICT"},
	{repository.ErrDuplicate, http.StatusConflict, "CONFLICT"},
}

// statusForError maps domain errors to an HTTP status and error code.
func statusForError(err error) (int, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := statusForError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "Request failed",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("error", err.Error()))
		message = "An unexpected error occurred"
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: "VALIDATION_ERROR"})
}
