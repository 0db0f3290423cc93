package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"banking_ledger/internal/api/middleware"
	"banking_ledger/internal/domain"
	"banking_ledger/internal/processor"
	"banking_ledger/internal/repository"
	"banking_ledger/pkg/crypto"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	SignatureHeader      = "X-Signature"

	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

type TransactionHandler struct {
	processor        *processor.TransactionProcessor
	signer           *crypto.Signer
	requireSignature bool
	requestTimeout   time.Duration
	logger           *slog.Logger
}

func NewTransactionHandler(p *processor.TransactionProcessor, signer *crypto.Signer, requireSignature bool, logger *slog.Logger) *TransactionHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &TransactionHandler{
		processor:        p,
		signer:           signer,
		requireSignature: requireSignature && signer != nil,
		requestTimeout:   30 * time.Second,
		logger:           logger,
	}
}

// List handles GET /api/banking/transactions.
func (h *TransactionHandler) List(c *gin.Context) {
	filter, page, limit, err := parseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	filter.UserID = middleware.GetUserID(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.processor.List(ctx, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, newListResponse(result, page, limit))
}

// Create handles POST /api/banking/transactions.
func (h *TransactionHandler) Create(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := h.verifySignature(c, body); err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req CreateTransactionRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	res, err := h.processor.CreateTransaction(ctx, processor.CreateRequest{
		UserID:         middleware.GetUserID(c),
		AccountID:      req.AccountID,
		ToAccountID:    req.ToAccountID,
		Type:           req.Type,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Category:       req.Category,
		Description:    req.Description,
		MerchantName:   req.MerchantName,
		Location:       req.Location,
		Reference:      req.Reference,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)),
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, CreateTransactionResponse{
		Transaction: res.Transaction,
		Fraud:       newFraudInfo(res),
		Replayed:    res.Replayed,
	})
}

// Update handles PUT /api/banking/transactions?transactionId=.
func (h *TransactionHandler) Update(c *gin.Context) {
	id := c.Query("transactionId")
	if id == "" {
		badRequest(c, "transactionId is required")
		return
	}

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	tx, err := h.processor.Update(ctx, middleware.GetUserID(c), id, processor.UpdateRequest{
		Status:      req.Status,
		Category:    req.Category,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// Delete handles DELETE /api/banking/transactions?transactionId=. Only
// pending transactions can be cancelled.
func (h *TransactionHandler) Delete(c *gin.Context) {
	id := c.Query("transactionId")
	if id == "" {
		badRequest(c, "transactionId is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	tx, err := h.processor.Cancel(ctx, middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) verifySignature(c *gin.Context, body []byte) error {
	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		if h.requireSignature {
			return fmt.Errorf("%w: %s header required", crypto.ErrInvalidSignature, SignatureHeader)
		}
		return nil
	}
	if h.signer == nil {
		return nil
	}
	return h.signer.Verify(body, signature)
}

func parseFilter(c *gin.Context) (repository.TransactionFilter, int, int, error) {
	var filter repository.TransactionFilter

	page, err := parsePositive(c.Query("page"), 1)
	if err != nil {
		return filter, 0, 0, fmt.Errorf("invalid page: %w", err)
	}
	limit, err := parsePositive(c.Query("limit"), defaultPageSize)
	if err != nil {
		return filter, 0, 0, fmt.Errorf("invalid limit: %w", err)
	}
	limit = min(limit, maxPageSize)
	if page > math.MaxInt/limit {
		return filter, 0, 0, fmt.Errorf("invalid page: %d is out of range", page)
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	filter.AccountID = c.Query("accountId")
	filter.Search = strings.TrimSpace(c.Query("search"))

	if v := c.Query("type"); v != "" {
		filter.Type = domain.TransactionType(v)
		if !filter.Type.Valid() {
			return filter, 0, 0, fmt.Errorf("invalid type: %s", v)
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = domain.TransactionStatus(v)
		if !filter.Status.Valid() {
			return filter, 0, 0, fmt.Errorf("invalid status: %s", v)
		}
	}

	if v := c.Query("startDate"); v != "" {
		from, _, err := parseDate(v)
		if err != nil {
			return filter, 0, 0, fmt.Errorf("invalid startDate: %w", err)
		}
		filter.From = &from
	}
	if v := c.Query("endDate"); v != "" {
		to, dateOnly, err := parseDate(v)
		if err != nil {
			return filter, 0, 0, fmt.Errorf("invalid endDate: %w", err)
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1).Add(-time.Microsecond)
		}
		filter.To = &to
	}

	if v := c.Query("minAmount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return filter, 0, 0, fmt.Errorf("invalid minAmount: %w", err)
		}
		filter.MinAmount = &amount
	}
	if v := c.Query("maxAmount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return filter, 0, 0, fmt.Errorf("invalid maxAmount: %w", err)
		}
		filter.MaxAmount = &amount
	}

	return filter, page, limit, nil
}

func parsePositive(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, fmt.Errorf("must be at least 1")
	}
	return v, nil
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
