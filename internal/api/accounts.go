package api

import (
	"log/slog"
	"net/http"

	"banking_ledger/internal/api/middleware"
	"banking_ledger/internal/domain"
	"banking_ledger/internal/processor"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves the read-only views around transactions:
// accounts, fraud alerts and limits.
type AccountHandler struct {
	processor *processor.TransactionProcessor
	logger    *slog.Logger
}

func NewAccountHandler(p *processor.TransactionProcessor, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{processor: p, logger: logger}
}

func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.processor.ListAccounts(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.processor.GetAccount(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) FraudAlerts(c *gin.Context) {
	page, err := parsePositive(c.Query("page"), 1)
	if err != nil {
		badRequest(c, "invalid page")
		return
	}
	limit, err := parsePositive(c.Query("limit"), defaultPageSize)
	if err != nil {
		badRequest(c, "invalid limit")
		return
	}
	limit = min(limit, maxPageSize)

	alerts, err := h.processor.ListFraudAlerts(c.Request.Context(), middleware.GetUserID(c), limit, (page-1)*limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if alerts == nil {
		alerts = []*domain.FraudAlert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "page": page, "limit": limit})
}

func (h *AccountHandler) Limits(c *gin.Context) {
	limits, err := h.processor.ListLimits(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if limits == nil {
		limits = []*domain.TransactionLimit{}
	}
	c.JSON(http.StatusOK, gin.H{"limits": limits})
}
