package api

import (
	"log/slog"
	"net/http"
	"time"

	"banking_ledger/internal/api/middleware"
	"banking_ledger/internal/processor"
	"banking_ledger/pkg/crypto"
	"banking_ledger/pkg/metrics"
	ledgervalidator "banking_ledger/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	Processor *processor.TransactionProcessor
	Metrics   *metrics.MetricsCollector
	Signer    *crypto.Signer
	Logger    *slog.Logger
	// Store is checked by the readiness probe; defaults to Processor.
	Store Pinger
	// RedisClient enables rate limiting when set.
	RedisClient redis.Cmdable

	JWTSecret        string
	TokenTTL         time.Duration
	RequireSignature bool
	RateLimit        int
	RateLimitWindow  time.Duration
	AllowedOrigins   []string
	DevMode          bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := ledgervalidator.RegisterValidations(v); err != nil {
			logger.Error("Failed to register request validations", slog.String("error", err.Error()))
		}
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Route not found", Code: "NOT_FOUND"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed", Code: "METHOD_NOT_ALLOWED"})
	})

	var store Pinger = cfg.Processor
	if cfg.Store != nil {
		store = cfg.Store
	}
	healthHandler := NewHealthHandler(store, cfg.RedisClient)
	transactionHandler := NewTransactionHandler(cfg.Processor, cfg.Signer, cfg.RequireSignature, logger)
	accountHandler := NewAccountHandler(cfg.Processor, logger)

	router.GET("/health", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	if cfg.DevMode {
		router.POST("/auth/dev/token", NewAuthHandler(cfg.JWTSecret, cfg.TokenTTL).GenerateDevToken)
	}

	banking := router.Group("/api/banking")
	{
		banking.Use(middleware.Auth(cfg.JWTSecret))

		if cfg.RedisClient != nil && cfg.RateLimit > 0 {
			banking.Use(middleware.NewRateLimiter(cfg.RedisClient, cfg.RateLimit, cfg.RateLimitWindow, logger).Middleware())
		}

		banking.GET("/transactions", transactionHandler.List)
		banking.POST("/transactions", transactionHandler.Create)
		banking.PUT("/transactions", transactionHandler.Update)
		banking.DELETE("/transactions", transactionHandler.Delete)

		banking.GET("/accounts", accountHandler.List)
		banking.GET("/accounts/:id", accountHandler.Get)
		banking.GET("/fraud-alerts", accountHandler.FraudAlerts)
		banking.GET("/limits", accountHandler.Limits)
	}

	return router
}
