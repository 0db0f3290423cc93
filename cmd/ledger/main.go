package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"banking_ledger/internal/api"
	"banking_ledger/internal/config"
	"banking_ledger/internal/dlq"
	"banking_ledger/internal/events"
	"banking_ledger/internal/logging"
	"banking_ledger/internal/processor"
	"banking_ledger/internal/repository"
	"banking_ledger/internal/repository/gormstore"
	"banking_ledger/internal/repository/memory"
	"banking_ledger/internal/service"
	"banking_ledger/internal/settlement"
	"banking_ledger/pkg/crypto"
	"banking_ledger/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const appName = "banking_ledger"

type closer func() error

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("store", cfg.Database.Driver),
		slog.Bool("kafka", len(cfg.Kafka.Brokers) > 0),
		slog.Bool("dev_mode", cfg.DevMode))

	if err := run(cfg, logger); err != nil {
		logger.Error("Application failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Application shutdown complete")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("Close failed", slog.String("error", err.Error()))
			}
		}
	}()

	store, closeStore, err := setupStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, redisClient.Close)
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	queue, publisher, sink := setupMessaging(cfg.Kafka, logger)
	closers = append(closers, queue.Close, publisher.Close)
	if producer, ok := sink.(*dlq.Producer); ok {
		closers = append(closers, producer.Close)
	}

	notificationService := setupNotificationService(cfg.Notifications, logger)

	txProcessor := processor.NewTransactionProcessor(store, processor.Options{
		Logger:          logger,
		Metrics:         metricsCollector,
		Publisher:       publisher,
		Queue:           queue,
		Notifier:        notificationService,
		OffHoursWeight:  cfg.Risk.OffHoursWeight,
		VelocityWindow:  cfg.Risk.VelocityWindow,
		SettlementDelay: cfg.Settlement.Delay,
	})

	worker := settlement.NewWorker(queue, txProcessor, sink, metricsCollector, settlement.WorkerConfig{
		Workers:     cfg.Settlement.Workers,
		MaxAttempts: cfg.Settlement.MaxAttempts,
		Backoff:     cfg.Settlement.Backoff,
		SourceTopic: cfg.Kafka.SettlementTopic,
	}, logger)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker.Start(workerCtx)

	// Pending transactions from before a restart have no queued task in
	// the in-memory queue; re-enqueueing is harmless for Kafka because
	// settlement is idempotent.
	if n, err := txProcessor.RequeuePending(ctx); err != nil {
		logger.Error("Failed to requeue pending transactions", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("Requeued pending transactions", slog.Int("count", n))
	}

	var signer *crypto.Signer
	if cfg.Auth.SigningSecret != "" {
		signer = crypto.NewSigner(cfg.Auth.SigningSecret, logger)
	}

	routerCfg := api.RouterConfig{
		Processor:        txProcessor,
		Metrics:          metricsCollector,
		Signer:           signer,
		Logger:           logger,
		Store:            store,
		JWTSecret:        cfg.Auth.JWTSecret,
		TokenTTL:         cfg.Auth.TokenTTL,
		RequireSignature: cfg.Auth.RequireSignature,
		RateLimit:        cfg.RateLimit.Requests,
		RateLimitWindow:  cfg.RateLimit.Window,
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		DevMode:          cfg.DevMode,
	}
	if redisClient != nil {
		routerCfg.RedisClient = redisClient
	}

	metricsServer := metricsCollector.StartMetricsServer(cfg.HTTP.MetricsAddr)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}
	stopWorker()
	worker.Wait()

	if err := notificationService.Shutdown(shutdownCtx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsCollector.Shutdown(shutdownCtx, metricsServer); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
	return nil
}

func setupStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, closer, error) {
	if cfg.Driver != "postgres" {
		return memory.NewStore(), nil, nil
	}

	store, err := gormstore.Open(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store, store.Close, nil
}

func setupMessaging(cfg config.KafkaConfig, logger *slog.Logger) (settlement.Queue, events.Publisher, dlq.Sink) {
	if len(cfg.Brokers) == 0 {
		return settlement.NewMemoryQueue(1000, logger), events.NewMemoryPublisher(), dlq.NewMemorySink(logger)
	}

	return settlement.NewKafkaQueue(cfg.Brokers, cfg.SettlementTopic, cfg.SettlementGroup, logger),
		events.NewKafkaPublisher(cfg.Brokers, cfg.EventsTopic, logger),
		dlq.NewProducer(cfg.Brokers, cfg.DLQTopic, logger)
}

func setupNotificationService(cfg config.NotificationConfig, logger *slog.Logger) *service.NotificationService {
	sender := service.NewLogSender(logger)

	return service.NewNotificationService(
		sender,
		sender,
		sender,
		service.Recipients{
			SecurityEmail: cfg.SecurityEmail,
			SlackChannel:  cfg.SlackChannel,
			OnCallPhone:   cfg.OnCallPhone,
		},
		cfg.Workers,
		logger,
	)
}
