package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"banking_ledger/internal/audit"
	"banking_ledger/internal/config"
	"banking_ledger/internal/dlq"
	"banking_ledger/internal/logging"
	"banking_ledger/pkg/crypto"
)

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

	if len(cfg.Kafka.Brokers) == 0 || len(cfg.Elasticsearch.Addresses) == 0 {
		logger.Error("The audit service needs KAFKA_BROKERS and ELASTICSEARCH_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting audit service",
		slog.Any("brokers", cfg.Kafka.Brokers),
		slog.String("topic", cfg.Kafka.EventsTopic),
		slog.String("index", cfg.Elasticsearch.Index))

	producer := dlq.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditDLQTopic, logger)
	defer producer.Close()

	indexer, err := audit.NewElasticIndexer(ctx, audit.ElasticConfig{
		Addresses:   cfg.Elasticsearch.Addresses,
		Username:    cfg.Elasticsearch.Username,
		Password:    cfg.Elasticsearch.Password,
		Index:       cfg.Elasticsearch.Index,
		SourceTopic: cfg.Kafka.EventsTopic,
	}, producer, logger)
	if err != nil {
		logger.Error("Failed to set up Elasticsearch", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var signer *crypto.Signer
	if cfg.Auth.SigningSecret != "" {
		signer = crypto.NewSigner(cfg.Auth.SigningSecret, logger)
	}

	reader := audit.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.AuditGroup)
	consumer := audit.NewConsumer(reader, indexer, signer, producer, cfg.Kafka.EventsTopic, logger)

	runErr := consumer.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := consumer.Close(closeCtx); err != nil {
		logger.Error("Failed to close audit consumer", slog.String("error", err.Error()))
	}

	if runErr != nil {
		logger.Error("Audit consumer failed", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Audit service stopped")
}
