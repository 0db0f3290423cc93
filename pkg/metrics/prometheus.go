package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry              *prometheus.Registry
	transactions          *prometheus.CounterVec
	transactionDuration   prometheus.Histogram
	riskScoreDistribution prometheus.Histogram
	fraudAlerts           *prometheus.CounterVec
	settlements           *prometheus.CounterVec
	httpRequests          *prometheus.CounterVec
	accountBalance        *prometheus.GaugeVec
	logger                *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &MetricsCollector{
		registry: registry,
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Transactions accepted by intake, by type and resulting status",
		}, []string{"type", "status"}),
		transactionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_transaction_processing_duration_seconds",
			Help:    "Time taken to run transaction intake",
			Buckets: prometheus.DefBuckets,
		}),
		riskScoreDistribution: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_transaction_risk_score",
			Help:    "Distribution of transaction risk scores",
			Buckets: []float64{0, 10, 20, 30, 50, 70, 100},
		}),
		fraudAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_fraud_alerts_total",
			Help: "Fraud alerts written, by risk level",
		}, []string{"level"}),
		settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_settlements_total",
			Help: "Settlement outcomes",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		accountBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_account_balance",
			Help: "Last observed account balance",
		}, []string{"account_id", "currency"}),
		logger: logger,
	}
}

func (m *MetricsCollector) RecordTransaction(txType, status string, duration time.Duration, riskScore int) {
	m.transactions.WithLabelValues(txType, status).Inc()
	m.transactionDuration.Observe(duration.Seconds())
	m.riskScoreDistribution.Observe(float64(riskScore))
}

func (m *MetricsCollector) RecordFraudAlert(level string) {
	m.fraudAlerts.WithLabelValues(level).Inc()
}

func (m *MetricsCollector) RecordSettlement(result string) {
	m.settlements.WithLabelValues(result).Inc()
}

func (m *MetricsCollector) RecordHTTPRequest(method, route string, code int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func (m *MetricsCollector) UpdateAccountBalance(accountID, currency string, balance float64) {
	m.accountBalance.WithLabelValues(accountID, currency).Set(balance)
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context, server *http.Server) error {
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	m.logger.Info("Metrics server shutdown complete")
	return nil
}
