package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollector_Counters(t *testing.T) {
	m := NewMetricsCollector(nil)

	m.RecordTransaction("payment", "pending", 15*time.Millisecond, 45)
	m.RecordTransaction("payment", "failed", 10*time.Millisecond, 75)
	m.RecordFraudAlert("CRITICAL")
	m.RecordSettlement("settled")
	m.RecordSettlement("settled")

	if got := testutil.ToFloat64(m.transactions.WithLabelValues("payment", "failed")); got != 1 {
		t.Errorf("expected 1 failed payment, got %v", got)
	}
	if got := testutil.ToFloat64(m.fraudAlerts.WithLabelValues("CRITICAL")); got != 1 {
		t.Errorf("expected 1 critical alert, got %v", got)
	}
	if got := testutil.ToFloat64(m.settlements.WithLabelValues("settled")); got != 2 {
		t.Errorf("expected 2 settlements, got %v", got)
	}
}

func TestMetricsCollector_Handler(t *testing.T) {
	m := NewMetricsCollector(nil)
	m.RecordFraudAlert("HIGH")

	srv := httptest.NewServer(m.GetHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `ledger_fraud_alerts_total{level="HIGH"} 1`) {
		t.Errorf("expected fraud alert counter in scrape output")
	}
}
