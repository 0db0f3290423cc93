package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DevDefaults(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("expected memory store, got %q", cfg.Database.Driver)
	}
	if cfg.Auth.JWTSecret == "" {
		t.Error("expected a dev JWT secret")
	}
	if cfg.Risk.OffHoursWeight != 15 || cfg.Risk.VelocityWindow != time.Hour {
		t.Errorf("unexpected risk defaults %+v", cfg.Risk)
	}
	if cfg.Settlement.Delay != 2*time.Second || cfg.Settlement.MaxAttempts != 5 {
		t.Errorf("unexpected settlement defaults %+v", cfg.Settlement)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("RISK_OFF_HOURS_WEIGHT", "20")
	t.Setenv("SETTLEMENT_DELAY", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres store when DATABASE_URL is set, got %q", cfg.Database.Driver)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Risk.OffHoursWeight != 20 {
		t.Errorf("expected off-hours weight 20, got %d", cfg.Risk.OffHoursWeight)
	}
	if cfg.Settlement.Delay != 30*time.Second {
		t.Errorf("expected 30s delay, got %s", cfg.Settlement.Delay)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"DEV_MODE": "false", "JWT_SECRET": ""}},
		{"postgres without url", map[string]string{"JWT_SECRET": "x", "STORE": "postgres", "DATABASE_URL": ""}},
		{"unknown store", map[string]string{"JWT_SECRET": "x", "STORE": "mongo"}},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "SETTLEMENT_DELAY": "soon"}},
		{"signature without secret", map[string]string{"JWT_SECRET": "x", "REQUIRE_SIGNATURE": "true", "SIGNING_SECRET": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LEDGER_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("LEDGER_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("LEDGER_TEST_DOTENV"); got != "from-file" {
		t.Errorf("expected value from file, got %q", got)
	}
}
