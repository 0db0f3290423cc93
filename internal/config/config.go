package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Settlement    SettlementConfig
	Risk          RiskConfig
	RateLimit     RateLimitConfig
	Notifications NotificationConfig
	Logging       LoggingConfig
	DevMode       bool
}

type HTTPConfig struct {
	Addr            string
	MetricsAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig selects the store. Driver is "postgres" or "memory".
type DatabaseConfig struct {
	Driver string
	URL    string
}

// RedisConfig is optional; an empty Addr disables rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	SigningSecret    string
	RequireSignature bool
}

// KafkaConfig is optional; with no brokers the service uses in-process
// settlement and drops lifecycle events.
type KafkaConfig struct {
	Brokers         []string
	SettlementTopic string
	EventsTopic     string
	DLQTopic        string
	SettlementGroup string
	AuditGroup      string
	AuditDLQTopic   string
}

type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

type SettlementConfig struct {
	Delay       time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Workers     int
}

type RiskConfig struct {
	OffHoursWeight int
	VelocityWindow time.Duration
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// NotificationConfig routes blocked-transaction alerts. Empty recipients
// disable their channel.
type NotificationConfig struct {
	SecurityEmail string
	SlackChannel  string
	OnCallPhone   string
	Workers       int
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultHTTPAddr          = ":8080"
	defaultMetricsAddr       = ":9090"
	defaultReadTimeout       = 10 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultDevJWTSecret      = "dev-secret-key"
	defaultTokenTTL          = 24 * time.Hour
	defaultSettlementDelay   = 2 * time.Second
	defaultSettlementTries   = 5
	defaultSettlementBackoff = 500 * time.Millisecond
	defaultSettlementWorkers = 4
	defaultOffHoursWeight    = 15
	defaultVelocityWindow    = time.Hour
	defaultRateLimitRequests = 120
	defaultRateLimitWindow   = time.Minute
)

// LoadDotEnv loads the given files (".env" when none are named) into the
// process environment. Missing files are skipped and variables that are
// already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	devMode := parseBoolWithDefault("DEV_MODE", false)

	cfg := Config{
		DevMode: devMode,
		HTTP: HTTPConfig{
			Addr:           valueOrDefault("HTTP_ADDR", defaultHTTPAddr),
			MetricsAddr:    valueOrDefault("METRICS_ADDR", defaultMetricsAddr),
			AllowedOrigins: parseList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(os.Getenv("STORE")),
			URL:    os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       parseIntWithDefault("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:        os.Getenv("JWT_SECRET"),
			SigningSecret:    os.Getenv("SIGNING_SECRET"),
			RequireSignature: parseBoolWithDefault("REQUIRE_SIGNATURE", false),
		},
		Kafka: KafkaConfig{
			Brokers:         parseList("KAFKA_BROKERS"),
			SettlementTopic: valueOrDefault("SETTLEMENT_TOPIC", "banking.settlement"),
			EventsTopic:     valueOrDefault("EVENTS_TOPIC", "banking.transactions"),
			DLQTopic:        valueOrDefault("DLQ_TOPIC", "banking.settlement.dlq"),
			SettlementGroup: valueOrDefault("SETTLEMENT_GROUP", "ledger-settlement"),
			AuditGroup:      valueOrDefault("AUDIT_GROUP", "ledger-audit"),
			AuditDLQTopic:   valueOrDefault("AUDIT_DLQ_TOPIC", "banking.transactions.dlq"),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: parseList("ELASTICSEARCH_URL"),
			Username:  os.Getenv("ELASTICSEARCH_USERNAME"),
			Password:  os.Getenv("ELASTICSEARCH_PASSWORD"),
			Index:     valueOrDefault("AUDIT_INDEX", "banking-transactions"),
		},
		Settlement: SettlementConfig{
			MaxAttempts: parseIntWithDefault("SETTLEMENT_MAX_ATTEMPTS", defaultSettlementTries),
			Workers:     parseIntWithDefault("SETTLEMENT_WORKERS", defaultSettlementWorkers),
		},
		Risk: RiskConfig{
			OffHoursWeight: parseIntWithDefault("RISK_OFF_HOURS_WEIGHT", defaultOffHoursWeight),
		},
		RateLimit: RateLimitConfig{
			Requests: parseIntWithDefault("RATE_LIMIT_REQUESTS", defaultRateLimitRequests),
		},
		Notifications: NotificationConfig{
			SecurityEmail: os.Getenv("ALERT_EMAIL"),
			SlackChannel:  os.Getenv("ALERT_SLACK_CHANNEL"),
			OnCallPhone:   os.Getenv("ALERT_PHONE"),
			Workers:       parseIntWithDefault("NOTIFICATION_WORKERS", 3),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", "info"),
			Format:        valueOrDefault("LOG_FORMAT", "json"),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	durations := []struct {
		key      string
		fallback time.Duration
		target   *time.Duration
	}{
		{"HTTP_READ_TIMEOUT", defaultReadTimeout, &cfg.HTTP.ReadTimeout},
		{"HTTP_WRITE_TIMEOUT", defaultWriteTimeout, &cfg.HTTP.WriteTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.HTTP.ShutdownTimeout},
		{"JWT_TTL", defaultTokenTTL, &cfg.Auth.TokenTTL},
		{"SETTLEMENT_DELAY", defaultSettlementDelay, &cfg.Settlement.Delay},
		{"SETTLEMENT_BACKOFF", defaultSettlementBackoff, &cfg.Settlement.Backoff},
		{"RISK_VELOCITY_WINDOW", defaultVelocityWindow, &cfg.Risk.VelocityWindow},
		{"RATE_LIMIT_WINDOW", defaultRateLimitWindow, &cfg.RateLimit.Window},
	}
	for _, d := range durations {
		v, err := parseDurationWithDefault(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.target = v
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
		if cfg.Database.URL != "" {
			cfg.Database.Driver = "postgres"
		}
	}
	if cfg.Auth.JWTSecret == "" && devMode {
		cfg.Auth.JWTSecret = defaultDevJWTSecret
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required outside dev mode")
	}
	if c.Auth.RequireSignature && c.Auth.SigningSecret == "" {
		return errors.New("REQUIRE_SIGNATURE needs SIGNING_SECRET")
	}
	if c.Settlement.MaxAttempts < 1 {
		return fmt.Errorf("SETTLEMENT_MAX_ATTEMPTS must be positive, got %d", c.Settlement.MaxAttempts)
	}
	if c.Settlement.Workers < 1 {
		return fmt.Errorf("SETTLEMENT_WORKERS must be positive, got %d", c.Settlement.Workers)
	}
	if c.Risk.OffHoursWeight < 0 {
		return fmt.Errorf("RISK_OFF_HOURS_WEIGHT must not be negative, got %d", c.Risk.OffHoursWeight)
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
