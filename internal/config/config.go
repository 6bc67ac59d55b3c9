package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort            int `env:"HTTP_PORT" envDefault:"8080"`
	HTTPReadTimeoutSec  int `env:"HTTP_READ_TIMEOUT_SECONDS" envDefault:"15"`
	HTTPWriteTimeoutSec int `env:"HTTP_WRITE_TIMEOUT_SECONDS" envDefault:"30"`
	HTTPIdleTimeoutSec  int `env:"HTTP_IDLE_TIMEOUT_SECONDS" envDefault:"60"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	DBLockTimeoutMs       int   `env:"DB_LOCK_TIMEOUT_MS" envDefault:"3000"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"storefront"`
	KafkaMaxRetries    int      `env:"KAFKA_MAX_RETRIES" envDefault:"3"`

	// Auth
	JWTSecret string `env:"JWT_SECRET" envDefault:"change-me-in-production"`

	// Shipping collaborator
	ShippingServiceURL string `env:"SHIPPING_SERVICE_URL" envDefault:"http://localhost:8010"`

	// Circuit breaker settings for the shipping collaborator
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Payments
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	PaymentReturnURL    string `env:"PAYMENT_RETURN_URL" envDefault:"http://localhost:3000/checkout/complete"`
	BankAccountName     string `env:"BANK_ACCOUNT_NAME" envDefault:"Storefront Ltd"`
	BankIBAN            string `env:"BANK_IBAN" envDefault:"TR000000000000000000000000"`

	// Checkout
	Currency            string `env:"CURRENCY" envDefault:"TRY"`
	LoyaltyPointValue   int64  `env:"LOYALTY_POINT_VALUE" envDefault:"1"`
	LoyaltyEarnPoints   int64  `env:"LOYALTY_EARN_POINTS" envDefault:"1"`
	LoyaltyEarnPerMinor int64  `env:"LOYALTY_EARN_PER_MINOR" envDefault:"100"`
	IdempotencyTTLHours int    `env:"IDEMPOTENCY_TTL_HOURS" envDefault:"24"`
	ProcessedEventTTLH  int    `env:"PROCESSED_EVENT_TTL_HOURS" envDefault:"72"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Place-order rate limit per shopper (0 disables)
	CheckoutRateLimitRPS   float64 `env:"CHECKOUT_RATE_LIMIT_RPS" envDefault:"1"`
	CheckoutRateLimitBurst int     `env:"CHECKOUT_RATE_LIMIT_BURST" envDefault:"5"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, ".env"); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	for name, port := range map[string]int{"HTTP_PORT": c.HTTPPort, "POSTGRES_PORT": c.PostgresPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", c.DBMinConns)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment == "production" && c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if _, err := url.ParseRequestURI(c.ShippingServiceURL); err != nil {
		return fmt.Errorf("invalid SHIPPING_SERVICE_URL %q: %w", c.ShippingServiceURL, err)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0, 1], got %f", c.CBFailureRatio)
	}
	if !currencyPattern.MatchString(c.Currency) {
		return fmt.Errorf("CURRENCY must be a 3-letter ISO code, got %q", c.Currency)
	}
	if c.LoyaltyPointValue < 1 || c.LoyaltyEarnPoints < 1 || c.LoyaltyEarnPerMinor < 1 {
		return fmt.Errorf("loyalty point value and earn rate must be positive")
	}
	if c.CheckoutRateLimitRPS < 0 {
		return fmt.Errorf("CHECKOUT_RATE_LIMIT_RPS must not be negative, got %v", c.CheckoutRateLimitRPS)
	}
	if c.CheckoutRateLimitRPS > 0 && c.CheckoutRateLimitBurst < 1 {
		return fmt.Errorf("CHECKOUT_RATE_LIMIT_BURST must be at least 1, got %d", c.CheckoutRateLimitBurst)
	}
	if c.IdempotencyTTLHours < 1 {
		return fmt.Errorf("IDEMPOTENCY_TTL_HOURS must be positive, got %d", c.IdempotencyTTLHours)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// Postgres returns the pool settings for pkg/database.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// IdempotencyTTL is how long a place-order key is remembered.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

// LockTimeout bounds how long checkout waits for a row lock.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.DBLockTimeoutMs) * time.Millisecond
}

// Loyalty returns the point redemption and accrual settings.
func (c *Config) Loyalty() domain.LoyaltySettings {
	return domain.LoyaltySettings{
		PointValue:    c.LoyaltyPointValue,
		EarnPoints:    c.LoyaltyEarnPoints,
		EarnPerAmount: c.LoyaltyEarnPerMinor,
	}
}
