package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"storefront-checkout/guard"
)

// Config holds application configuration
type Config struct {
	ServiceName  string
	OTELEndpoint string
	LogLevel     string
	Port         string
	DatabaseDSN  string
	RedisAddr    string

	// Proxies allowed to set X-Forwarded-* headers, as CIDRs or bare IPs.
	TrustedProxies []string

	// Payment provider credentials. AccessToken never leaves the backend.
	ProviderBaseURL string
	AccessToken     string
	ApplicationID   string
	LocationID      string
	Environment     string
	Currency        string

	ShippingFlatRate decimal.Decimal
	TaxRate          decimal.Decimal

	// Payment attempts allowed per client IP.
	PaymentRateLimit int
	PaymentRateBurst int

	// Client-side bootstrap tunables.
	SDKMaxAttempts    int
	SDKBaseDelay      time.Duration
	AttachMaxAttempts int
	AttachInterval    time.Duration
}

// Load loads configuration from environment variables. A .env file in the
// working directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:       "checkout-service",
		OTELEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnv("PORT", "8081"),
		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		TrustedProxies:    getList("TRUSTED_PROXIES"),
		ProviderBaseURL:   os.Getenv("PAYMENT_PROVIDER_URL"),
		AccessToken:       os.Getenv("PAYMENT_ACCESS_TOKEN"),
		ApplicationID:     os.Getenv("PAYMENT_APPLICATION_ID"),
		LocationID:        os.Getenv("PAYMENT_LOCATION_ID"),
		Environment:       getEnv("PAYMENT_ENVIRONMENT", "sandbox"),
		Currency:          getEnv("CURRENCY", "USD"),
		ShippingFlatRate:  getDecimal("SHIPPING_FLAT_RATE", "5.99"),
		TaxRate:           getDecimal("TAX_RATE", "0.08"),
		PaymentRateLimit:  getInt("PAYMENT_RATE_LIMIT_PER_MINUTE", 20),
		PaymentRateBurst:  getInt("PAYMENT_RATE_BURST", 5),
		SDKMaxAttempts:    getInt("SDK_MAX_ATTEMPTS", 5),
		SDKBaseDelay:      getDuration("SDK_BASE_DELAY", 500*time.Millisecond),
		AttachMaxAttempts: getInt("CARD_ATTACH_MAX_ATTEMPTS", 3),
		AttachInterval:    getDuration("CARD_ATTACH_INTERVAL", 100*time.Millisecond),
	}
}

// Validate reports every missing setting the backend functions cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if c.AccessToken == "" {
		errs = append(errs, errors.New("PAYMENT_ACCESS_TOKEN is required"))
	}
	if c.ApplicationID == "" {
		errs = append(errs, errors.New("PAYMENT_APPLICATION_ID is required"))
	}
	if c.LocationID == "" {
		errs = append(errs, errors.New("PAYMENT_LOCATION_ID is required"))
	}
	if _, err := guard.ParseEnvironment(c.Environment); err != nil {
		errs = append(errs, fmt.Errorf("PAYMENT_ENVIRONMENT: %w", err))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getDecimal(key, defaultValue string) decimal.Decimal {
	if d, err := decimal.NewFromString(os.Getenv(key)); err == nil {
		return d
	}
	return decimal.RequireFromString(defaultValue)
}
