// Package config reads service settings from the environment (after .env has
// been loaded by the entrypoint) and opens the database.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	KafkaBrokers  []string
	PaymentTopic  string
	ReceiptTopic  string
	ConsumerGroup string

	JWTSecret string
	TokenTTL  time.Duration

	AllowedOrigins []string

	VerifyRatePerMinute int
	VerifyBurst         int
	LookupTimeout       time.Duration

	ReceiptPrefix string
	Currency      string

	AdminEmail    string
	AdminPassword string

	LogLevel slog.Level
}

func Load() (Config, error) {
	cfg := Config{
		Port:                Get("PORT", "8080"),
		DatabaseURL:         Get("DATABASE_URL", ""),
		RedisAddr:           Get("REDIS_ADDR", ""),
		RedisPassword:       Get("REDIS_PASSWORD", ""),
		KafkaBrokers:        List("KAFKA_BROKERS"),
		PaymentTopic:        Get("KAFKA_PAYMENT_TOPIC", "payment.events"),
		ReceiptTopic:        Get("KAFKA_RECEIPT_TOPIC", "receipt.issued"),
		ConsumerGroup:       Get("KAFKA_CONSUMER_GROUP", "estate-access"),
		JWTSecret:           Get("JWT_SECRET", ""),
		AllowedOrigins:      List("CORS_ORIGINS"),
		ReceiptPrefix:       Get("RECEIPT_PREFIX", "EST"),
		Currency:            Get("CURRENCY", "NGN"),
		AdminEmail:          Get("ADMIN_EMAIL", ""),
		AdminPassword:       Get("ADMIN_PASSWORD", ""),
		LogLevel:            ParseLogLevel(slog.LevelInfo),
		VerifyRatePerMinute: 30,
		VerifyBurst:         10,
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			Get("DB_HOST", "localhost"),
			Get("DB_USER", "postgres"),
			Get("DB_PASS", "postgres"),
			Get("DB_NAME", "estate"),
			Get("DB_PORT", "5432"),
			Get("DB_SSLMODE", "disable"),
		)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	var err error
	if cfg.RedisDB, err = Int("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.CacheTTL, err = Duration("CACHE_TTL", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.TokenTTL, err = Duration("TOKEN_TTL", 12*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.LookupTimeout, err = Duration("LOOKUP_TIMEOUT", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.VerifyRatePerMinute, err = Int("VERIFY_RATE_PER_MINUTE", cfg.VerifyRatePerMinute); err != nil {
		return cfg, err
	}
	if cfg.VerifyBurst, err = Int("VERIFY_BURST", cfg.VerifyBurst); err != nil {
		return cfg, err
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// Get returns the value of the environment variable or the default if not set.
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func Int(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func Duration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// List splits a comma-separated variable, dropping empty entries.
func List(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseLogLevel reads LOG_LEVEL ("debug", "info", "warn", "error") and falls
// back to the provided default when empty or unrecognised.
func ParseLogLevel(fallback slog.Level) slog.Level {
	switch strings.ToLower(Get("LOG_LEVEL", "")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
