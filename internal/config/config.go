package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CurrencyCode       string
	CartPaymentFee     int64
	CartSeedPath       string
	GiftCardHonor      bool
	RedisURL           string
	IdempotencyTTL     time.Duration
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitStrategy  string
	SecurityHeaders    bool
	ShutdownTimeout    time.Duration

	WebhookURL        string
	WebhookSecret     string
	WebhookTimeout    time.Duration
	WebhookBufferSize int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	fee, err := parseInt64(k.String("CART_PAYMENT_FEE"), 290)
	if err != nil {
		return nil, fmt.Errorf("CART_PAYMENT_FEE: %w", err)
	}
	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "HUF")),
		CartPaymentFee:     fee,
		CartSeedPath:       strings.TrimSpace(k.String("CART_SEED_PATH")),
		GiftCardHonor:      parseBool(k.String("GIFTCARD_HONOR_STATUS"), false),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     parseInt64OrDefault(k.String("HTTP_BODY_LIMIT_BYTES"), 64<<10),
		RateLimitMax:       int(parseInt64OrDefault(k.String("RATE_LIMIT_MAX"), 120)),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitStrategy:  strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		SecurityHeaders:    parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
		WebhookURL:         strings.TrimSpace(k.String("CART_WEBHOOK_URL")),
		WebhookSecret:      k.String("CART_WEBHOOK_SECRET"),
		WebhookTimeout:     parseDuration(k.String("CART_WEBHOOK_TIMEOUT"), "5s"),
		WebhookBufferSize:  int(parseInt64OrDefault(k.String("CART_WEBHOOK_BUFFER"), 256)),
	}

	if cfg.CartPaymentFee < 0 {
		return nil, errors.New("CART_PAYMENT_FEE must not be negative")
	}
	switch cfg.RateLimitStrategy {
	case "sliding", "fixed":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY must be sliding or fixed, got %q", cfg.RateLimitStrategy)
	}
	if cfg.WebhookURL != "" && cfg.WebhookSecret == "" {
		return nil, errors.New("CART_WEBHOOK_SECRET is required when CART_WEBHOOK_URL is set")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt64(value string, fallback int64) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	return strconv.ParseInt(trimmed, 10, 64)
}

func parseInt64OrDefault(value string, fallback int64) int64 {
	n, err := parseInt64(value, fallback)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
