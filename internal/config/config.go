package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mailtasker/mailtasker/internal/validation"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int

	OpenAIKey string
	AIBaseURL string

	JWTSecret      string
	ServiceRoleKey string

	ReconcilePolicy      string
	BudgetDepositNano    int64
	BudgetMaxAccruedNano int64
	TextBodyMinRatio     float64

	RateLimitRate     string
	WebhookAllowedIPs []string
	EnableHSTS        bool

	WorkerDebugMode bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),

		OpenAIKey: getEnv("OPENAI_API_KEY", ""),
		AIBaseURL: getEnv("AI_BASE_URL", ""),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		ServiceRoleKey: getEnv("SERVICE_ROLE_KEY", ""),

		ReconcilePolicy:      getEnv("RECONCILE_POLICY", "replace_all"),
		BudgetDepositNano:    getEnvInt64("BUDGET_DEPOSIT_NANO_USD", 25_000_000),
		BudgetMaxAccruedNano: getEnvInt64("BUDGET_MAX_ACCRUED_NANO_USD", 250_000_000),
		TextBodyMinRatio:     getEnvFloat("TEXT_BODY_MIN_RATIO", 0.3),

		RateLimitRate:     getEnv("RATELIMIT_RATE", "5-S"),
		WebhookAllowedIPs: getEnvList("WEBHOOK_ALLOWED_IPS"),
		EnableHSTS:        getEnvBool("ENABLE_HSTS", false),

		WorkerDebugMode: getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for job queueing")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("SERVICE_ROLE_KEY is required")
	}

	if cfg.BudgetDepositNano <= 0 {
		return nil, fmt.Errorf("BUDGET_DEPOSIT_NANO_USD must be positive")
	}

	if cfg.TextBodyMinRatio <= 0 || cfg.TextBodyMinRatio > 1 {
		return nil, fmt.Errorf("TEXT_BODY_MIN_RATIO must be in (0, 1]")
	}

	if err := validation.Validate.Var(cfg.ReconcilePolicy, "reconcile_policy"); err != nil {
		return nil, fmt.Errorf("RECONCILE_POLICY must be 'replace_all' or 'append_only'")
	}

	return cfg, nil
}

// getEnv gets an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvBool gets a boolean environment variable with a fallback
func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvInt gets an integer environment variable with a fallback
func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvInt64 gets a 64-bit integer environment variable with a fallback
func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvFloat gets a float environment variable with a fallback
func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvList gets a comma-separated environment variable as a slice
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
