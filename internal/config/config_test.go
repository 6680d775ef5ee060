package config

import (
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/mailtasker_test")
	t.Setenv("RABBITMQ_URL", "amqp://localhost:5672")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVICE_ROLE_KEY", "test-service-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.ReconcilePolicy != "replace_all" {
		t.Errorf("ReconcilePolicy = %q, want replace_all", cfg.ReconcilePolicy)
	}
	if cfg.BudgetDepositNano != 25_000_000 {
		t.Errorf("BudgetDepositNano = %d, want 25000000", cfg.BudgetDepositNano)
	}
	if cfg.BudgetMaxAccruedNano != 250_000_000 {
		t.Errorf("BudgetMaxAccruedNano = %d, want 250000000", cfg.BudgetMaxAccruedNano)
	}
	if cfg.TextBodyMinRatio != 0.3 {
		t.Errorf("TextBodyMinRatio = %v, want 0.3", cfg.TextBodyMinRatio)
	}
	if cfg.RateLimitRate != "5-S" {
		t.Errorf("RateLimitRate = %q, want 5-S", cfg.RateLimitRate)
	}
	if cfg.RabbitMQPrefetch != 1 {
		t.Errorf("RabbitMQPrefetch = %d, want 1", cfg.RabbitMQPrefetch)
	}
	if cfg.WebhookAllowedIPs != nil {
		t.Errorf("WebhookAllowedIPs = %v, want nil", cfg.WebhookAllowedIPs)
	}
}

func TestLoadRequiredVariables(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "missing database url", unset: "DATABASE_URL"},
		{name: "missing rabbitmq url", unset: "RABBITMQ_URL"},
		{name: "missing jwt secret", unset: "JWT_SECRET"},
		{name: "missing service role key", unset: "SERVICE_ROLE_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			if _, err := Load(); err == nil {
				t.Errorf("expected error when %s is unset", tt.unset)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RECONCILE_POLICY", "append_only")
	t.Setenv("BUDGET_DEPOSIT_NANO_USD", "7000000")
	t.Setenv("TEXT_BODY_MIN_RATIO", "0.5")
	t.Setenv("WEBHOOK_ALLOWED_IPS", "10.0.0.1, 10.0.0.2")
	t.Setenv("SERVER_DEBUG_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ReconcilePolicy != "append_only" {
		t.Errorf("ReconcilePolicy = %q, want append_only", cfg.ReconcilePolicy)
	}
	if cfg.BudgetDepositNano != 7_000_000 {
		t.Errorf("BudgetDepositNano = %d, want 7000000", cfg.BudgetDepositNano)
	}
	if cfg.TextBodyMinRatio != 0.5 {
		t.Errorf("TextBodyMinRatio = %v, want 0.5", cfg.TextBodyMinRatio)
	}
	if len(cfg.WebhookAllowedIPs) != 2 || cfg.WebhookAllowedIPs[0] != "10.0.0.1" || cfg.WebhookAllowedIPs[1] != "10.0.0.2" {
		t.Errorf("WebhookAllowedIPs = %v, want [10.0.0.1 10.0.0.2]", cfg.WebhookAllowedIPs)
	}
	if !cfg.ServerDebugMode {
		t.Error("expected ServerDebugMode to be true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero deposit", key: "BUDGET_DEPOSIT_NANO_USD", value: "0"},
		{name: "negative deposit", key: "BUDGET_DEPOSIT_NANO_USD", value: "-5"},
		{name: "ratio above one", key: "TEXT_BODY_MIN_RATIO", value: "1.5"},
		{name: "unknown reconcile policy", key: "RECONCILE_POLICY", value: "merge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
