package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadEngineDefaults(t *testing.T) {
	t.Setenv("LOCK_TIMEOUT_MS", "")
	t.Setenv("TX_RETRY_ATTEMPTS", "")
	t.Setenv("PAYMENT_OVERPAYMENT_TOLERANCE", "")

	cfg := Load()
	if cfg.LockTimeout() != 5*time.Second {
		t.Fatalf("expected 5s lock timeout, got %s", cfg.LockTimeout())
	}
	if cfg.TxRetryAttempts != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", cfg.TxRetryAttempts)
	}
	if !cfg.OverpaymentTolerance.IsZero() {
		t.Fatalf("expected zero tolerance, got %s", cfg.OverpaymentTolerance)
	}
}

func TestLoadRejectsInvalidTolerance(t *testing.T) {
	t.Setenv("PAYMENT_OVERPAYMENT_TOLERANCE", "-0.50")
	if cfg := Load(); !cfg.OverpaymentTolerance.IsZero() {
		t.Fatalf("expected negative tolerance to fall back to zero, got %s", cfg.OverpaymentTolerance)
	}

	t.Setenv("PAYMENT_OVERPAYMENT_TOLERANCE", "0.05")
	if cfg := Load(); cfg.OverpaymentTolerance.String() != "0.05" {
		t.Fatalf("expected 0.05 tolerance, got %s", cfg.OverpaymentTolerance)
	}
}
