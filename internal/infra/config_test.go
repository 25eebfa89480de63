package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/pixvid")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.TickInterval != 2*time.Second {
		t.Fatalf("TickInterval = %v, want 2s", cfg.TickInterval)
	}
	if !cfg.LoadGateEnabled {
		t.Fatal("LoadGateEnabled should default to true")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/pixvid")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("SCHEDULER_MAX_RETRIES", "5")
	t.Setenv("LOAD_GATE_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGIN", "https://pixvid.app")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.LoadGateEnabled {
		t.Fatal("LoadGateEnabled should be false")
	}
	if len(cfg.AllowedCORSOrigin) != 1 || cfg.AllowedCORSOrigin[0] != "https://pixvid.app" {
		t.Fatalf("AllowedCORSOrigin = %v", cfg.AllowedCORSOrigin)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "x")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/pixvid")
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when JWT_SECRET is missing")
	}
}

func TestGetEnvIntMalformed(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := getEnvInt("SOME_INT", 7); got != 7 {
		t.Fatalf("getEnvInt = %d, want fallback 7", got)
	}
}
