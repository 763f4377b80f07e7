package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"API_BASE_URL", "API_TIMEOUT_SECONDS", "API_RATE_LIMIT_RPS", "API_RATE_LIMIT_BURST",
		"REDIS_ADDR", "CATALOG_TTL_SECONDS", "DATABASE_URL", "SESSION_FILE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.APIBaseURL != "" {
		t.Fatalf("expected no default base url, got %q", cfg.APIBaseURL)
	}
	if cfg.APITimeout() != 20*time.Second {
		t.Fatalf("expected 20s timeout, got %s", cfg.APITimeout())
	}
	if cfg.CatalogTTL() != time.Minute {
		t.Fatalf("expected 60s catalog ttl, got %s", cfg.CatalogTTL())
	}
	if cfg.APIRateLimitRPS != 10 || cfg.APIRateLimitBurst != 5 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.APIRateLimitRPS, cfg.APIRateLimitBurst)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected info log level, got %q", cfg.LogLevel)
	}
	if filepath.Base(cfg.SessionFile) != "session.json" {
		t.Fatalf("unexpected session file %q", cfg.SessionFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", " https://billing.example.com/ ")
	t.Setenv("API_TIMEOUT_SECONDS", "5")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("API_RATE_LIMIT_BURST", "0")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SESSION_FILE", "/tmp/smidi-session.json")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	if cfg.APIBaseURL != "https://billing.example.com" {
		t.Fatalf("expected trimmed base url, got %q", cfg.APIBaseURL)
	}
	if cfg.APITimeoutSeconds != 5 || cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("unexpected api settings %+v", cfg)
	}
	if cfg.APIRateLimitBurst != 1 {
		t.Fatalf("expected burst clamped to 1, got %d", cfg.APIRateLimitBurst)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" || cfg.RedisDB != 2 {
		t.Fatalf("unexpected redis settings %+v", cfg)
	}
	if cfg.SessionFile != "/tmp/smidi-session.json" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected settings %+v", cfg)
	}
}
