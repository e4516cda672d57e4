package config

import "testing"

func TestLoadDefaultsWorkWithoutRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("RATE_LIMIT_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with defaults: %v", err)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("expected no Redis by default, got %q", cfg.Redis.URL)
	}
	if cfg.RateLimit.Backend != "memory" {
		t.Errorf("expected memory backend by default, got %q", cfg.RateLimit.Backend)
	}
}

func TestValidateRejectsRedisBackendWithoutURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for redis backend without REDIS_URL")
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379")
	if _, err := Load(); err != nil {
		t.Fatalf("redis backend with URL should validate: %v", err)
	}
}
