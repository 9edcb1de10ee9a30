package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DBPath != "carecircle.db" {
		t.Errorf("DBPath = %q, want carecircle.db", cfg.DBPath)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if cfg.DispatchInterval != 5*time.Second {
		t.Errorf("DispatchInterval = %v, want 5s", cfg.DispatchInterval)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Errorf("RateLimitPerMinute = %d, want 120", cfg.RateLimitPerMinute)
	}
	if cfg.PushEnabled() {
		t.Error("push should be disabled without VAPID keys")
	}
	if cfg.ExportEnabled() {
		t.Error("export should be disabled without S3 credentials")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CARECIRCLE_PORT", "9090")
	t.Setenv("CARECIRCLE_CACHE_TTL", "2m")
	t.Setenv("CARECIRCLE_RATE_LIMIT", "30")
	t.Setenv("CARECIRCLE_VAPID_PUBLIC_KEY", "pub")
	t.Setenv("CARECIRCLE_VAPID_PRIVATE_KEY", "priv")
	t.Setenv("CARECIRCLE_S3_BUCKET", "exports")
	t.Setenv("CARECIRCLE_S3_ACCESS_KEY", "ak")
	t.Setenv("CARECIRCLE_S3_SECRET_KEY", "sk")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Errorf("CacheTTL = %v, want 2m", cfg.CacheTTL)
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Errorf("RateLimitPerMinute = %d, want 30", cfg.RateLimitPerMinute)
	}
	if !cfg.PushEnabled() {
		t.Error("push should be enabled with both VAPID keys")
	}
	if !cfg.ExportEnabled() {
		t.Error("export should be enabled with bucket and credentials")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CARECIRCLE_CACHE_TTL", "not-a-duration")
	t.Setenv("CARECIRCLE_RATE_LIMIT", "not-a-number")

	cfg := Load()

	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want default on parse failure", cfg.CacheTTL)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Errorf("RateLimitPerMinute = %d, want default on parse failure", cfg.RateLimitPerMinute)
	}
}
