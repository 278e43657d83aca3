package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("APP_ADDR", "")
	t.Setenv("APP_WRITE_TIMEOUT", "")
	t.Setenv("STREAM_HEARTBEAT", "")
	t.Setenv("EXPORT_RATE_LIMIT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AppAddr != ":8080" {
		t.Errorf("AppAddr = %q, want :8080", cfg.AppAddr)
	}
	if cfg.AppWriteTimeout != 0 {
		t.Errorf("AppWriteTimeout = %v, want 0", cfg.AppWriteTimeout)
	}
	if cfg.StreamHeartbeat != 25*time.Second {
		t.Errorf("StreamHeartbeat = %v, want 25s", cfg.StreamHeartbeat)
	}
	if cfg.ExportRateLimit != 10 {
		t.Errorf("ExportRateLimit = %d, want 10", cfg.ExportRateLimit)
	}
	if cfg.IsProduction() {
		t.Error("development config reported as production")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_ADDR", ":9090")
	t.Setenv("APP_WRITE_TIMEOUT", "30s")
	t.Setenv("SUMMARY_CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AppAddr != ":9090" {
		t.Errorf("AppAddr = %q, want :9090", cfg.AppAddr)
	}
	if cfg.WriteTimeout() != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want 30s", cfg.WriteTimeout())
	}
	if cfg.SummaryCacheTTL != 90*time.Second {
		t.Errorf("SummaryCacheTTL = %v, want 90s", cfg.SummaryCacheTTL)
	}
	if !cfg.IsProduction() {
		t.Error("production config not reported as production")
	}
}
