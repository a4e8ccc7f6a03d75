package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "CONTENT_BASE_URL", "CONTENT_TOKEN", "MAX_ROOMS", "ALLOWED_ORIGINS", "CHECKPOINT_TTL_SEC", "SHUTDOWN_GRACE", "ALLOW_QUERY_IDENTITY"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.MaxRooms != 200 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CheckpointTTL != 24*time.Hour {
		t.Fatalf("checkpoint ttl = %v", cfg.CheckpointTTL)
	}
	if cfg.AllowQueryIdentity {
		t.Fatalf("query identity must be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("CONTENT_BASE_URL", "http://content.local/")
	t.Setenv("MAX_ROOMS", "12")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("CHECKPOINT_TTL_SEC", "60")
	t.Setenv("SHUTDOWN_GRACE", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ContentBaseURL != "http://content.local" {
		t.Fatalf("base url = %q", cfg.ContentBaseURL)
	}
	if cfg.MaxRooms != 12 || len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("unexpected: %+v", cfg)
	}
	if cfg.CheckpointTTL != time.Minute || cfg.ShutdownGrace != 3*time.Second {
		t.Fatalf("durations: %v %v", cfg.CheckpointTTL, cfg.ShutdownGrace)
	}
}

func TestLoadTokenWithoutURL(t *testing.T) {
	t.Setenv("CONTENT_BASE_URL", "")
	t.Setenv("CONTENT_TOKEN", "secret")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when token is set without base url")
	}
}

func TestLoadQueryIdentity(t *testing.T) {
	t.Setenv("CONTENT_TOKEN", "")
	t.Setenv("ALLOW_QUERY_IDENTITY", "true")
	cfg, err := Load()
	if err != nil || !cfg.AllowQueryIdentity {
		t.Fatalf("Load = %+v, %v", cfg, err)
	}
	t.Setenv("ALLOW_QUERY_IDENTITY", "sometimes")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for a non-boolean flag")
	}
}
