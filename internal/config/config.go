package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	ContentBaseURL string
	ContentToken   string

	CatalogFile string
	RulesFile   string
	MessagesDir string

	RedisURL    string
	DatabaseURL string

	MaxRooms       int
	AllowedOrigins []string

	// Trust ?user= on the WebSocket upgrade when no proxy header is set.
	AllowQueryIdentity bool

	CheckpointTTL time.Duration
	ShutdownGrace time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:    ":8080",
		MaxRooms:      200,
		CheckpointTTL: 24 * time.Hour,
		ShutdownGrace: 10 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.ContentBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("CONTENT_BASE_URL")), "/")
	cfg.ContentToken = strings.TrimSpace(os.Getenv("CONTENT_TOKEN"))

	cfg.CatalogFile = strings.TrimSpace(os.Getenv("CATALOG_FILE"))
	cfg.RulesFile = strings.TrimSpace(os.Getenv("RULES_FILE"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	if v := strings.TrimSpace(os.Getenv("ALLOW_QUERY_IDENTITY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("ALLOW_QUERY_IDENTITY must be a boolean")
		}
		cfg.AllowQueryIdentity = b
	}

	if v := strings.TrimSpace(os.Getenv("MAX_ROOMS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRooms = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHECKPOINT_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CheckpointTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("SHUTDOWN_GRACE")); v != "" { // duration like 15s
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ShutdownGrace = d
		}
	}

	if cfg.ContentToken != "" && cfg.ContentBaseURL == "" {
		return nil, errors.New("CONTENT_TOKEN set without CONTENT_BASE_URL")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
