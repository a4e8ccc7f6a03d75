package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Cheese-CardDuel/internal/archive"
	"github.com/park285/Cheese-CardDuel/internal/cardfx"
	"github.com/park285/Cheese-CardDuel/internal/catalog"
	appcfg "github.com/park285/Cheese-CardDuel/internal/config"
	"github.com/park285/Cheese-CardDuel/internal/contentapi"
	"github.com/park285/Cheese-CardDuel/internal/deck"
	"github.com/park285/Cheese-CardDuel/internal/gateway"
	"github.com/park285/Cheese-CardDuel/internal/match"
	"github.com/park285/Cheese-CardDuel/internal/msgcat"
	"github.com/park285/Cheese-CardDuel/internal/obslog"
	"github.com/park285/Cheese-CardDuel/internal/room"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := run(cfg); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig) error {
	logger := obslog.L()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rules, err := match.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}
	if err := rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer func() { _ = rdb.Close() }()
	}

	// 카드/덱 소스: content service가 있으면 우선, 없으면 내장 카탈로그 + 스타터 덱
	var (
		cards catalog.Source
		decks deck.Source
	)
	if cfg.ContentBaseURL != "" {
		var opts []contentapi.Option
		if cfg.ContentToken != "" {
			opts = append(opts, contentapi.WithBearerToken(cfg.ContentToken))
		}
		content := contentapi.NewClient(cfg.ContentBaseURL, opts...)
		cards, decks = content, content
		if rdb != nil {
			cards = catalog.NewRedisCache(rdb, content, 0)
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := content.Ping(pctx); err != nil {
			logger.Warn("content_ping_failed", zap.String("base_url", cfg.ContentBaseURL), zap.Error(err))
		}
		cancel()
	} else {
		static, err := catalog.NewStatic(cfg.CatalogFile)
		if err != nil {
			return err
		}
		cards, decks = static, deck.NewStatic(true)
		logger.Info("catalog_static", zap.Int("cards", len(static.All())))
	}

	var repo archive.Repository
	if cfg.DatabaseURL != "" {
		pg, err := archive.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		repo = pg
	} else {
		logger.Warn("archive_in_memory")
		repo = archive.NewMemoryRepository()
	}

	var checkpoints room.CheckpointStore
	if rdb != nil {
		checkpoints = room.NewRedisCheckpoints(rdb, cfg.CheckpointTTL)
	}

	handlers := cardfx.Handlers()
	rooms := room.NewManager(decks, deck.NewValidator(cards, rules).WithHandlers(handlers), room.ManagerOptions{
		Rules:       rules,
		Checkpoints: checkpoints,
		Archive:     repo,
		MaxRooms:    cfg.MaxRooms,
		Handlers:    handlers,
	})
	n, err := rooms.Restore(ctx)
	if err != nil {
		logger.Warn("restore_failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("rooms_restored", zap.Int("count", n))
	}

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return err
	}

	srv := gateway.New(rooms, repo, msgs, gateway.Options{
		Addr:           cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         obslog.Named("gateway"),

		AllowQueryIdentity: cfg.AllowQueryIdentity,
	})
	if cfg.AllowQueryIdentity {
		logger.Warn("query_identity_enabled")
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	err = errors.Join(srv.Shutdown(sctx), rooms.Shutdown(sctx))
	logger.Info("shutdown_complete", zap.Error(err))
	return err
}
