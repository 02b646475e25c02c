package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/prasadu-1619/synchronos/internal/server"
	"github.com/prasadu-1619/synchronos/internal/store"
	"github.com/prasadu-1619/synchronos/pkg/config"
	"github.com/prasadu-1619/synchronos/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, closeStore, err := openStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open document store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to redis", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		logger.Info("Cross-node relay enabled", slog.String("addr", cfg.Redis.Addr))
	}

	app := server.NewApp(logger, ctx, cfg, docs, rdb)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

func openStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (store.DocumentStore, func(), error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return store.NewMemoryStore(logger, cfg.Collab.RevisionCap), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		pg := store.NewPostgresStore(pool, logger, cfg.Collab.RevisionCap)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
