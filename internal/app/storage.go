package app

import (
	"context"
	"fmt"
	"time"

	"studytimer/internal/config"
	"studytimer/internal/storage"
	"studytimer/internal/storage/memory"
	"studytimer/internal/storage/postgres"
	"studytimer/internal/storage/redisstore"
	sqlitestore "studytimer/internal/storage/sqlite"
)

// openStorage builds and initializes the configured backend.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	var store storage.Storage
	switch cfg.Backend {
	case "memory":
		store = memory.New()
	case "redis":
		store = redisstore.NewRedisStore(cfg.RedisURL, cfg.RedisPrefix)
	case "postgres":
		store = postgres.NewPostgresStore(cfg.PostgresURL)
	default:
		store = sqlitestore.NewSQLiteStore(cfg.DatabasePath)
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Init(initCtx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Backend, err)
	}
	return store, nil
}
