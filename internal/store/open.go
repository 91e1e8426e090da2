package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/config"
	"github.com/mit-27/panora-sync/internal/database"
)

// Open builds the Store selected by STORE_BACKEND, migrating Postgres first when enabled
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		logger.Info("Using in-memory store")
		return NewMemoryStore(), nil
	case config.StoreBackendPostgres:
		if cfg.Store.AutoMigrate {
			if err := database.RunMigrations(cfg.Database.MigrationURL(), logger); err != nil {
				return nil, err
			}
		}
		db, err := database.Connect(ctx, &cfg.Database, cfg.LogLevel, logger)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
