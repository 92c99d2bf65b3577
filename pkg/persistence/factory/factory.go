// Package factory opens the persistence backend selected by configuration.
package factory

import (
	"fmt"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/config"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/badger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/postgres"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/redis"
	"go.uber.org/zap"
)

// NewPersistence opens the configured backend and checks it is healthy
func NewPersistence(cfg *config.PersistenceConfig, logger *zap.Logger) (persistence.IAirdropPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("persistence config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store persistence.IAirdropPersistence
		err   error
	)

	switch cfg.Type {
	case config.PersistenceTypeMemory:
		store = memory.NewMemoryPersistence()
	case config.PersistenceTypeBadger:
		store, err = badger.NewBadgerPersistence(cfg.BadgerPath, logger)
	case config.PersistenceTypeRedis:
		store, err = redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	case config.PersistenceTypePostgres:
		store, err = postgres.NewPostgresPersistence(&postgres.PostgresConfig{
			DSN:         cfg.PostgresDSN,
			AutoMigrate: true,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s persistence: %w", cfg.Type, err)
	}

	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s persistence health check failed: %w", cfg.Type, err)
	}

	logger.Sugar().Infow("Persistence ready", "type", cfg.Type)
	return store, nil
}
