package factory

import (
	"testing"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/config"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/logger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/badger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	t.Run("memory", func(t *testing.T) {
		store, err := NewPersistence(&config.PersistenceConfig{Type: config.PersistenceTypeMemory}, testLogger)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		assert.IsType(t, &memory.MemoryPersistence{}, store)
	})

	t.Run("badger", func(t *testing.T) {
		store, err := NewPersistence(&config.PersistenceConfig{
			Type:       config.PersistenceTypeBadger,
			BadgerPath: t.TempDir(),
		}, testLogger)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		assert.IsType(t, &badger.BadgerPersistence{}, store)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewPersistence(&config.PersistenceConfig{Type: config.PersistenceTypeRedis}, testLogger)
		require.Error(t, err)

		_, err = NewPersistence(nil, testLogger)
		require.Error(t, err)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		_, err := NewPersistence(&config.PersistenceConfig{
			Type:  config.PersistenceTypeRedis,
			Redis: config.RedisConfig{Address: "127.0.0.1:1"},
		}, testLogger)
		require.Error(t, err)
	})
}
