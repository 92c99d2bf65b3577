package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "0x0101010101010101010101010101010101010101010101010101010101010101"

func validConfig() *AirdropServerConfig {
	return &AirdropServerConfig{
		Port:         DefaultPort,
		Root:         testRoot,
		HashFunction: "keccak256",
		Owner:        "0x00000000000000000000000000000000000000ff",
		PoolBalance:  "1000000",
		RateLimit:    DefaultRateLimit,
		RateBurst:    DefaultRateBurst,
		Persistence: PersistenceConfig{
			Type:       PersistenceTypeBadger,
			BadgerPath: DefaultBadgerPath,
		},
	}
}

func TestAirdropServerConfig_Validate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, testRoot, cfg.RootDigest.Hex())
	assert.Equal(t, uint64(1000000), cfg.PoolAmount.Uint64())
	assert.Equal(t, "0x00000000000000000000000000000000000000FF", cfg.OwnerAddr.Hex())
}

func TestAirdropServerConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *AirdropServerConfig)
		wantErr string
	}{
		{"port zero", func(c *AirdropServerConfig) { c.Port = 0 }, "port"},
		{"port too high", func(c *AirdropServerConfig) { c.Port = 70000 }, "port"},
		{"missing root", func(c *AirdropServerConfig) { c.Root = "" }, "root"},
		{"short root", func(c *AirdropServerConfig) { c.Root = "0x1234" }, "root"},
		{"zero root", func(c *AirdropServerConfig) { c.Root = "0x0000000000000000000000000000000000000000000000000000000000000000" }, "zero"},
		{"bad hash", func(c *AirdropServerConfig) { c.HashFunction = "md5" }, "hashFunction"},
		{"bad owner", func(c *AirdropServerConfig) { c.Owner = "not-an-address" }, "owner"},
		{"negative leaves", func(c *AirdropServerConfig) { c.LeafCount = -1 }, "leafCount"},
		{"missing pool", func(c *AirdropServerConfig) { c.PoolBalance = "" }, "poolBalance"},
		{"bad pool", func(c *AirdropServerConfig) { c.PoolBalance = "lots" }, "poolBalance"},
		{"negative rate", func(c *AirdropServerConfig) { c.RateLimit = -1 }, "rateLimit"},
		{"zero burst", func(c *AirdropServerConfig) { c.RateBurst = 0 }, "rateBurst"},
		{"bad persistence", func(c *AirdropServerConfig) { c.Persistence.Type = "sqlite" }, "persistence.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAirdropServerConfig_OptionalFields(t *testing.T) {
	cfg := validConfig()
	cfg.Owner = ""
	cfg.HashFunction = ""
	cfg.RateLimit = 0
	cfg.RateBurst = 0
	require.NoError(t, cfg.Validate())
}

func TestAirdropServerConfig_AggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 0
	cfg.Root = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "root")
}

func TestPersistenceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PersistenceConfig
		wantErr bool
	}{
		{"memory", PersistenceConfig{Type: PersistenceTypeMemory}, false},
		{"badger", PersistenceConfig{Type: PersistenceTypeBadger, BadgerPath: "/tmp/x"}, false},
		{"badger without path", PersistenceConfig{Type: PersistenceTypeBadger}, true},
		{"redis", PersistenceConfig{Type: PersistenceTypeRedis, Redis: RedisConfig{Address: DefaultRedisAddress}}, false},
		{"redis without address", PersistenceConfig{Type: PersistenceTypeRedis}, true},
		{"redis bad db", PersistenceConfig{Type: PersistenceTypeRedis, Redis: RedisConfig{Address: "x:1", DB: 16}}, true},
		{"postgres", PersistenceConfig{Type: PersistenceTypePostgres, PostgresDSN: "postgres://localhost/airdrop"}, false},
		{"postgres without dsn", PersistenceConfig{Type: PersistenceTypePostgres}, true},
		{"unknown", PersistenceConfig{Type: "sqlite"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetSupportedPersistenceTypesString(t *testing.T) {
	assert.Equal(t, "memory, badger, redis, postgres", GetSupportedPersistenceTypesString())
}
