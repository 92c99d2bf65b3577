package config

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for airdrop server configuration
const (
	EnvAirdropPort           = "AIRDROP_PORT"
	EnvAirdropRoot           = "AIRDROP_ROOT"
	EnvAirdropHashFunction   = "AIRDROP_HASH_FUNCTION"
	EnvAirdropOwner          = "AIRDROP_OWNER"
	EnvAirdropLeafCount      = "AIRDROP_LEAF_COUNT"
	EnvAirdropPoolBalance    = "AIRDROP_POOL_BALANCE"
	EnvAirdropRateLimit      = "AIRDROP_RATE_LIMIT"
	EnvAirdropRateBurst      = "AIRDROP_RATE_BURST"
	EnvAirdropVerbose        = "AIRDROP_VERBOSE"
	EnvAirdropServerURL      = "AIRDROP_SERVER_URL"
	EnvAirdropPrivateKey     = "AIRDROP_PRIVATE_KEY"
	EnvPersistenceType       = "AIRDROP_PERSISTENCE_TYPE"
	EnvPersistenceBadgerPath = "AIRDROP_BADGER_PATH"
	EnvRedisAddress          = "AIRDROP_REDIS_ADDRESS"
	EnvRedisPassword         = "AIRDROP_REDIS_PASSWORD"
	EnvRedisDB               = "AIRDROP_REDIS_DB"
	EnvRedisKeyPrefix        = "AIRDROP_REDIS_KEY_PREFIX"
	EnvPostgresDSN           = "AIRDROP_POSTGRES_DSN"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory   PersistenceType = "memory"
	PersistenceTypeBadger   PersistenceType = "badger"
	PersistenceTypeRedis    PersistenceType = "redis"
	PersistenceTypePostgres PersistenceType = "postgres"
)

// GetSupportedPersistenceTypes returns all persistence backends
func GetSupportedPersistenceTypes() []PersistenceType {
	return []PersistenceType{
		PersistenceTypeMemory,
		PersistenceTypeBadger,
		PersistenceTypeRedis,
		PersistenceTypePostgres,
	}
}

// GetSupportedPersistenceTypesString returns the backends as a string for CLI help
func GetSupportedPersistenceTypesString() string {
	names := make([]string, 0, 4)
	for _, t := range GetSupportedPersistenceTypes() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

// Defaults for optional settings
const (
	DefaultPort             = 8080
	DefaultBadgerPath       = "./airdrop-data"
	DefaultRedisAddress     = "localhost:6379"
	DefaultRateLimit        = 10.0
	DefaultRateBurst        = 20
	DefaultPersistenceType  = PersistenceTypeBadger
	DefaultServerURL        = "http://localhost:8080"
	maxRedisDB              = 15
	maxRequestsPerSecondCap = 100000
)

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// PersistenceConfig selects and configures the claim store
type PersistenceConfig struct {
	Type        PersistenceType `json:"type" yaml:"type"`
	BadgerPath  string          `json:"badgerPath" yaml:"badgerPath"`
	Redis       RedisConfig     `json:"redis" yaml:"redis"`
	PostgresDSN string          `json:"postgresDsn" yaml:"postgresDsn"`
}

func (pc *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch pc.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if pc.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("badgerPath"), "badger path is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if pc.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "redis address is required for redis persistence"))
		}
		if pc.Redis.DB < 0 || pc.Redis.DB > maxRedisDB {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), pc.Redis.DB, "redis db must be between 0-15"))
		}
	case PersistenceTypePostgres:
		if pc.PostgresDSN == "" {
			allErrors = append(allErrors, field.Required(path.Child("postgresDsn"), "postgres DSN is required for postgres persistence"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type, []string{
			PersistenceTypeMemory.String(),
			PersistenceTypeBadger.String(),
			PersistenceTypeRedis.String(),
			PersistenceTypePostgres.String(),
		}))
	}

	return allErrors
}

// Validate checks the persistence settings
func (pc *PersistenceConfig) Validate() error {
	if allErrors := pc.validate(field.NewPath("persistence")); len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// AirdropServerConfig represents the complete configuration for an airdrop server
type AirdropServerConfig struct {
	Port int `json:"port"`

	// Commitment
	Root         string `json:"root"`          // 0x-prefixed 32-byte merkle root
	HashFunction string `json:"hash_function"` // hasher the tree was built with
	Owner        string `json:"owner"`         // address recorded as the initializer
	LeafCount    int    `json:"leaf_count"`    // informational

	// Value transfer
	PoolBalance string `json:"pool_balance"` // decimal amount funding the in-memory ledger

	// Rate limiting per client on the claim endpoints
	RateLimit float64 `json:"rate_limit"` // requests per second, 0 disables
	RateBurst int     `json:"rate_burst"`

	Persistence PersistenceConfig `json:"persistence"`

	Debug   bool `json:"debug"`
	Verbose bool `json:"verbose"`

	// Parsed values, populated by Validate
	RootDigest merkle.Digest  `json:"-"`
	OwnerAddr  common.Address `json:"-"`
	PoolAmount *uint256.Int   `json:"-"`
}

// Validate validates the configuration and populates the parsed fields
func (c *AirdropServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	if c.Root == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("root"), "merkle root is required"))
	} else if root, err := merkle.ParseDigest(c.Root); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("root"), c.Root, err.Error()))
	} else if root.IsZero() {
		allErrors = append(allErrors, field.Invalid(field.NewPath("root"), c.Root, "merkle root must not be zero"))
	} else {
		c.RootDigest = root
	}

	if _, err := merkle.HasherByName(c.HashFunction); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("hashFunction"), c.HashFunction, merkle.SupportedHashes()))
	}

	if c.Owner != "" {
		if !common.IsHexAddress(c.Owner) {
			allErrors = append(allErrors, field.Invalid(field.NewPath("owner"), c.Owner, "invalid owner address format"))
		} else {
			c.OwnerAddr = common.HexToAddress(c.Owner)
		}
	}

	if c.LeafCount < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("leafCount"), c.LeafCount, "leaf count must not be negative"))
	}

	if c.PoolBalance == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("poolBalance"), "pool balance is required"))
	} else if amount, err := uint256.FromDecimal(c.PoolBalance); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("poolBalance"), c.PoolBalance, "pool balance must be a decimal integer"))
	} else {
		c.PoolAmount = amount
	}

	if c.RateLimit < 0 || c.RateLimit > maxRequestsPerSecondCap {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, fmt.Sprintf("rate limit must be between 0-%d", maxRequestsPerSecondCap)))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "rate burst must be at least 1 when rate limiting is enabled"))
	}

	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
