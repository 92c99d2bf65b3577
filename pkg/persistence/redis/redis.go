package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyAirdropState      = "airdrop:state"
	keyPrefixClaim       = "airdrop:claim:"
	keySchemaVersion     = "airdrop:metadata:schema_version"
	currentSchemaVersion = "airdrop-v1"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetClaims = "airdrop:claims:index"

	operationTimeout   = 5 * time.Second
	maxConflictRetries = 16
)

// reserveScript inserts a claim record and indexes it only if the recipient has no record.
// KEYS[1] = claim key, KEYS[2] = index set, ARGV[1] = record JSON, ARGV[2] = recipient
var reserveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[2], ARGV[2])
return 1
`)

// RedisPersistence is a production-ready persistence implementation using Redis.
// Provides durable, distributed storage shared by several airdrop servers.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys, so several airdrops
	// can share one Redis. "drop1:" results in keys like "drop1:airdrop:state".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisPersistence) claimKey(recipient common.Address) string {
	return r.prefixKey(keyPrefixClaim + persistence.RecipientKey(recipient))
}

// initSchema writes the schema version on first use and checks it afterwards
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	if _, err := r.client.SetNX(ctx, schemaKey, currentSchemaVersion, 0).Result(); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

// SaveAirdropState persists the airdrop state once
func (r *RedisPersistence) SaveAirdropState(state *persistence.AirdropState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("invalid airdrop state: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalAirdropState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal AirdropState: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	stored, err := r.client.SetNX(ctx, r.prefixKey(keyAirdropState), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save AirdropState: %w", err)
	}
	if !stored {
		return persistence.ErrAlreadyInitialized
	}
	return nil
}

// LoadAirdropState retrieves the airdrop state
func (r *RedisPersistence) LoadAirdropState() (*persistence.AirdropState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefixKey(keyAirdropState)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not initialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AirdropState: %w", err)
	}

	state, err := persistence.UnmarshalAirdropState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal AirdropState: %w", err)
	}
	return state, nil
}

// ReserveClaim inserts a reserved record if the recipient has none
func (r *RedisPersistence) ReserveClaim(record *types.ClaimRecord) error {
	if err := persistence.ValidateClaimRecord(record); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalClaimRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ClaimRecord: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	keys := []string{r.claimKey(record.Recipient), r.prefixKey(keySetClaims)}
	inserted, err := reserveScript.Run(ctx, r.client, keys, data, persistence.RecipientKey(record.Recipient)).Int()
	if err != nil {
		return fmt.Errorf("failed to reserve claim: %w", err)
	}
	if inserted == 0 {
		return persistence.ErrAlreadyClaimed
	}
	return nil
}

// updateClaim runs fn against the current record under WATCH, retrying when
// another client modified the key between read and write. fn returns the
// record to store, or nil to delete the key.
func (r *RedisPersistence) updateClaim(
	ctx context.Context,
	recipient common.Address,
	fn func(record *types.ClaimRecord) (*types.ClaimRecord, error),
) error {
	key := r.claimKey(recipient)
	indexKey := r.prefixKey(keySetClaims)

	txf := func(tx *redis.Tx) error {
		var current *types.ClaimRecord
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("failed to load ClaimRecord: %w", err)
		default:
			current, err = persistence.UnmarshalClaimRecord(data)
			if err != nil {
				return fmt.Errorf("failed to unmarshal ClaimRecord: %w", err)
			}
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}

		var payload []byte
		if updated != nil {
			payload, err = persistence.MarshalClaimRecord(updated)
			if err != nil {
				return fmt.Errorf("failed to marshal ClaimRecord: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if updated == nil {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, indexKey, persistence.RecipientKey(recipient))
				return nil
			}
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("claim for %s modified concurrently %d times", recipient.Hex(), maxConflictRetries)
}

// CommitClaim marks a reservation as claimed
func (r *RedisPersistence) CommitClaim(recipient common.Address, transferRef string, claimedAt int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	return r.updateClaim(ctx, recipient, func(record *types.ClaimRecord) (*types.ClaimRecord, error) {
		if record == nil {
			return nil, persistence.ErrClaimNotFound
		}
		if record.State != types.ClaimStateReserved {
			return nil, persistence.ErrClaimNotReserved
		}
		record.State = types.ClaimStateClaimed
		record.TransferRef = transferRef
		record.ClaimedAt = claimedAt
		return record, nil
	})
}

// errNothingToRelease aborts a release transaction without writing
var errNothingToRelease = errors.New("no reservation to release")

// ReleaseClaim removes a reservation
func (r *RedisPersistence) ReleaseClaim(recipient common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	err := r.updateClaim(ctx, recipient, func(record *types.ClaimRecord) (*types.ClaimRecord, error) {
		if record == nil {
			return nil, errNothingToRelease
		}
		if record.State != types.ClaimStateReserved {
			return nil, persistence.ErrClaimNotReserved
		}
		return nil, nil
	})
	if errors.Is(err, errNothingToRelease) {
		return nil
	}
	return err
}

// LoadClaim retrieves a recipient's claim record
func (r *RedisPersistence) LoadClaim(recipient common.Address) (*types.ClaimRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.claimKey(recipient)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ClaimRecord: %w", err)
	}

	record, err := persistence.UnmarshalClaimRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ClaimRecord: %w", err)
	}
	return record, nil
}

// ListClaims returns all claim records sorted by reservation time
func (r *RedisPersistence) ListClaims() ([]*types.ClaimRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	members, err := r.client.SMembers(ctx, r.prefixKey(keySetClaims)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list claim index: %w", err)
	}

	claims := make([]*types.ClaimRecord, 0, len(members))
	if len(members) == 0 {
		return claims, nil
	}

	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = r.prefixKey(keyPrefixClaim + member)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Released between SMEMBERS and MGET
			continue
		}
		record, err := persistence.UnmarshalClaimRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal ClaimRecord at key %s: %w", keys[i], err)
		}
		claims = append(claims, record)
	}

	persistence.SortClaims(claims)
	return claims, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
