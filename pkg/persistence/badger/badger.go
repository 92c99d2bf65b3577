package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyAirdropState      = "airdrop:state"
	keyPrefixClaim       = "claim:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "airdrop-v1"

	// maxConflictRetries bounds retries of write transactions that lost an
	// optimistic concurrency race
	maxConflictRetries = 16
)

// BadgerPersistence is a production-ready persistence implementation using Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newBadgerLogger(logger)
	opts.SyncWrites = true // a claim must survive a crash once acknowledged
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema writes the schema version on first open and checks it afterwards
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		val, err := getValue(txn, keySchemaVersion)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if val == nil {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if string(val) != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", val, currentSchemaVersion)
		}
		return nil
	})
}

// runGC runs periodic value log garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// update runs a read-write transaction, retrying when badger reports a
// conflict with a concurrently committed transaction.
func (b *BadgerPersistence) update(fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction conflict after %d attempts: %w", maxConflictRetries, err)
}

// getValue returns a copy of the value stored under key, or nil if absent
func getValue(txn *badgerdb.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func claimKey(recipient common.Address) string {
	return keyPrefixClaim + persistence.RecipientKey(recipient)
}

// SaveAirdropState persists the airdrop state once
func (b *BadgerPersistence) SaveAirdropState(state *persistence.AirdropState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("invalid airdrop state: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalAirdropState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal AirdropState: %w", err)
	}

	return b.update(func(txn *badgerdb.Txn) error {
		existing, err := getValue(txn, keyAirdropState)
		if err != nil {
			return fmt.Errorf("failed to read AirdropState: %w", err)
		}
		if existing != nil {
			return persistence.ErrAlreadyInitialized
		}
		return txn.Set([]byte(keyAirdropState), data)
	})
}

// LoadAirdropState retrieves the airdrop state
func (b *BadgerPersistence) LoadAirdropState() (*persistence.AirdropState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, keyAirdropState)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load AirdropState: %w", err)
	}
	if data == nil {
		return nil, nil // Not initialized
	}

	state, err := persistence.UnmarshalAirdropState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal AirdropState: %w", err)
	}
	return state, nil
}

// ReserveClaim inserts a reserved record if the recipient has none
func (b *BadgerPersistence) ReserveClaim(record *types.ClaimRecord) error {
	if err := persistence.ValidateClaimRecord(record); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalClaimRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ClaimRecord: %w", err)
	}

	key := claimKey(record.Recipient)
	return b.update(func(txn *badgerdb.Txn) error {
		existing, err := getValue(txn, key)
		if err != nil {
			return fmt.Errorf("failed to read ClaimRecord: %w", err)
		}
		if existing != nil {
			return persistence.ErrAlreadyClaimed
		}
		return txn.Set([]byte(key), data)
	})
}

// CommitClaim marks a reservation as claimed
func (b *BadgerPersistence) CommitClaim(recipient common.Address, transferRef string, claimedAt int64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	key := claimKey(recipient)
	return b.update(func(txn *badgerdb.Txn) error {
		record, err := loadClaimTxn(txn, key)
		if err != nil {
			return err
		}
		if record == nil {
			return persistence.ErrClaimNotFound
		}
		if record.State != types.ClaimStateReserved {
			return persistence.ErrClaimNotReserved
		}

		record.State = types.ClaimStateClaimed
		record.TransferRef = transferRef
		record.ClaimedAt = claimedAt

		data, err := persistence.MarshalClaimRecord(record)
		if err != nil {
			return fmt.Errorf("failed to marshal ClaimRecord: %w", err)
		}
		return txn.Set([]byte(key), data)
	})
}

// ReleaseClaim removes a reservation
func (b *BadgerPersistence) ReleaseClaim(recipient common.Address) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	key := claimKey(recipient)
	return b.update(func(txn *badgerdb.Txn) error {
		record, err := loadClaimTxn(txn, key)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}
		if record.State != types.ClaimStateReserved {
			return persistence.ErrClaimNotReserved
		}
		return txn.Delete([]byte(key))
	})
}

// LoadClaim retrieves a recipient's claim record
func (b *BadgerPersistence) LoadClaim(recipient common.Address) (*types.ClaimRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var record *types.ClaimRecord
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		record, err = loadClaimTxn(txn, claimKey(recipient))
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func loadClaimTxn(txn *badgerdb.Txn, key string) (*types.ClaimRecord, error) {
	data, err := getValue(txn, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load ClaimRecord: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	record, err := persistence.UnmarshalClaimRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ClaimRecord: %w", err)
	}
	return record, nil
}

// ListClaims returns all claim records sorted by reservation time
func (b *BadgerPersistence) ListClaims() ([]*types.ClaimRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	claims := make([]*types.ClaimRecord, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixClaim)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				record, err := persistence.UnmarshalClaimRecord(val)
				if err != nil {
					return fmt.Errorf("failed to unmarshal ClaimRecord at key %s: %w", item.Key(), err)
				}
				claims = append(claims, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	persistence.SortClaims(claims)
	return claims, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		val, err := getValue(txn, keySchemaVersion)
		if err != nil {
			return err
		}
		if val == nil {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return nil
	})
}
