// Package airdrop is the claim state machine: it holds the published root
// and pays each entitled recipient at most once.
package airdrop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/entitlement"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config holds the collaborators of an Airdrop
type Config struct {
	// Persistence stores the root and the claim records
	Persistence persistence.IAirdropPersistence

	// Transferer pays out claims
	Transferer ledger.ITransferer

	Logger *zap.Logger

	// Now overrides the clock, defaults to time.Now
	Now func() time.Time
}

// Airdrop verifies claims against a published merkle root and records them
type Airdrop struct {
	store      persistence.IAirdropPersistence
	transferer ledger.ITransferer
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.RWMutex
	state  *persistence.AirdropState
	hasher merkle.Hasher

	locks *recipientLocks
}

// NewAirdrop creates an airdrop and loads a previously published root, if any
func NewAirdrop(cfg *Config) (*Airdrop, error) {
	if cfg == nil {
		return nil, errors.New("airdrop config cannot be nil")
	}
	if cfg.Persistence == nil {
		return nil, errors.New("persistence is required")
	}
	if cfg.Transferer == nil {
		return nil, errors.New("transferer is required")
	}

	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	a := &Airdrop{
		store:      cfg.Persistence,
		transferer: cfg.Transferer,
		logger:     l,
		now:        now,
		locks:      newRecipientLocks(),
	}

	state, err := a.store.LoadAirdropState()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load airdrop state")
	}
	if state != nil {
		if err := a.setState(state); err != nil {
			return nil, err
		}
		l.Sugar().Infow("Loaded airdrop state",
			"root", state.Root.Hex(),
			"hash_function", state.HashFunction,
			"leaf_count", state.LeafCount,
		)
	}

	return a, nil
}

func (a *Airdrop) setState(state *persistence.AirdropState) error {
	hasher, err := merkle.HasherByName(state.HashFunction)
	if err != nil {
		return errors.Wrap(err, "stored airdrop state has an unsupported hash function")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
	a.hasher = hasher
	return nil
}

// Initialize publishes the root. It can only succeed once over the lifetime
// of the persistence layer.
func (a *Airdrop) Initialize(root merkle.Digest, owner common.Address, hashName string, leafCount int) error {
	if root.IsZero() {
		return errors.Wrap(ErrInvalidRoot, "root must not be zero")
	}
	hasher, err := merkle.HasherByName(hashName)
	if err != nil {
		return errors.Wrap(err, "invalid hash function")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != nil {
		return ErrAlreadyInitialized
	}

	state := &persistence.AirdropState{
		Root:          root,
		Owner:         owner,
		HashFunction:  hasher.HashName(),
		LeafCount:     leafCount,
		InitializedAt: a.now().Unix(),
	}
	if err := a.store.SaveAirdropState(state); err != nil {
		if errors.Is(err, persistence.ErrAlreadyInitialized) {
			return ErrAlreadyInitialized
		}
		return errors.Wrap(err, "failed to save airdrop state")
	}

	a.state = state
	a.hasher = hasher

	a.logger.Sugar().Infow("Airdrop initialized",
		"root", root.Hex(),
		"owner", owner.Hex(),
		"hash_function", state.HashFunction,
		"leaf_count", leafCount,
	)
	return nil
}

// EnsureInitialized publishes the root on first start. When a root is
// already stored (possibly by another server sharing the store) it must
// match root and hashName, otherwise ErrRootMismatch is returned.
func (a *Airdrop) EnsureInitialized(root merkle.Digest, owner common.Address, hashName string, leafCount int) error {
	err := a.Initialize(root, owner, hashName, leafCount)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAlreadyInitialized) {
		return err
	}

	a.mu.RLock()
	loaded := a.state != nil
	a.mu.RUnlock()
	if !loaded {
		stored, loadErr := a.store.LoadAirdropState()
		if loadErr != nil {
			return errors.Wrap(loadErr, "failed to load airdrop state")
		}
		if stored == nil {
			return err
		}
		if setErr := a.setState(stored); setErr != nil {
			return setErr
		}
	}

	state, err := a.State()
	if err != nil {
		return err
	}
	hasher, err := merkle.HasherByName(hashName)
	if err != nil {
		return errors.Wrap(err, "invalid hash function")
	}
	if state.Root != root || state.HashFunction != hasher.HashName() {
		return errors.Wrapf(ErrRootMismatch, "stored %s (%s), configured %s (%s)",
			state.Root.Hex(), state.HashFunction, root.Hex(), hasher.HashName())
	}

	a.logger.Sugar().Infow("Airdrop already initialized", "root", root.Hex(), "hash_function", state.HashFunction)
	return nil
}

// State returns a copy of the published state or ErrNotInitialized
func (a *Airdrop) State() (*persistence.AirdropState, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.state == nil {
		return nil, ErrNotInitialized
	}
	stateCopy := *a.state
	return &stateCopy, nil
}

// snapshot returns the root and hasher claims are verified with
func (a *Airdrop) snapshot() (merkle.Digest, merkle.Hasher, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.state == nil {
		return merkle.Digest{}, nil, ErrNotInitialized
	}
	return a.state.Root, a.hasher, nil
}

// verify reports whether (recipient, amount) is committed to by root
func verify(root merkle.Digest, hasher merkle.Hasher, recipient common.Address, amount *uint256.Int, proof merkle.Proof) bool {
	if amount == nil || amount.IsZero() {
		return false
	}
	leaf := entitlement.Encode(recipient, amount)
	return merkle.VerifyProof(root, leaf, proof, merkle.WithHasher(hasher))
}

// CanClaim reports whether recipient has not claimed yet and the proof
// verifies. A malformed proof is simply false; errors are reserved for an
// uninitialized airdrop or a storage failure.
func (a *Airdrop) CanClaim(ctx context.Context, recipient common.Address, amount *uint256.Int, proof merkle.Proof) (bool, error) {
	root, hasher, err := a.snapshot()
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	record, err := a.store.LoadClaim(recipient)
	if err != nil {
		return false, errors.Wrap(err, "failed to load claim")
	}
	if record.IsClaimed() {
		return false, nil
	}

	return verify(root, hasher, recipient, amount, proof), nil
}

// Claim pays amount to caller if the proof verifies and caller has not
// claimed before. On any error nothing is recorded and nothing is paid,
// except ErrCommitFailed where the payment happened and the claim stays
// reserved.
func (a *Airdrop) Claim(ctx context.Context, caller common.Address, amount *uint256.Int, proof merkle.Proof) (*types.ClaimRecord, error) {
	root, hasher, err := a.snapshot()
	if err != nil {
		return nil, err
	}

	sugar := a.logger.Sugar().With("recipient", caller.Hex())

	unlock := a.locks.lock(caller)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing, err := a.store.LoadClaim(caller)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load claim")
	}
	if existing.IsClaimed() {
		sugar.Debugw("Rejected claim, already claimed", "claim_id", existing.ClaimID)
		return nil, ErrAlreadyClaimed
	}

	if !verify(root, hasher, caller, amount, proof) {
		sugar.Debugw("Rejected claim, invalid proof", "proof_length", len(proof))
		return nil, ErrInvalidProof
	}

	reservation := &types.ClaimRecord{
		ClaimID:    uuid.New().String(),
		Recipient:  caller,
		Amount:     entitlement.FormatAmount(amount),
		State:      types.ClaimStateReserved,
		ReservedAt: a.now().Unix(),
	}
	if err := a.store.ReserveClaim(reservation); err != nil {
		if errors.Is(err, persistence.ErrAlreadyClaimed) {
			// Claimed through another server sharing the store
			return nil, ErrAlreadyClaimed
		}
		return nil, errors.Wrap(err, "failed to reserve claim")
	}

	ref, err := a.transferer.Transfer(ctx, caller, amount)
	if err != nil {
		if releaseErr := a.store.ReleaseClaim(caller); releaseErr != nil {
			sugar.Errorw("Failed to release claim after transfer failure",
				"claim_id", reservation.ClaimID,
				"transfer_error", err,
				"error", releaseErr,
			)
		}
		sugar.Warnw("Claim transfer failed", "claim_id", reservation.ClaimID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	claimedAt := a.now().Unix()
	if err := a.store.CommitClaim(caller, ref, claimedAt); err != nil {
		sugar.Errorw("Transfer succeeded but claim commit failed",
			"claim_id", reservation.ClaimID,
			"transfer_ref", ref,
			"error", err,
		)
		return nil, fmt.Errorf("%w: transfer %s: %w", ErrCommitFailed, ref, err)
	}

	record, err := a.store.LoadClaim(caller)
	if err != nil || record == nil {
		record = reservation.Clone()
		record.State = types.ClaimStateClaimed
		record.TransferRef = ref
		record.ClaimedAt = claimedAt
	}

	sugar.Infow("Claim completed",
		"claim_id", record.ClaimID,
		"amount", record.Amount,
		"transfer_ref", ref,
	)
	return record, nil
}

// ClaimStatus returns the claim record of recipient, nil if it has not claimed
func (a *Airdrop) ClaimStatus(recipient common.Address) (*types.ClaimRecord, error) {
	record, err := a.store.LoadClaim(recipient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load claim")
	}
	return record, nil
}

// ListClaims returns every claim record ordered by reservation time
func (a *Airdrop) ListClaims() ([]*types.ClaimRecord, error) {
	claims, err := a.store.ListClaims()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list claims")
	}
	return claims, nil
}

// HealthCheck reports whether the persistence layer is usable
func (a *Airdrop) HealthCheck() error {
	return a.store.HealthCheck()
}
