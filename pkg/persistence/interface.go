package persistence

import (
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// IAirdropPersistence defines the interface for persisting airdrop state across restarts.
// All implementations must be thread-safe as claims are processed concurrently.
//
// The interface supports:
// - Airdrop initialization (the published root, written exactly once)
// - Claim reservation and commit (at most one claim per recipient)
// - Claim lookup and listing
// - Lifecycle management (close, health check)
type IAirdropPersistence interface {
	// Airdrop State

	// SaveAirdropState persists the airdrop root and its metadata.
	// The state can only be written once; returns ErrAlreadyInitialized if
	// a state already exists, regardless of its contents.
	SaveAirdropState(state *AirdropState) error

	// LoadAirdropState retrieves the airdrop state.
	// Returns nil if the airdrop was never initialized, error only on storage failure.
	LoadAirdropState() (*AirdropState, error)

	// Claim Management

	// ReserveClaim atomically inserts a reserved claim record for its recipient.
	// Returns ErrAlreadyClaimed if any record (reserved or claimed) exists for
	// the recipient. This is the cross-process guarantee that a recipient
	// is paid at most once.
	ReserveClaim(record *types.ClaimRecord) error

	// CommitClaim marks a reserved claim as claimed at claimedAt (Unix seconds)
	// and stores the transfer reference.
	// Returns ErrClaimNotFound if no record exists, ErrClaimNotReserved if the
	// record was already committed.
	CommitClaim(recipient common.Address, transferRef string, claimedAt int64) error

	// ReleaseClaim removes a reservation whose transfer failed.
	// Idempotent - returns nil if no record exists.
	// Committed claims are never removed; returns ErrClaimNotReserved for them.
	ReleaseClaim(recipient common.Address) error

	// LoadClaim retrieves the claim record for a recipient.
	// Returns nil if the recipient has not claimed, error only on storage failure.
	LoadClaim(recipient common.Address) (*types.ClaimRecord, error)

	// ListClaims returns all claim records sorted by reservation time (ascending).
	// Returns empty slice if no claims exist, error only on storage failure.
	ListClaims() ([]*types.ClaimRecord, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
