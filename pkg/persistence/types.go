package persistence

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAlreadyInitialized is returned when saving airdrop state a second time
	ErrAlreadyInitialized = errors.New("airdrop already initialized")

	// ErrAlreadyClaimed is returned when reserving a claim for a recipient that has a record
	ErrAlreadyClaimed = errors.New("recipient already claimed")

	// ErrClaimNotFound is returned when committing a claim that was never reserved
	ErrClaimNotFound = errors.New("claim not found")

	// ErrClaimNotReserved is returned when committing or releasing a claim that is already committed
	ErrClaimNotReserved = errors.New("claim is not in reserved state")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("persistence layer is closed")
)

// AirdropState is the published commitment. It is written once at
// initialization and never modified.
type AirdropState struct {
	// Root is the merkle root every claim is verified against
	Root merkle.Digest `json:"root"`

	// Owner is the address that initialized the airdrop
	Owner common.Address `json:"owner"`

	// HashFunction names the hasher the tree was built with
	HashFunction string `json:"hashFunction"`

	// LeafCount is the number of entitlements committed by the root.
	// Informational only, zero when unknown.
	LeafCount int `json:"leafCount"`

	// InitializedAt is the Unix timestamp of initialization
	InitializedAt int64 `json:"initializedAt"`
}

// Validate checks the state before it is persisted
func (s *AirdropState) Validate() error {
	if s == nil {
		return fmt.Errorf("airdrop state is nil")
	}
	if s.Root.IsZero() {
		return fmt.Errorf("airdrop root must not be zero")
	}
	if _, err := merkle.HasherByName(s.HashFunction); err != nil {
		return err
	}
	if s.LeafCount < 0 {
		return fmt.Errorf("leaf count must not be negative")
	}
	return nil
}

// ValidateClaimRecord checks a record before it is reserved
func ValidateClaimRecord(record *types.ClaimRecord) error {
	if record == nil {
		return fmt.Errorf("claim record is nil")
	}
	if record.Recipient == (common.Address{}) {
		return fmt.Errorf("claim record has zero recipient")
	}
	if record.ClaimID == "" {
		return fmt.Errorf("claim record has no claim id")
	}
	if record.State != types.ClaimStateReserved {
		return fmt.Errorf("claim record must be reserved, got %q", record.State)
	}
	return nil
}

// RecipientKey is the canonical storage key for a recipient: lowercase 0x hex
func RecipientKey(recipient common.Address) string {
	return "0x" + common.Bytes2Hex(recipient.Bytes())
}

// SortClaims orders claim records by reservation time, then by recipient
func SortClaims(claims []*types.ClaimRecord) {
	sort.Slice(claims, func(i, j int) bool {
		if claims[i].ReservedAt != claims[j].ReservedAt {
			return claims[i].ReservedAt < claims[j].ReservedAt
		}
		return RecipientKey(claims[i].Recipient) < RecipientKey(claims[j].Recipient)
	})
}
