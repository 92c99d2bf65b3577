package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// ClaimState is the lifecycle state of a recipient's claim record
type ClaimState string

const (
	// ClaimStateReserved marks a claim whose value transfer is in flight.
	// A reservation blocks concurrent claims for the same recipient and is
	// either committed or released.
	ClaimStateReserved ClaimState = "reserved"

	// ClaimStateClaimed is terminal: the transfer happened and the recipient
	// can never claim again.
	ClaimStateClaimed ClaimState = "claimed"
)

// ClaimRecord is the per-recipient claim marker. Absence of a record means
// the recipient has not claimed.
type ClaimRecord struct {
	// ClaimID uniquely identifies the claim attempt
	ClaimID string `json:"claimId"`

	// Recipient is the address that received the airdrop
	Recipient common.Address `json:"recipient"`

	// Amount is the claimed amount as a decimal string
	Amount string `json:"amount"`

	// State is reserved while the transfer runs, claimed once committed
	State ClaimState `json:"state"`

	// ReservedAt is the Unix timestamp of the reservation
	ReservedAt int64 `json:"reservedAt"`

	// ClaimedAt is the Unix timestamp of the commit, zero while reserved
	ClaimedAt int64 `json:"claimedAt,omitempty"`

	// TransferRef is the reference returned by the value transfer
	TransferRef string `json:"transferRef,omitempty"`
}

// IsClaimed reports whether the record blocks further claims.
// Both reserved and claimed records count: a reservation is an in-flight claim.
func (c *ClaimRecord) IsClaimed() bool {
	return c != nil && (c.State == ClaimStateClaimed || c.State == ClaimStateReserved)
}

// Clone returns a copy of the record
func (c *ClaimRecord) Clone() *ClaimRecord {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
