package types

import (
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
)

// RootResponse describes the published airdrop commitment
type RootResponse struct {
	Initialized  bool   `json:"initialized"`
	Root         string `json:"root,omitempty"`
	HashFunction string `json:"hashFunction,omitempty"`
	LeafCount    int    `json:"leafCount,omitempty"`
	Owner        string `json:"owner,omitempty"`
}

// CanClaimRequest asks whether a recipient could claim an amount with a proof
type CanClaimRequest struct {
	Recipient string                       `json:"recipient"`
	Amount    string                       `json:"amount"`
	Proof     []merkle.EncodedProofElement `json:"proof"`
}

// CanClaimResponse is the answer to a CanClaimRequest
type CanClaimResponse struct {
	CanClaim bool `json:"canClaim"`
}

// ClaimRequest claims an amount for the signer of the request.
// Signature is a 65-byte [R || S || V] secp256k1 signature over the claim digest.
type ClaimRequest struct {
	Amount    string                       `json:"amount"`
	Proof     []merkle.EncodedProofElement `json:"proof"`
	Signature string                       `json:"signature"`
}

// ClaimResponse is returned after a successful claim
type ClaimResponse struct {
	Claim *ClaimRecord `json:"claim"`
}

// ClaimStatusResponse reports the claim state of a recipient
type ClaimStatusResponse struct {
	Recipient string       `json:"recipient"`
	Claimed   bool         `json:"claimed"`
	Claim     *ClaimRecord `json:"claim,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}
