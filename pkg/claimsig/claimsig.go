// Package claimsig authenticates claim requests: the recipient of a claim is
// the address that signed it.
package claimsig

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// SignatureLength is the length of a [R || S || V] secp256k1 signature
const SignatureLength = crypto.SignatureLength

// domainTag separates claim digests from any other keccak256 message
var domainTag = []byte("merkle-airdrop-claim-v1")

// ClaimDigest is keccak256(domainTag || root || amount || proof), where the
// amount is 32 bytes big-endian and each proof element is its side byte
// followed by the sibling digest. Binding the root prevents a signature from
// being replayed against another airdrop.
func ClaimDigest(root merkle.Digest, amount *uint256.Int, proof merkle.Proof) [32]byte {
	var amountBytes [32]byte
	if amount != nil {
		amountBytes = amount.Bytes32()
	}

	parts := make([][]byte, 0, 3+2*len(proof))
	parts = append(parts, domainTag, root[:], amountBytes[:])
	for _, el := range proof {
		sibling := el.Sibling
		parts = append(parts, []byte{byte(el.Side)}, sibling[:])
	}

	var digest [32]byte
	copy(digest[:], crypto.Keccak256(parts...))
	return digest
}

// SignClaim signs the claim digest with the recipient's key
func SignClaim(privateKey *ecdsa.PrivateKey, root merkle.Digest, amount *uint256.Int, proof merkle.Proof) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}

	digest := ClaimDigest(root, amount, proof)
	signature, err := crypto.Sign(digest[:], privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %w", err)
	}
	return signature, nil
}

// RecoverClaimant recovers the address that signed the claim.
// Both the 0/1 and the 27/28 recovery id conventions are accepted.
func RecoverClaimant(root merkle.Digest, amount *uint256.Int, proof merkle.Proof, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: got %d bytes, expected %d", len(signature), SignatureLength)
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := ClaimDigest(root, amount, proof)
	pubKey, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}
