// Package distribution builds the artifact an airdrop operator publishes:
// the merkle root plus a proof for every recipient.
package distribution

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/entitlement"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrRecipientNotFound is returned when asking for the proof of an address
// that has no entitlement
var ErrRecipientNotFound = errors.New("recipient not in distribution")

// ClaimProof is everything a recipient needs to claim
type ClaimProof struct {
	// Index is the leaf position of the entitlement
	Index int `json:"index"`

	// Amount is the entitled amount as a decimal string
	Amount string `json:"amount"`

	// Proof is the inclusion proof of the entitlement leaf
	Proof merkle.Proof `json:"proof"`
}

// AmountInt parses Amount
func (c *ClaimProof) AmountInt() (*uint256.Int, error) {
	return entitlement.ParseAmount(c.Amount)
}

// Distribution is the published airdrop: the root and every recipient's proof
type Distribution struct {
	Root         merkle.Digest                  `json:"root"`
	HashFunction string                         `json:"hashFunction"`
	LeafCount    int                            `json:"leafCount"`
	Claims       map[common.Address]*ClaimProof `json:"claims"`
}

// Build commits to the entitlements in the given order and generates a proof
// for each of them. A nil hasher selects keccak256.
func Build(entitlements []*entitlement.Entitlement, hasher merkle.Hasher) (*Distribution, error) {
	if err := entitlement.ValidateList(entitlements); err != nil {
		return nil, errors.Wrap(err, "invalid entitlements")
	}
	if hasher == nil {
		hasher = merkle.DefaultHasher()
	}

	tree, err := merkle.BuildMerkleTree(entitlement.EncodeAll(entitlements), merkle.WithHasher(hasher))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build merkle tree")
	}

	claims := make(map[common.Address]*ClaimProof, len(entitlements))
	for i, e := range entitlements {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to generate proof for %s", e.Recipient.Hex())
		}
		claims[e.Recipient] = &ClaimProof{
			Index:  i,
			Amount: entitlement.FormatAmount(e.Amount),
			Proof:  proof,
		}
	}

	return &Distribution{
		Root:         tree.Root,
		HashFunction: tree.HashName(),
		LeafCount:    tree.LeafCount(),
		Claims:       claims,
	}, nil
}

// Hasher resolves the distribution's hash function
func (d *Distribution) Hasher() (merkle.Hasher, error) {
	return merkle.HasherByName(d.HashFunction)
}

// ProofFor returns the claim proof of a recipient
func (d *Distribution) ProofFor(recipient common.Address) (*ClaimProof, error) {
	claim, ok := d.Claims[recipient]
	if !ok {
		return nil, errors.Wrap(ErrRecipientNotFound, recipient.Hex())
	}
	return claim, nil
}

// Verify checks every proof in the distribution against its root
func (d *Distribution) Verify() error {
	hasher, err := d.Hasher()
	if err != nil {
		return err
	}
	if len(d.Claims) != d.LeafCount {
		return fmt.Errorf("distribution lists %d claims for %d leaves", len(d.Claims), d.LeafCount)
	}

	seen := make(map[int]common.Address, len(d.Claims))
	for recipient, claim := range d.Claims {
		if claim == nil {
			return fmt.Errorf("claim for %s is empty", recipient.Hex())
		}
		if claim.Index < 0 || claim.Index >= d.LeafCount {
			return fmt.Errorf("claim for %s has index %d outside [0, %d)", recipient.Hex(), claim.Index, d.LeafCount)
		}
		if other, dup := seen[claim.Index]; dup {
			return fmt.Errorf("claims for %s and %s share index %d", other.Hex(), recipient.Hex(), claim.Index)
		}
		seen[claim.Index] = recipient

		amount, err := claim.AmountInt()
		if err != nil {
			return errors.Wrapf(err, "claim for %s", recipient.Hex())
		}
		leaf := entitlement.Encode(recipient, amount)
		if !merkle.VerifyProof(d.Root, leaf, claim.Proof, merkle.WithHasher(hasher)) {
			return fmt.Errorf("proof for %s does not verify against root %s", recipient.Hex(), d.Root.Hex())
		}
	}
	return nil
}

// Save writes the distribution to path as indented JSON
func (d *Distribution) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal distribution")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write distribution to %s", path)
	}
	return nil
}

// Load reads a distribution written by Save
func Load(path string) (*Distribution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read distribution %s", path)
	}

	var d Distribution
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrapf(err, "failed to parse distribution %s", path)
	}
	if d.Claims == nil {
		d.Claims = make(map[common.Address]*ClaimProof)
	}
	return &d, nil
}
