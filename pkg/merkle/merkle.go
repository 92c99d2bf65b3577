package merkle

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTree is returned when building a tree from no items
	ErrEmptyTree = errors.New("cannot build merkle tree from empty item list")

	// ErrLeafIndexOutOfRange is returned when a proof is requested for a leaf that does not exist
	ErrLeafIndexOutOfRange = errors.New("leaf index out of range")

	// ErrInvalidHasher is returned when the hasher does not produce 32-byte digests
	ErrInvalidHasher = errors.New("hasher must produce 32-byte digests")
)

// Domain prefixes keep leaf and internal node preimages disjoint, so the
// 64-byte concatenation of two children can never pass as a leaf.
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

type options struct {
	hasher Hasher
}

// Option configures tree construction and verification
type Option func(*options)

// WithHasher overrides the default keccak256 hasher.
// The same hasher must be used to build the tree and to verify its proofs.
func WithHasher(h Hasher) Option {
	return func(o *options) {
		if h != nil {
			o.hasher = h
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{hasher: DefaultHasher()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// BuildMerkleTree creates a binary merkle tree from an ordered list of items.
// Items are hashed in the order given; the order is part of the commitment.
//
// Leaves are H(0x00 || item). Each level is built by hashing adjacent pairs
// left-to-right as H(0x01 || left || right).
// If there's an odd number of nodes at a level, the last node is carried up
// to the next level unchanged.
func BuildMerkleTree(items [][]byte, opts ...Option) (*MerkleTree, error) {
	if len(items) == 0 {
		return nil, ErrEmptyTree
	}

	o := buildOptions(opts)

	// Hash all leaves
	leaves := make([]Digest, len(items))
	for i, item := range items {
		leaf, ok := hashLeaf(o.hasher, item)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidHasher, o.hasher.HashName())
		}
		leaves[i] = leaf
	}

	// Build tree levels bottom-up
	levels := make([][]Digest, 0)
	levels = append(levels, leaves)

	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([]Digest, 0, (len(currentLevel)+1)/2)

		for i := 0; i+1 < len(currentLevel); i += 2 {
			parent, ok := hashPair(o.hasher, currentLevel[i], currentLevel[i+1])
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrInvalidHasher, o.hasher.HashName())
			}
			nextLevel = append(nextLevel, parent)
		}

		// Carry the unpaired node forward
		if len(currentLevel)%2 == 1 {
			nextLevel = append(nextLevel, currentLevel[len(currentLevel)-1])
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{
		Leaves: leaves,
		Root:   currentLevel[0],
		levels: levels,
		hasher: o.hasher,
	}, nil
}

// LeafCount returns the number of leaves in the tree
func (mt *MerkleTree) LeafCount() int {
	return len(mt.Leaves)
}

// Depth returns the number of levels above the leaves
func (mt *MerkleTree) Depth() int {
	return len(mt.levels) - 1
}

// HashName returns the name of the hasher the tree was built with
func (mt *MerkleTree) HashName() string {
	return mt.hasher.HashName()
}

// Leaf returns the leaf digest at the given index
func (mt *MerkleTree) Leaf(index int) (Digest, error) {
	if index < 0 || index >= len(mt.Leaves) {
		return Digest{}, fmt.Errorf("%w: %d (tree has %d leaves)", ErrLeafIndexOutOfRange, index, len(mt.Leaves))
	}
	return mt.Leaves[index], nil
}

// Level returns a copy of the node digests at the given depth (0 = leaves)
func (mt *MerkleTree) Level(depth int) ([]Digest, error) {
	if depth < 0 || depth >= len(mt.levels) {
		return nil, fmt.Errorf("level %d out of range (tree has %d levels)", depth, len(mt.levels))
	}
	out := make([]Digest, len(mt.levels[depth]))
	copy(out, mt.levels[depth])
	return out, nil
}

// GenerateProof creates a merkle proof for the leaf at the given index.
// Levels where the path node is the carried-forward odd node contribute
// no element.
func (mt *MerkleTree) GenerateProof(leafIndex int) (Proof, error) {
	if leafIndex < 0 || leafIndex >= len(mt.Leaves) {
		return nil, fmt.Errorf("%w: %d (tree has %d leaves)", ErrLeafIndexOutOfRange, leafIndex, len(mt.Leaves))
	}

	proof := make(Proof, 0, mt.Depth())
	index := leafIndex

	// Traverse from leaf to root, collecting sibling hashes
	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		switch {
		case index == len(currentLevel)-1 && len(currentLevel)%2 == 1:
			// Unpaired node, carried forward without a hash step
		case index%2 == 0:
			proof = append(proof, ProofElement{Sibling: currentLevel[index+1], Side: SideRight})
		default:
			proof = append(proof, ProofElement{Sibling: currentLevel[index-1], Side: SideLeft})
		}

		// Move to parent index in next level
		index = index / 2
	}

	return proof, nil
}

// VerifyProof verifies that leaf is committed to by root.
// It hashes the leaf, folds in each proof element according to its side
// and compares the result with root. Any malformed input yields false.
func VerifyProof(root Digest, leaf []byte, proof Proof, opts ...Option) bool {
	computed, ok := ComputeRoot(leaf, proof, opts...)
	if !ok {
		return false
	}
	return computed == root
}

// ComputeRoot recomputes the root implied by a leaf and a proof.
// The boolean is false when the proof is malformed (unknown side, too
// long) or the hasher misbehaves.
func ComputeRoot(leaf []byte, proof Proof, opts ...Option) (Digest, bool) {
	if len(proof) > MaxProofLength {
		return Digest{}, false
	}

	o := buildOptions(opts)

	// Start with the leaf hash
	current, ok := hashLeaf(o.hasher, leaf)
	if !ok {
		return Digest{}, false
	}

	for _, el := range proof {
		switch el.Side {
		case SideRight:
			current, ok = hashPair(o.hasher, current, el.Sibling)
		case SideLeft:
			current, ok = hashPair(o.hasher, el.Sibling, current)
		default:
			return Digest{}, false
		}
		if !ok {
			return Digest{}, false
		}
	}

	return current, true
}

// hashLeaf computes H(0x00 || item)
func hashLeaf(h Hasher, item []byte) (Digest, bool) {
	return hashToDigest(h, []byte{leafPrefix}, item)
}

// hashPair computes H(0x01 || left || right) for two node digests
func hashPair(h Hasher, left, right Digest) (Digest, bool) {
	return hashToDigest(h, []byte{nodePrefix}, left[:], right[:])
}
