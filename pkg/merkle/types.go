package merkle

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DigestLength is the size in bytes of every node digest in the tree.
const DigestLength = 32

// MaxProofLength bounds the number of proof elements accepted by the verifier.
// A tree with 2^256 leaves cannot exist, so anything longer is malformed.
const MaxProofLength = 256

// Digest is a single node hash: a leaf digest, an internal node or the root.
type Digest [DigestLength]byte

// Hex returns the 0x-prefixed hex encoding of the digest
func (d Digest) Hex() string {
	return hexutil.Encode(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}

// IsZero reports whether the digest is all zero bytes
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText implements encoding.TextMarshaler
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// The input must be exactly 32 bytes of 0x-prefixed hex.
func (d *Digest) UnmarshalText(input []byte) error {
	parsed, err := ParseDigest(string(input))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest decodes a hex string (with or without 0x prefix) into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(raw) != DigestLength {
		return d, fmt.Errorf("invalid digest length: got %d bytes, expected %d", len(raw), DigestLength)
	}
	copy(d[:], raw)
	return d, nil
}

// Side tells the verifier on which side of the path node a sibling sits.
type Side uint8

const (
	// SideUnknown is never produced by GenerateProof and always fails verification
	SideUnknown Side = iota
	// SideLeft means the sibling is the left child: H(sibling || current)
	SideLeft
	// SideRight means the sibling is the right child: H(current || sibling)
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Side) MarshalText() ([]byte, error) {
	if s != SideLeft && s != SideRight {
		return nil, fmt.Errorf("cannot marshal invalid side %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Side) UnmarshalText(input []byte) error {
	parsed, err := ParseSide(string(input))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSide accepts "left"/"right" (case-insensitive) and the short forms "l"/"r".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return SideLeft, nil
	case "right", "r":
		return SideRight, nil
	default:
		return SideUnknown, fmt.Errorf("invalid proof side %q", s)
	}
}

// MerkleTree is a binary merkle tree over an ordered list of items.
// When a level has an odd number of nodes, the last node is carried
// forward to the next level unchanged instead of being paired.
type MerkleTree struct {
	// Leaves contains the leaf digests in input order
	Leaves []Digest

	// Root is the merkle root hash
	Root Digest

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][]Digest

	hasher Hasher
}

// ProofElement is one step of a proof: the sibling digest at a level and
// the side it occupies relative to the node on the path.
type ProofElement struct {
	Sibling Digest `json:"sibling"`
	Side    Side   `json:"side"`
}

// Proof is the ordered list of sibling steps from the leaf level up to the
// level just below the root. Levels where the path node was carried forward
// contribute no element, so a proof may be shorter than the tree depth.
// A proof carries no reference to the leaf index.
type Proof []ProofElement

// Clone returns a deep copy of the proof
func (p Proof) Clone() Proof {
	if p == nil {
		return nil
	}
	out := make(Proof, len(p))
	copy(out, p)
	return out
}

// EncodedProofElement is the loosely typed wire form of a ProofElement.
// It is used at the untrusted boundary where a malformed element must
// turn into a rejected proof instead of a decoding failure.
type EncodedProofElement struct {
	Sibling string `json:"sibling"`
	Side    string `json:"side"`
}

// Encode converts the proof to its wire form
func (p Proof) Encode() []EncodedProofElement {
	out := make([]EncodedProofElement, len(p))
	for i, el := range p {
		out[i] = EncodedProofElement{
			Sibling: el.Sibling.Hex(),
			Side:    el.Side.String(),
		}
	}
	return out
}

// DecodeProof parses the wire form of a proof, rejecting bad hex, bad
// lengths, unknown sides and proofs longer than MaxProofLength.
func DecodeProof(encoded []EncodedProofElement) (Proof, error) {
	if len(encoded) > MaxProofLength {
		return nil, fmt.Errorf("proof too long: %d elements (max %d)", len(encoded), MaxProofLength)
	}
	proof := make(Proof, len(encoded))
	for i, el := range encoded {
		sibling, err := ParseDigest(el.Sibling)
		if err != nil {
			return nil, fmt.Errorf("proof element %d: %w", i, err)
		}
		side, err := ParseSide(el.Side)
		if err != nil {
			return nil, fmt.Errorf("proof element %d: %w", i, err)
		}
		proof[i] = ProofElement{Sibling: sibling, Side: side}
	}
	return proof, nil
}
