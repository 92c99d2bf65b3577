package merkle

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/wealdtech/go-merkletree/v2/blake2b"
	"golang.org/x/crypto/sha3"
)

// Hash function names accepted by HasherByName
const (
	HashKeccak256 = "keccak256"
	HashSHA256    = "sha256"
	HashSHA3256   = "sha3-256"
	HashBlake2b   = "blake2b"
)

// Hasher hashes the concatenation of its inputs into a 32-byte digest.
// The method set matches the hash types shipped with go-merkletree, so
// those can be passed to WithHasher directly.
type Hasher interface {
	Hash(data ...[]byte) []byte
	HashName() string
}

// Keccak256Hasher is the default hasher. It matches Solidity's keccak256.
type Keccak256Hasher struct{}

func (Keccak256Hasher) Hash(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

func (Keccak256Hasher) HashName() string {
	return HashKeccak256
}

// SHA256Hasher hashes with SHA-256.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func (SHA256Hasher) HashName() string {
	return HashSHA256
}

// SHA3Hasher hashes with FIPS-202 SHA3-256 (not keccak padding).
type SHA3Hasher struct{}

func (SHA3Hasher) Hash(data ...[]byte) []byte {
	h := sha3.New256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func (SHA3Hasher) HashName() string {
	return HashSHA3256
}

// DefaultHasher returns the hasher used when no option overrides it
func DefaultHasher() Hasher {
	return Keccak256Hasher{}
}

// HasherByName resolves a hash function name. An empty name selects the default.
func HasherByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", HashKeccak256, "keccak":
		return Keccak256Hasher{}, nil
	case HashSHA256:
		return SHA256Hasher{}, nil
	case HashSHA3256, "sha3":
		return SHA3Hasher{}, nil
	case HashBlake2b:
		return blake2b.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash function %q (supported: %s)", name, strings.Join(SupportedHashes(), ", "))
	}
}

// SupportedHashes lists the names accepted by HasherByName
func SupportedHashes() []string {
	return []string{HashKeccak256, HashSHA256, HashSHA3256, HashBlake2b}
}

// hashToDigest runs the hasher and checks it produced exactly DigestLength bytes
func hashToDigest(h Hasher, data ...[]byte) (Digest, bool) {
	var d Digest
	out := h.Hash(data...)
	if len(out) != DigestLength {
		return d, false
	}
	copy(d[:], out)
	return d, true
}
