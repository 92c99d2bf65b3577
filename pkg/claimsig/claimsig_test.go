package claimsig

import (
	"testing"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClaim() (merkle.Digest, *uint256.Int, merkle.Proof) {
	var root, sibling merkle.Digest
	root[0] = 0x01
	sibling[31] = 0x02
	proof := merkle.Proof{{Sibling: sibling, Side: merkle.SideLeft}}
	return root, uint256.NewInt(100), proof
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	root, amount, proof := testClaim()

	sig, err := SignClaim(key, root, amount, proof)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)

	signer, err := RecoverClaimant(root, amount, proof, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestRecover_LegacyRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	root, amount, proof := testClaim()

	sig, err := SignClaim(key, root, amount, proof)
	require.NoError(t, err)
	sig[64] += 27

	signer, err := RecoverClaimant(root, amount, proof, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestRecover_TamperedClaimChangesSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	expected := crypto.PubkeyToAddress(key.PublicKey)
	root, amount, proof := testClaim()

	sig, err := SignClaim(key, root, amount, proof)
	require.NoError(t, err)

	// A different amount recovers a different (random) address
	signer, err := RecoverClaimant(root, uint256.NewInt(101), proof, sig)
	if err == nil {
		assert.NotEqual(t, expected, signer)
	}

	otherRoot := root
	otherRoot[1] = 0xff
	signer, err = RecoverClaimant(otherRoot, amount, proof, sig)
	if err == nil {
		assert.NotEqual(t, expected, signer)
	}

	flipped := proof.Clone()
	flipped[0].Side = merkle.SideRight
	signer, err = RecoverClaimant(root, amount, flipped, sig)
	if err == nil {
		assert.NotEqual(t, expected, signer)
	}
}

func TestRecover_MalformedSignature(t *testing.T) {
	root, amount, proof := testClaim()

	_, err := RecoverClaimant(root, amount, proof, nil)
	require.Error(t, err)

	_, err = RecoverClaimant(root, amount, proof, make([]byte, 64))
	require.Error(t, err)

	// Right length, invalid recovery id
	bad := make([]byte, SignatureLength)
	bad[64] = 9
	_, err = RecoverClaimant(root, amount, proof, bad)
	require.Error(t, err)
}

func TestSignClaim_NilKey(t *testing.T) {
	root, amount, proof := testClaim()
	_, err := SignClaim(nil, root, amount, proof)
	require.Error(t, err)
}

func TestClaimDigest_BindsEveryField(t *testing.T) {
	root, amount, proof := testClaim()
	base := ClaimDigest(root, amount, proof)

	assert.Equal(t, base, ClaimDigest(root, uint256.NewInt(100), proof.Clone()))
	assert.NotEqual(t, base, ClaimDigest(root, uint256.NewInt(99), proof))
	assert.NotEqual(t, base, ClaimDigest(root, amount, nil))
	assert.NotEqual(t, base, ClaimDigest(merkle.Digest{}, amount, proof))

	// nil amount is treated as zero
	assert.Equal(t, ClaimDigest(root, nil, proof), ClaimDigest(root, uint256.NewInt(0), proof))
}
