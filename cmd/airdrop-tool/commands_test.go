package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entitlementsCSV = `recipient,amount
0x1111111111111111111111111111111111111111,100
0x2222222222222222222222222222222222222222,200
0x3333333333333333333333333333333333333333,300
`

func TestBuildProofVerify(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "entitlements.csv")
	output := filepath.Join(dir, "distribution.json")
	require.NoError(t, os.WriteFile(input, []byte(entitlementsCSV), 0o644))

	d, err := buildDistribution(input, merkle.HashKeccak256, output)
	require.NoError(t, err)
	assert.Equal(t, 3, d.LeafCount)

	loaded, err := distribution.Load(output)
	require.NoError(t, err)
	require.NoError(t, loaded.Verify())
	assert.Equal(t, d.Root, loaded.Root)

	pf, err := extractProof(loaded, "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	assert.Equal(t, "200", pf.Amount)
	assert.Equal(t, 1, pf.Index)

	// round trip through the proof file format
	data, err := json.Marshal(pf)
	require.NoError(t, err)
	proofPath := filepath.Join(dir, "proof.json")
	require.NoError(t, os.WriteFile(proofPath, data, 0o644))
	reread, err := loadProofFile(proofPath)
	require.NoError(t, err)

	ok, err := verifyProofFile(reread, merkle.Digest{})
	require.NoError(t, err)
	assert.True(t, ok)

	var otherRoot merkle.Digest
	otherRoot[31] = 1
	ok, err = verifyProofFile(reread, otherRoot)
	require.NoError(t, err)
	assert.False(t, ok)

	reread.Amount = "201"
	ok, err = verifyProofFile(reread, merkle.Digest{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractProof_Errors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "entitlements.csv")
	require.NoError(t, os.WriteFile(input, []byte(entitlementsCSV), 0o644))
	d, err := buildDistribution(input, "", filepath.Join(dir, "d.json"))
	require.NoError(t, err)

	_, err = extractProof(d, "nope")
	require.Error(t, err)

	_, err = extractProof(d, "0x4444444444444444444444444444444444444444")
	require.ErrorIs(t, err, distribution.ErrRecipientNotFound)
}

func TestBuildDistribution_Errors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "entitlements.csv")
	require.NoError(t, os.WriteFile(input, []byte(entitlementsCSV), 0o644))

	_, err := buildDistribution(input, "md5", filepath.Join(dir, "d.json"))
	require.Error(t, err)

	_, err = buildDistribution(filepath.Join(dir, "missing.csv"), "", filepath.Join(dir, "d.json"))
	require.Error(t, err)
}
