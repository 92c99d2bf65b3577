package persistence

import (
	"testing"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() merkle.Digest {
	var d merkle.Digest
	for i := range d {
		d[i] = byte(i + 1)
	}
	return d
}

// TestMarshalUnmarshalAirdropState_RoundTrip tests JSON marshaling/unmarshaling
func TestMarshalUnmarshalAirdropState_RoundTrip(t *testing.T) {
	original := &AirdropState{
		Root:          testRoot(),
		Owner:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		HashFunction:  merkle.HashKeccak256,
		LeafCount:     6,
		InitializedAt: 1700000000,
	}

	data, err := MarshalAirdropState(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// Root is stored as hex, not as a byte array
	assert.Contains(t, string(data), original.Root.Hex())

	restored, err := UnmarshalAirdropState(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestMarshalAirdropState_NilInput(t *testing.T) {
	_, err := MarshalAirdropState(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil AirdropState")
}

func TestUnmarshalAirdropState_InvalidJSON(t *testing.T) {
	_, err := UnmarshalAirdropState([]byte(`{"root": "0x1234"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")

	_, err = UnmarshalAirdropState(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty data")
}

func TestMarshalUnmarshalClaimRecord_RoundTrip(t *testing.T) {
	original := &types.ClaimRecord{
		ClaimID:     "c0ffee",
		Recipient:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:      "100",
		State:       types.ClaimStateClaimed,
		ReservedAt:  1700000000,
		ClaimedAt:   1700000001,
		TransferRef: "tx-1",
	}

	data, err := MarshalClaimRecord(original)
	require.NoError(t, err)

	restored, err := UnmarshalClaimRecord(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestClaimRecord_NilAndEmpty(t *testing.T) {
	_, err := MarshalClaimRecord(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil ClaimRecord")

	_, err = UnmarshalClaimRecord([]byte{})
	require.Error(t, err)

	_, err = UnmarshalClaimRecord([]byte(`not json`))
	require.Error(t, err)
}

func TestAirdropState_Validate(t *testing.T) {
	valid := &AirdropState{Root: testRoot(), HashFunction: merkle.HashKeccak256}
	require.NoError(t, valid.Validate())

	var nilState *AirdropState
	assert.Error(t, nilState.Validate())

	zeroRoot := *valid
	zeroRoot.Root = merkle.Digest{}
	assert.Error(t, zeroRoot.Validate())

	badHash := *valid
	badHash.HashFunction = "md5"
	assert.Error(t, badHash.Validate())

	negative := *valid
	negative.LeafCount = -1
	assert.Error(t, negative.Validate())
}

func TestValidateClaimRecord(t *testing.T) {
	record := &types.ClaimRecord{
		ClaimID:   "id",
		Recipient: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Amount:    "1",
		State:     types.ClaimStateReserved,
	}
	require.NoError(t, ValidateClaimRecord(record))

	assert.Error(t, ValidateClaimRecord(nil))

	noID := *record
	noID.ClaimID = ""
	assert.Error(t, ValidateClaimRecord(&noID))

	zero := *record
	zero.Recipient = common.Address{}
	assert.Error(t, ValidateClaimRecord(&zero))

	committed := *record
	committed.State = types.ClaimStateClaimed
	assert.Error(t, ValidateClaimRecord(&committed))
}

func TestRecipientKey_IsLowercase(t *testing.T) {
	addr := common.HexToAddress("0xABCDEFabcdef0123456789ABCDEFabcdef012345")
	assert.Equal(t, "0xabcdefabcdef0123456789abcdefabcdef012345", RecipientKey(addr))
}

func TestSortClaims(t *testing.T) {
	a := common.HexToAddress("0x0a")
	b := common.HexToAddress("0x0b")
	c := common.HexToAddress("0x0c")
	claims := []*types.ClaimRecord{
		{Recipient: c, ReservedAt: 3},
		{Recipient: b, ReservedAt: 1},
		{Recipient: a, ReservedAt: 1},
	}

	SortClaims(claims)

	assert.Equal(t, a, claims[0].Recipient)
	assert.Equal(t, b, claims[1].Recipient)
	assert.Equal(t, c, claims[2].Recipient)
}
