// Package persistencetest holds the behavioural test suite every
// IAirdropPersistence backend must pass.
package persistencetest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) persistence.IAirdropPersistence

// TestState returns a valid airdrop state
func TestState() *persistence.AirdropState {
	var root merkle.Digest
	for i := range root {
		root[i] = byte(0xa0 + i%16)
	}
	return &persistence.AirdropState{
		Root:          root,
		Owner:         common.HexToAddress("0x00000000000000000000000000000000000000ff"),
		HashFunction:  merkle.HashKeccak256,
		LeafCount:     6,
		InitializedAt: 1700000000,
	}
}

// TestReservation returns a valid reserved record for the recipient
func TestReservation(recipient common.Address, amount string, reservedAt int64) *types.ClaimRecord {
	return &types.ClaimRecord{
		ClaimID:    uuid.New().String(),
		Recipient:  recipient,
		Amount:     amount,
		State:      types.ClaimStateReserved,
		ReservedAt: reservedAt,
	}
}

// RunSuite runs the backend conformance tests as subtests of t
func RunSuite(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, p persistence.IAirdropPersistence)
	}{
		{"AirdropState_SaveAndLoad", testSaveAndLoadState},
		{"AirdropState_NotInitialized", testStateNotInitialized},
		{"AirdropState_WriteOnce", testStateWriteOnce},
		{"AirdropState_Invalid", testStateInvalid},
		{"Claim_ReserveCommitLoad", testReserveCommitLoad},
		{"Claim_DoubleReserve", testDoubleReserve},
		{"Claim_CommitErrors", testCommitErrors},
		{"Claim_ReleaseAllowsRetry", testReleaseAllowsRetry},
		{"Claim_ReleaseCommittedFails", testReleaseCommitted},
		{"Claim_InvalidRecord", testInvalidRecord},
		{"Claim_ListSorted", testListSorted},
		{"Claim_ConcurrentReserve", testConcurrentReserve},
		{"Claim_ReturnedRecordIsolated", testRecordIsolation},
		{"Lifecycle_Close", testClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := factory(t)
			defer func() { _ = p.Close() }()
			tt.fn(t, p)
		})
	}
}

func testSaveAndLoadState(t *testing.T, p persistence.IAirdropPersistence) {
	state := TestState()
	require.NoError(t, p.SaveAirdropState(state))

	loaded, err := p.LoadAirdropState()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.Root, loaded.Root)
	assert.Equal(t, state.Owner, loaded.Owner)
	assert.Equal(t, state.HashFunction, loaded.HashFunction)
	assert.Equal(t, state.LeafCount, loaded.LeafCount)
	assert.Equal(t, state.InitializedAt, loaded.InitializedAt)
}

func testStateNotInitialized(t *testing.T, p persistence.IAirdropPersistence) {
	loaded, err := p.LoadAirdropState()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func testStateWriteOnce(t *testing.T, p persistence.IAirdropPersistence) {
	first := TestState()
	require.NoError(t, p.SaveAirdropState(first))

	second := TestState()
	second.Root[0] ^= 0xff
	err := p.SaveAirdropState(second)
	require.ErrorIs(t, err, persistence.ErrAlreadyInitialized)

	// Identical state is rejected too
	err = p.SaveAirdropState(first)
	require.ErrorIs(t, err, persistence.ErrAlreadyInitialized)

	loaded, err := p.LoadAirdropState()
	require.NoError(t, err)
	assert.Equal(t, first.Root, loaded.Root)
}

func testStateInvalid(t *testing.T, p persistence.IAirdropPersistence) {
	require.Error(t, p.SaveAirdropState(nil))

	zeroRoot := TestState()
	zeroRoot.Root = merkle.Digest{}
	require.Error(t, p.SaveAirdropState(zeroRoot))

	loaded, err := p.LoadAirdropState()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func testReserveCommitLoad(t *testing.T, p persistence.IAirdropPersistence) {
	recipient := common.HexToAddress("0x1000000000000000000000000000000000000001")

	before, err := p.LoadClaim(recipient)
	require.NoError(t, err)
	assert.Nil(t, before)

	reservation := TestReservation(recipient, "100", 10)
	require.NoError(t, p.ReserveClaim(reservation))

	reserved, err := p.LoadClaim(recipient)
	require.NoError(t, err)
	require.NotNil(t, reserved)
	assert.Equal(t, types.ClaimStateReserved, reserved.State)
	assert.True(t, reserved.IsClaimed())
	assert.Equal(t, reservation.ClaimID, reserved.ClaimID)

	require.NoError(t, p.CommitClaim(recipient, "transfer-1", 1700000123))

	claimed, err := p.LoadClaim(recipient)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, types.ClaimStateClaimed, claimed.State)
	assert.Equal(t, "transfer-1", claimed.TransferRef)
	assert.Equal(t, "100", claimed.Amount)
	assert.Equal(t, recipient, claimed.Recipient)
	assert.Equal(t, int64(1700000123), claimed.ClaimedAt)
}

func testDoubleReserve(t *testing.T, p persistence.IAirdropPersistence) {
	recipient := common.HexToAddress("0x1000000000000000000000000000000000000002")

	require.NoError(t, p.ReserveClaim(TestReservation(recipient, "100", 1)))
	err := p.ReserveClaim(TestReservation(recipient, "100", 2))
	require.ErrorIs(t, err, persistence.ErrAlreadyClaimed)

	require.NoError(t, p.CommitClaim(recipient, "ref", 1700000000))
	err = p.ReserveClaim(TestReservation(recipient, "100", 3))
	require.ErrorIs(t, err, persistence.ErrAlreadyClaimed)
}

func testCommitErrors(t *testing.T, p persistence.IAirdropPersistence) {
	recipient := common.HexToAddress("0x1000000000000000000000000000000000000003")

	err := p.CommitClaim(recipient, "ref", 1700000000)
	require.ErrorIs(t, err, persistence.ErrClaimNotFound)

	require.NoError(t, p.ReserveClaim(TestReservation(recipient, "5", 1)))
	require.NoError(t, p.CommitClaim(recipient, "ref", 1700000000))

	err = p.CommitClaim(recipient, "other-ref", 1700000000)
	require.ErrorIs(t, err, persistence.ErrClaimNotReserved)

	claimed, err := p.LoadClaim(recipient)
	require.NoError(t, err)
	assert.Equal(t, "ref", claimed.TransferRef)
}

func testReleaseAllowsRetry(t *testing.T, p persistence.IAirdropPersistence) {
	recipient := common.HexToAddress("0x1000000000000000000000000000000000000004")

	// Releasing nothing is fine
	require.NoError(t, p.ReleaseClaim(recipient))

	require.NoError(t, p.ReserveClaim(TestReservation(recipient, "7", 1)))
	require.NoError(t, p.ReleaseClaim(recipient))

	released, err := p.LoadClaim(recipient)
	require.NoError(t, err)
	assert.Nil(t, released)

	require.NoError(t, p.ReserveClaim(TestReservation(recipient, "7", 2)))
	require.NoError(t, p.CommitClaim(recipient, "ref", 1700000000))
}

func testReleaseCommitted(t *testing.T, p persistence.IAirdropPersistence) {
	recipient := common.HexToAddress("0x1000000000000000000000000000000000000005")

	require.NoError(t, p.ReserveClaim(TestReservation(recipient, "7", 1)))
	require.NoError(t, p.CommitClaim(recipient, "ref", 1700000000))

	err := p.ReleaseClaim(recipient)
	require.ErrorIs(t, err, persistence.ErrClaimNotReserved)

	claimed, err := p.LoadClaim(recipient)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, types.ClaimStateClaimed, claimed.State)
}

func testInvalidRecord(t *testing.T, p persistence.IAirdropPersistence) {
	require.Error(t, p.ReserveClaim(nil))

	committed := TestReservation(common.HexToAddress("0x1000000000000000000000000000000000000006"), "1", 1)
	committed.State = types.ClaimStateClaimed
	require.Error(t, p.ReserveClaim(committed))

	claims, err := p.ListClaims()
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func testListSorted(t *testing.T, p persistence.IAirdropPersistence) {
	claims, err := p.ListClaims()
	require.NoError(t, err)
	assert.Empty(t, claims)

	recipients := []common.Address{
		common.HexToAddress("0x2000000000000000000000000000000000000003"),
		common.HexToAddress("0x2000000000000000000000000000000000000001"),
		common.HexToAddress("0x2000000000000000000000000000000000000002"),
	}
	reservedAt := []int64{30, 10, 20}
	for i, r := range recipients {
		require.NoError(t, p.ReserveClaim(TestReservation(r, fmt.Sprintf("%d", i+1), reservedAt[i])))
	}
	require.NoError(t, p.CommitClaim(recipients[0], "ref-0", 1700000000))

	claims, err = p.ListClaims()
	require.NoError(t, err)
	require.Len(t, claims, 3)
	assert.Equal(t, recipients[1], claims[0].Recipient)
	assert.Equal(t, recipients[2], claims[1].Recipient)
	assert.Equal(t, recipients[0], claims[2].Recipient)
	assert.Equal(t, types.ClaimStateClaimed, claims[2].State)
}

func testConcurrentReserve(t *testing.T, p persistence.IAirdropPersistence) {
	recipient := common.HexToAddress("0x3000000000000000000000000000000000000001")

	const workers = 16
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := p.ReserveClaim(TestReservation(recipient, "1", int64(i)))
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, persistence.ErrAlreadyClaimed):
				losses.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(workers-1), losses.Load())
}

func testRecordIsolation(t *testing.T, p persistence.IAirdropPersistence) {
	recipient := common.HexToAddress("0x4000000000000000000000000000000000000001")

	reservation := TestReservation(recipient, "9", 1)
	require.NoError(t, p.ReserveClaim(reservation))
	reservation.Amount = "999"

	loaded, err := p.LoadClaim(recipient)
	require.NoError(t, err)
	assert.Equal(t, "9", loaded.Amount)

	loaded.State = types.ClaimStateClaimed
	again, err := p.LoadClaim(recipient)
	require.NoError(t, err)
	assert.Equal(t, types.ClaimStateReserved, again.State)
}

func testClose(t *testing.T, p persistence.IAirdropPersistence) {
	require.NoError(t, p.HealthCheck())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close must be idempotent")

	assert.Error(t, p.HealthCheck())
	assert.Error(t, p.SaveAirdropState(TestState()))
	_, err := p.LoadAirdropState()
	assert.Error(t, err)
	assert.Error(t, p.ReserveClaim(TestReservation(common.HexToAddress("0x01"), "1", 1)))
	_, err = p.LoadClaim(common.HexToAddress("0x01"))
	assert.Error(t, err)
	_, err = p.ListClaims()
	assert.Error(t, err)
}
