package airdrop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/entitlement"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/testutil"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000000ff")

type fixture struct {
	accounts []*testutil.TestAccount
	dist     *distribution.Distribution
	store    persistence.IAirdropPersistence
	ledger   *ledger.MemoryLedger
	airdrop  *Airdrop
}

func newFixture(t *testing.T, numAccounts int) *fixture {
	t.Helper()

	accounts := testutil.CreateTestAccounts(t, numAccounts)
	dist := testutil.CreateTestDistribution(t, accounts)
	store := memory.NewMemoryPersistence()
	l := ledger.NewMemoryLedger(uint256.NewInt(1_000_000))

	a, err := NewAirdrop(&Config{Persistence: store, Transferer: l})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(dist.Root, owner, dist.HashFunction, dist.LeafCount))

	return &fixture{
		accounts: accounts,
		dist:     dist,
		store:    store,
		ledger:   l,
		airdrop:  a,
	}
}

func (f *fixture) proof(t *testing.T, i int) merkle.Proof {
	return testutil.ProofFor(t, f.dist, f.accounts[i])
}

func TestNewAirdrop_RequiresCollaborators(t *testing.T) {
	_, err := NewAirdrop(nil)
	require.Error(t, err)

	_, err = NewAirdrop(&Config{Transferer: ledger.NewMemoryLedger(nil)})
	require.Error(t, err)

	_, err = NewAirdrop(&Config{Persistence: memory.NewMemoryPersistence()})
	require.Error(t, err)
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, 6)

	state, err := f.airdrop.State()
	require.NoError(t, err)
	assert.Equal(t, f.dist.Root, state.Root)
	assert.Equal(t, owner, state.Owner)
	assert.Equal(t, merkle.HashKeccak256, state.HashFunction)
	assert.Equal(t, 6, state.LeafCount)

	t.Run("second initialize fails", func(t *testing.T) {
		var other merkle.Digest
		other[0] = 1
		err := f.airdrop.Initialize(other, owner, "", 1)
		require.ErrorIs(t, err, ErrAlreadyInitialized)

		state, err := f.airdrop.State()
		require.NoError(t, err)
		assert.Equal(t, f.dist.Root, state.Root)
	})

	t.Run("state survives a new instance", func(t *testing.T) {
		reopened, err := NewAirdrop(&Config{Persistence: f.store, Transferer: f.ledger})
		require.NoError(t, err)

		state, err := reopened.State()
		require.NoError(t, err)
		assert.Equal(t, f.dist.Root, state.Root)

		err = reopened.Initialize(f.dist.Root, owner, "", 6)
		require.ErrorIs(t, err, ErrAlreadyInitialized)
	})
}

func TestEnsureInitialized(t *testing.T) {
	store := memory.NewMemoryPersistence()
	l := ledger.NewMemoryLedger(nil)
	var root, other merkle.Digest
	root[0] = 1
	other[0] = 2

	first, err := NewAirdrop(&Config{Persistence: store, Transferer: l})
	require.NoError(t, err)
	require.NoError(t, first.EnsureInitialized(root, owner, "keccak", 4))

	// a second server created before the root was published
	second, err := NewAirdrop(&Config{Persistence: memory.NewMemoryPersistence(), Transferer: l})
	require.NoError(t, err)
	second.store = store
	require.NoError(t, second.EnsureInitialized(root, owner, merkle.HashKeccak256, 4))
	state, err := second.State()
	require.NoError(t, err)
	assert.Equal(t, root, state.Root)

	t.Run("restart with the same root", func(t *testing.T) {
		reopened, err := NewAirdrop(&Config{Persistence: store, Transferer: l})
		require.NoError(t, err)
		require.NoError(t, reopened.EnsureInitialized(root, owner, "", 4))
	})

	t.Run("restart with a different root", func(t *testing.T) {
		reopened, err := NewAirdrop(&Config{Persistence: store, Transferer: l})
		require.NoError(t, err)
		require.ErrorIs(t, reopened.EnsureInitialized(other, owner, "", 4), ErrRootMismatch)
	})

	t.Run("restart with a different hash function", func(t *testing.T) {
		reopened, err := NewAirdrop(&Config{Persistence: store, Transferer: l})
		require.NoError(t, err)
		require.ErrorIs(t, reopened.EnsureInitialized(root, owner, merkle.HashSHA256, 4), ErrRootMismatch)
	})
}

func TestInitialize_InvalidInput(t *testing.T) {
	a, err := NewAirdrop(&Config{Persistence: memory.NewMemoryPersistence(), Transferer: ledger.NewMemoryLedger(nil)})
	require.NoError(t, err)

	err = a.Initialize(merkle.Digest{}, owner, "", 1)
	require.ErrorIs(t, err, ErrInvalidRoot)

	var root merkle.Digest
	root[0] = 1
	err = a.Initialize(root, owner, "md5", 1)
	require.Error(t, err)

	_, err = a.State()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestNotInitialized(t *testing.T) {
	accounts := testutil.CreateTestAccounts(t, 2)
	a, err := NewAirdrop(&Config{Persistence: memory.NewMemoryPersistence(), Transferer: ledger.NewMemoryLedger(nil)})
	require.NoError(t, err)

	_, err = a.CanClaim(context.Background(), accounts[0].Address, accounts[0].Amount, nil)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = a.Claim(context.Background(), accounts[0].Address, accounts[0].Amount, nil)
	require.ErrorIs(t, err, ErrNotInitialized)
}

// Recipients A (100) and B (200): A claims once, the second claim and
// claims for wrong amounts or with someone else's proof are rejected.
func TestClaim_Scenario(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.accounts[0], f.accounts[1]
	require.Equal(t, uint64(100), a.Amount.Uint64())
	require.Equal(t, uint64(200), b.Amount.Uint64())

	ok, err := f.airdrop.CanClaim(ctx, a.Address, a.Amount, f.proof(t, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	record, err := f.airdrop.Claim(ctx, a.Address, a.Amount, f.proof(t, 0))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, a.Address, record.Recipient)
	assert.Equal(t, "100", record.Amount)
	assert.Equal(t, types.ClaimStateClaimed, record.State)
	assert.NotEmpty(t, record.TransferRef)
	assert.Equal(t, uint64(100), f.ledger.Balance(a.Address).Uint64())

	_, err = f.airdrop.Claim(ctx, a.Address, a.Amount, f.proof(t, 0))
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	ok, err = f.airdrop.CanClaim(ctx, a.Address, a.Amount, f.proof(t, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	// B with the wrong amount
	_, err = f.airdrop.Claim(ctx, b.Address, uint256.NewInt(50), f.proof(t, 1))
	require.ErrorIs(t, err, ErrInvalidProof)

	// B with A's proof
	_, err = f.airdrop.Claim(ctx, b.Address, b.Amount, f.proof(t, 0))
	require.ErrorIs(t, err, ErrInvalidProof)

	// Failed attempts left nothing behind
	status, err := f.airdrop.ClaimStatus(b.Address)
	require.NoError(t, err)
	assert.Nil(t, status)
	assert.True(t, f.ledger.Balance(b.Address).IsZero())

	record, err = f.airdrop.Claim(ctx, b.Address, b.Amount, f.proof(t, 1))
	require.NoError(t, err)
	assert.Equal(t, "200", record.Amount)

	assert.Len(t, f.ledger.Transfers(), 2)
}

func TestClaim_AllSixAccounts(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()

	for i, account := range f.accounts {
		record, err := f.airdrop.Claim(ctx, account.Address, account.Amount, f.proof(t, i))
		require.NoError(t, err, "account %d", i)
		assert.Equal(t, account.Amount.Dec(), record.Amount)
	}

	claims, err := f.airdrop.ListClaims()
	require.NoError(t, err)
	assert.Len(t, claims, 6)
	assert.Equal(t, uint64(1_000_000-2100), f.ledger.PoolBalance().Uint64())
}

func TestClaim_Rejections(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	outsider := testutil.CreateTestAccount(t, "outsider", 100)

	tests := []struct {
		name      string
		recipient common.Address
		amount    *uint256.Int
		proof     merkle.Proof
	}{
		{"outsider with valid proof of other", outsider.Address, f.accounts[0].Amount, f.proof(t, 0)},
		{"nil amount", f.accounts[0].Address, nil, f.proof(t, 0)},
		{"zero amount", f.accounts[0].Address, uint256.NewInt(0), f.proof(t, 0)},
		{"empty proof", f.accounts[0].Address, f.accounts[0].Amount, nil},
		{"truncated proof", f.accounts[0].Address, f.accounts[0].Amount, f.proof(t, 0)[:1]},
		{"unknown side", f.accounts[0].Address, f.accounts[0].Amount, func() merkle.Proof {
			p := f.proof(t, 0).Clone()
			p[0].Side = merkle.SideUnknown
			return p
		}()},
		{"flipped side", f.accounts[0].Address, f.accounts[0].Amount, func() merkle.Proof {
			p := f.proof(t, 0).Clone()
			p[0].Side = merkle.SideLeft
			return p
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.airdrop.CanClaim(ctx, tt.recipient, tt.amount, tt.proof)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = f.airdrop.Claim(ctx, tt.recipient, tt.amount, tt.proof)
			require.ErrorIs(t, err, ErrInvalidProof)
		})
	}

	assert.Empty(t, f.ledger.Transfers())
}

// An attacker holding two sibling digests can only submit them through a
// (recipient, amount) pair, which encodes to 52 bytes. Neither that nor the
// continuation of the real proof may verify.
func TestClaim_InternalNodeForgery(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()

	require.NotEqual(t, 2*merkle.DigestLength, entitlement.EncodedLength)

	tree, err := merkle.BuildMerkleTree(entitlement.EncodeAll(testutil.Entitlements(f.accounts)))
	require.NoError(t, err)
	require.Equal(t, f.dist.Root, tree.Root)

	level0, err := tree.Level(0)
	require.NoError(t, err)
	level1, err := tree.Level(1)
	require.NoError(t, err)
	require.Len(t, level1, 3)

	forge := func(left, right merkle.Digest) (common.Address, *uint256.Int) {
		preimage := append(append([]byte{}, left[:]...), right[:]...)
		return common.BytesToAddress(preimage[:common.AddressLength]),
			new(uint256.Int).SetBytes(preimage[common.AddressLength:entitlement.EncodedLength])
	}

	proof0 := f.proof(t, 0)
	tests := []struct {
		name        string
		left, right merkle.Digest
		proof       merkle.Proof
	}{
		{"leaf pair with the rest of leaf 0's proof", level0[0], level0[1], proof0[1:]},
		{"level 1 pair with the carried sibling", level1[0], level1[1], merkle.Proof{{Sibling: level1[2], Side: merkle.SideRight}}},
		{"level 1 pair with an empty proof", level1[0], level1[1], merkle.Proof{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipient, amount := forge(tt.left, tt.right)

			ok, err := f.airdrop.CanClaim(ctx, recipient, amount, tt.proof)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = f.airdrop.Claim(ctx, recipient, amount, tt.proof)
			require.ErrorIs(t, err, ErrInvalidProof)
		})
	}

	assert.Empty(t, f.ledger.Transfers())
}

func TestClaim_TransferFailureRollsBack(t *testing.T) {
	accounts := testutil.CreateTestAccounts(t, 3)
	dist := testutil.CreateTestDistribution(t, accounts)
	store := memory.NewMemoryPersistence()
	pool := ledger.NewMemoryLedger(uint256.NewInt(1000))

	var failNext atomic.Bool
	failNext.Store(true)
	transferer := ledger.TransferFunc(func(ctx context.Context, to common.Address, amount *uint256.Int) (string, error) {
		if failNext.Swap(false) {
			return "", errors.New("ledger unavailable")
		}
		return pool.Transfer(ctx, to, amount)
	})

	a, err := NewAirdrop(&Config{Persistence: store, Transferer: transferer})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(dist.Root, owner, dist.HashFunction, dist.LeafCount))

	proof := testutil.ProofFor(t, dist, accounts[0])

	_, err = a.Claim(context.Background(), accounts[0].Address, accounts[0].Amount, proof)
	require.ErrorIs(t, err, ErrTransferFailed)

	status, err := a.ClaimStatus(accounts[0].Address)
	require.NoError(t, err)
	assert.Nil(t, status, "failed transfer must not leave a claim record")

	ok, err := a.CanClaim(context.Background(), accounts[0].Address, accounts[0].Amount, proof)
	require.NoError(t, err)
	assert.True(t, ok)

	record, err := a.Claim(context.Background(), accounts[0].Address, accounts[0].Amount, proof)
	require.NoError(t, err)
	assert.Equal(t, types.ClaimStateClaimed, record.State)
	assert.Equal(t, uint64(100), pool.Balance(accounts[0].Address).Uint64())
}

func TestClaim_InsufficientFunds(t *testing.T) {
	accounts := testutil.CreateTestAccounts(t, 2)
	dist := testutil.CreateTestDistribution(t, accounts)
	pool := ledger.NewMemoryLedger(uint256.NewInt(150))

	a, err := NewAirdrop(&Config{Persistence: memory.NewMemoryPersistence(), Transferer: pool})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(dist.Root, owner, dist.HashFunction, dist.LeafCount))

	_, err = a.Claim(context.Background(), accounts[1].Address, accounts[1].Amount, testutil.ProofFor(t, dist, accounts[1]))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	status, err := a.ClaimStatus(accounts[1].Address)
	require.NoError(t, err)
	assert.Nil(t, status)
}

type failingCommitStore struct {
	persistence.IAirdropPersistence
}

func (failingCommitStore) CommitClaim(common.Address, string, int64) error {
	return errors.New("disk full")
}

func TestClaim_CommitFailureKeepsReservation(t *testing.T) {
	accounts := testutil.CreateTestAccounts(t, 2)
	dist := testutil.CreateTestDistribution(t, accounts)
	pool := ledger.NewMemoryLedger(uint256.NewInt(1000))
	store := failingCommitStore{IAirdropPersistence: memory.NewMemoryPersistence()}

	a, err := NewAirdrop(&Config{Persistence: store, Transferer: pool})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(dist.Root, owner, dist.HashFunction, dist.LeafCount))

	proof := testutil.ProofFor(t, dist, accounts[0])

	_, err = a.Claim(context.Background(), accounts[0].Address, accounts[0].Amount, proof)
	require.ErrorIs(t, err, ErrCommitFailed)

	// The payment went through, so the recipient must stay blocked
	_, err = a.Claim(context.Background(), accounts[0].Address, accounts[0].Amount, proof)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	status, err := a.ClaimStatus(accounts[0].Address)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, types.ClaimStateReserved, status.State)
	assert.Len(t, pool.Transfers(), 1)
}

func TestClaim_CancelledContext(t *testing.T) {
	f := newFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.airdrop.Claim(ctx, f.accounts[0].Address, f.accounts[0].Amount, f.proof(t, 0))
	require.ErrorIs(t, err, context.Canceled)

	_, err = f.airdrop.CanClaim(ctx, f.accounts[0].Address, f.accounts[0].Amount, f.proof(t, 0))
	require.ErrorIs(t, err, context.Canceled)

	status, err := f.airdrop.ClaimStatus(f.accounts[0].Address)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestClaim_ConcurrentSameRecipient(t *testing.T) {
	f := newFixture(t, 6)
	account := f.accounts[3]
	proof := f.proof(t, 3)

	const workers = 32
	var successes, alreadyClaimed atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.airdrop.Claim(context.Background(), account.Address, account.Amount, proof)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrAlreadyClaimed):
				alreadyClaimed.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), alreadyClaimed.Load())
	assert.Len(t, f.ledger.Transfers(), 1)
	assert.Equal(t, account.Amount.Uint64(), f.ledger.Balance(account.Address).Uint64())
	assert.Equal(t, 0, f.airdrop.locks.size())
}

func TestClaim_ConcurrentDifferentRecipients(t *testing.T) {
	f := newFixture(t, 16)

	var wg sync.WaitGroup
	errs := make([]error, len(f.accounts))
	for i := range f.accounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.airdrop.Claim(context.Background(), f.accounts[i].Address, f.accounts[i].Amount, f.proof(t, i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "account %d", i)
	}
	assert.Len(t, f.ledger.Transfers(), 16)
}

func TestClaim_SharedStoreAcrossInstances(t *testing.T) {
	f := newFixture(t, 4)

	// A second server process sharing the same store and ledger
	second, err := NewAirdrop(&Config{Persistence: f.store, Transferer: f.ledger})
	require.NoError(t, err)

	account := f.accounts[2]
	proof := f.proof(t, 2)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, a := range []*Airdrop{f.airdrop, second} {
		wg.Add(1)
		go func(i int, a *Airdrop) {
			defer wg.Done()
			_, results[i] = a.Claim(context.Background(), account.Address, account.Amount, proof)
		}(i, a)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyClaimed)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.ledger.Transfers(), 1)
}

func TestClaim_AlternateHasher(t *testing.T) {
	accounts := testutil.CreateTestAccounts(t, 5)
	dist, err := distribution.Build(testutil.Entitlements(accounts), merkle.SHA256Hasher{})
	require.NoError(t, err)

	a, err := NewAirdrop(&Config{Persistence: memory.NewMemoryPersistence(), Transferer: ledger.NewMemoryLedger(uint256.NewInt(10_000))})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(dist.Root, owner, merkle.HashSHA256, dist.LeafCount))

	for _, account := range accounts {
		_, err := a.Claim(context.Background(), account.Address, account.Amount, testutil.ProofFor(t, dist, account))
		require.NoError(t, err)
	}
}

func TestClaim_UsesClock(t *testing.T) {
	accounts := testutil.CreateTestAccounts(t, 1)
	dist := testutil.CreateTestDistribution(t, accounts)
	fixed := time.Unix(1_700_000_000, 0)
	store := memory.NewMemoryPersistence()

	a, err := NewAirdrop(&Config{
		Persistence: store,
		Transferer:  ledger.NewMemoryLedger(uint256.NewInt(1000)),
		Now:         func() time.Time { return fixed },
	})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(dist.Root, owner, "", 1))

	state, err := a.State()
	require.NoError(t, err)
	assert.Equal(t, fixed.Unix(), state.InitializedAt)

	record, err := a.Claim(context.Background(), accounts[0].Address, accounts[0].Amount, testutil.ProofFor(t, dist, accounts[0]))
	require.NoError(t, err)
	assert.Equal(t, fixed.Unix(), record.ReservedAt)
	assert.Equal(t, fixed.Unix(), record.ClaimedAt)

	stored, err := store.LoadClaim(accounts[0].Address)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, fixed.Unix(), stored.ClaimedAt)
}
