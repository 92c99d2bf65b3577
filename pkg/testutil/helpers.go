package testutil

import (
	"crypto/ecdsa"
	"fmt"
	"testing"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/entitlement"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// TestAccount is a recipient with a deterministic key
type TestAccount struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
	Amount  *uint256.Int
}

// CreateTestAccount derives a deterministic key from seed
func CreateTestAccount(t *testing.T, seed string, amount uint64) *TestAccount {
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("airdrop-test-account-" + seed)))
	if err != nil {
		if t != nil {
			t.Fatalf("Failed to derive test key for %q: %v", seed, err)
		}
		return nil
	}
	return &TestAccount{
		Key:     key,
		Address: crypto.PubkeyToAddress(key.PublicKey),
		Amount:  uint256.NewInt(amount),
	}
}

// CreateTestAccounts creates n accounts entitled to 100, 200, ... n*100
func CreateTestAccounts(t *testing.T, n int) []*TestAccount {
	accounts := make([]*TestAccount, n)
	for i := 0; i < n; i++ {
		accounts[i] = CreateTestAccount(t, fmt.Sprintf("%d", i), uint64(100*(i+1)))
	}
	return accounts
}

// Entitlements converts accounts to entitlements in order
func Entitlements(accounts []*TestAccount) []*entitlement.Entitlement {
	list := make([]*entitlement.Entitlement, len(accounts))
	for i, a := range accounts {
		list[i] = entitlement.New(a.Address, a.Amount)
	}
	return list
}

// CreateTestDistribution builds the distribution of the accounts with keccak256
func CreateTestDistribution(t *testing.T, accounts []*TestAccount) *distribution.Distribution {
	d, err := distribution.Build(Entitlements(accounts), merkle.DefaultHasher())
	if err != nil {
		if t != nil {
			t.Fatalf("Failed to build test distribution: %v", err)
		}
		return nil
	}
	return d
}

// ProofFor returns the proof of an account, failing the test when missing
func ProofFor(t *testing.T, d *distribution.Distribution, account *TestAccount) merkle.Proof {
	claim, err := d.ProofFor(account.Address)
	if err != nil {
		t.Fatalf("No proof for %s: %v", account.Address.Hex(), err)
	}
	return claim.Proof
}
