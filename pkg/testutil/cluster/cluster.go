// Package cluster runs several airdrop servers over one shared claim store
// and ledger, the way a horizontally scaled deployment would.
package cluster

import (
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/airdrop"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/logger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/server"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultPoolBalance funds the shared ledger of a test cluster
const DefaultPoolBalance = 1_000_000

// Owner is the owner address the cluster publishes its root with
var Owner = common.HexToAddress("0x00000000000000000000000000000000000000ff")

// TestCluster represents a set of airdrop servers for testing
type TestCluster struct {
	Accounts     []*testutil.TestAccount
	Distribution *distribution.Distribution
	Store        persistence.IAirdropPersistence
	Ledger       *ledger.MemoryLedger
	Airdrops     []*airdrop.Airdrop
	Servers      []*httptest.Server
	ServerURLs   []string
	NumServers   int
	logger       *zap.Logger
}

// NewTestCluster starts numServers servers with a published root over numAccounts test accounts
func NewTestCluster(t *testing.T, numServers, numAccounts int) *TestCluster {
	clusterLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	accounts := testutil.CreateTestAccounts(t, numAccounts)
	tc := &TestCluster{
		Accounts:     accounts,
		Distribution: testutil.CreateTestDistribution(t, accounts),
		Store:        memory.NewMemoryPersistence(),
		Ledger:       ledger.NewMemoryLedger(uint256.NewInt(DefaultPoolBalance)),
		NumServers:   numServers,
		logger:       clusterLogger,
	}

	if err := tc.publishRoot(); err != nil {
		t.Fatalf("Failed to publish root: %v", err)
	}
	if err := tc.startServers(); err != nil {
		tc.Close()
		t.Fatalf("Failed to start servers: %v", err)
	}
	t.Cleanup(tc.Close)

	return tc
}

// publishRoot initializes the shared store once; every server then loads it
func (tc *TestCluster) publishRoot() error {
	first, err := tc.newAirdrop()
	if err != nil {
		return err
	}
	d := tc.Distribution
	if err := first.Initialize(d.Root, Owner, d.HashFunction, d.LeafCount); err != nil {
		return err
	}
	tc.logger.Sugar().Infow("Published test root", "root", d.Root.Hex(), "leaf_count", d.LeafCount)
	return nil
}

func (tc *TestCluster) newAirdrop() (*airdrop.Airdrop, error) {
	return airdrop.NewAirdrop(&airdrop.Config{
		Persistence: tc.Store,
		Transferer:  tc.Ledger,
		Logger:      tc.logger,
	})
}

// startServers starts an HTTP test server per airdrop instance
func (tc *TestCluster) startServers() error {
	tc.Airdrops = make([]*airdrop.Airdrop, tc.NumServers)
	tc.Servers = make([]*httptest.Server, tc.NumServers)
	tc.ServerURLs = make([]string, tc.NumServers)

	for i := 0; i < tc.NumServers; i++ {
		a, err := tc.newAirdrop()
		if err != nil {
			return err
		}
		s, err := server.NewServer(a, &server.Config{}, tc.logger)
		if err != nil {
			return err
		}
		testServer := httptest.NewServer(s.GetHandler())

		tc.Airdrops[i] = a
		tc.Servers[i] = testServer
		tc.ServerURLs[i] = testServer.URL

		tc.logger.Sugar().Debugw("Started server", "server", i+1, "url", testServer.URL)
	}
	return nil
}

// GetServerURLs returns the HTTP server URLs for the test cluster
func (tc *TestCluster) GetServerURLs() []string {
	return tc.ServerURLs
}

// StopServer closes one server, leaving the others running
func (tc *TestCluster) StopServer(i int) {
	if tc.Servers[i] != nil {
		tc.Servers[i].Close()
		tc.Servers[i] = nil
		tc.logger.Sugar().Debugw("Stopped server", "server", i+1)
	}
}

// Close shuts down all test servers
func (tc *TestCluster) Close() {
	for i := range tc.Servers {
		tc.StopServer(i)
	}
}
