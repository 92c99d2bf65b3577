package memory

import (
	"fmt"
	"sync"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// MemoryPersistence is an in-memory implementation of IAirdropPersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Copies records on the way in and out to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Airdrop state, nil until initialized
	state *persistence.AirdropState

	// Claims: recipient -> ClaimRecord
	claims map[common.Address]*types.ClaimRecord

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL CLAIMS WILL BE FORGOTTEN ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Use --persistence-type=badger for production")

	return &MemoryPersistence{
		claims: make(map[common.Address]*types.ClaimRecord),
	}
}

// SaveAirdropState persists the airdrop state once.
func (m *MemoryPersistence) SaveAirdropState(state *persistence.AirdropState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("invalid airdrop state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	if m.state != nil {
		return persistence.ErrAlreadyInitialized
	}

	stateCopy := *state
	m.state = &stateCopy
	return nil
}

// LoadAirdropState retrieves the airdrop state.
func (m *MemoryPersistence) LoadAirdropState() (*persistence.AirdropState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	if m.state == nil {
		return nil, nil // Not initialized is not an error
	}

	stateCopy := *m.state
	return &stateCopy, nil
}

// ReserveClaim inserts a reserved record if the recipient has none.
func (m *MemoryPersistence) ReserveClaim(record *types.ClaimRecord) error {
	if err := persistence.ValidateClaimRecord(record); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	if _, exists := m.claims[record.Recipient]; exists {
		return persistence.ErrAlreadyClaimed
	}

	m.claims[record.Recipient] = record.Clone()
	return nil
}

// CommitClaim marks a reservation as claimed.
func (m *MemoryPersistence) CommitClaim(recipient common.Address, transferRef string, claimedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	record, exists := m.claims[recipient]
	if !exists {
		return persistence.ErrClaimNotFound
	}
	if record.State != types.ClaimStateReserved {
		return persistence.ErrClaimNotReserved
	}

	record.State = types.ClaimStateClaimed
	record.TransferRef = transferRef
	record.ClaimedAt = claimedAt
	return nil
}

// ReleaseClaim removes a reservation.
func (m *MemoryPersistence) ReleaseClaim(recipient common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	record, exists := m.claims[recipient]
	if !exists {
		return nil
	}
	if record.State != types.ClaimStateReserved {
		return persistence.ErrClaimNotReserved
	}

	delete(m.claims, recipient)
	return nil
}

// LoadClaim retrieves a recipient's claim record.
func (m *MemoryPersistence) LoadClaim(recipient common.Address) (*types.ClaimRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	record, exists := m.claims[recipient]
	if !exists {
		return nil, nil
	}
	return record.Clone(), nil
}

// ListClaims returns all claim records sorted by reservation time.
func (m *MemoryPersistence) ListClaims() ([]*types.ClaimRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*types.ClaimRecord, 0, len(m.claims))
	for _, record := range m.claims {
		result = append(result, record.Clone())
	}
	persistence.SortClaims(result)

	return result, nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
