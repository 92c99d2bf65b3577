// Package ledger moves airdropped value to recipients.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	// ErrInsufficientFunds is returned when the pool cannot cover a transfer
	ErrInsufficientFunds = errors.New("insufficient funds in airdrop pool")

	// ErrInvalidTransfer is returned for zero recipients or zero amounts
	ErrInvalidTransfer = errors.New("invalid transfer")
)

// ITransferer pays out a claimed amount. A returned error means no value moved.
type ITransferer interface {
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (string, error)
}

// TransferFunc adapts a function to ITransferer
type TransferFunc func(ctx context.Context, to common.Address, amount *uint256.Int) (string, error)

func (f TransferFunc) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (string, error) {
	return f(ctx, to, amount)
}

// TransferRecord is one completed payout
type TransferRecord struct {
	Ref       string
	To        common.Address
	Amount    *uint256.Int
	Timestamp time.Time
}

// MemoryLedger is an in-process ledger funded with a fixed pool.
// Safe for concurrent use.
type MemoryLedger struct {
	mu        sync.Mutex
	pool      *uint256.Int
	balances  map[common.Address]*uint256.Int
	transfers []TransferRecord
}

// NewMemoryLedger creates a ledger whose pool holds the given amount
func NewMemoryLedger(pool *uint256.Int) *MemoryLedger {
	initial := new(uint256.Int)
	if pool != nil {
		initial.Set(pool)
	}
	return &MemoryLedger{
		pool:     initial,
		balances: make(map[common.Address]*uint256.Int),
	}
}

// Transfer moves amount from the pool to the recipient and returns a unique reference
func (l *MemoryLedger) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "transfer cancelled")
	}
	if to == (common.Address{}) {
		return "", errors.Wrap(ErrInvalidTransfer, "recipient is the zero address")
	}
	if amount == nil || amount.IsZero() {
		return "", errors.Wrap(ErrInvalidTransfer, "amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool.Lt(amount) {
		return "", errors.Wrapf(ErrInsufficientFunds, "pool holds %s, transfer needs %s", l.pool.Dec(), amount.Dec())
	}

	balance, ok := l.balances[to]
	if !ok {
		balance = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return "", fmt.Errorf("balance of %s would overflow", to.Hex())
	}

	l.pool.Sub(l.pool, amount)
	l.balances[to] = next

	ref := uuid.New().String()
	l.transfers = append(l.transfers, TransferRecord{
		Ref:       ref,
		To:        to,
		Amount:    new(uint256.Int).Set(amount),
		Timestamp: time.Now(),
	})
	return ref, nil
}

// Balance returns the amount credited to an account
func (l *MemoryLedger) Balance(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if balance, ok := l.balances[account]; ok {
		return new(uint256.Int).Set(balance)
	}
	return new(uint256.Int)
}

// PoolBalance returns what is left in the pool
func (l *MemoryLedger) PoolBalance() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(uint256.Int).Set(l.pool)
}

// Transfers returns the completed transfers in execution order
func (l *MemoryLedger) Transfers() []TransferRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]TransferRecord, len(l.transfers))
	for i, tr := range l.transfers {
		out[i] = tr
		out[i].Amount = new(uint256.Int).Set(tr.Amount)
	}
	return out
}
