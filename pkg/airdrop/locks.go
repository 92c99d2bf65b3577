package airdrop

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// recipientLocks serializes claims per recipient while letting different
// recipients proceed in parallel. Entries are dropped when unused.
type recipientLocks struct {
	mu    sync.Mutex
	locks map[common.Address]*recipientLock
}

type recipientLock struct {
	sync.Mutex
	refs int
}

func newRecipientLocks() *recipientLocks {
	return &recipientLocks{locks: make(map[common.Address]*recipientLock)}
}

// lock blocks until the recipient's lock is held and returns its release func
func (r *recipientLocks) lock(recipient common.Address) func() {
	r.mu.Lock()
	l, ok := r.locks[recipient]
	if !ok {
		l = &recipientLock{}
		r.locks[recipient] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, recipient)
		}
		r.mu.Unlock()
	}
}

func (r *recipientLocks) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
