package battles

import (
	"sync"

	"github.com/sandai/pkbattle/src/domain/shared"
)

type battleLock struct {
	mu   sync.Mutex
	refs int
}

// lockRegistry hands out one mutex per battle. An entry lives only while
// someone holds or waits for it.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[shared.BattleID]*battleLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[shared.BattleID]*battleLock)}
}

// acquire blocks until the battle's lock is held and returns its release func.
func (r *lockRegistry) acquire(id shared.BattleID) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &battleLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
