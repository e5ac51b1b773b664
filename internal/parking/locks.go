package parking

import "sync"

// lockSet hands out one mutex per logical operation name, so concurrent
// triggers of the same operation serialize without a process-wide lock.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[string]*sync.Mutex)}
}

func (ls *lockSet) get(name string) *sync.Mutex {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	lock, ok := ls.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		ls.locks[name] = lock
	}

	return lock
}
