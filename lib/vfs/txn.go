package vfs

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/kvfs/lib/lockmgr"
	"github.com/ValentinKolb/kvfs/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// TxnOptions configure a Transaction.
type TxnOptions struct {
	// PerKeyLocks guards every key with its own mutex instead of one mutex for
	// the whole transaction. Accesses to different files then run in parallel.
	PerKeyLocks bool
}

// Transaction is the shared, reference counted handle on a store.
// Every store access runs while holding the transaction's lock (or the lock of
// the accessed key with PerKeyLocks). The methods block and must only be
// called from bridged work.
//
// If a store call panics while the lock is held the transaction is poisoned:
// the lock is released and every later access fails with CodeAcquire.
type Transaction struct {
	store    store.IStore
	locks    lockmgr.ILockManager
	mu       sync.Mutex
	keyLocks *xsync.MapOf[string, *keyLock]

	refs     atomic.Int64
	poisoned atomic.Bool
	onEnd    func()
}

// keyLock is the mutex of one key. users counts the goroutines holding or
// waiting for it and is only changed inside MapOf.Compute, the entry is
// removed when it drops to zero.
type keyLock struct {
	mu    sync.Mutex
	users int
}

// NewTransaction opens a transaction on s with a reference count of one.
// It probes the store once and fails with CodeAcquire if the store is unusable.
func NewTransaction(s store.IStore, opts TxnOptions) (*Transaction, error) {
	if s == nil {
		return nil, newError(CodeAcquire, "begin", "", nil)
	}
	if _, err := s.Has(LockKeyPrefix); err != nil {
		return nil, newError(CodeAcquire, "begin", "", err)
	}
	t := &Transaction{
		store: s,
		locks: lockmgr.NewLockManager(s),
	}
	if opts.PerKeyLocks {
		t.keyLocks = xsync.NewMapOf[string, *keyLock]()
	}
	t.refs.Store(1)
	return t, nil
}

// Refs returns the current reference count.
func (t *Transaction) Refs() int64 {
	return t.refs.Load()
}

// Poisoned reports whether a store call panicked while the lock was held.
func (t *Transaction) Poisoned() bool {
	return t.poisoned.Load()
}

// acquire adds a reference. It fails once the count dropped to zero.
func (t *Transaction) acquire() error {
	if t.poisoned.Load() {
		return errPoisoned
	}
	for {
		n := t.refs.Load()
		if n <= 0 {
			return errEnded
		}
		if t.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// release drops a reference. The last release ends the transaction.
func (t *Transaction) release() {
	n := t.refs.Add(-1)
	switch {
	case n == 0:
		log.Debugf("transaction ended")
		if t.onEnd != nil {
			t.onEnd()
		}
	case n < 0:
		log.Warningf("transaction released more often than acquired")
	}
}

// lockFor returns the mutex guarding key and a func to call after unlocking it.
// Without per-key locks, and for transaction wide operations, it is t.mu.
func (t *Transaction) lockFor(key string, wide bool) (*sync.Mutex, func()) {
	if t.keyLocks == nil || wide {
		return &t.mu, func() {}
	}
	kl, _ := t.keyLocks.Compute(key, func(kl *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			kl = &keyLock{}
		}
		kl.users++
		return kl, false
	})
	return &kl.mu, func() {
		t.keyLocks.Compute(key, func(kl *keyLock, loaded bool) (*keyLock, bool) {
			if !loaded {
				return nil, true
			}
			kl.users--
			return kl, kl.users == 0
		})
	}
}

// guard runs fn while holding the lock for key, or t.mu if wide is set.
func (t *Transaction) guard(op, key string, wide bool, fn func() error) error {
	if t.refs.Load() <= 0 {
		return newError(CodeAcquire, op, key, errEnded)
	}
	lock, done := t.lockFor(key, wide)
	lock.Lock()
	if t.poisoned.Load() {
		lock.Unlock()
		done()
		return newError(CodeAcquire, op, key, errPoisoned)
	}

	completed := false
	defer func() {
		if !completed {
			t.poisoned.Store(true)
			log.Errorf("transaction poisoned by panic in %s %q", op, key)
		}
		lock.Unlock()
		done()
	}()
	err := fn()
	completed = true
	return err
}

func storeErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return newError(CodeStore, op, key, err)
}

// Get returns the value of key.
func (t *Transaction) Get(key string) (value []byte, found bool, err error) {
	err = t.guard("get", key, false, func() error {
		var e error
		value, found, e = t.store.Get(key)
		return storeErr("get", key, e)
	})
	return value, found, err
}

// Put replaces the value of key.
func (t *Transaction) Put(key string, value []byte) error {
	return t.guard("put", key, false, func() error {
		return storeErr("put", key, t.store.Set(key, value))
	})
}

// Update reads key, passes the value to fn and stores what fn returns, all
// under one hold of the lock. If fn fails nothing is written and its error is
// returned unchanged.
func (t *Transaction) Update(key string, fn func(old []byte, found bool) ([]byte, error)) error {
	return t.guard("update", key, false, func() error {
		old, found, err := t.store.Get(key)
		if err != nil {
			return storeErr("update", key, err)
		}
		value, err := fn(old, found)
		if err != nil {
			return err
		}
		return storeErr("update", key, t.store.Set(key, value))
	})
}

// Delete removes key.
func (t *Transaction) Delete(key string) error {
	return t.guard("delete", key, false, func() error {
		return storeErr("delete", key, t.store.Delete(key))
	})
}

// Has reports whether key exists.
func (t *Transaction) Has(key string) (found bool, err error) {
	err = t.guard("has", key, false, func() error {
		var e error
		found, e = t.store.Has(key)
		return storeErr("has", key, e)
	})
	return found, err
}

// Keys returns all keys with the given prefix in ascending order.
func (t *Transaction) Keys(prefix string) (keys []string, err error) {
	err = t.guard("keys", prefix, true, func() error {
		var e error
		keys, e = t.store.Keys(prefix)
		return storeErr("keys", prefix, e)
	})
	return keys, err
}

// Sync flushes the store if it implements store.Syncer.
func (t *Transaction) Sync() error {
	s, ok := t.store.(store.Syncer)
	if !ok {
		return nil
	}
	return t.guard("sync", "", true, func() error {
		return storeErr("sync", "", s.Sync())
	})
}

// TryLock takes the file lock of name without waiting.
func (t *Transaction) TryLock(name string) (owner []byte, ok bool, err error) {
	key := lockKey(name)
	err = t.guard("lock", key, false, func() error {
		var e error
		ok, owner, e = t.locks.AcquireLock(key)
		return storeErr("lock", name, e)
	})
	return owner, ok, err
}

// ReleaseLock releases a file lock taken with TryLock.
func (t *Transaction) ReleaseLock(name string, owner []byte) (released bool, err error) {
	key := lockKey(name)
	err = t.guard("unlock", key, false, func() error {
		var e error
		released, e = t.locks.ReleaseLock(key, owner)
		return storeErr("unlock", name, e)
	})
	return released, err
}

// Locked reports whether the file lock of name is held by anyone.
func (t *Transaction) Locked(name string) (locked bool, err error) {
	key := lockKey(name)
	err = t.guard("locked", key, false, func() error {
		var e error
		locked, e = t.locks.IsLocked(key)
		return storeErr("locked", name, e)
	})
	return locked, err
}
