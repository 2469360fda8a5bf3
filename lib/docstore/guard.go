package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/puzpuzpuz/xsync/v3"
)

// Guard serializes the read-modify-write cycles on an index record.
// Lock blocks until the caller owns the index key and returns the function releasing it.
type Guard interface {
	Lock(indexKey string) (unlock func(), err error)
}

// --------------------------------------------------------------------------
// Local guard
// --------------------------------------------------------------------------

// LocalGuard serializes index updates of all stores in this process.
// Mutexes are created on first use per index key and never removed.
type LocalGuard struct {
	mutexes *xsync.MapOf[string, *sync.Mutex]
}

// NewLocalGuard creates a guard with its own mutex registry.
// Stores only exclude each other if they share the same guard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{mutexes: xsync.NewMapOf[string, *sync.Mutex]()}
}

var defaultGuard = NewLocalGuard()

// --------------------------------------------------------------------------
// Interface Methods (docu see Guard)
// --------------------------------------------------------------------------

// Lock blocks until the process local mutex of indexKey is held. It never fails.
func (g *LocalGuard) Lock(indexKey string) (func(), error) {
	mu, _ := g.mutexes.LoadOrCompute(indexKey, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock, nil
}

// --------------------------------------------------------------------------
// Distributed guard
// --------------------------------------------------------------------------

// DistributedGuard serializes index updates across processes with a lock stored in
// the backend itself (key <indexKey>$lock). The lock carries a ttl so a crashed
// holder releases it eventually.
type DistributedGuard struct {
	locks   lockmgr.ILockManager
	ttl     time.Duration
	timeout time.Duration
	backoff time.Duration
}

// NewDistributedGuard creates a guard on the given lock manager.
// ttl bounds how long a lock is held, timeout bounds how long Lock waits for it.
func NewDistributedGuard(locks lockmgr.ILockManager, ttl, timeout time.Duration) *DistributedGuard {
	return &DistributedGuard{
		locks:   locks,
		ttl:     ttl,
		timeout: timeout,
		backoff: time.Millisecond,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see Guard)
// --------------------------------------------------------------------------

// Lock acquires the backend lock <indexKey>$lock, retrying until the guard's timeout expires.
// The returned function releases the lock if it is still owned by this guard.
func (g *DistributedGuard) Lock(indexKey string) (func(), error) {
	lockKey := indexKey + "$lock"

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	owner, err := g.locks.WaitLock(ctx, lockKey, g.ttl, g.backoff)
	if err != nil {
		return nil, fmt.Errorf("failed to lock index %q: %w", indexKey, err)
	}

	return func() {
		if ok, err := g.locks.ReleaseLock(lockKey, owner); err != nil {
			log.Errorf("failed to release index lock %q: %v", lockKey, err)
		} else if !ok {
			// the ttl ran out and someone else holds the lock now
			log.Warningf("index lock %q expired before it was released", lockKey)
		}
	}, nil
}

// --------------------------------------------------------------------------
// No guard
// --------------------------------------------------------------------------

// noGuard does not serialize anything. Concurrent writers of one model can lose index updates.
type noGuard struct{}

func (noGuard) Lock(string) (func(), error) {
	return func() {}, nil
}
