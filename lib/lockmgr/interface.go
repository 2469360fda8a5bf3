package lockmgr

import (
	"context"
	"time"
)

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock tries once to acquire the lock for the given key. A ttl > 0 releases the lock
	// automatically after that time, so a crashed holder can not block others forever.
	// Returns whether the lock was acquired, the owner ID needed to release it, and an error if any.
	AcquireLock(key string, ttl time.Duration) (ok bool, ownerID []byte, err error)

	// WaitLock retries AcquireLock with exponential backoff (starting at backoff) until the lock
	// is acquired or ctx is done. The context error is returned if the wait was aborted.
	WaitLock(ctx context.Context, key string, ttl, backoff time.Duration) (ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Returns whether the lock was released, and an error if any.
	// The method also returns true if the lock did not exist.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}
