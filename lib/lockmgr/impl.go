package lockmgr

import (
	"bytes"
	"context"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var log = logger.GetLogger("lockmgr")

// maxBackoff caps the wait between two attempts of WaitLock
const maxBackoff = 100 * time.Millisecond

type lockMgrImpl struct {
	store store.IStore
}

func NewLockManager(store store.IStore) ILockManager {
	return &lockMgrImpl{
		store: store,
	}
}

func (lp *lockMgrImpl) AcquireLock(key string, ttl time.Duration) (bool, []byte, error) {
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	// Try to acquire the lock (by setting the value only if it doesn't exist - atomic CAS operation)
	err = lp.store.SetEIfUnset(key, ownerID, ttl)
	if err != nil {
		log.Warningf("failed to set lock %q: %v", key, err)
		return false, nil, err
	}

	// Check if the lock was acquired
	value, found, err := lp.store.Get(key)
	if err != nil {
		return false, nil, err
	}

	// Return true if lock was acquired BY US
	if found && bytes.Equal(value, ownerID) {
		return true, ownerID, nil
	}
	// Return false if lock was acquired BY SOMEONE ELSE in the meantime
	return false, nil, nil
}

func (lp *lockMgrImpl) WaitLock(ctx context.Context, key string, ttl, backoff time.Duration) ([]byte, error) {
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	for attempt := 1; ; attempt++ {
		ok, ownerID, err := lp.AcquireLock(key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			if attempt > 1 {
				log.Debugf("acquired lock %q after %d attempts", key, attempt)
			}
			return ownerID, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, maxBackoff)
	}
}

func (lp *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	// Check if the lock exists
	value, ok, err := lp.store.Get(key)
	if err != nil || !ok {
		return err == nil, err
	}

	// Check if the lock is owned by us
	if !bytes.Equal(ownerID, value) {
		return false, nil
	}

	// Release the lock
	err = lp.store.Delete(key)
	return err == nil, err
}
