package lockmgr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
)

func newStore(t *testing.T) store.IStore {
	t.Helper()
	s, err := lstore.NewLocalStore(func() (db.KVDB, error) {
		return maple.NewMapleDB(nil), nil
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestAcquireRelease(t *testing.T) {
	lm := NewLockManager(newStore(t))

	ok, owner, err := lm.AcquireLock("lock", 0)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}

	ok, _, err = lm.AcquireLock("lock", 0)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail, ok=%v err=%v", ok, err)
	}

	released, err := lm.ReleaseLock("lock", []byte("not-the-owner"))
	if err != nil || released {
		t.Fatalf("release with wrong owner must fail, released=%v err=%v", released, err)
	}

	released, err = lm.ReleaseLock("lock", owner)
	if err != nil || !released {
		t.Fatalf("release with owner must succeed, released=%v err=%v", released, err)
	}

	// releasing a missing lock is fine
	released, err = lm.ReleaseLock("lock", owner)
	if err != nil || !released {
		t.Fatalf("release of missing lock should report true, released=%v err=%v", released, err)
	}
}

func TestLockTTL(t *testing.T) {
	lm := NewLockManager(newStore(t))

	ok, _, _ := lm.AcquireLock("ttl-lock", 30*time.Millisecond)
	if !ok {
		t.Fatal("expected acquire to succeed")
	}

	time.Sleep(50 * time.Millisecond)

	ok, _, err := lm.AcquireLock("ttl-lock", 0)
	if err != nil || !ok {
		t.Fatalf("expected acquire after ttl to succeed, ok=%v err=%v", ok, err)
	}
}

func TestWaitLock(t *testing.T) {
	t.Run("mutual exclusion", func(t *testing.T) {
		lm := NewLockManager(newStore(t))

		var inside atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				owner, err := lm.WaitLock(context.Background(), "mutex", time.Second, time.Millisecond)
				if err != nil {
					t.Errorf("WaitLock failed: %v", err)
					return
				}
				if n := inside.Add(1); n != 1 {
					t.Errorf("%d holders inside the critical section", n)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				if _, err := lm.ReleaseLock("mutex", owner); err != nil {
					t.Errorf("ReleaseLock failed: %v", err)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("context deadline", func(t *testing.T) {
		lm := NewLockManager(newStore(t))
		if ok, _, _ := lm.AcquireLock("held", 0); !ok {
			t.Fatal("expected acquire to succeed")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := lm.WaitLock(ctx, "held", 0, time.Millisecond)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}
