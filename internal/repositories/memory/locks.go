package memory

import (
	"context"
	"sync"
	"time"

	apperrors "walletledger/internal/errors"
)

// lockTable hands out exclusive row locks. Each row is a one-slot channel;
// holding the slot is holding the lock.
type lockTable struct {
	mu   sync.Mutex
	rows map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{rows: make(map[string]chan struct{})}
}

func (lt *lockTable) slot(key string) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	ch, ok := lt.rows[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.rows[key] = ch
	}
	return ch
}

// acquire waits up to timeout for key. Running out of time is ErrBusy, the
// same outcome Postgres reports for lock_timeout.
func (lt *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := lt.slot(key)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return apperrors.Wrap(apperrors.ErrBusy, "timed out waiting for lock on %s", key)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (lt *lockTable) release(key string) {
	<-lt.slot(key)
}
