// Process-wide reader-writer locks, one per table file.

package flatdb

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// maxReaders is the weight of a table lock. Readers take 1, writers take all
// of it.
const maxReaders = 1 << 30

// tableLock is a reader-writer lock with cancellable acquisition. Waiters are
// admitted in FIFO order, so a waiting writer holds back later readers.
type tableLock struct {
	sem *semaphore.Weighted
}

// tableLocks maps an absolute table path to its *tableLock. Entries are
// created on first use and never removed.
var tableLocks sync.Map

func lockFor(path string) *tableLock {
	if l, ok := tableLocks.Load(path); ok {
		return l.(*tableLock)
	}
	l, _ := tableLocks.LoadOrStore(path, &tableLock{sem: semaphore.NewWeighted(maxReaders)})
	return l.(*tableLock)
}

// acquire takes the table lock, shared or exclusive, and returns the function
// releasing it. The wait is bounded by the DB's lock timeout.
func (d *DB) acquire(ctx context.Context, table, path string, exclusive bool) (func(), error) {
	l := lockFor(path)
	n := int64(1)
	if exclusive {
		n = maxReaders
	}
	actx := ctx
	if d.lockTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, d.lockTimeout)
		defer cancel()
	}
	if err := l.sem.Acquire(actx, n); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		d.log.WarnContext(ctx, "Table lock timeout", "table", table, "exclusive", exclusive, "timeout", d.lockTimeout)
		return nil, newError(CodeLockTimeout, table, "lock not acquired within %s", d.lockTimeout).Wrap(err)
	}
	return func() { l.sem.Release(n) }, nil
}
