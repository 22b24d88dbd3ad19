// Package rcu provides a sleepable read-copy-update domain.
//
// Readers bracket their accesses to a published structure with ReadLock and
// ReadUnlock and never block. An updater publishes a new version of the
// structure (typically through an atomic.Pointer) and then calls Synchronize,
// which returns once every reader that could still observe the old version
// has left its read section. Only then may resources referenced by the old
// version be released.
package rcu

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// spinRounds is how many times Synchronize yields before it starts sleeping.
const spinRounds = 64

// Domain is a reclamation domain. The zero value is ready for use.
type Domain struct {
	// mu serializes updaters.
	mu sync.Mutex

	idx     atomic.Uint32
	readers [2]atomic.Int64
}

// ReadLock enters a read section and returns the token to pass to
// ReadUnlock.
func (d *Domain) ReadLock() int {
	for {
		i := d.idx.Load() & 1
		d.readers[i].Add(1)

		// An updater may have flipped the index between the load and the
		// increment, in which case it is not waiting for this slot.
		if d.idx.Load()&1 == i {
			return int(i)
		}

		d.readers[i].Add(-1)
	}
}

// ReadUnlock leaves the read section entered by the matching ReadLock.
func (d *Domain) ReadUnlock(token int) {
	d.readers[token].Add(-1)
}

// Synchronize waits until all read sections that started before the call
// have finished. It must not be called from inside a read section of d.
func (d *Domain) Synchronize() {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.idx.Load() & 1
	d.idx.Store(old ^ 1)

	for n := 0; d.readers[old].Load() != 0; n++ {
		if n < spinRounds {
			runtime.Gosched()

			continue
		}

		time.Sleep(10 * time.Microsecond)
	}
}
