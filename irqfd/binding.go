package irqfd

import (
	"sync/atomic"

	"github.com/bobuhiro11/gomshv/eventfd"
	"github.com/bobuhiro11/gomshv/route"
	"github.com/bobuhiro11/gomshv/workqueue"
)

type irqfd struct {
	m   *Manager
	gsi uint32

	ch         eventfd.Channel
	resampleCh eventfd.Channel
	sub        *eventfd.Subscription

	// set once at assign time, before the binding is active.
	resampler *resampler

	route route.Cache

	// latched is the route read by the last wakeup, consumed by doAssert.
	latched atomic.Pointer[route.Snapshot]

	assert   *workqueue.Work
	shutdown *workqueue.Work

	// active mirrors membership in m.items and is written under m.mu.
	active atomic.Bool

	// pending counts signals drained before the binding went live.
	pending atomic.Uint64
}

// wakeup is the channel callback. It runs with the channel's delivery lock
// held and must not block. The counter is drained on every wakeup so a
// level-triggered channel stops firing even while the binding is inactive.
func (f *irqfd) wakeup(ev eventfd.Flags) {
	if ev&eventfd.In != 0 {
		if n := f.ch.Drain(); n > 0 {
			if f.active.Load() {
				f.inject()
			} else {
				f.park(n)
			}
		}
	}

	if ev&eventfd.Hup != 0 {
		m := f.m

		// Deassign may have beaten us to it; then it cleans up.
		m.mu.Lock()
		if f.active.Load() {
			m.deactivate(f)
		}
		m.mu.Unlock()
	}
}

// park parks n signals for replay. Assign publishes active before it
// swaps pending, so one of the two sides always sees the other.
func (f *irqfd) park(n uint64) {
	f.pending.Add(n)

	if f.active.Load() && f.pending.Swap(0) > 0 {
		f.inject()
	}
}

// replay injects signals that arrived before the binding went live.
// Called under m.mu right after insertion.
func (f *irqfd) replay() eventfd.Flags {
	ev := f.ch.Poll()

	n := f.pending.Swap(0)
	if ev&eventfd.In != 0 {
		n += f.ch.Drain()
	}

	if n > 0 {
		f.inject()
	}

	return ev
}

func (f *irqfd) inject() {
	r := f.route.Load()
	if !r.Valid {
		f.m.log.Warn().Uint32("gsi", f.gsi).Msg("invalid routing info, dropping interrupt")

		return
	}

	f.latched.Store(&r)

	// A pending assert picks up the newer route when it runs.
	f.assert.Queue()
}

func (f *irqfd) doAssert() {
	r := f.latched.Load()
	if r == nil {
		return
	}

	m := f.m
	if err := m.hv.AssertVirtualInterrupt(m.id, r.Vector, r.APICID, r.Control); err != nil {
		m.log.Error().Err(err).Uint32("gsi", f.gsi).Uint32("vector", r.Vector).Msg("assert virtual interrupt")
	}
}

func (f *irqfd) doShutdown() {
	f.ch.Unsubscribe(f.sub)

	if f.resampler != nil {
		f.m.resamplerLeave(f)
		f.resampleCh.Put()
	}

	// No new assert can be queued past this point.
	f.assert.Flush()

	f.ch.Put()

	f.m.log.Debug().Uint32("gsi", f.gsi).Msg("irqfd released")
}

// unwind releases a binding that never became active.
func (f *irqfd) unwind() {
	if f.sub != nil {
		f.ch.Unsubscribe(f.sub)
	}

	if f.resampler != nil {
		f.m.resamplerLeave(f)
	}

	if f.resampleCh != nil {
		f.resampleCh.Put()
	}

	f.ch.Put()
}
