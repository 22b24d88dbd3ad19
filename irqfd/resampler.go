package irqfd

import (
	"sync/atomic"

	"github.com/bobuhiro11/gomshv/ack"
)

// resampler fans a gsi acknowledgment out to every resample channel bound
// to that gsi.
type resampler struct {
	m        *Manager
	gsi      uint32
	notifier ack.Notifier

	// copy-on-write, written under m.resamplerMu, read under m.srcu.
	members atomic.Pointer[[]*irqfd]
}

func (m *Manager) resamplerJoin(f *irqfd) {
	m.resamplerMu.Lock()
	defer m.resamplerMu.Unlock()

	r, ok := m.resamplers[f.gsi]
	if !ok {
		r = &resampler{m: m, gsi: f.gsi}
		r.notifier = ack.Notifier{GSI: f.gsi, Acked: r.acked}
		r.members.Store(&[]*irqfd{})

		m.resamplers[f.gsi] = r
		m.acks.Register(&r.notifier)

		m.log.Debug().Uint32("gsi", f.gsi).Msg("resampler created")
	}

	old := *r.members.Load()
	list := make([]*irqfd, 0, len(old)+1)
	list = append(list, f)
	list = append(list, old...)
	r.members.Store(&list)

	f.resampler = r
}

// resamplerLeave removes f from its resampler and frees the resampler with
// its last member. When it returns no ack fan-out can reach f.
func (m *Manager) resamplerLeave(f *irqfd) {
	m.resamplerMu.Lock()
	defer m.resamplerMu.Unlock()

	r := f.resampler
	old := *r.members.Load()
	list := make([]*irqfd, 0, len(old))

	for _, o := range old {
		if o != f {
			list = append(list, o)
		}
	}

	r.members.Store(&list)
	m.srcu.Synchronize()

	if len(list) == 0 {
		delete(m.resamplers, r.gsi)
		m.acks.Unregister(&r.notifier)

		m.log.Debug().Uint32("gsi", r.gsi).Msg("resampler freed")
	}
}

// acked signals every member's resample channel. An interrupt type that
// needs an explicit clear is cleared once per acknowledgment.
func (r *resampler) acked() {
	m := r.m

	tok := m.srcu.ReadLock()
	defer m.srcu.ReadUnlock(tok)

	cleared := false

	for _, f := range *r.members.Load() {
		if !cleared && f.route.Load().Control.NeedsClear() {
			if err := m.hv.ClearVirtualInterrupt(m.id); err != nil {
				m.log.Error().Err(err).Uint32("gsi", r.gsi).Msg("clear virtual interrupt")
			}

			cleared = true
		}

		if err := f.resampleCh.Signal(); err != nil {
			m.log.Error().Err(err).Uint32("gsi", r.gsi).Msg("signal resample channel")
		}
	}
}
