package route

import (
	"runtime"
	"sync/atomic"
)

const (
	ctlTypeMask    = 0x7
	ctlLevel       = 1 << 8
	ctlLogicalDest = 1 << 9
	ctlValid       = 1 << 31
)

// Cache holds a binding's route snapshot under a sequence counter.
// Writers must be serialized by the caller; readers never block them and
// retry when a write overlapped their read.
type Cache struct {
	seq atomic.Uint64

	gsi     atomic.Uint32
	vector  atomic.Uint32
	apicID  atomic.Uint64
	control atomic.Uint32
}

// Store publishes s.
func (c *Cache) Store(s Snapshot) {
	c.seq.Add(1)

	c.gsi.Store(s.GSI)
	c.vector.Store(s.Vector)
	c.apicID.Store(s.APICID)
	c.control.Store(packControl(s))

	c.seq.Add(1)
}

// Load returns the last published snapshot.
func (c *Cache) Load() Snapshot {
	for {
		seq := c.seq.Load()
		if seq&1 != 0 {
			runtime.Gosched()

			continue
		}

		s := Snapshot{
			GSI:    c.gsi.Load(),
			Vector: c.vector.Load(),
			APICID: c.apicID.Load(),
		}
		ctl := c.control.Load()

		if c.seq.Load() != seq {
			continue
		}

		s.Valid = ctl&ctlValid != 0
		s.Control = Control{
			Type:           InterruptType(ctl & ctlTypeMask),
			LevelTriggered: ctl&ctlLevel != 0,
			LogicalDest:    ctl&ctlLogicalDest != 0,
		}

		return s
	}
}

// Version counts completed stores.
func (c *Cache) Version() uint64 {
	return c.seq.Load() / 2
}

func packControl(s Snapshot) uint32 {
	ctl := uint32(s.Control.Type) & ctlTypeMask

	if s.Control.LevelTriggered {
		ctl |= ctlLevel
	}

	if s.Control.LogicalDest {
		ctl |= ctlLogicalDest
	}

	if s.Valid {
		ctl |= ctlValid
	}

	return ctl
}
