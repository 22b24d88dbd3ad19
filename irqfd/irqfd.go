// Package irqfd binds event channels to virtual interrupt injection.
//
// Signalling a bound channel injects the interrupt its gsi is routed to,
// without the controller on the path. Bindings created with FlagResample
// additionally signal a resample channel whenever the guest acknowledges a
// level-triggered gsi, so the device model can re-assert the line.
//
// Teardown is asynchronous: a binding is first deactivated (removed from
// the active set under the manager lock), then its shutdown work runs on the
// cleanup queue, strictly in this order:
//
//	unsubscribe from the channel  -> no new wakeups
//	leave the resampler           -> no new resample signals
//	flush the assert work         -> no injection in flight
//	drop the channel references
//
// Deassign and Release flush the cleanup queue before returning.
package irqfd

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bobuhiro11/gomshv/ack"
	"github.com/bobuhiro11/gomshv/eventfd"
	"github.com/bobuhiro11/gomshv/hverr"
	"github.com/bobuhiro11/gomshv/rcu"
	"github.com/bobuhiro11/gomshv/route"
	"github.com/bobuhiro11/gomshv/workqueue"
)

const (
	FlagDeassign uint32 = 1 << 0
	FlagResample uint32 = 1 << 1

	validFlags = FlagDeassign | FlagResample
)

// Args is an irqfd request.
type Args struct {
	FD         int
	ResampleFD int
	GSI        uint32
	Flags      uint32
}

// Hypervisor is the interrupt controller of the partition.
type Hypervisor interface {
	AssertVirtualInterrupt(partitionID uint64, vector uint32, apicID uint64, ctl route.Control) error
	ClearVirtualInterrupt(partitionID uint64) error
}

// Config holds the collaborators of a Manager.
type Config struct {
	PartitionID uint64
	Hypervisor  Hypervisor
	Routes      route.Resolver
	Channels    eventfd.Resolver
	Acks        *ack.Registry

	// Cleanup runs shutdown work; System runs assert work.
	Cleanup *workqueue.Queue
	System  *workqueue.Queue

	Logger zerolog.Logger
}

// Manager owns the irqfds of one partition.
type Manager struct {
	id      uint64
	hv      Hypervisor
	routes  route.Resolver
	chans   eventfd.Resolver
	acks    *ack.Registry
	cleanup *workqueue.Queue
	system  *workqueue.Queue
	log     zerolog.Logger

	// srcu protects resampler member lists.
	srcu rcu.Domain

	// mu guards the active set and serializes route cache writers.
	mu    sync.Mutex
	items map[*irqfd]struct{}

	resamplerMu sync.Mutex
	resamplers  map[uint32]*resampler
}

func New(c Config) *Manager {
	return &Manager{
		id:         c.PartitionID,
		hv:         c.Hypervisor,
		routes:     c.Routes,
		chans:      c.Channels,
		acks:       c.Acks,
		cleanup:    c.Cleanup,
		system:     c.System,
		log:        c.Logger.With().Str("component", "irqfd").Uint64("partition", c.PartitionID).Logger(),
		items:      make(map[*irqfd]struct{}),
		resamplers: make(map[uint32]*resampler),
	}
}

// Do assigns or deassigns according to FlagDeassign.
func (m *Manager) Do(args Args) error {
	if args.Flags&FlagDeassign != 0 {
		return m.Deassign(args)
	}

	return m.Assign(args)
}

// Assign binds args.FD to args.GSI.
func (m *Manager) Assign(args Args) error {
	if args.Flags&^validFlags != 0 {
		return fmt.Errorf("irqfd flags %#x: %w", args.Flags, hverr.ErrUnknownFlags)
	}

	ch, err := m.chans.Get(args.FD)
	if err != nil {
		return fmt.Errorf("irqfd gsi %d: %w", args.GSI, err)
	}

	f := &irqfd{
		m:   m,
		gsi: args.GSI,
		ch:  ch,
	}
	f.assert = m.system.NewWork(f.doAssert)
	f.shutdown = m.cleanup.NewWork(f.doShutdown)

	// Refreshed under m.mu on insertion; wakeups are parked until then.
	f.route.Store(m.routes.Resolve(args.GSI))

	if args.Flags&FlagResample != 0 {
		if r := f.route.Load(); !r.Valid || !r.Control.LevelTriggered {
			f.unwind()

			return fmt.Errorf("irqfd gsi %d: %w", args.GSI, hverr.ErrNotLevelTriggered)
		}

		rch, err := m.chans.Get(args.ResampleFD)
		if err != nil {
			f.unwind()

			return fmt.Errorf("irqfd gsi %d resample: %w", args.GSI, err)
		}

		f.resampleCh = rch
		m.resamplerJoin(f)
	}

	sub, err := ch.Subscribe(f.wakeup)
	if err != nil {
		f.unwind()

		return fmt.Errorf("irqfd gsi %d: %v: %w", args.GSI, err, hverr.ErrResource)
	}

	f.sub = sub

	m.mu.Lock()

	for o := range m.items {
		if o.ch == ch {
			m.mu.Unlock()
			f.unwind()

			return fmt.Errorf("irqfd gsi %d (bound to gsi %d): %w", args.GSI, o.gsi, hverr.ErrChannelInUse)
		}
	}

	f.route.Store(m.routes.Resolve(args.GSI))
	m.items[f] = struct{}{}
	f.active.Store(true)

	// Catch a signal or hangup that arrived before the binding went live.
	// Holding m.mu keeps the shutdown work from being queued until the
	// replayed assert is.
	if ev := f.replay(); ev&eventfd.Hup != 0 {
		m.deactivate(f)
	}

	m.mu.Unlock()

	m.log.Debug().Uint32("gsi", args.GSI).Bool("resample", f.resampler != nil).Msg("irqfd assigned")

	return nil
}

// Deassign shuts down every irqfd bound to args.FD and args.GSI and waits
// for the shutdown to complete. When it returns no interrupt from those
// bindings will be injected.
func (m *Manager) Deassign(args Args) error {
	ch, err := m.chans.Get(args.FD)
	if err != nil {
		return fmt.Errorf("irqfd gsi %d: %w", args.GSI, err)
	}

	found := false

	m.mu.Lock()

	for f := range m.items {
		if f.ch == ch && f.gsi == args.GSI {
			m.deactivate(f)

			found = true
		}
	}

	m.mu.Unlock()
	ch.Put()

	m.cleanup.Flush()

	if !found {
		return fmt.Errorf("irqfd fd %d gsi %d: %w", args.FD, args.GSI, hverr.ErrNotFound)
	}

	return nil
}

// RoutingUpdate refreshes the cached route of every active irqfd.
func (m *Manager) RoutingUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for f := range m.items {
		f.route.Store(m.routes.Resolve(f.gsi))
	}
}

// Release shuts down every irqfd and waits for the shutdown to complete.
func (m *Manager) Release() {
	m.mu.Lock()

	for f := range m.items {
		m.deactivate(f)
	}

	m.mu.Unlock()

	m.cleanup.Flush()
}

// Active returns the number of active irqfds.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.items)
}

// Resamplers returns the number of gsis with resample listeners.
func (m *Manager) Resamplers() int {
	m.resamplerMu.Lock()
	defer m.resamplerMu.Unlock()

	return len(m.resamplers)
}

// must be called with m.mu held.
func (m *Manager) deactivate(f *irqfd) {
	delete(m.items, f)
	f.active.Store(false)
	f.shutdown.Queue()
}
