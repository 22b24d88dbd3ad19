// Package ioeventfd turns guest MMIO writes into event channel signals.
//
// Each binding registers a doorbell (address, length, optional match value)
// with the partition's MMIO dispatcher. A guest write that rings the
// doorbell signals the bound channel without leaving the dispatch path.
package ioeventfd

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/bobuhiro11/gomshv/eventfd"
	"github.com/bobuhiro11/gomshv/hverr"
	"github.com/bobuhiro11/gomshv/rcu"
)

const (
	FlagDataMatch uint32 = 1 << 0
	FlagPIO       uint32 = 1 << 1
	FlagDeassign  uint32 = 1 << 2

	validFlags = FlagDataMatch | FlagPIO | FlagDeassign
)

// Doorbell trigger flags passed to the Registrar.
const (
	TriggerSizeAny   uint64 = 0
	TriggerSizeByte  uint64 = 1
	TriggerSizeWord  uint64 = 2
	TriggerSizeDword uint64 = 3
	TriggerSizeQword uint64 = 4

	TriggerAnyValue uint64 = 1 << 31
)

// Args is an ioeventfd request.
type Args struct {
	DataMatch uint64
	Addr      uint64
	Len       uint32
	FD        int
	Flags     uint32
}

// Registrar is the MMIO dispatcher doorbells are registered with. fn is
// called with the doorbell id on every matching guest write; ids are
// positive.
type Registrar interface {
	RegisterDoorbell(addr, value, flags uint64, fn func(id int)) (int, error)
	UnregisterDoorbell(id int)
}

type Config struct {
	PartitionID uint64
	Doorbells   Registrar
	Channels    eventfd.Resolver
	Logger      zerolog.Logger
}

type ioeventfd struct {
	addr      uint64
	length    uint32
	datamatch uint64
	wildcard  bool
	ch        eventfd.Channel
	doorbell  int
}

func (p *ioeventfd) collides(o *ioeventfd) bool {
	return p.addr == o.addr && p.length == o.length &&
		(p.wildcard || o.wildcard || p.datamatch == o.datamatch)
}

func (p *ioeventfd) release(reg Registrar) {
	if p.doorbell > 0 {
		reg.UnregisterDoorbell(p.doorbell)
	}

	p.ch.Put()
}

// Manager owns the ioeventfds of one partition.
type Manager struct {
	id    uint64
	reg   Registrar
	chans eventfd.Resolver
	log   zerolog.Logger

	// mu serializes writers; items is copy-on-write and read under rcu.
	mu    sync.Mutex
	items atomic.Pointer[[]*ioeventfd]
	rcu   rcu.Domain
}

func New(c Config) *Manager {
	m := &Manager{
		id:    c.PartitionID,
		reg:   c.Doorbells,
		chans: c.Channels,
		log:   c.Logger.With().Str("component", "ioeventfd").Uint64("partition", c.PartitionID).Logger(),
	}
	m.items.Store(&[]*ioeventfd{})

	return m
}

// Do assigns or deassigns according to FlagDeassign.
func (m *Manager) Do(args Args) error {
	if args.Flags&FlagPIO != 0 {
		return fmt.Errorf("ioeventfd pio: %w", hverr.ErrUnsupported)
	}

	if args.Flags&FlagDeassign != 0 {
		return m.Deassign(args)
	}

	return m.Assign(args)
}

func triggerSize(length uint32) (uint64, bool) {
	switch length {
	case 0:
		return TriggerSizeAny, true
	case 1:
		return TriggerSizeByte, true
	case 2:
		return TriggerSizeWord, true
	case 4:
		return TriggerSizeDword, true
	case 8:
		return TriggerSizeQword, true
	default:
		return 0, false
	}
}

// Assign registers a doorbell for args and binds it to args.FD.
func (m *Manager) Assign(args Args) error {
	if args.Flags&FlagPIO != 0 {
		return fmt.Errorf("ioeventfd pio: %w", hverr.ErrUnsupported)
	}

	flags, ok := triggerSize(args.Len)
	if !ok {
		m.log.Error().Uint32("len", args.Len).Msg("invalid ioeventfd length")

		return fmt.Errorf("ioeventfd len %d: %w", args.Len, hverr.ErrInvalidLength)
	}

	if args.Addr+uint64(args.Len) < args.Addr {
		return fmt.Errorf("ioeventfd addr %#x len %d: %w", args.Addr, args.Len, hverr.ErrAddressOverflow)
	}

	if args.Flags&^validFlags != 0 {
		return fmt.Errorf("ioeventfd flags %#x: %w", args.Flags, hverr.ErrUnknownFlags)
	}

	ch, err := m.chans.Get(args.FD)
	if err != nil {
		return fmt.Errorf("ioeventfd addr %#x: %w", args.Addr, err)
	}

	p := &ioeventfd{
		addr:   args.Addr,
		length: args.Len,
		ch:     ch,
	}

	if args.Flags&FlagDataMatch != 0 {
		p.datamatch = args.DataMatch
	} else {
		p.wildcard = true
		flags |= TriggerAnyValue
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := *m.items.Load()

	for _, o := range old {
		if p.collides(o) {
			ch.Put()

			return fmt.Errorf("ioeventfd addr %#x len %d: %w", args.Addr, args.Len, hverr.ErrDoorbellCollision)
		}
	}

	id, err := m.reg.RegisterDoorbell(p.addr, p.datamatch, flags, m.Dispatch)
	if err != nil {
		ch.Put()
		m.log.Error().Err(err).Uint64("addr", p.addr).Msg("register doorbell")

		return fmt.Errorf("ioeventfd addr %#x: %w", args.Addr, err)
	}

	p.doorbell = id

	list := make([]*ioeventfd, 0, len(old)+1)
	list = append(list, p)
	list = append(list, old...)
	m.items.Store(&list)

	m.log.Debug().Uint64("addr", p.addr).Uint32("len", p.length).Bool("wildcard", p.wildcard).
		Int("doorbell", id).Msg("ioeventfd assigned")

	return nil
}

// Deassign removes the binding that matches args exactly, including its
// match mode. When it returns the channel is no longer signalled by the
// doorbell.
func (m *Manager) Deassign(args Args) error {
	ch, err := m.chans.Get(args.FD)
	if err != nil {
		return fmt.Errorf("ioeventfd addr %#x: %w", args.Addr, err)
	}
	defer ch.Put()

	wildcard := args.Flags&FlagDataMatch == 0

	m.mu.Lock()
	defer m.mu.Unlock()

	old := *m.items.Load()

	for i, p := range old {
		if p.ch != ch || p.addr != args.Addr || p.length != args.Len || p.wildcard != wildcard {
			continue
		}

		if !p.wildcard && p.datamatch != args.DataMatch {
			continue
		}

		list := make([]*ioeventfd, 0, len(old)-1)
		list = append(list, old[:i]...)
		list = append(list, old[i+1:]...)
		m.items.Store(&list)

		m.rcu.Synchronize()
		p.release(m.reg)

		m.log.Debug().Uint64("addr", p.addr).Int("doorbell", p.doorbell).Msg("ioeventfd deassigned")

		return nil
	}

	return fmt.Errorf("ioeventfd addr %#x len %d: %w", args.Addr, args.Len, hverr.ErrNotFound)
}

// Dispatch signals the channel bound to doorbell id. An unknown id is
// ignored.
func (m *Manager) Dispatch(id int) {
	tok := m.rcu.ReadLock()
	defer m.rcu.ReadUnlock(tok)

	for _, p := range *m.items.Load() {
		if p.doorbell == id {
			if err := p.ch.Signal(); err != nil {
				m.log.Error().Err(err).Int("doorbell", id).Msg("signal ioeventfd")
			}

			return
		}
	}
}

// Release removes every binding.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := *m.items.Load()
	m.items.Store(&[]*ioeventfd{})
	m.rcu.Synchronize()

	for _, p := range old {
		p.release(m.reg)
	}
}

// Active returns the number of bindings.
func (m *Manager) Active() int {
	return len(*m.items.Load())
}
