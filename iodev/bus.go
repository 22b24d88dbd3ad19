// Package iodev dispatches guest MMIO accesses to doorbells and devices.
package iodev

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bobuhiro11/gomshv/hverr"
	"github.com/bobuhiro11/gomshv/ioeventfd"
)

const triggerSizeMask = 0x7

type doorbell struct {
	addr  uint64
	value uint64
	flags uint64
	fn    func(id int)
}

func (d *doorbell) matches(addr uint64, data []byte) bool {
	if d.addr != addr {
		return false
	}

	switch d.flags & triggerSizeMask {
	case ioeventfd.TriggerSizeAny:
	case ioeventfd.TriggerSizeByte:
		if len(data) != 1 {
			return false
		}
	case ioeventfd.TriggerSizeWord:
		if len(data) != 2 {
			return false
		}
	case ioeventfd.TriggerSizeDword:
		if len(data) != 4 {
			return false
		}
	case ioeventfd.TriggerSizeQword:
		if len(data) != 8 {
			return false
		}
	default:
		return false
	}

	if d.flags&ioeventfd.TriggerAnyValue != 0 {
		return true
	}

	return value(data) == d.value
}

func value(data []byte) uint64 {
	var buf [8]byte

	copy(buf[:], data)

	return binary.LittleEndian.Uint64(buf[:])
}

// Bus is the MMIO dispatcher of a partition. Doorbells take precedence over
// devices: a write that rings at least one doorbell is not forwarded.
type Bus struct {
	log zerolog.Logger
	max int

	mu        sync.RWMutex
	next      int
	doorbells map[int]*doorbell

	devMu   sync.Mutex
	devices []Device
}

var _ ioeventfd.Registrar = (*Bus)(nil)

// NewBus returns a Bus holding at most max doorbells; 0 means no limit.
func NewBus(max int, log zerolog.Logger) *Bus {
	return &Bus{
		log:       log.With().Str("component", "iodev").Logger(),
		max:       max,
		next:      1,
		doorbells: make(map[int]*doorbell),
	}
}

func (b *Bus) RegisterDoorbell(addr, value, flags uint64, fn func(id int)) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && len(b.doorbells) >= b.max {
		return 0, fmt.Errorf("doorbell %#x: %w", addr, hverr.ErrDoorbellsExhausted)
	}

	id := b.next
	b.next++
	b.doorbells[id] = &doorbell{addr: addr, value: value, flags: flags, fn: fn}

	return id, nil
}

func (b *Bus) UnregisterDoorbell(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.doorbells, id)
}

// Doorbells returns the number of registered doorbells.
func (b *Bus) Doorbells() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.doorbells)
}

func (b *Bus) AddDevice(d Device) {
	b.devMu.Lock()
	defer b.devMu.Unlock()

	b.devices = append(b.devices, d)
}

// Write handles a guest write of data to addr.
func (b *Bus) Write(addr uint64, data []byte) error {
	if len(data) == 0 || len(data) > 8 {
		return errDataLenInvalid
	}

	type ring struct {
		id int
		fn func(int)
	}

	var rings []ring

	b.mu.RLock()

	for id, d := range b.doorbells {
		if d.matches(addr, data) {
			rings = append(rings, ring{id: id, fn: d.fn})
		}
	}

	b.mu.RUnlock()

	for _, r := range rings {
		r.fn(r.id)
	}

	if len(rings) > 0 {
		return nil
	}

	b.devMu.Lock()
	defer b.devMu.Unlock()

	if d := b.device(addr); d != nil {
		return d.Write(addr, data)
	}

	b.log.Debug().Uint64("addr", addr).Int("len", len(data)).Msg("unclaimed mmio write")

	return nil
}

// Read handles a guest read. Unclaimed reads return zeroes.
func (b *Bus) Read(addr uint64, data []byte) error {
	b.devMu.Lock()
	defer b.devMu.Unlock()

	if d := b.device(addr); d != nil {
		return d.Read(addr, data)
	}

	for i := range data {
		data[i] = 0
	}

	return nil
}

// must be called with b.devMu held.
func (b *Bus) device(addr uint64) Device {
	for _, d := range b.devices {
		if d.Base() <= addr && addr < d.Base()+d.Size() {
			return d
		}
	}

	return nil
}
