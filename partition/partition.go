// Package partition is the per-partition event state and the controller
// entry points for irqfd and ioeventfd requests.
package partition

import (
	"github.com/rs/zerolog"

	"github.com/bobuhiro11/gomshv/ack"
	"github.com/bobuhiro11/gomshv/eventfd"
	"github.com/bobuhiro11/gomshv/ioeventfd"
	"github.com/bobuhiro11/gomshv/irqfd"
	"github.com/bobuhiro11/gomshv/route"
	"github.com/bobuhiro11/gomshv/workqueue"
)

// Config holds the collaborators of a Partition. The queues are shared
// between partitions and owned by the caller.
type Config struct {
	Hypervisor irqfd.Hypervisor
	Routes     route.Resolver
	Channels   eventfd.Resolver
	Doorbells  ioeventfd.Registrar
	Cleanup    *workqueue.Queue
	System     *workqueue.Queue
	Logger     zerolog.Logger
}

type Partition struct {
	id   uint64
	log  zerolog.Logger
	acks *ack.Registry
	irqs *irqfd.Manager
	mmio *ioeventfd.Manager
}

func New(id uint64, c Config) *Partition {
	acks := ack.NewRegistry()

	return &Partition{
		id:   id,
		log:  c.Logger.With().Uint64("partition", id).Logger(),
		acks: acks,
		irqs: irqfd.New(irqfd.Config{
			PartitionID: id,
			Hypervisor:  c.Hypervisor,
			Routes:      c.Routes,
			Channels:    c.Channels,
			Acks:        acks,
			Cleanup:     c.Cleanup,
			System:      c.System,
			Logger:      c.Logger,
		}),
		mmio: ioeventfd.New(ioeventfd.Config{
			PartitionID: id,
			Doorbells:   c.Doorbells,
			Channels:    c.Channels,
			Logger:      c.Logger,
		}),
	}
}

func (p *Partition) ID() uint64 {
	return p.id
}

// IRQFD binds or, with irqfd.FlagDeassign, unbinds an irqfd.
func (p *Partition) IRQFD(args irqfd.Args) error {
	return p.irqs.Do(args)
}

// IRQBind binds fd to gsi. With resample set, resampleFD is signalled
// whenever the guest acknowledges gsi.
func (p *Partition) IRQBind(gsi uint32, fd int, resample bool, resampleFD int) error {
	args := irqfd.Args{FD: fd, GSI: gsi}
	if resample {
		args.Flags |= irqfd.FlagResample
		args.ResampleFD = resampleFD
	}

	return p.irqs.Assign(args)
}

// IRQUnbind unbinds fd from gsi. When it returns, signalling fd no longer
// injects.
func (p *Partition) IRQUnbind(gsi uint32, fd int) error {
	return p.irqs.Deassign(irqfd.Args{FD: fd, GSI: gsi, Flags: irqfd.FlagDeassign})
}

// IOEventFD binds or, with ioeventfd.FlagDeassign, unbinds an ioeventfd.
func (p *Partition) IOEventFD(args ioeventfd.Args) error {
	return p.mmio.Do(args)
}

func mmioArgs(addr uint64, length uint32, datamatch bool, value uint64, fd int) ioeventfd.Args {
	args := ioeventfd.Args{Addr: addr, Len: length, FD: fd}
	if datamatch {
		args.Flags |= ioeventfd.FlagDataMatch
		args.DataMatch = value
	}

	return args
}

// MMIOBind signals fd on guest writes of length bytes to addr, or only on
// writes of value when datamatch is set.
func (p *Partition) MMIOBind(addr uint64, length uint32, datamatch bool, value uint64, fd int) error {
	return p.mmio.Assign(mmioArgs(addr, length, datamatch, value, fd))
}

func (p *Partition) MMIOUnbind(addr uint64, length uint32, datamatch bool, value uint64, fd int) error {
	return p.mmio.Deassign(mmioArgs(addr, length, datamatch, value, fd))
}

// RoutingChanged refreshes the cached routes after a routing table update.
func (p *Partition) RoutingChanged() {
	p.irqs.RoutingUpdate()
}

// NotifyAcked delivers a guest acknowledgment of gsi and reports whether
// anything listened for it.
func (p *Partition) NotifyAcked(gsi uint32) bool {
	return p.acks.NotifyAcked(gsi)
}

// Stats is a point-in-time count of the partition's bindings.
type Stats struct {
	IRQFDs     int
	Resamplers int
	IOEventFDs int
}

func (p *Partition) Stats() Stats {
	return Stats{
		IRQFDs:     p.irqs.Active(),
		Resamplers: p.irqs.Resamplers(),
		IOEventFDs: p.mmio.Active(),
	}
}

// Release tears down every binding, ioeventfds first, and waits for the
// teardown to complete.
func (p *Partition) Release() {
	p.mmio.Release()
	p.irqs.Release()

	p.log.Debug().Msg("partition event state released")
}
