// Package vmm wires a partition's event state to a hypervisor backend and
// drives it with a synthetic device workload.
package vmm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bobuhiro11/gomshv/eventfd"
	"github.com/bobuhiro11/gomshv/iodev"
	"github.com/bobuhiro11/gomshv/irqfd"
	"github.com/bobuhiro11/gomshv/kvm"
	"github.com/bobuhiro11/gomshv/partition"
	"github.com/bobuhiro11/gomshv/route"
	"github.com/bobuhiro11/gomshv/workqueue"
)

const (
	BackendSim = "sim"
	BackendKVM = "kvm"

	gsiBase     = 32
	vectorBase  = 0x30
	vectorShift = 0x80

	// MaxIRQFDs keeps every vector of both route generations below 0x100.
	MaxIRQFDs = 64

	doorbellStride = 8
	mmioWindow     = 0x1000
)

var (
	errUnknownBackend = errors.New("unknown backend")
	errTooManyIRQFDs  = fmt.Errorf("more than %d irqfds", MaxIRQFDs)
	errResample       = errors.New("more resample irqfds than irqfds")
)

// Config is the workload and backend of a VMM.
type Config struct {
	Backend      string
	Dev          string
	PartitionID  uint64
	IRQFDs       int
	Resample     int
	Doorbells    int
	MMIOBase     uint64
	Signals      int
	RouteUpdates int
	Workers      int
	MaxDoorbells int
	Logger       zerolog.Logger
}

type irqBinding struct {
	gsi        uint32
	fd         int
	ch         eventfd.Channel
	resampleFD int
	resample   eventfd.Channel
}

type doorbell struct {
	addr  uint64
	value uint64
}

// Stats summarizes a Run.
type Stats struct {
	Signals      int64
	Writes       int64
	Acks         int64
	Resampled    uint64
	RouteUpdates int64

	// Injections and Clears are only counted by the sim backend.
	Injections int
	Clears     int

	Bindings partition.Stats
}

type VMM struct {
	Config

	log zerolog.Logger

	hv  irqfd.Hypervisor
	sim *Sim
	vm  *kvm.VM

	fds     *eventfd.Table
	routes  *route.Table
	bus     *iodev.Bus
	cleanup *workqueue.Queue
	system  *workqueue.Queue
	part    *partition.Partition

	irqs      []irqBinding
	bells     []doorbell
	installed []int
}

func New(c Config) *VMM {
	return &VMM{
		Config: c,
		log:    c.Logger.With().Str("component", "vmm").Logger(),
	}
}

// Init creates the backend, the event tables and the partition.
func (v *VMM) Init() error {
	switch v.Backend {
	case BackendSim, "":
		v.sim = NewSim(v.Logger)
		v.hv = v.sim
	case BackendKVM:
		vm, err := kvm.Open(v.Dev, v.Logger)
		if err != nil {
			return fmt.Errorf("open %s: %w", v.Dev, err)
		}

		v.vm = vm
		v.hv = vm
	default:
		return fmt.Errorf("%q: %w", v.Backend, errUnknownBackend)
	}

	v.fds = eventfd.NewTable()
	v.routes = route.NewTable()

	v.bus = iodev.NewBus(v.MaxDoorbells, v.Logger)
	v.bus.AddDevice(&iodev.TraceDevice{
		Addr:  v.MMIOBase,
		Psize: max(mmioWindow, uint64(v.Doorbells)*doorbellStride),
		Log:   v.log,
	})

	v.cleanup = workqueue.New("irqfd-cleanup", 1, v.Logger)
	v.system = workqueue.New("system", v.Workers, v.Logger)

	v.part = partition.New(v.PartitionID, partition.Config{
		Hypervisor: v.hv,
		Routes:     v.routes,
		Channels:   v.fds,
		Doorbells:  v.bus,
		Cleanup:    v.cleanup,
		System:     v.system,
		Logger:     v.Logger,
	})

	return nil
}

func (v *VMM) newChannel() (eventfd.Channel, int, error) {
	var f eventfd.File

	if v.Backend == BackendKVM {
		efd, err := eventfd.NewFD()
		if err != nil {
			return nil, 0, err
		}

		f = efd
	} else {
		f = eventfd.NewEvent()
	}

	fd := v.fds.Install(f)
	v.installed = append(v.installed, fd)

	return f, fd, nil
}

// entry is the route of irqfd i in route generation gen.
func (v *VMM) entry(i, gen int) route.Entry {
	s := route.Snapshot{
		GSI:    uint32(gsiBase + i),
		Valid:  true,
		Vector: uint32(vectorBase + i),
		APICID: uint64(i % 4),
	}

	if gen%2 == 1 {
		s.Vector += vectorShift
	}

	if i < v.Resample {
		s.Control.LevelTriggered = true
	}

	return s.MSI()
}

func (v *VMM) table(gen int) []route.Entry {
	entries := make([]route.Entry, 0, v.IRQFDs)

	for i := 0; i < v.IRQFDs; i++ {
		entries = append(entries, v.entry(i, gen))
	}

	return entries
}

// Setup installs the routing table and binds the irqfds and doorbells.
// Doorbell i signals irqfd i modulo the number of irqfds, so guest writes
// end up as interrupts.
func (v *VMM) Setup() error {
	if v.IRQFDs > MaxIRQFDs {
		return errTooManyIRQFDs
	}

	if v.Resample > v.IRQFDs {
		return errResample
	}

	v.routes.Set(v.table(0))

	for i := 0; i < v.IRQFDs; i++ {
		ch, fd, err := v.newChannel()
		if err != nil {
			return err
		}

		b := irqBinding{gsi: uint32(gsiBase + i), fd: fd, ch: ch}
		resample := i < v.Resample

		if resample {
			if b.resample, b.resampleFD, err = v.newChannel(); err != nil {
				return err
			}
		}

		if err := v.part.IRQBind(b.gsi, fd, resample, b.resampleFD); err != nil {
			return fmt.Errorf("irqfd %d: %w", i, err)
		}

		v.irqs = append(v.irqs, b)
	}

	for i := 0; i < v.Doorbells; i++ {
		var fd int

		if len(v.irqs) > 0 {
			fd = v.irqs[i%len(v.irqs)].fd
		} else {
			var err error

			if _, fd, err = v.newChannel(); err != nil {
				return err
			}
		}

		d := doorbell{addr: v.MMIOBase + uint64(i)*doorbellStride, value: uint64(i)}

		if err := v.part.MMIOBind(d.addr, 4, true, d.value, fd); err != nil {
			return fmt.Errorf("doorbell %d: %w", i, err)
		}

		v.bells = append(v.bells, d)
	}

	v.log.Info().Int("irqfds", len(v.irqs)).Int("resample", v.Resample).
		Int("doorbells", len(v.bells)).Msg("partition set up")

	return nil
}

// Run signals every irqfd, rings every doorbell, acknowledges the
// resampled gsis and rewrites the routing table, all concurrently, then
// releases the partition.
func (v *VMM) Run(ctx context.Context) (Stats, error) {
	var signals, writes, acks, updates atomic.Int64

	g, ctx := errgroup.WithContext(ctx)

	for _, b := range v.irqs {
		b := b

		g.Go(func() error {
			for n := 0; n < v.Signals; n++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				if err := b.ch.Signal(); err != nil {
					return fmt.Errorf("gsi %d: %w", b.gsi, err)
				}

				signals.Add(1)
			}

			return nil
		})
	}

	if len(v.bells) > 0 {
		g.Go(func() error {
			buf := make([]byte, 4)

			for n := 0; n < v.Signals; n++ {
				for _, d := range v.bells {
					if err := ctx.Err(); err != nil {
						return err
					}

					// odd rounds miss the match value and fall through to
					// the trace device
					binary.LittleEndian.PutUint32(buf, uint32(d.value)+uint32(n%2))

					if err := v.bus.Write(d.addr, buf); err != nil {
						return fmt.Errorf("write %#x: %w", d.addr, err)
					}

					writes.Add(1)
				}
			}

			return nil
		})
	}

	if v.Resample > 0 {
		g.Go(func() error {
			for n := 0; n < v.Signals; n++ {
				for _, b := range v.irqs[:v.Resample] {
					if err := ctx.Err(); err != nil {
						return err
					}

					if v.part.NotifyAcked(b.gsi) {
						acks.Add(1)
					}
				}
			}

			return nil
		})
	}

	if v.RouteUpdates > 0 {
		g.Go(func() error {
			for gen := 1; gen <= v.RouteUpdates; gen++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				v.routes.Set(v.table(gen))
				v.part.RoutingChanged()
				updates.Add(1)
			}

			return nil
		})
	}

	err := g.Wait()

	v.system.Flush()

	st := Stats{
		Signals:      signals.Load(),
		Writes:       writes.Load(),
		Acks:         acks.Load(),
		RouteUpdates: updates.Load(),
		Bindings:     v.part.Stats(),
	}

	for _, b := range v.irqs {
		if b.resample != nil {
			st.Resampled += b.resample.Drain()
		}
	}

	v.part.Release()

	if v.sim != nil {
		st.Injections = v.sim.Asserts()
		st.Clears = v.sim.Clears()
	}

	v.log.Info().Int64("signals", st.Signals).Int64("writes", st.Writes).Int64("acks", st.Acks).
		Uint64("resampled", st.Resampled).Int64("route_updates", st.RouteUpdates).
		Int("injections", st.Injections).Msg("run complete")

	return st, err
}

// Close releases the partition and everything Init created.
func (v *VMM) Close() error {
	if v.part != nil {
		v.part.Release()
	}

	for _, fd := range v.installed {
		if err := v.fds.Close(fd); err != nil {
			v.log.Warn().Err(err).Int("fd", fd).Msg("close channel")
		}
	}

	v.installed = nil

	if v.cleanup != nil {
		v.cleanup.Close()
		v.system.Close()
	}

	if v.vm != nil {
		return v.vm.Close()
	}

	return nil
}
