// Package route resolves a gsi to the interrupt it injects and caches the
// result per binding.
package route

import "fmt"

// InterruptType is the delivery mode of an injected interrupt.
type InterruptType uint8

const (
	Fixed InterruptType = iota
	LowestPriority
	SMI
	RemoteRead
	NMI
	Init
	SIPI
	ExtINT
)

func (t InterruptType) String() string {
	switch t {
	case Fixed:
		return "fixed"
	case LowestPriority:
		return "lowest-priority"
	case SMI:
		return "smi"
	case RemoteRead:
		return "remote-read"
	case NMI:
		return "nmi"
	case Init:
		return "init"
	case SIPI:
		return "sipi"
	case ExtINT:
		return "extint"
	}

	return fmt.Sprintf("InterruptType(%d)", uint8(t))
}

// Control is the control word passed along with an injected interrupt.
type Control struct {
	Type           InterruptType
	LevelTriggered bool
	LogicalDest    bool
}

// NeedsClear reports whether an acknowledged interrupt of this type must be
// cleared explicitly before it can be raised again.
func (c Control) NeedsClear() bool {
	return c.Type == ExtINT
}

// Snapshot is where a gsi injects at one point in time.
type Snapshot struct {
	GSI     uint32
	Valid   bool
	Vector  uint32
	APICID  uint64
	Control Control
}

func (s Snapshot) String() string {
	if !s.Valid {
		return fmt.Sprintf("gsi %d: invalid", s.GSI)
	}

	return fmt.Sprintf("gsi %d: vector %#x apic %d %s level=%t logical=%t",
		s.GSI, s.Vector, s.APICID, s.Control.Type, s.Control.LevelTriggered, s.Control.LogicalDest)
}

// Resolver looks up the current route of a gsi. An unknown gsi resolves to
// an invalid Snapshot.
type Resolver interface {
	Resolve(gsi uint32) Snapshot
}
