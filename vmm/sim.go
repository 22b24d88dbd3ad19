package vmm

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/bobuhiro11/gomshv/route"
)

// Sim is a hypervisor that records interrupts instead of delivering them.
type Sim struct {
	log zerolog.Logger

	mu      sync.Mutex
	vectors map[uint32]int
	total   int
	clears  int
}

func NewSim(log zerolog.Logger) *Sim {
	return &Sim{
		log:     log.With().Str("component", "sim").Logger(),
		vectors: make(map[uint32]int),
	}
}

func (s *Sim) AssertVirtualInterrupt(partitionID uint64, vector uint32, apicID uint64, ctl route.Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors[vector]++
	s.total++

	s.log.Trace().Uint64("partition", partitionID).Uint32("vector", vector).Uint64("apic", apicID).
		Stringer("type", ctl.Type).Bool("level", ctl.LevelTriggered).Msg("assert")

	return nil
}

func (s *Sim) ClearVirtualInterrupt(partitionID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clears++

	return nil
}

// Asserts returns the number of interrupts asserted.
func (s *Sim) Asserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.total
}

// Vector returns the number of interrupts asserted with vector.
func (s *Sim) Vector(vector uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.vectors[vector]
}

func (s *Sim) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clears
}
