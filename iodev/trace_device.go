package iodev

import (
	"encoding/binary"

	"github.com/rs/zerolog"
)

// TraceDevice logs every write to its range and reads back the last value
// written.
type TraceDevice struct {
	Addr  uint64
	Psize uint64
	Log   zerolog.Logger

	last [8]byte
}

func (t *TraceDevice) Read(addr uint64, data []byte) error {
	if len(data) > len(t.last) {
		return errDataLenInvalid
	}

	copy(data, t.last[:])

	return nil
}

func (t *TraceDevice) Write(addr uint64, data []byte) error {
	if len(data) > len(t.last) {
		return errDataLenInvalid
	}

	t.last = [8]byte{}
	copy(t.last[:], data)

	t.Log.Debug().Uint64("addr", addr).Int("len", len(data)).
		Uint64("value", binary.LittleEndian.Uint64(t.last[:])).Msg("mmio write")

	return nil
}

func (t *TraceDevice) Base() uint64 {
	return t.Addr
}

func (t *TraceDevice) Size() uint64 {
	return t.Psize
}
