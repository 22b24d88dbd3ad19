package iodev

import "errors"

var errDataLenInvalid = errors.New("invalid data size on mmio access")

// Device is an MMIO device attached to a Bus. It claims the guest physical
// range [Base(), Base()+Size()).
type Device interface {
	Read(uint64, []byte) error
	Write(uint64, []byte) error
	Base() uint64
	Size() uint64
}
