package kvm

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/bobuhiro11/gomshv/route"
)

// VM is a KVM virtual machine with an in-kernel irqchip. It injects
// interrupts as MSIs.
type VM struct {
	dev  *os.File
	vmFd uintptr
	log  zerolog.Logger
}

// Open creates a VM on the KVM device at path.
func Open(path string, log zerolog.Logger) (*VM, error) {
	dev, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	vm := &VM{dev: dev, log: log.With().Str("component", "kvm").Logger()}

	if err := vm.init(); err != nil {
		dev.Close()

		return nil, err
	}

	return vm, nil
}

func (vm *VM) init() error {
	kvmFd := vm.dev.Fd()

	v, err := GetAPIVersion(kvmFd)
	if err != nil {
		return err
	}

	if v != APIVersion {
		return fmt.Errorf("version %d: %w", v, ErrAPIVersion)
	}

	if n, err := CheckExtension(kvmFd, CapSignalMSI); err != nil || n == 0 {
		return fmt.Errorf("%s: %w", CapSignalMSI, ErrMissingCapability)
	}

	if vm.vmFd, err = CreateVM(kvmFd); err != nil {
		return err
	}

	if err := CreateIRQChip(vm.vmFd); err != nil {
		unix.Close(int(vm.vmFd))

		return err
	}

	return nil
}

// Fd returns the VM descriptor.
func (vm *VM) Fd() uintptr {
	return vm.vmFd
}

func (vm *VM) Close() error {
	if err := unix.Close(int(vm.vmFd)); err != nil {
		return err
	}

	return vm.dev.Close()
}

// AssertVirtualInterrupt signals the MSI that encodes vector, apicID and
// ctl. partitionID is ignored: a VM is its own partition.
func (vm *VM) AssertVirtualInterrupt(partitionID uint64, vector uint32, apicID uint64, ctl route.Control) error {
	e := route.Snapshot{Valid: true, Vector: vector, APICID: apicID, Control: ctl}.MSI()

	msi := MSI{
		AddressLo: e.AddressLo,
		AddressHi: e.AddressHi,
		Data:      e.Data,
	}

	n, err := SignalMSI(vm.vmFd, &msi)
	if err != nil {
		return fmt.Errorf("signal msi vector %#x: %w", vector, err)
	}

	if n == 0 {
		vm.log.Debug().Uint32("vector", vector).Uint64("apic", apicID).Msg("msi blocked by guest")
	}

	return nil
}

// ClearVirtualInterrupt is a no-op: the in-kernel irqchip clears ExtINT
// on acknowledgment.
func (vm *VM) ClearVirtualInterrupt(partitionID uint64) error {
	return nil
}
