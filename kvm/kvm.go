// Package kvm is a minimal KVM backend: just enough of the VM ioctl surface
// to inject MSIs and probe interrupt related capabilities.
package kvm

import (
	"golang.org/x/sys/unix"
)

const (
	kvmGetAPIVersion  = 0xAE00
	kvmCreateVM       = 0xAE01
	kvmCheckExtension = 0xAE03
	kvmCreateIRQChip  = 0xAE60
	kvmIRQLine        = 0x4008AE61
	kvmSignalMSI      = 0x4020AEA5

	// APIVersion is the only KVM API version ever released.
	APIVersion = 12
)

// Ioctl issues an ioctl, retrying on EINTR.
func Ioctl(fd, op, arg uintptr) (uintptr, error) {
	for {
		res, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, arg)

		switch errno {
		case 0:
			return res, nil
		case unix.EINTR:
			continue
		default:
			return res, errno
		}
	}
}

func GetAPIVersion(kvmFd uintptr) (uintptr, error) {
	return Ioctl(kvmFd, uintptr(kvmGetAPIVersion), uintptr(0))
}

func CreateVM(kvmFd uintptr) (uintptr, error) {
	return Ioctl(kvmFd, uintptr(kvmCreateVM), uintptr(0))
}

// CheckExtension returns the value KVM reports for c; 0 means unsupported.
func CheckExtension(fd uintptr, c Capability) (int, error) {
	res, err := Ioctl(fd, uintptr(kvmCheckExtension), uintptr(c))

	return int(res), err
}
