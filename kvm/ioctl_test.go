package kvm_test

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/bobuhiro11/gomshv/kvm"
)

func TestIoctlBadDescriptor(t *testing.T) {
	t.Parallel()

	_, err := kvm.GetAPIVersion(^uintptr(0))
	if !errors.Is(err, unix.EBADF) {
		t.Fatalf("want EBADF, have %v", err)
	}
}
