package probe

import (
	"fmt"
	"io"
	"os"

	"github.com/bobuhiro11/gomshv/kvm"
)

// Capability is one KVM_CHECK_EXTENSION result.
type Capability struct {
	Cap   kvm.Capability
	Value int
}

// Capabilities queries the event-related capabilities of the KVM device
// at dev.
func Capabilities(dev string) ([]Capability, error) {
	kvmFile, err := os.Open(dev)
	if err != nil {
		return nil, err
	}
	defer kvmFile.Close()

	kvmfd := kvmFile.Fd()

	v, err := kvm.GetAPIVersion(kvmfd)
	if err != nil {
		return nil, err
	}

	if v != kvm.APIVersion {
		return nil, fmt.Errorf("version %d: %w", v, kvm.ErrAPIVersion)
	}

	caps := make([]Capability, 0, len(kvm.EventCapabilities))

	for _, c := range kvm.EventCapabilities {
		n, err := kvm.CheckExtension(kvmfd, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}

		caps = append(caps, Capability{Cap: c, Value: n})
	}

	return caps, nil
}

// Print writes caps as an enabled and a disabled list.
func Print(w io.Writer, caps []Capability) {
	enabled := []Capability{}
	disabled := []Capability{}

	for _, c := range caps {
		if c.Value != 0 {
			enabled = append(enabled, c)
		} else {
			disabled = append(disabled, c)
		}
	}

	fmt.Fprintf(w, "* Enabled:")

	for _, c := range enabled {
		fmt.Fprintf(w, " %s(%d)", c.Cap, c.Value)
	}

	fmt.Fprintf(w, "\n* Disabled:")

	for _, c := range disabled {
		fmt.Fprintf(w, " %s", c.Cap)
	}

	fmt.Fprintf(w, "\n")
}
