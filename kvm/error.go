package kvm

import "errors"

var (
	// ErrAPIVersion is a KVM that does not speak API version 12.
	ErrAPIVersion = errors.New("unsupported kvm api version")

	// ErrMissingCapability is a KVM without a capability the backend needs.
	ErrMissingCapability = errors.New("missing kvm capability")
)
