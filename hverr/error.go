// Package hverr defines the error kinds returned by the irqfd and
// ioeventfd controller operations.
package hverr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is a malformed request: bad length, address overflow,
	// unknown flags or an unmet trigger-mode requirement.
	ErrValidation = errors.New("invalid argument")

	// ErrChannel is an event channel descriptor that cannot be resolved.
	ErrChannel = errors.New("bad event channel")

	// ErrConflict is a binding that collides with an existing one.
	ErrConflict = errors.New("binding conflict")

	// ErrNotFound is a deassign request with no matching binding.
	ErrNotFound = errors.New("binding not found")

	// ErrResource is an exhausted resource.
	ErrResource = errors.New("out of resources")
)

var (
	ErrInvalidLength     = fmt.Errorf("%w: length must be 0, 1, 2, 4 or 8", ErrValidation)
	ErrAddressOverflow   = fmt.Errorf("%w: address range overflows", ErrValidation)
	ErrUnknownFlags      = fmt.Errorf("%w: unknown flags", ErrValidation)
	ErrNotLevelTriggered = fmt.Errorf("%w: resample requires a level-triggered route", ErrValidation)
	ErrUnsupported       = fmt.Errorf("%w: operation not supported", ErrValidation)

	ErrBadDescriptor = fmt.Errorf("%w: bad descriptor", ErrChannel)

	ErrChannelInUse      = fmt.Errorf("%w: channel already bound to an irqfd", ErrConflict)
	ErrDoorbellCollision = fmt.Errorf("%w: doorbell address and match overlap", ErrConflict)

	ErrDoorbellsExhausted = fmt.Errorf("%w: no doorbell slots left", ErrResource)
	ErrQueueClosed        = fmt.Errorf("%w: work queue closed", ErrResource)
)
