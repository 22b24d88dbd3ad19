// Package eventfd provides the signal-once event channels that irqfds and
// ioeventfds are bound to.
//
// A Channel is a counter that producers increment with Signal. Consumers
// subscribe a WakeFunc that is invoked on every signal and once when the
// channel is hung up. Wake callbacks run with the channel's delivery lock
// held: they must not block, and they must not call Signal, Subscribe or
// Unsubscribe on the same channel.
package eventfd

import "fmt"

// Flags are the events reported to a WakeFunc and by Poll.
type Flags uint32

const (
	// In means the counter is non-zero.
	In Flags = 1 << iota

	// Hup means the channel was closed by its owner.
	Hup
)

func (f Flags) String() string {
	switch f {
	case 0:
		return "none"
	case In:
		return "in"
	case Hup:
		return "hup"
	case In | Hup:
		return "in|hup"
	}

	return fmt.Sprintf("Flags(%#x)", uint32(f))
}

// WakeFunc is a subscriber callback.
type WakeFunc func(Flags)

// Channel is an event channel as seen by the bindings.
type Channel interface {
	// Signal adds one to the counter and wakes the subscribers.
	Signal() error

	// Drain reads and resets the counter.
	Drain() uint64

	// Poll reports the current state without consuming it.
	Poll() Flags

	// Subscribe registers fn. The caller must Poll afterwards to catch
	// events raised before the subscription was in place.
	Subscribe(fn WakeFunc) (*Subscription, error)

	// Unsubscribe removes a subscription. When it returns, the callback is
	// not running and will not run again.
	Unsubscribe(s *Subscription)

	// Ref takes a reference on the channel.
	Ref()

	// Put drops a reference taken by Ref or by a Resolver.
	Put()
}

// File is a Channel that can be installed in a Table.
type File interface {
	Channel

	// Hangup marks the channel closed and notifies subscribers with Hup.
	Hangup()
}

// Subscription is a registered WakeFunc.
type Subscription struct {
	fn   WakeFunc
	live bool

	// used by FD only.
	stopfd int
	done   chan struct{}
}
