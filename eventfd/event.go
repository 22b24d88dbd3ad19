package eventfd

import (
	"sync"
	"sync/atomic"
)

// Event is an in-process Channel.
type Event struct {
	count atomic.Uint64
	refs  atomic.Int32
	hup   atomic.Bool

	// mu is the delivery lock.
	mu   sync.Mutex
	subs []*Subscription
}

var _ File = (*Event)(nil)

// NewEvent returns an Event holding one reference.
func NewEvent() *Event {
	e := &Event{}
	e.refs.Store(1)

	return e
}

func (e *Event) Signal() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.count.Add(1)
	e.wake(In)

	return nil
}

func (e *Event) Drain() uint64 {
	return e.count.Swap(0)
}

// Count returns the counter without resetting it.
func (e *Event) Count() uint64 {
	return e.count.Load()
}

func (e *Event) Poll() Flags {
	var f Flags

	if e.count.Load() > 0 {
		f |= In
	}

	if e.hup.Load() {
		f |= Hup
	}

	return f
}

func (e *Event) Subscribe(fn WakeFunc) (*Subscription, error) {
	s := &Subscription{fn: fn, live: true}

	e.mu.Lock()
	e.subs = append(e.subs, s)
	e.mu.Unlock()

	return s, nil
}

func (e *Event) Unsubscribe(s *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s.live = false

	for i := range e.subs {
		if e.subs[i] == s {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)

			return
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (e *Event) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.subs)
}

func (e *Event) Hangup() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hup.Swap(true) {
		return
	}

	e.wake(Hup)
}

func (e *Event) Ref() {
	e.refs.Add(1)
}

func (e *Event) Put() {
	if e.refs.Add(-1) < 0 {
		panic("eventfd: reference count underflow")
	}
}

// Refs returns the number of outstanding references.
func (e *Event) Refs() int32 {
	return e.refs.Load()
}

// must be called with e.mu held.
func (e *Event) wake(f Flags) {
	for _, s := range e.subs {
		s.fn(f)
	}
}
