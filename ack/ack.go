// Package ack dispatches interrupt acknowledgments (EOIs) to the listeners
// registered for a gsi.
package ack

import (
	"sync"
	"sync/atomic"

	"github.com/bobuhiro11/gomshv/rcu"
)

// Notifier is called when the interrupt of GSI is acknowledged.
type Notifier struct {
	GSI   uint32
	Acked func()
}

// Registry is a partition's set of ack notifiers. NotifyAcked runs
// lock-free against concurrent registration.
type Registry struct {
	mu        sync.Mutex
	notifiers atomic.Pointer[[]*Notifier]
	rcu       rcu.Domain
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.notifiers.Store(&[]*Notifier{})

	return r
}

func (r *Registry) Register(n *Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.notifiers.Load()
	list := make([]*Notifier, 0, len(old)+1)
	list = append(list, n)
	list = append(list, old...)

	r.notifiers.Store(&list)
}

// Unregister removes n. When it returns, n.Acked is not running and will
// not be called again.
func (r *Registry) Unregister(n *Notifier) {
	r.mu.Lock()

	old := *r.notifiers.Load()
	list := make([]*Notifier, 0, len(old))

	for _, o := range old {
		if o != n {
			list = append(list, o)
		}
	}

	r.notifiers.Store(&list)
	r.mu.Unlock()

	r.rcu.Synchronize()
}

// NotifyAcked calls every notifier registered for gsi and reports whether
// there was one.
func (r *Registry) NotifyAcked(gsi uint32) bool {
	acked := false

	tok := r.rcu.ReadLock()
	defer r.rcu.ReadUnlock(tok)

	for _, n := range *r.notifiers.Load() {
		if n.GSI == gsi {
			n.Acked()

			acked = true
		}
	}

	return acked
}

// Len returns the number of registered notifiers.
func (r *Registry) Len() int {
	return len(*r.notifiers.Load())
}
