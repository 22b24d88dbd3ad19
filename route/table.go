package route

import (
	"sync"
	"sync/atomic"
)

// Table is the partition's MSI routing table. Lookups are lock-free; Set
// replaces the whole table at once.
type Table struct {
	mu      sync.Mutex
	entries atomic.Pointer[map[uint32]Entry]
}

var _ Resolver = (*Table)(nil)

func NewTable() *Table {
	t := &Table{}
	m := map[uint32]Entry{}
	t.entries.Store(&m)

	return t
}

// Set replaces the routing table. A later entry for the same gsi wins.
func (t *Table) Set(entries []Entry) {
	m := make(map[uint32]Entry, len(entries))
	for _, e := range entries {
		m[e.GSI] = e
	}

	t.mu.Lock()
	t.entries.Store(&m)
	t.mu.Unlock()
}

// Update replaces or adds a single entry.
func (t *Table) Update(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.entries.Load()
	m := make(map[uint32]Entry, len(old)+1)

	for k, v := range old {
		m[k] = v
	}

	m[e.GSI] = e
	t.entries.Store(&m)
}

func (t *Table) Lookup(gsi uint32) (Entry, bool) {
	e, ok := (*t.entries.Load())[gsi]

	return e, ok
}

func (t *Table) Resolve(gsi uint32) Snapshot {
	e, ok := t.Lookup(gsi)
	if !ok {
		return Snapshot{GSI: gsi}
	}

	return FromMSI(e)
}

func (t *Table) Len() int {
	return len(*t.entries.Load())
}
