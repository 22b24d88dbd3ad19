package eventfd

import (
	"fmt"
	"sync"

	"github.com/bobuhiro11/gomshv/hverr"
)

// Resolver turns a controller-supplied descriptor into a referenced
// Channel. The caller owns the returned reference and releases it with Put.
type Resolver interface {
	Get(fd int) (Channel, error)
}

// Table is a descriptor table of installed channels.
type Table struct {
	mu    sync.Mutex
	next  int
	files map[int]File
}

var _ Resolver = (*Table)(nil)

func NewTable() *Table {
	return &Table{
		next:  3,
		files: make(map[int]File),
	}
}

// Install adds f to the table, taking over the caller's reference, and
// returns its descriptor.
func (t *Table) Install(f File) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.next
	t.next++
	t.files[fd] = f

	return fd
}

func (t *Table) Get(fd int) (Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[fd]
	if !ok {
		return nil, fmt.Errorf("fd %d: %w", fd, hverr.ErrBadDescriptor)
	}

	f.Ref()

	return f, nil
}

// Close removes fd from the table, hangs the channel up and drops the
// table's reference.
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	f, ok := t.files[fd]
	delete(t.files, fd)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("fd %d: %w", fd, hverr.ErrBadDescriptor)
	}

	f.Hangup()
	f.Put()

	return nil
}

// Len returns the number of installed descriptors.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.files)
}
