//go:build linux

package eventfd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const sizeofUint64 = 8

// FD is a Channel backed by a Linux eventfd(2). Each subscription is served
// by its own poller goroutine, which is stopped through a private eventfd.
type FD struct {
	fd   int
	refs atomic.Int32
	hup  atomic.Bool

	// mu is the delivery lock shared by all pollers.
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

var _ File = (*FD)(nil)

// NewFD creates a non-blocking eventfd holding one reference.
func NewFD() (*FD, error) {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to create eventfd: %w", err)
	}

	f := &FD{
		fd:   efd,
		subs: make(map[*Subscription]struct{}),
	}
	f.refs.Store(1)

	return f, nil
}

// Fd returns the underlying file descriptor.
func (f *FD) Fd() int {
	return f.fd
}

func (f *FD) Signal() error {
	var buf [sizeofUint64]byte

	binary.NativeEndian.PutUint64(buf[:], 1)

	for {
		n, err := unix.Write(f.fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return fmt.Errorf("write eventfd %d: %w", f.fd, err)
		}

		if n != sizeofUint64 {
			return fmt.Errorf("short write to eventfd %d: %d bytes", f.fd, n)
		}

		return nil
	}
}

func (f *FD) Drain() uint64 {
	var buf [sizeofUint64]byte

	for {
		n, err := unix.Read(f.fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil || n != sizeofUint64 {
			return 0
		}

		return binary.NativeEndian.Uint64(buf[:])
	}
}

func (f *FD) Poll() Flags {
	var flags Flags

	fds := []unix.PollFd{{Fd: int32(f.fd), Events: unix.POLLIN}}
	if n, err := unix.Poll(fds, 0); err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0 {
		flags |= In
	}

	if f.hup.Load() {
		flags |= Hup
	}

	return flags
}

func (f *FD) Subscribe(fn WakeFunc) (*Subscription, error) {
	stop, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to create stop eventfd: %w", err)
	}

	s := &Subscription{
		fn:     fn,
		live:   true,
		stopfd: stop,
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go f.poll(s)

	return s, nil
}

// poll waits for the counter to become readable and runs the callback.
// The callback is expected to Drain; otherwise poll keeps firing.
func (f *FD) poll(s *Subscription) {
	defer close(s.done)

	fds := []unix.PollFd{
		{Fd: int32(f.fd), Events: unix.POLLIN},
		{Fd: int32(s.stopfd), Events: unix.POLLIN},
	}

	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}

			return
		}

		if fds[1].Revents != 0 {
			return
		}

		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		f.mu.Lock()
		if s.live {
			s.fn(In)
		}
		f.mu.Unlock()
	}
}

func (f *FD) Unsubscribe(s *Subscription) {
	f.mu.Lock()
	s.live = false
	delete(f.subs, s)
	f.mu.Unlock()

	var buf [sizeofUint64]byte

	binary.NativeEndian.PutUint64(buf[:], 1)

	if _, err := unix.Write(s.stopfd, buf[:]); err == nil {
		<-s.done
	}

	unix.Close(s.stopfd)
}

func (f *FD) Hangup() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hup.Swap(true) {
		return
	}

	for s := range f.subs {
		s.fn(Hup)
	}
}

func (f *FD) Ref() {
	f.refs.Add(1)
}

// Put drops a reference and closes the eventfd with the last one.
func (f *FD) Put() {
	switch n := f.refs.Add(-1); {
	case n < 0:
		panic("eventfd: reference count underflow")
	case n == 0:
		unix.Close(f.fd)
	}
}
