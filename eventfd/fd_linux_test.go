//go:build linux

package eventfd_test

import (
	"testing"
	"time"

	"github.com/bobuhiro11/gomshv/eventfd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFDSignalDrain(t *testing.T) {
	t.Parallel()

	f, err := eventfd.NewFD()
	require.NoError(t, err)

	defer f.Put()

	assert.Equal(t, eventfd.Flags(0), f.Poll())

	require.NoError(t, f.Signal())
	require.NoError(t, f.Signal())

	assert.Equal(t, eventfd.In, f.Poll())
	assert.Equal(t, uint64(2), f.Drain())
	assert.Equal(t, uint64(0), f.Drain())
}

func TestFDSubscribe(t *testing.T) {
	t.Parallel()

	f, err := eventfd.NewFD()
	require.NoError(t, err)

	defer f.Put()

	woke := make(chan uint64, 16)

	s, err := f.Subscribe(func(flags eventfd.Flags) {
		if flags&eventfd.In != 0 {
			woke <- f.Drain()
		}
	})
	require.NoError(t, err)

	require.NoError(t, f.Signal())

	select {
	case n := <-woke:
		assert.NotZero(t, n)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber was not woken")
	}

	f.Unsubscribe(s)

	require.NoError(t, f.Signal())
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, woke)
	assert.Equal(t, uint64(1), f.Drain())
}

func TestFDHangup(t *testing.T) {
	t.Parallel()

	f, err := eventfd.NewFD()
	require.NoError(t, err)

	hup := make(chan struct{}, 1)

	s, err := f.Subscribe(func(flags eventfd.Flags) {
		if flags&eventfd.Hup != 0 {
			hup <- struct{}{}
		}
	})
	require.NoError(t, err)

	tbl := eventfd.NewTable()
	fd := tbl.Install(f)
	f.Ref()

	require.NoError(t, tbl.Close(fd))

	<-hup
	assert.Equal(t, eventfd.Hup, f.Poll()&eventfd.Hup)

	f.Unsubscribe(s)
	f.Put()
}
