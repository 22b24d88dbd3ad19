package eventfd_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/bobuhiro11/gomshv/eventfd"
	"github.com/bobuhiro11/gomshv/hverr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSignalWakesSubscriber(t *testing.T) {
	t.Parallel()

	e := eventfd.NewEvent()

	var got atomic.Uint64

	s, err := e.Subscribe(func(f eventfd.Flags) {
		if f&eventfd.In != 0 {
			got.Add(e.Drain())
		}
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, e.Signal())
	}

	assert.Equal(t, uint64(5), got.Load())
	assert.Equal(t, eventfd.Flags(0), e.Poll())

	e.Unsubscribe(s)
	require.NoError(t, e.Signal())

	assert.Equal(t, uint64(5), got.Load())
	assert.Equal(t, eventfd.In, e.Poll())
	assert.Equal(t, 0, e.Subscribers())
}

func TestEventHangup(t *testing.T) {
	t.Parallel()

	e := eventfd.NewEvent()

	var hups atomic.Int32

	_, err := e.Subscribe(func(f eventfd.Flags) {
		if f&eventfd.Hup != 0 {
			hups.Add(1)
		}
	})
	require.NoError(t, err)

	e.Hangup()
	e.Hangup()

	assert.Equal(t, int32(1), hups.Load())
	assert.Equal(t, eventfd.Hup, e.Poll())
}

func TestEventRefs(t *testing.T) {
	t.Parallel()

	e := eventfd.NewEvent()
	e.Ref()
	assert.Equal(t, int32(2), e.Refs())

	e.Put()
	e.Put()
	assert.Equal(t, int32(0), e.Refs())

	assert.Panics(t, e.Put)
}

func TestTable(t *testing.T) {
	t.Parallel()

	tbl := eventfd.NewTable()
	e := eventfd.NewEvent()
	fd := tbl.Install(e)

	ch, err := tbl.Get(fd)
	require.NoError(t, err)
	assert.Same(t, e, ch)
	assert.Equal(t, int32(2), e.Refs())
	ch.Put()

	_, err = tbl.Get(fd + 1)
	assert.True(t, errors.Is(err, hverr.ErrBadDescriptor))
	assert.True(t, errors.Is(err, hverr.ErrChannel))

	require.NoError(t, tbl.Close(fd))
	assert.Equal(t, int32(0), e.Refs())
	assert.Equal(t, eventfd.Hup, e.Poll())
	assert.Error(t, tbl.Close(fd))
	assert.Equal(t, 0, tbl.Len())
}

func TestFlagsString(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		value eventfd.Flags
		want  string
	}{
		{value: 0, want: "none"},
		{value: eventfd.In, want: "in"},
		{value: eventfd.In | eventfd.Hup, want: "in|hup"},
		{value: 8, want: "Flags(0x8)"},
	} {
		assert.Equal(t, test.want, test.value.String())
	}
}
