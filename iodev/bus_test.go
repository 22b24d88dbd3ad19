package iodev_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobuhiro11/gomshv/hverr"
	"github.com/bobuhiro11/gomshv/iodev"
	"github.com/bobuhiro11/gomshv/ioeventfd"
)

func TestDoorbellIDs(t *testing.T) {
	t.Parallel()

	bus := iodev.NewBus(2, zerolog.Nop())

	id1, err := bus.RegisterDoorbell(0x1000, 0, ioeventfd.TriggerAnyValue, func(int) {})
	require.NoError(t, err)
	id2, err := bus.RegisterDoorbell(0x2000, 0, ioeventfd.TriggerAnyValue, func(int) {})
	require.NoError(t, err)

	assert.Equal(t, 1, id1)
	assert.Equal(t, 2, id2)

	_, err = bus.RegisterDoorbell(0x3000, 0, ioeventfd.TriggerAnyValue, func(int) {})
	assert.True(t, errors.Is(err, hverr.ErrDoorbellsExhausted))

	bus.UnregisterDoorbell(id1)

	id3, err := bus.RegisterDoorbell(0x3000, 0, ioeventfd.TriggerAnyValue, func(int) {})
	require.NoError(t, err)
	assert.Equal(t, 3, id3)
}

func TestWriteMatching(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name  string
		value uint64
		flags uint64
		data  []byte
		rings bool
	}{
		{name: "AnySizeAnyValue", flags: ioeventfd.TriggerSizeAny | ioeventfd.TriggerAnyValue, data: []byte{1, 2}, rings: true},
		{name: "ByteMatch", value: 0x7f, flags: ioeventfd.TriggerSizeByte, data: []byte{0x7f}, rings: true},
		{name: "ByteMismatch", value: 0x7f, flags: ioeventfd.TriggerSizeByte, data: []byte{0x7e}},
		{name: "WordWrongSize", flags: ioeventfd.TriggerSizeWord | ioeventfd.TriggerAnyValue, data: []byte{1, 2, 3, 4}},
		{name: "DwordLittleEndian", value: 0x04030201, flags: ioeventfd.TriggerSizeDword, data: []byte{1, 2, 3, 4}, rings: true},
		{name: "Qword", value: 1, flags: ioeventfd.TriggerSizeQword, data: []byte{1, 0, 0, 0, 0, 0, 0, 0}, rings: true},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			bus := iodev.NewBus(0, zerolog.Nop())

			var got []int

			id, err := bus.RegisterDoorbell(0x1000, test.value, test.flags, func(id int) { got = append(got, id) })
			require.NoError(t, err)

			require.NoError(t, bus.Write(0x1000, test.data))
			require.NoError(t, bus.Write(0x1008, test.data))

			if test.rings {
				assert.Equal(t, []int{id}, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestDevices(t *testing.T) {
	t.Parallel()

	bus := iodev.NewBus(0, zerolog.Nop())
	trace := &iodev.TraceDevice{Addr: 0x4000, Psize: 0x10, Log: zerolog.Nop()}
	bus.AddDevice(trace)
	bus.AddDevice(&iodev.NoopDevice{Addr: 0x5000, Psize: 0x10})

	require.NoError(t, bus.Write(0x4004, []byte{0xaa, 0xbb}))

	data := make([]byte, 2)
	require.NoError(t, bus.Read(0x4004, data))
	assert.Equal(t, []byte{0xaa, 0xbb}, data)

	require.NoError(t, bus.Write(0x5000, []byte{1}))

	data = []byte{9, 9}
	require.NoError(t, bus.Read(0x9000, data))
	assert.Equal(t, []byte{0, 0}, data)

	assert.Error(t, bus.Write(0x4000, nil))
	assert.Error(t, bus.Write(0x4000, make([]byte, 9)))
}

func TestDoorbellShadowsDevice(t *testing.T) {
	t.Parallel()

	bus := iodev.NewBus(0, zerolog.Nop())
	trace := &iodev.TraceDevice{Addr: 0x4000, Psize: 0x10, Log: zerolog.Nop()}
	bus.AddDevice(trace)

	rung := 0

	_, err := bus.RegisterDoorbell(0x4000, 0, ioeventfd.TriggerAnyValue, func(int) { rung++ })
	require.NoError(t, err)

	require.NoError(t, bus.Write(0x4000, []byte{5}))
	assert.Equal(t, 1, rung)

	data := make([]byte, 1)
	require.NoError(t, bus.Read(0x4000, data))
	assert.Equal(t, []byte{0}, data)
}
