package vmm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobuhiro11/gomshv/hverr"
	"github.com/bobuhiro11/gomshv/partition"
	"github.com/bobuhiro11/gomshv/route"
	"github.com/bobuhiro11/gomshv/vmm"
)

func simConfig() vmm.Config {
	return vmm.Config{
		Backend:      vmm.BackendSim,
		PartitionID:  1,
		IRQFDs:       4,
		Resample:     2,
		Doorbells:    4,
		MMIOBase:     0xd0000000,
		Signals:      50,
		RouteUpdates: 20,
		Workers:      2,
		Logger:       zerolog.Nop(),
	}
}

func TestRunSim(t *testing.T) {
	t.Parallel()

	v := vmm.New(simConfig())
	require.NoError(t, v.Init())

	defer v.Close()

	require.NoError(t, v.Setup())

	st, err := v.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(200), st.Signals)
	assert.Equal(t, int64(200), st.Writes)
	assert.Equal(t, int64(100), st.Acks)
	assert.Equal(t, uint64(100), st.Resampled)
	assert.Equal(t, int64(20), st.RouteUpdates)
	assert.Equal(t, partition.Stats{IRQFDs: 4, Resamplers: 2, IOEventFDs: 4}, st.Bindings)

	// coalescing may merge signals but never invents them
	assert.Positive(t, st.Injections)
	assert.LessOrEqual(t, int64(st.Injections), st.Signals+st.Writes/2)
	assert.Zero(t, st.Clears)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	v := vmm.New(simConfig())
	require.NoError(t, v.Init())

	defer v.Close()

	require.NoError(t, v.Setup())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetupErrors(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name   string
		modify func(*vmm.Config)
		kind   error
	}{
		{
			name:   "DoorbellsExhausted",
			modify: func(c *vmm.Config) { c.MaxDoorbells = 2 },
			kind:   hverr.ErrResource,
		},
		{
			name:   "TooManyIRQFDs",
			modify: func(c *vmm.Config) { c.IRQFDs = vmm.MaxIRQFDs + 1 },
		},
		{
			name:   "ResampleExceedsIRQFDs",
			modify: func(c *vmm.Config) { c.Resample = c.IRQFDs + 1 },
		},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			c := simConfig()
			test.modify(&c)

			v := vmm.New(c)
			require.NoError(t, v.Init())

			defer v.Close()

			err := v.Setup()
			require.Error(t, err)

			if test.kind != nil {
				assert.True(t, errors.Is(err, test.kind), "%v", err)
			}
		})
	}
}

func TestUnknownBackend(t *testing.T) {
	t.Parallel()

	c := simConfig()
	c.Backend = "xen"

	err := vmm.New(c).Init()
	assert.Error(t, err)
}

func TestSim(t *testing.T) {
	t.Parallel()

	s := vmm.NewSim(zerolog.Nop())

	require.NoError(t, s.AssertVirtualInterrupt(1, 0x30, 0, route.Control{}))
	require.NoError(t, s.AssertVirtualInterrupt(1, 0x30, 1, route.Control{Type: route.LowestPriority}))
	require.NoError(t, s.AssertVirtualInterrupt(1, 0x31, 0, route.Control{}))
	require.NoError(t, s.ClearVirtualInterrupt(1))

	assert.Equal(t, 3, s.Asserts())
	assert.Equal(t, 2, s.Vector(0x30))
	assert.Equal(t, 1, s.Vector(0x31))
	assert.Equal(t, 1, s.Clears())
}
