package route_test

import (
	"sync"
	"testing"

	"github.com/bobuhiro11/gomshv/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMSI(t *testing.T) {
	t.Parallel()

	// vector 0x31, ExtINT, level triggered, apic 2, logical destination.
	s := route.FromMSI(route.Entry{
		GSI:       10,
		AddressLo: 0xfee02004,
		Data:      0xc731,
	})

	assert.Equal(t, route.Snapshot{
		GSI:    10,
		Valid:  true,
		Vector: 0x31,
		APICID: 2,
		Control: route.Control{
			Type:           route.ExtINT,
			LevelTriggered: true,
			LogicalDest:    true,
		},
	}, s)
	assert.True(t, s.Control.NeedsClear())
	assert.Equal(t, s, route.FromMSI(s.MSI()))
}

func TestFromMSIEdgeFixed(t *testing.T) {
	t.Parallel()

	s := route.FromMSI(route.Entry{GSI: 24, AddressLo: 0xfee00000, Data: 0x41})

	assert.Equal(t, route.Fixed, s.Control.Type)
	assert.False(t, s.Control.LevelTriggered)
	assert.False(t, s.Control.NeedsClear())
	assert.Equal(t, uint64(0), s.APICID)
}

func TestTableResolve(t *testing.T) {
	t.Parallel()

	tbl := route.NewTable()
	assert.False(t, tbl.Resolve(5).Valid)

	tbl.Set([]route.Entry{
		{GSI: 5, AddressLo: 0xfee00000, Data: 0x30},
		{GSI: 6, AddressLo: 0xfee01000, Data: 0x31},
	})
	require.Equal(t, 2, tbl.Len())

	s := tbl.Resolve(6)
	assert.True(t, s.Valid)
	assert.Equal(t, uint32(0x31), s.Vector)
	assert.Equal(t, uint64(1), s.APICID)

	tbl.Update(route.Entry{GSI: 7, AddressLo: 0xfee00000, Data: 0x32})
	assert.Equal(t, 3, tbl.Len())

	tbl.Set(nil)
	assert.False(t, tbl.Resolve(6).Valid)
}

func TestCacheVersion(t *testing.T) {
	t.Parallel()

	var c route.Cache

	assert.False(t, c.Load().Valid)
	assert.Equal(t, uint64(0), c.Version())

	want := route.Snapshot{GSI: 1, Valid: true, Vector: 0x40, APICID: 3}
	c.Store(want)

	assert.Equal(t, want, c.Load())
	assert.Equal(t, uint64(1), c.Version())
}

func TestCacheNoTornRead(t *testing.T) {
	t.Parallel()

	a := route.Snapshot{
		GSI: 1, Valid: true, Vector: 0x30, APICID: 1,
		Control: route.Control{Type: route.Fixed},
	}
	b := route.Snapshot{
		GSI: 1, Valid: true, Vector: 0x50, APICID: 7,
		Control: route.Control{Type: route.ExtINT, LevelTriggered: true, LogicalDest: true},
	}

	var (
		c    route.Cache
		wg   sync.WaitGroup
		stop = make(chan struct{})
	)

	c.Store(a)

	for i := 0; i < 4; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				select {
				case <-stop:
					return
				default:
				}

				if s := c.Load(); s != a && s != b {
					t.Errorf("torn read: %v", s)

					return
				}
			}
		}()
	}

	for i := 0; i < 20000; i++ {
		if i%2 == 0 {
			c.Store(b)
		} else {
			c.Store(a)
		}
	}

	close(stop)
	wg.Wait()
}
