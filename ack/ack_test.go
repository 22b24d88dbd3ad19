package ack_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bobuhiro11/gomshv/ack"
	"github.com/stretchr/testify/assert"
)

func TestNotifyAcked(t *testing.T) {
	t.Parallel()

	r := ack.NewRegistry()

	var a, b atomic.Int32

	na := &ack.Notifier{GSI: 5, Acked: func() { a.Add(1) }}
	nb := &ack.Notifier{GSI: 6, Acked: func() { b.Add(1) }}

	r.Register(na)
	r.Register(nb)
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.NotifyAcked(5))
	assert.False(t, r.NotifyAcked(7))
	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(0), b.Load())

	r.Unregister(na)

	assert.False(t, r.NotifyAcked(5))
	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, 1, r.Len())
}

func TestUnregisterWaitsForCallback(t *testing.T) {
	t.Parallel()

	r := ack.NewRegistry()

	var (
		running  atomic.Bool
		returned atomic.Bool
		entered  = make(chan struct{})
		release  = make(chan struct{})
	)

	n := &ack.Notifier{GSI: 1, Acked: func() {
		running.Store(true)
		close(entered)
		<-release
		running.Store(false)
	}}
	r.Register(n)

	go r.NotifyAcked(1)

	<-entered

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		r.Unregister(n)
		returned.Store(true)
		assert.False(t, running.Load(), "Unregister returned while the notifier ran")
	}()

	assert.False(t, returned.Load())
	close(release)
	wg.Wait()
}
