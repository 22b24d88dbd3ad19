package workqueue_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/bobuhiro11/gomshv/workqueue"
)

func TestQueueRunsWork(t *testing.T) {
	t.Parallel()

	q := workqueue.New("test", 2, zerolog.Nop())
	defer q.Close()

	var n atomic.Int32

	for i := 0; i < 10; i++ {
		w := q.NewWork(func() { n.Add(1) })
		assert.True(t, w.Queue())
	}

	q.Flush()
	assert.Equal(t, int32(10), n.Load())
}

func TestWorkCoalesces(t *testing.T) {
	t.Parallel()

	q := workqueue.New("test", 1, zerolog.Nop())
	defer q.Close()

	block := make(chan struct{})
	started := make(chan struct{})

	// occupy the only worker
	gate := q.NewWork(func() {
		close(started)
		<-block
	})
	gate.Queue()
	<-started

	var n atomic.Int32

	w := q.NewWork(func() { n.Add(1) })

	assert.True(t, w.Queue())
	assert.False(t, w.Queue())
	assert.False(t, w.Queue())
	assert.True(t, w.Pending())

	close(block)
	w.Flush()

	assert.Equal(t, int32(1), n.Load())
	assert.False(t, w.Pending())
}

func TestWorkRequeuedWhileRunning(t *testing.T) {
	t.Parallel()

	q := workqueue.New("test", 4, zerolog.Nop())
	defer q.Close()

	var (
		n       atomic.Int32
		running atomic.Int32
		started = make(chan struct{}, 2)
		block   = make(chan struct{})
	)

	w := q.NewWork(func() {
		if running.Add(1) > 1 {
			t.Error("work ran concurrently with itself")
		}

		n.Add(1)
		started <- struct{}{}
		<-block
		running.Add(-1)
	})

	w.Queue()
	<-started

	// queued while running: runs exactly once more, afterwards.
	assert.True(t, w.Queue())
	assert.False(t, w.Queue())

	close(block)
	w.Flush()

	assert.Equal(t, int32(2), n.Load())
}

func TestFlushWaitsForRunningWork(t *testing.T) {
	t.Parallel()

	q := workqueue.New("test", 1, zerolog.Nop())
	defer q.Close()

	var done atomic.Bool

	w := q.NewWork(func() {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	})
	w.Queue()

	q.Flush()
	assert.True(t, done.Load())
}

func TestQueueAfterClose(t *testing.T) {
	t.Parallel()

	q := workqueue.New("test", 1, zerolog.Nop())

	var n atomic.Int32

	w := q.NewWork(func() { n.Add(1) })
	w.Queue()
	q.Close()

	assert.Equal(t, int32(1), n.Load())
	assert.False(t, w.Queue())
	assert.Equal(t, "test", q.Name())
}
