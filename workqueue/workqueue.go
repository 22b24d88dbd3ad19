// Package workqueue runs deferred work items on a pool of goroutines.
//
// A Work item is bound to one Queue. Queueing an item that is already
// pending is a no-op, and an item never runs concurrently with itself: if it
// is queued again while running, it runs once more after the current run.
package workqueue

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/bobuhiro11/gomshv/hverr"
)

// Queue is a FIFO of work items served by a fixed number of workers.
type Queue struct {
	name string
	log  zerolog.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	items       *queue.Queue
	outstanding int
	closed      bool

	wg sync.WaitGroup
}

// Work is a function run by a Queue.
type Work struct {
	q  *Queue
	fn func()

	// guarded by q.mu
	pending bool
	running bool
}

// New starts a queue with the given number of workers (at least one).
func New(name string, workers int, log zerolog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}

	q := &Queue{
		name:  name,
		log:   log.With().Str("workqueue", name).Logger(),
		items: queue.New(),
	}
	q.cond = sync.NewCond(&q.mu)

	for i := 0; i < workers; i++ {
		q.wg.Add(1)

		go q.worker()
	}

	return q
}

// Name returns the name the queue was created with.
func (q *Queue) Name() string {
	return q.name
}

// NewWork binds fn to q.
func (q *Queue) NewWork(fn func()) *Work {
	return &Work{q: q, fn: fn}
}

// Queue schedules w. It returns false if w was already pending or the queue
// is closed.
func (w *Work) Queue() bool {
	q := w.q

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warn().Err(hverr.ErrQueueClosed).Msg("dropping work")

		return false
	}

	if w.pending {
		return false
	}

	w.pending = true
	q.outstanding++

	// A running item is put back by its worker once the current run ends.
	if !w.running {
		q.items.Add(w)
		q.cond.Broadcast()
	}

	return true
}

// Pending reports whether w is queued and has not started yet.
func (w *Work) Pending() bool {
	w.q.mu.Lock()
	defer w.q.mu.Unlock()

	return w.pending
}

// Flush waits until w is neither pending nor running.
func (w *Work) Flush() {
	q := w.q

	q.mu.Lock()
	defer q.mu.Unlock()

	for w.pending || w.running {
		q.cond.Wait()
	}
}

// Flush waits until every item queued on q has run.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.outstanding > 0 {
		q.cond.Wait()
	}
}

// Close runs the remaining items, stops the workers and waits for them.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		for q.items.Length() == 0 && !q.closed {
			q.cond.Wait()
		}

		if q.items.Length() == 0 {
			return
		}

		w, _ := q.items.Remove().(*Work)
		w.pending = false
		w.running = true

		q.mu.Unlock()
		w.fn()
		q.mu.Lock()

		w.running = false
		q.outstanding--

		if w.pending {
			q.items.Add(w)
		}

		q.cond.Broadcast()
	}
}
