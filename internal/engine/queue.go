package engine

import (
	"sync"

	"github.com/corvidlabs/checkerbase/internal/writer"
)

// entryQueue is an unbounded, multi-producer single-consumer queue of
// writer.Entry values, backed by a growable slice guarded by a
// sync.Cond. Workers push outcomes without ever blocking on a full
// buffer (the engine's output queue is unbounded per design); pump
// drains it onto a regular channel for the writer to range over.
type entryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []writer.Entry
	closed bool
}

func newEntryQueue() *entryQueue {
	q := &entryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues e. A push after close is silently dropped — the only
// caller sequencing that can produce one is a worker racing the
// reader-failure shutdown path, which is already discarding output.
func (q *entryQueue) push(e writer.Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.buf = append(q.buf, e)
	q.cond.Signal()
}

// close marks the queue closed; pump drains whatever remains, then
// returns.
func (q *entryQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// pump drains the queue onto ch until closed and empty, then closes ch.
// Run it from exactly one goroutine.
func (q *entryQueue) pump(ch chan<- writer.Entry) {
	defer close(ch)
	for {
		q.mu.Lock()
		for len(q.buf) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.buf) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.buf
		q.buf = nil
		q.mu.Unlock()

		for _, e := range batch {
			ch <- e
		}
	}
}
