// ABOUTME: Bounded single-consumer queue for parameter updates
// ABOUTME: Lock-free on the consumer side so the audio callback never blocks
package samplehold

import (
	"sync"
	"sync/atomic"
)

// updateQueue is a ring buffer with one consumer (the rendering goroutine).
// Producers are serialized by mu; the consumer only touches the atomics, so
// it can never be blocked by a producer.
type updateQueue struct {
	mu   sync.Mutex
	buf  []pending
	mask uint64
	head atomic.Uint64 // next slot to read
	tail atomic.Uint64 // next slot to write
}

func newUpdateQueue(size int) *updateQueue {
	capacity := 1
	for capacity < size {
		capacity <<= 1
	}
	return &updateQueue{
		buf:  make([]pending, capacity),
		mask: uint64(capacity - 1),
	}
}

// push appends p, returning false when the queue is full
func (q *updateQueue) push(p pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	tail := q.tail.Load()
	if tail-q.head.Load() == uint64(len(q.buf)) {
		return false
	}
	q.buf[tail&q.mask] = p
	q.tail.Store(tail + 1)
	return true
}

// pop removes the oldest entry. Consumer only.
func (q *updateQueue) pop() (pending, bool) {
	head := q.head.Load()
	if head == q.tail.Load() {
		return pending{}, false
	}
	p := q.buf[head&q.mask]
	q.head.Store(head + 1)
	return p, true
}

// len returns the number of queued entries
func (q *updateQueue) len() int {
	head := q.head.Load()
	return int(q.tail.Load() - head)
}
