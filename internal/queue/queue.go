// Package queue provides the unbounded FIFO task queue used by the
// worker pool. Storage is a chain of fixed-size chunks so the queue
// grows without copying and releases drained chunks to the GC.
// Single-producer single-consumer; the pool serializes access.
package queue

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrEmpty is returned by Read when no elements are available.
var ErrEmpty = errors.New("queue empty")

// chunk is one fixed-size segment of the chain. Indices advance
// linearly and never wrap; a drained chunk is discarded whole.
type chunk[T any] struct {
	data     []T
	writeIdx int
	readIdx  int
	next     *chunk[T]
	zero     T // zero value for clearing read slots
}

func newChunk[T any](capacity int) *chunk[T] {
	return &chunk[T]{data: make([]T, capacity)}
}

func (c *chunk[T]) write(value T) bool {
	if c.writeIdx >= cap(c.data) {
		return false
	}
	c.data[c.writeIdx] = value
	c.writeIdx++
	return true
}

func (c *chunk[T]) read() (T, bool) {
	if c.readIdx >= c.writeIdx {
		return c.zero, false
	}
	value := c.data[c.readIdx]
	// Clear the slot so drained elements (tasks holding closures) are
	// not retained until the whole chunk is released.
	c.data[c.readIdx] = c.zero
	c.readIdx++
	return value, true
}

// Chunked is an unbounded FIFO built from linked chunks.
type Chunked[T any] struct {
	head *chunk[T] // read position
	tail *chunk[T] // write position

	maxCap int

	writes atomic.Uint64
	reads  atomic.Uint64
}

// NewChunked creates a queue with the given initial and maximum chunk
// capacity. Chunk sizes grow geometrically up to maxCap.
func NewChunked[T any](initCap, maxCap int) *Chunked[T] {
	if initCap <= 0 {
		initCap = 16
	}
	if maxCap < initCap {
		maxCap = initCap
	}
	c := newChunk[T](initCap)
	return &Chunked[T]{
		head:   c,
		tail:   c,
		maxCap: maxCap,
	}
}

// Len returns the approximate number of unread elements.
func (q *Chunked[T]) Len() uint64 {
	w, r := q.writes.Load(), q.reads.Load()
	if w >= r {
		return w - r
	}
	return math.MaxUint64 - r + w + 1
}

// Write appends a value, allocating a new chunk when the tail is full.
func (q *Chunked[T]) Write(v T) {
	for !q.tail.write(v) {
		if q.tail.next == nil {
			q.tail.next = newChunk[T](q.nextCap())
		}
		q.tail = q.tail.next
	}
	q.writes.Add(1)
}

// Read removes and returns the oldest value, or ErrEmpty.
func (q *Chunked[T]) Read() (T, error) {
	for {
		v, ok := q.head.read()
		if ok {
			q.reads.Add(1)
			return v, nil
		}
		if q.head.next == nil {
			var zero T
			return zero, ErrEmpty
		}
		// Advance and release the drained chunk.
		old := q.head
		q.head = q.head.next
		old.next = nil
	}
}

func (q *Chunked[T]) nextCap() int {
	cur := cap(q.tail.data)
	if cur < 1024 {
		return min(cur*2, q.maxCap)
	}
	return min(cur+cur/2, q.maxCap)
}
