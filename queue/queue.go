// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package queue provides bounded, non-blocking queues for handing frame
// buffers between a capture producer and a consumer without locks.
package queue

import "sync/atomic"

const cacheLineSize = 64

// SPSC is a fixed-capacity single-producer/single-consumer queue. Exactly
// one goroutine may call Enqueue and exactly one may call Dequeue. A
// successful Dequeue observes every write to the dequeued element that
// happened before the corresponding Enqueue; this is the only visibility
// guarantee frame buffers rely on when crossing goroutines.
//
// The producer and consumer halves sit on separate cache lines and each
// keeps a cached copy of the other's index, so steady-state operations
// touch a single line. One slot is kept empty to tell a full queue
// (head+1 == tail) from an empty one (head == tail).
type SPSC[T any] struct {
	head       atomic.Uint64 // next slot to write, producer-owned
	cachedTail uint64
	_          [cacheLineSize - 16]byte

	tail       atomic.Uint64 // next slot to read, consumer-owned
	cachedHead uint64
	_          [cacheLineSize - 16]byte

	slots []T
}

// NewSPSC returns a queue that holds up to capacity elements.
func NewSPSC[T any](capacity int) *SPSC[T] {
	if capacity < 1 {
		panic("queue: capacity must be at least 1")
	}
	return &SPSC[T]{
		slots: make([]T, capacity+1),
	}
}

// Capacity returns the number of elements the queue can hold.
func (q *SPSC[T]) Capacity() int {
	return len(q.slots) - 1
}

// Enqueue adds v to the queue, returning false without blocking if the
// queue is full. A false return is a backpressure signal for the caller,
// not a queue fault.
func (q *SPSC[T]) Enqueue(v T) bool {
	head := q.head.Load()
	next := head + 1
	if next == uint64(len(q.slots)) {
		next = 0
	}

	if next == q.cachedTail {
		q.cachedTail = q.tail.Load()
		if next == q.cachedTail {
			return false
		}
	}

	q.slots[head] = v
	q.head.Store(next)
	return true
}

// Dequeue removes the oldest element, returning ok=false without blocking
// if the queue is empty.
func (q *SPSC[T]) Dequeue() (v T, ok bool) {
	tail := q.tail.Load()

	if tail == q.cachedHead {
		q.cachedHead = q.head.Load()
		if tail == q.cachedHead {
			return v, false
		}
	}

	v = q.slots[tail]
	var zero T
	q.slots[tail] = zero

	next := tail + 1
	if next == uint64(len(q.slots)) {
		next = 0
	}
	q.tail.Store(next)
	return v, true
}

// Len reports the number of queued elements. It is exact when the queue is
// quiescent and a point-in-time estimate while the other side is active.
func (q *SPSC[T]) Len() int {
	size := uint64(len(q.slots))
	head := q.head.Load()
	tail := q.tail.Load()
	return int((head + size - tail) % size)
}
