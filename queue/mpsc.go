// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package queue

import "sync/atomic"

// MPSC is a fixed-capacity queue safe for any number of enqueuing
// goroutines and a single dequeuing goroutine. Producers claim a slot by
// advancing the head index with a compare-and-swap; per-slot sequence
// numbers make a claimed slot visible to the consumer only after its value
// has been written.
//
// Capacity is rounded up to the next power of two.
type MPSC[T any] struct {
	mask uint64

	head atomic.Uint64 // producers race to advance
	_    [cacheLineSize - 8]byte

	tail atomic.Uint64 // consumer-owned
	_    [cacheLineSize - 8]byte

	slots []mpscSlot[T]
}

type mpscSlot[T any] struct {
	seq atomic.Uint64
	val T
}

// NewMPSC returns a queue that holds at least capacity elements.
func NewMPSC[T any](capacity int) *MPSC[T] {
	if capacity < 1 {
		panic("queue: capacity must be at least 1")
	}
	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}
	q := &MPSC[T]{
		mask:  size - 1,
		slots: make([]mpscSlot[T], size),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// Capacity returns the number of elements the queue can hold.
func (q *MPSC[T]) Capacity() int {
	return len(q.slots)
}

// Enqueue adds v to the queue, returning false without blocking if the
// queue is full.
func (q *MPSC[T]) Enqueue(v T) bool {
	for {
		head := q.head.Load()
		slot := &q.slots[head&q.mask]
		seq := slot.seq.Load()

		switch {
		case seq == head:
			if q.head.CompareAndSwap(head, head+1) {
				slot.val = v
				slot.seq.Store(head + 1)
				return true
			}
		case seq < head:
			// The slot still holds an unconsumed value from the
			// previous lap.
			return false
		default:
			// Another producer claimed this slot first; retry.
		}
	}
}

// Dequeue removes the oldest element, returning ok=false without blocking
// if the queue is empty.
func (q *MPSC[T]) Dequeue() (v T, ok bool) {
	tail := q.tail.Load()
	slot := &q.slots[tail&q.mask]
	if slot.seq.Load() != tail+1 {
		return v, false
	}

	v = slot.val
	var zero T
	slot.val = zero
	slot.seq.Store(tail + q.mask + 1)
	q.tail.Store(tail + 1)
	return v, true
}

// Len reports the number of queued elements. It is a point-in-time
// estimate while producers are active.
func (q *MPSC[T]) Len() int {
	return int(q.head.Load() - q.tail.Load())
}
