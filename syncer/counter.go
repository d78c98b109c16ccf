// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package syncer

import "sync/atomic"

// Counter tracks how many slots are filled and unconsumed. Each camera's
// scheduler increments it exactly once per filled slot; the synchronizer
// decrements it once per slot it re-arms and bulk-resets it after an
// emission. Its value gates the completion notification only - timestamp
// agreement is checked separately every round.
type Counter struct {
	n atomic.Uint32
}

// Inc adds one filled slot and returns the new value. The caller that
// observes the transition to camera-count posts the round notification;
// the atomic add guarantees exactly one caller sees that value per round.
func (c *Counter) Inc() uint32 {
	return c.n.Add(1)
}

// Dec removes one filled slot when the synchronizer re-arms it.
func (c *Counter) Dec() {
	c.n.Add(^uint32(0))
}

// Reset clears the counter in one atomic operation after a frameset is
// consumed.
func (c *Counter) Reset() {
	c.n.Store(0)
}

// Value returns the current number of filled, unconsumed slots.
func (c *Counter) Value() uint32 {
	return c.n.Load()
}

// Notifier is the counting wait primitive pairing with Counter: one unit
// is posted per counter transition to camera-count, and the synchronizer
// performs one blocking wait per round. A single-entry buffer is enough
// because at most one such transition can be outstanding between waits.
type Notifier struct {
	c chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{c: make(chan struct{}, 1)}
}

// Post wakes the waiter. Never blocks; a post while one is already
// pending coalesces.
func (n *Notifier) Post() {
	select {
	case n.c <- struct{}{}:
	default:
	}
}

// Wait blocks until a post arrives or done closes. Returns false on done,
// the final wake that lets the coordinating goroutine exit instead of
// blocking forever.
func (n *Notifier) Wait(done <-chan struct{}) bool {
	select {
	case <-n.c:
		return true
	case <-done:
		return false
	}
}
