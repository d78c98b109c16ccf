// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package control carries session commands to the coordinating loop.
// Commands arrive from several producers at once - the UDP clock
// listener, the dbus service, the signal relay - so they travel through
// the multi-producer queue variant and wake a single consumer.
package control

import (
	"log"

	"github.com/framesync/frameset-sync/queue"
)

type EventType int

const (
	// EventStart begins a capture session. Timestamp carries the shared
	// epoch in nanoseconds; the first captures land one frame interval
	// after it.
	EventStart EventType = iota

	// EventStop ends the current session but keeps the process alive
	// for a later restart.
	EventStop

	// EventTerminate shuts the process down.
	EventTerminate
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventTerminate:
		return "terminate"
	}
	return "unknown"
}

type Event struct {
	Type      EventType
	Timestamp uint64
}

// Channel is the command path between the event producers and the
// coordinator. Posts never block; the wake channel carries at most one
// pending notification and the consumer drains the queue on each wake.
type Channel struct {
	q    *queue.MPSC[Event]
	wake chan struct{}
}

func NewChannel() *Channel {
	return &Channel{
		q:    queue.NewMPSC[Event](16),
		wake: make(chan struct{}, 1),
	}
}

// Post delivers one event to the coordinator. Safe to call from any
// goroutine. Control events are rare, so a full queue means the
// coordinator has wedged; the event is dropped rather than blocking a
// signal handler or network read loop.
func (c *Channel) Post(ev Event) {
	if !c.q.Enqueue(ev) {
		log.Printf("control: event queue full, dropping %s", ev.Type)
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Next blocks until an event arrives or done closes. The false return
// tells the coordinator to exit.
func (c *Channel) Next(done <-chan struct{}) (Event, bool) {
	for {
		if ev, ok := c.q.Dequeue(); ok {
			return ev, true
		}
		select {
		case <-c.wake:
		case <-done:
			// Drain anything that raced with the shutdown.
			if ev, ok := c.q.Dequeue(); ok {
				return ev, true
			}
			return Event{}, false
		}
	}
}
