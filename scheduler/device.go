// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package scheduler

import (
	"github.com/framesync/frameset-sync/frames"
	"github.com/framesync/frameset-sync/queue"
)

// Device is the camera capture service a Scheduler drives. The core
// treats it as opaque: requests are asynchronous, and each completed
// capture travels back as a raw decoded buffer.
//
// Buffer flow: the scheduler preloads the free queue with the device's
// buffer pool. The device dequeues a free buffer when a capture finishes
// decoding, fills it, enqueues it on the filled queue and invokes the
// completion callback. The callback (which runs on the device's delivery
// goroutine) copies the buffer into the session arena and recycles it
// onto the free queue.
type Device interface {
	// Spec reports the frame geometry the device produces. It must match
	// the session's configured geometry exactly or startup fails.
	Spec() frames.VideoSpec

	// Start begins delivering completions. complete is invoked once per
	// filled buffer, after the buffer is on the filled queue.
	Start(complete func()) error

	// RequestCapture asks for one frame at the absolute target timestamp
	// (nanoseconds since the shared epoch). A returned error is a
	// submission fault and ends the session.
	RequestCapture(target uint64) error

	// Stop halts delivery. In-flight completions may still arrive while
	// Stop is in progress.
	Stop() error
}

// Queues bundles the two buffer queues connecting a scheduler and its
// device.
type Queues struct {
	Free   *queue.SPSC[*frames.Frame]
	Filled *queue.SPSC[*frames.Frame]
}

// NewQueues creates the free/filled queue pair for a device with the
// given buffer depth and preloads the free side with depth buffers.
func NewQueues(camera, depth int, spec frames.VideoSpec) Queues {
	q := Queues{
		Free:   queue.NewSPSC[*frames.Frame](depth),
		Filled: queue.NewSPSC[*frames.Frame](depth),
	}
	for i := 0; i < depth; i++ {
		q.Free.Enqueue(frames.NewFrame(camera, spec))
	}
	return q
}
