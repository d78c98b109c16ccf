// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package syncer

import (
	"sync/atomic"

	"github.com/framesync/frameset-sync/frames"
)

// Slot is the per-camera coordination point between a capture scheduler
// and the synchronizer. The scheduler is the only writer of the frame and
// timestamp; the synchronizer only reads them between rounds, after the
// completion counter has made the writes visible. The trigger flag is
// written by both sides but never concurrently for the same transition:
// the synchronizer arms, the scheduler disarms on fill.
type Slot struct {
	camera int
	armed  atomic.Bool
	ts     atomic.Uint64
	frame  atomic.Pointer[frames.Frame]
}

func NewSlot(camera int) *Slot {
	return &Slot{camera: camera}
}

// Camera returns the fixed camera index this slot belongs to.
func (s *Slot) Camera() int {
	return s.camera
}

// Arm sets the trigger flag, telling the camera's scheduler to issue a
// capture request at its next timer expiry.
func (s *Slot) Arm() {
	s.armed.Store(true)
}

// Disarm force-clears the trigger flag. Used when a session stops.
func (s *Slot) Disarm() {
	s.armed.Store(false)
}

// Armed reports whether a capture is wanted or outstanding for this slot.
func (s *Slot) Armed() bool {
	return s.armed.Load()
}

// Fill records a completed capture: the frame buffer, its requested
// capture timestamp, and the cleared trigger flag. Called from the
// device's completion context.
func (s *Slot) Fill(f *frames.Frame, ts uint64) {
	f.Timestamp = ts
	s.frame.Store(f)
	s.ts.Store(ts)
	s.armed.Store(false)
}

// Timestamp returns the capture timestamp of the most recent fill.
func (s *Slot) Timestamp() uint64 {
	return s.ts.Load()
}

// Frame returns the most recently filled frame buffer, or nil before the
// first fill.
func (s *Slot) Frame() *frames.Frame {
	return s.frame.Load()
}
