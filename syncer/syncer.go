// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package syncer assembles per-camera captures into framesets whose
// frames all share one capture timestamp. Cameras complete captures
// independently and with independent jitter; the synchronizer repeatedly
// re-triggers only the lagging cameras until every slot agrees, then
// hands the matched frameset to a consumer.
package syncer

import (
	"fmt"
	"sync/atomic"

	"github.com/framesync/frameset-sync/frames"
)

// Synchronizer owns one slot per camera and runs the round-based
// re-trigger/compare protocol. It is the only goroutine that blocks on
// the completion notification, and the only one that imposes ordering
// across cameras.
type Synchronizer struct {
	session  *Session
	slots    []*Slot
	counter  *Counter
	notify   *Notifier
	consumer Consumer

	// Heartbeat, when set, is called once per emitted frameset. The
	// daemon uses it to feed the systemd watchdog, which doubles as the
	// external liveness detector: a round that never completes starves
	// the watchdog.
	Heartbeat func()

	emitted atomic.Uint64
	rounds  atomic.Uint64

	fs Frameset
}

// New creates a synchronizer for cams cameras.
func New(session *Session, cams int, consumer Consumer) *Synchronizer {
	slots := make([]*Slot, cams)
	for i := range slots {
		slots[i] = NewSlot(i)
	}
	return &Synchronizer{
		session:  session,
		slots:    slots,
		counter:  new(Counter),
		notify:   NewNotifier(),
		consumer: consumer,
		fs:       Frameset{Frames: make([]*frames.Frame, 0, cams)},
	}
}

// Slot returns the coordination slot for the given camera.
func (s *Synchronizer) Slot(camera int) *Slot {
	return s.slots[camera]
}

// Cameras returns the number of camera slots.
func (s *Synchronizer) Cameras() int {
	return len(s.slots)
}

// Counter returns the shared completion counter.
func (s *Synchronizer) Counter() *Counter {
	return s.counter
}

// Notifier returns the round completion notifier.
func (s *Synchronizer) Notifier() *Notifier {
	return s.notify
}

// Emitted returns the number of framesets handed to the consumer.
func (s *Synchronizer) Emitted() uint64 {
	return s.emitted.Load()
}

// Rounds returns the number of synchronization rounds run, including
// mismatch rounds that emitted nothing.
func (s *Synchronizer) Rounds() uint64 {
	return s.rounds.Load()
}

// ArmAll resets the completion accounting and triggers a fresh capture on
// every slot. Called when a session starts.
func (s *Synchronizer) ArmAll() {
	s.counter.Reset()
	for _, sl := range s.slots {
		sl.Arm()
	}
}

// DisarmAll force-clears every trigger flag and nudges the round loop so
// it notices the session has stopped. In-flight captures still drain
// through their completion handlers; their results are discarded by the
// next ArmAll.
func (s *Synchronizer) DisarmAll() {
	for _, sl := range s.slots {
		sl.Disarm()
	}
	s.notify.Post()
}

// Run executes synchronization rounds until the session terminates or a
// fault ends it. Each round blocks on the completion notification, then
// either emits a matched frameset or re-arms only the lagging slots.
func (s *Synchronizer) Run() error {
	for {
		if !s.notify.Wait(s.session.Done()) {
			return nil
		}
		if !s.session.Running() {
			// Stop wake, or a completion that drained after a stop.
			continue
		}
		if s.counter.Value() < uint32(len(s.slots)) {
			// Stale post from a previous session boundary.
			continue
		}
		s.rounds.Add(1)

		var tmax uint64
		for _, sl := range s.slots {
			if ts := sl.Timestamp(); ts > tmax {
				tmax = ts
			}
		}

		matched := true
		for _, sl := range s.slots {
			if sl.Timestamp() == tmax {
				continue
			}
			matched = false
			if sl.Armed() {
				// The counter said every slot was filled, so no slot
				// can have a capture outstanding. An armed lagging
				// slot means the protocol state is corrupt.
				return fmt.Errorf("slot %d: re-arm requested while already armed", sl.Camera())
			}
			sl.Arm()
			s.counter.Dec()
		}
		if !matched {
			continue
		}

		if err := s.emit(tmax); err != nil {
			return err
		}
	}
}

// emit hands the matched frameset to the consumer, then resets every
// slot's occupancy in one bulk counter store and re-triggers all cameras
// for the next interval.
func (s *Synchronizer) emit(ts uint64) error {
	s.fs.Timestamp = ts
	s.fs.Frames = s.fs.Frames[:0]
	for _, sl := range s.slots {
		s.fs.Frames = append(s.fs.Frames, sl.Frame())
	}

	// Consume returns only once the consumer has released the buffers.
	if err := s.consumer.Consume(&s.fs); err != nil {
		return fmt.Errorf("frameset consumer: %v", err)
	}

	s.emitted.Add(1)
	if s.Heartbeat != nil {
		s.Heartbeat()
	}

	s.counter.Reset()
	for _, sl := range s.slots {
		sl.Arm()
	}
	return nil
}
