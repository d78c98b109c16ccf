// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package scheduler drives one camera's capture loop: it arms a timer to
// the next absolute capture instant on the session's shared time grid,
// issues a capture request when the slot is triggered, and on completion
// copies the decoded frame into the session arena and advances the
// shared completion accounting.
package scheduler

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/framesync/frameset-sync/frames"
	"github.com/framesync/frameset-sync/loglimiter"
	"github.com/framesync/frameset-sync/queue"
	"github.com/framesync/frameset-sync/syncer"
)

// ErrCapacity is the capacity fault: outstanding buffers exceeded the
// configured depth minus two, meaning the configured frame rate or
// exposure exceeds what the device can sustain. Fatal; requires
// reconfiguration.
var ErrCapacity = errors.New("capture buffers exhausted: frame rate exceeds device throughput")

// How long to sleep between checks for a session start timestamp.
const idleWait = 10 * time.Millisecond

// Config wires a Scheduler to its camera device and to the
// synchronizer's shared state.
type Config struct {
	Camera  int
	Device  Device
	Queues  Queues
	Arena   *frames.Arena
	Session *syncer.Session
	Slot    *syncer.Slot
	Counter *syncer.Counter
	Notify  *syncer.Notifier
	Cameras int

	// CPU pins the scheduler's OS thread to the given core; -1 disables
	// pinning. Realtime additionally raises the thread's scheduling
	// priority (best effort, needs privileges).
	CPU      int
	Realtime bool

	// NowFunc overrides the clock in tests.
	NowFunc func() uint64
}

type Scheduler struct {
	camera  int
	dev     Device
	free    *queue.SPSC[*frames.Frame]
	filled  *queue.SPSC[*frames.Frame]
	arena   *frames.Arena
	session *syncer.Session
	slot    *syncer.Slot
	counter *syncer.Counter
	notify  *syncer.Notifier
	cameras int

	interval uint64
	depth    int
	cpu      int
	realtime bool
	now      func() uint64

	// Completion-side state. offset rotates through the camera's arena
	// buffers and is only touched on the device's delivery goroutine.
	offset      int
	pending     atomic.Uint64
	outstanding atomic.Int32
	captured    atomic.Uint64

	limiter *loglimiter.LogLimiter
}

// New builds a scheduler and verifies the device produces exactly the
// frame geometry the session arena was sized for.
func New(cfg Config) (*Scheduler, error) {
	spec := cfg.Arena.Spec()
	if dev := cfg.Device.Spec(); dev != spec {
		return nil, fmt.Errorf("camera %d: device frame geometry %dx%d@%d does not match configured %dx%d@%d",
			cfg.Camera, dev.Width, dev.Height, dev.FPS, spec.Width, spec.Height, spec.FPS)
	}
	now := cfg.NowFunc
	if now == nil {
		now = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	return &Scheduler{
		camera:   cfg.Camera,
		dev:      cfg.Device,
		free:     cfg.Queues.Free,
		filled:   cfg.Queues.Filled,
		arena:    cfg.Arena,
		session:  cfg.Session,
		slot:     cfg.Slot,
		counter:  cfg.Counter,
		notify:   cfg.Notify,
		cameras:  cfg.Cameras,
		interval: spec.FrameInterval(),
		depth:    cfg.Queues.Free.Capacity(),
		cpu:      cfg.CPU,
		realtime: cfg.Realtime,
		now:      now,
		limiter:  loglimiter.New(30 * time.Second),
	}, nil
}

// Captured returns the number of frames this camera has completed.
func (s *Scheduler) Captured() uint64 {
	return s.captured.Load()
}

// Run executes the capture loop until the session terminates or a fatal
// fault occurs. It occupies its own OS thread for the duration so timer
// wakeups are not delayed by other goroutines sharing the thread.
func (s *Scheduler) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if s.cpu >= 0 {
		if err := pinThread(s.cpu, s.realtime); err != nil {
			s.limiter.Printf("camera %d: realtime scheduling unavailable: %v", s.camera, err)
		}
	}

	if err := s.dev.Start(s.complete); err != nil {
		return fmt.Errorf("camera %d: device start: %v", s.camera, err)
	}
	defer s.dev.Stop()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var (
		sessionStart uint64
		frameCount   uint64
	)
	for {
		start := s.session.StartNS()
		if start == 0 {
			sessionStart = 0
			select {
			case <-s.session.Done():
				return nil
			case <-time.After(idleWait):
			}
			continue
		}
		if start != sessionStart {
			// New or restarted session. The first capture lands one
			// interval after the shared start timestamp.
			sessionStart = start
			frameCount = 0
		}

		frameCount++
		target := start + frameCount*s.interval
		now := s.now()
		if target <= now {
			// The start timestamp arrived late or we fell behind. Skip
			// whole intervals so the target stays on the shared grid
			// but in the future.
			missed := (now-target)/s.interval + 1
			frameCount += missed
			target += missed * s.interval
		}

		timer.Reset(time.Duration(target - now))
		select {
		case <-s.session.Done():
			return nil
		case <-timer.C:
		}

		if err := s.tick(target); err != nil {
			return err
		}
	}
}

// tick runs at one capture instant. It issues a request only when the
// slot is triggered and no request is outstanding; a slot left armed
// because no buffer was free is retried at the next instant.
func (s *Scheduler) tick(target uint64) error {
	if !s.slot.Armed() || s.outstanding.Load() != 0 {
		return nil
	}

	// Leave two buffers of slack: one for the copy in flight and one for
	// the completion accounting running behind by a single frame.
	if s.filled.Len() > s.depth-2 {
		return fmt.Errorf("camera %d: %w", s.camera, ErrCapacity)
	}

	if s.free.Len() == 0 {
		// Device has no buffer ready. Keep the trigger flag set and try
		// again next interval rather than failing the round.
		s.limiter.Printf("camera %d: no capture buffer ready, retrying", s.camera)
		return nil
	}

	s.pending.Store(target)
	s.outstanding.Store(1)
	if err := s.dev.RequestCapture(target); err != nil {
		// Submission fault: session ending.
		return fmt.Errorf("camera %d: capture request: %v", s.camera, err)
	}
	return nil
}

// complete handles one finished capture. It runs on the device's
// delivery goroutine and performs only the work that must happen there:
// copy the raw buffer into the arena, stamp the requested timestamp,
// clear the trigger, advance the counter and possibly post the round
// notification.
func (s *Scheduler) complete() {
	raw, ok := s.filled.Dequeue()
	if !ok {
		return
	}

	dst := s.arena.Frame(s.camera, s.offset)
	s.offset = (s.offset + 1) % s.arena.Depth()
	copy(dst.Pix, raw.Pix)
	s.free.Enqueue(raw)

	target := s.pending.Load()
	s.outstanding.Store(0)
	s.captured.Add(1)

	s.slot.Fill(dst, target)
	if s.counter.Inc() == uint32(s.cameras) {
		s.notify.Post()
	}
}
