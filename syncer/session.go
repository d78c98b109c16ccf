// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package syncer

import (
	"sync"
	"sync/atomic"
)

// Session carries the cross-thread capture session state: the absolute
// start timestamp handed out by the control channel and the process
// termination signal. A zero start timestamp means no session is running
// and no captures are armed.
type Session struct {
	start     atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession() *Session {
	return &Session{
		done: make(chan struct{}),
	}
}

// Start begins (or restarts) a capture session at the given absolute
// timestamp in nanoseconds.
func (s *Session) Start(ts uint64) {
	s.start.Store(ts)
}

// Stop ends the current capture session. In-flight capture requests are
// allowed to drain; no new captures are armed.
func (s *Session) Stop() {
	s.start.Store(0)
}

// StartNS returns the session start timestamp, or zero if no session is
// running.
func (s *Session) StartNS() uint64 {
	return s.start.Load()
}

// Running reports whether a capture session is active.
func (s *Session) Running() bool {
	return s.start.Load() != 0
}

// Terminate requests process shutdown. It stops the session and wakes
// everything blocked on Done. Safe to call more than once.
func (s *Session) Terminate() {
	s.Stop()
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Done is closed when the process is terminating.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
