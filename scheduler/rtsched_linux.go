// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

//go:build linux
// +build linux

package scheduler

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinThread binds the calling OS thread to one CPU core so capture timer
// wakeups are not delayed by migrations, and optionally raises its
// priority. Must be called from a goroutine holding runtime.LockOSThread.
func pinThread(cpu int, realtime bool) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("set cpu affinity: %v", err)
	}

	if realtime {
		// Best effort: raising priority needs CAP_SYS_NICE.
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
			return fmt.Errorf("raise priority: %v", err)
		}
	}
	return nil
}
