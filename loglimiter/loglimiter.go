// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package loglimiter suppresses repeats of the same log message within a
// time interval. Used for per-interval retry messages and control
// channel protocol faults, which would otherwise flood the log at frame
// rate.
package loglimiter

import (
	"fmt"
	"log"
	"time"
)

// New returns a LogLimiter with the given minimum interval between
// repeats of the same message.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
	}
}

type LogLimiter struct {
	interval      time.Duration
	nowFunc       func() time.Time
	previousEntry string
	previousTime  time.Time
	suppressed    int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	now := limiter.nowFunc()
	if s == limiter.previousEntry && now.Sub(limiter.previousTime) < limiter.interval {
		limiter.suppressed++
		return
	}

	if limiter.suppressed > 0 && s == limiter.previousEntry {
		log.Printf("%s (repeated %d times)", s, limiter.suppressed+1)
	} else {
		log.Print(s)
	}
	limiter.previousTime = now
	limiter.previousEntry = s
	limiter.suppressed = 0
}
