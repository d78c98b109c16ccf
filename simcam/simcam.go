// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package simcam provides a simulated camera device for tests and for
// framesetd's simulate mode. It answers capture requests with generated
// test-pattern frames, paced to the configured frame rate by a token
// bucket so a simulated session behaves like one limited by real camera
// hardware.
package simcam

import (
	"errors"
	"fmt"
	"time"

	"github.com/juju/ratelimit"

	"github.com/framesync/frameset-sync/frames"
	"github.com/framesync/frameset-sync/queue"
	"github.com/framesync/frameset-sync/scheduler"
)

type Config struct {
	Camera int
	Spec   frames.VideoSpec
	Queues scheduler.Queues

	// Delay adds fixed completion latency on top of the frame-rate
	// pacing, for skew and jitter experiments.
	Delay time.Duration

	// Clock overrides the token bucket's clock in tests.
	Clock ratelimit.Clock
}

// Camera implements scheduler.Device. A single worker goroutine serves
// capture requests in order, taking one token per frame from a bucket
// that refills at the configured FPS.
type Camera struct {
	camera int
	spec   frames.VideoSpec
	free   *queue.SPSC[*frames.Frame]
	filled *queue.SPSC[*frames.Frame]
	delay  time.Duration
	bucket *ratelimit.Bucket

	requests chan uint64
	complete func()
	stop     chan struct{}
	finished chan struct{}

	// seq animates the test pattern. Worker goroutine only.
	seq uint64
}

func New(cfg Config) (*Camera, error) {
	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	// Two tokens of burst: enough to absorb timer jitter without
	// letting the simulated device run ahead of its frame rate.
	bucket := ratelimit.NewBucketWithRateAndClock(float64(cfg.Spec.FPS), 2, clock)
	return &Camera{
		camera:   cfg.Camera,
		spec:     cfg.Spec,
		free:     cfg.Queues.Free,
		filled:   cfg.Queues.Filled,
		delay:    cfg.Delay,
		bucket:   bucket,
		requests: make(chan uint64, cfg.Queues.Free.Capacity()),
	}, nil
}

func (c *Camera) Spec() frames.VideoSpec {
	return c.spec
}

func (c *Camera) Start(complete func()) error {
	if c.complete != nil {
		return errors.New("simcam: already started")
	}
	c.complete = complete
	c.stop = make(chan struct{})
	c.finished = make(chan struct{})
	go c.run()
	return nil
}

func (c *Camera) RequestCapture(target uint64) error {
	select {
	case c.requests <- target:
		return nil
	default:
		return fmt.Errorf("simcam: camera %d request queue full", c.camera)
	}
}

func (c *Camera) Stop() error {
	if c.complete == nil {
		return nil
	}
	close(c.stop)
	<-c.finished
	c.complete = nil
	return nil
}

func (c *Camera) run() {
	defer close(c.finished)
	for {
		select {
		case <-c.stop:
			return
		case <-c.requests:
		}

		if d := c.bucket.Take(1); d > 0 {
			if !c.sleep(d) {
				return
			}
		}
		if c.delay > 0 && !c.sleep(c.delay) {
			return
		}

		buf, ok := c.free.Dequeue()
		if !ok {
			// The scheduler never requests without a free buffer, so
			// this only happens in a torn-down session.
			continue
		}
		c.paint(buf)
		c.filled.Enqueue(buf)
		c.complete()
	}
}

func (c *Camera) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.stop:
		return false
	}
}

// paint fills the buffer with a moving diagonal luma gradient and flat
// mid-range chroma. The pattern shifts one pixel per frame so dropped or
// duplicated frames are visible downstream.
func (c *Camera) paint(f *frames.Frame) {
	c.seq++
	y := f.Y(c.spec)
	for row := 0; row < c.spec.Height; row++ {
		for col := 0; col < c.spec.Width; col++ {
			y[row*c.spec.Width+col] = byte(uint64(row+col) + c.seq)
		}
	}
	u := f.U(c.spec)
	for i := range u {
		u[i] = 128
	}
	v := f.V(c.spec)
	for i := range v {
		v[i] = 128
	}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
