// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framesync/frameset-sync/frames"
	"github.com/framesync/frameset-sync/syncer"
)

// 250 fps keeps the capture interval at 4ms so tests run quickly but
// timer wakeups still land reliably on the right side of each instant.
var testSpec = frames.VideoSpec{Width: 16, Height: 16, FPS: 250}

// fakeDevice implements Device over the rig's queue pair. In auto mode
// each request is served inline: a free buffer is filled with a marker
// byte, moved to the filled queue and completed. In manual mode requests
// only land on the requests channel and the test serves them itself.
type fakeDevice struct {
	spec     frames.VideoSpec
	queues   Queues
	auto     bool
	complete func()
	requests chan uint64

	startErr error
	reqErr   error
}

func (d *fakeDevice) Spec() frames.VideoSpec {
	return d.spec
}

func (d *fakeDevice) Start(complete func()) error {
	if d.startErr != nil {
		return d.startErr
	}
	d.complete = complete
	return nil
}

func (d *fakeDevice) RequestCapture(target uint64) error {
	if d.reqErr != nil {
		return d.reqErr
	}
	d.requests <- target
	if d.auto {
		d.serve()
	}
	return nil
}

func (d *fakeDevice) Stop() error {
	return nil
}

func (d *fakeDevice) serve() {
	buf, ok := d.queues.Free.Dequeue()
	if !ok {
		return
	}
	for i := range buf.Pix {
		buf.Pix[i] = 0xa5
	}
	d.queues.Filled.Enqueue(buf)
	d.complete()
}

type rig struct {
	session *syncer.Session
	slot    *syncer.Slot
	counter *syncer.Counter
	notify  *syncer.Notifier
	arena   *frames.Arena
	queues  Queues
	dev     *fakeDevice
	sched   *Scheduler
	now     func() uint64
	done    chan error
}

func newRig(t *testing.T, depth int) *rig {
	t.Helper()
	arena, err := frames.NewArena(testSpec, 1, depth)
	require.NoError(t, err)
	queues := NewQueues(0, depth, testSpec)
	r := &rig{
		session: syncer.NewSession(),
		slot:    syncer.NewSlot(0),
		counter: new(syncer.Counter),
		notify:  syncer.NewNotifier(),
		arena:   arena,
		queues:  queues,
		dev: &fakeDevice{
			spec:     testSpec,
			queues:   queues,
			auto:     true,
			requests: make(chan uint64, 16),
		},
	}
	t.Cleanup(r.session.Terminate)
	return r
}

// freeze pins the scheduler's clock so capture targets are exact grid
// points instead of depending on test scheduling latency.
func (r *rig) freeze(now uint64) {
	r.now = func() uint64 { return now }
}

func (r *rig) start(t *testing.T) {
	t.Helper()
	sched, err := New(Config{
		Camera:  0,
		Device:  r.dev,
		Queues:  r.queues,
		Arena:   r.arena,
		Session: r.session,
		Slot:    r.slot,
		Counter: r.counter,
		Notify:  r.notify,
		Cameras: 1,
		CPU:     -1,
		NowFunc: r.now,
	})
	require.NoError(t, err)
	r.sched = sched
	r.done = make(chan error, 1)
	go func() { r.done <- sched.Run() }()
}

func (r *rig) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit")
		return nil
	}
}

func (r *rig) waitFill(t *testing.T) *frames.Frame {
	t.Helper()
	require.Eventually(t, func() bool {
		return !r.slot.Armed() && r.slot.Frame() != nil
	}, 2*time.Second, time.Millisecond)
	return r.slot.Frame()
}

func TestFirstCaptureOneIntervalAfterStart(t *testing.T) {
	r := newRig(t, 4)
	start := uint64(time.Now().UnixNano())
	r.freeze(start)
	r.start(t)

	r.slot.Arm()
	r.session.Start(start)

	f := r.waitFill(t)
	assert.Equal(t, start+testSpec.FrameInterval(), f.Timestamp)
	assert.Equal(t, 0xa5, int(f.Pix[0]))
	assert.Same(t, r.arena.Frame(0, 0), f)
	assert.Equal(t, uint32(1), r.counter.Value())

	// The completion posted the round notification.
	timeout := make(chan struct{})
	time.AfterFunc(time.Second, func() { close(timeout) })
	assert.True(t, r.notify.Wait(timeout))

	// The raw buffer went back to the device pool.
	assert.Equal(t, 4, r.queues.Free.Len())

	r.session.Terminate()
	assert.NoError(t, r.wait(t))
}

func TestCapturesStayOnSessionGrid(t *testing.T) {
	r := newRig(t, 4)
	r.start(t)

	start := uint64(time.Now().UnixNano())
	r.slot.Arm()
	r.session.Start(start)

	first := r.waitFill(t).Timestamp
	interval := testSpec.FrameInterval()
	assert.Zero(t, (first-start)%interval)
	assert.GreaterOrEqual(t, first, start+interval)

	// Arena buffers rotate across captures.
	r.counter.Reset()
	r.slot.Arm()
	require.Eventually(t, func() bool {
		return r.slot.Timestamp() > first
	}, 2*time.Second, time.Millisecond)

	second := r.slot.Timestamp()
	assert.Zero(t, (second-start)%interval)
	assert.Same(t, r.arena.Frame(0, 1), r.slot.Frame())
	assert.Equal(t, uint64(2), r.sched.Captured())
}

func TestLateStartSkipsWholeIntervals(t *testing.T) {
	r := newRig(t, 4)
	interval := testSpec.FrameInterval()
	start := uint64(time.Now().UnixNano())
	// The start timestamp arrives five and a half intervals late, as
	// after a controller hiccup. The next capture must land on the
	// session grid, not at start+interval.
	r.freeze(start + 5*interval + interval/2)
	r.start(t)

	r.slot.Arm()
	r.session.Start(start)

	f := r.waitFill(t)
	assert.Equal(t, start+6*interval, f.Timestamp)
}

func TestCapacityFault(t *testing.T) {
	r := newRig(t, 4)
	// Three buffers stuck on the filled queue exceeds the depth-2
	// slack, meaning completions cannot keep up with the frame rate.
	for i := 0; i < 3; i++ {
		buf, ok := r.queues.Free.Dequeue()
		require.True(t, ok)
		r.queues.Filled.Enqueue(buf)
	}
	start := uint64(time.Now().UnixNano())
	r.freeze(start)
	r.start(t)

	r.slot.Arm()
	r.session.Start(start)

	err := r.wait(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacity))
	assert.Empty(t, r.dev.requests)
}

func TestNoFreeBufferRetriesNextInterval(t *testing.T) {
	r := newRig(t, 4)
	r.dev.auto = false
	// Device temporarily out of buffers: pool drained, nothing filled.
	var held []*frames.Frame
	for {
		buf, ok := r.queues.Free.Dequeue()
		if !ok {
			break
		}
		held = append(held, buf)
	}
	start := uint64(time.Now().UnixNano())
	r.freeze(start)
	r.start(t)

	r.slot.Arm()
	r.session.Start(start)

	// Several intervals pass with no buffer: no request is issued and
	// the trigger stays set.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.dev.requests)
	assert.True(t, r.slot.Armed())

	// A buffer comes back; the retried capture lands on a later grid
	// point.
	r.queues.Free.Enqueue(held[0])
	select {
	case target := <-r.dev.requests:
		assert.Zero(t, (target-start)%testSpec.FrameInterval())
		assert.Greater(t, target, start+testSpec.FrameInterval())
	case <-time.After(2 * time.Second):
		t.Fatal("no capture request after buffer returned")
	}
	r.dev.serve()
	assert.NotNil(t, r.waitFill(t))
}

func TestSubmissionFaultEndsSession(t *testing.T) {
	r := newRig(t, 4)
	r.dev.reqErr = errors.New("device detached")
	start := uint64(time.Now().UnixNano())
	r.freeze(start)
	r.start(t)

	r.slot.Arm()
	r.session.Start(start)

	err := r.wait(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture request")
}

func TestDeviceStartError(t *testing.T) {
	r := newRig(t, 4)
	r.dev.startErr = errors.New("no such device")
	r.start(t)

	err := r.wait(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device start")
}

func TestIdleUntilSessionStarts(t *testing.T) {
	r := newRig(t, 4)
	r.start(t)
	r.slot.Arm()

	// No start timestamp, no captures.
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, r.dev.requests)
	assert.Zero(t, r.sched.Captured())

	r.session.Terminate()
	assert.NoError(t, r.wait(t))
}

func TestGeometryMismatchRejected(t *testing.T) {
	arena, err := frames.NewArena(testSpec, 1, 4)
	require.NoError(t, err)
	dev := &fakeDevice{
		spec: frames.VideoSpec{Width: 32, Height: 32, FPS: 250},
	}
	_, err = New(Config{
		Camera: 0,
		Device: dev,
		Queues: NewQueues(0, 4, testSpec),
		Arena:  arena,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geometry")
}
