// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package syncer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIncDecReset(t *testing.T) {
	c := new(Counter)
	assert.Equal(t, uint32(0), c.Value())

	assert.Equal(t, uint32(1), c.Inc())
	assert.Equal(t, uint32(2), c.Inc())
	assert.Equal(t, uint32(3), c.Inc())

	c.Dec()
	assert.Equal(t, uint32(2), c.Value())

	c.Reset()
	assert.Equal(t, uint32(0), c.Value())
}

// Concurrent increments must yield exactly one observer of each value, so
// exactly one camera posts the notification per round.
func TestCounterExactlyOneReachesTarget(t *testing.T) {
	const cams = 8
	c := new(Counter)

	var wg sync.WaitGroup
	reached := make(chan int, cams)
	for i := 0; i < cams; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if c.Inc() == cams {
				reached <- i
			}
		}(i)
	}
	wg.Wait()
	close(reached)

	count := 0
	for range reached {
		count++
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, uint32(cams), c.Value())
}

func TestNotifierPostCoalesces(t *testing.T) {
	n := NewNotifier()
	done := make(chan struct{})

	n.Post()
	n.Post()
	n.Post()

	assert.True(t, n.Wait(done))

	// Only one unit should have been pending.
	select {
	case <-n.c:
		t.Fatal("extra notification pending")
	default:
	}
}

func TestNotifierWaitReturnsFalseOnDone(t *testing.T) {
	n := NewNotifier()
	done := make(chan struct{})

	result := make(chan bool)
	go func() {
		result <- n.Wait(done)
	}()

	close(done)
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("wait did not wake on done")
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	assert.False(t, s.Running())
	assert.Equal(t, uint64(0), s.StartNS())

	s.Start(12345)
	assert.True(t, s.Running())
	assert.Equal(t, uint64(12345), s.StartNS())

	s.Stop()
	assert.False(t, s.Running())

	s.Start(678)
	require.True(t, s.Running(), "a stopped session must be restartable")

	s.Terminate()
	assert.False(t, s.Running())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Terminate")
	}

	// Repeated Terminate must not panic.
	s.Terminate()
}
