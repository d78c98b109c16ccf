// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package frames

import "fmt"

// Arena owns every slot frame buffer for a session. The backing store is
// one allocation made at startup and reused for the process lifetime;
// frames are never individually allocated or freed per capture. Buffers
// are addressed by camera id and a rotating offset maintained by each
// camera's scheduler.
type Arena struct {
	spec   VideoSpec
	cams   int
	depth  int
	buf    []byte
	frames []Frame
}

// NewArena allocates depth frame buffers for each of cams cameras.
func NewArena(spec VideoSpec, cams, depth int) (*Arena, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if cams < 1 {
		return nil, fmt.Errorf("arena needs at least one camera, got %d", cams)
	}
	if depth < 3 {
		// The backpressure check refuses new captures at depth-2
		// outstanding buffers, so anything under 3 can never capture.
		return nil, fmt.Errorf("arena depth %d is too small, need at least 3", depth)
	}

	frameBytes := spec.FrameBytes()
	a := &Arena{
		spec:   spec,
		cams:   cams,
		depth:  depth,
		buf:    make([]byte, frameBytes*cams*depth),
		frames: make([]Frame, cams*depth),
	}
	for cam := 0; cam < cams; cam++ {
		for off := 0; off < depth; off++ {
			i := cam*depth + off
			start := i * frameBytes
			a.frames[i] = Frame{
				Camera: cam,
				Pix:    a.buf[start : start+frameBytes : start+frameBytes],
			}
		}
	}
	return a, nil
}

// Frame returns the buffer for the given camera at the given rotating
// offset. Indices outside the arena are a programming error and panic.
func (a *Arena) Frame(camera, offset int) *Frame {
	if camera < 0 || camera >= a.cams {
		panic(fmt.Sprintf("arena: camera %d out of range [0,%d)", camera, a.cams))
	}
	if offset < 0 || offset >= a.depth {
		panic(fmt.Sprintf("arena: offset %d out of range [0,%d)", offset, a.depth))
	}
	return &a.frames[camera*a.depth+offset]
}

// Spec returns the frame geometry the arena was sized for.
func (a *Arena) Spec() VideoSpec {
	return a.spec
}

// Cameras returns the number of camera slots.
func (a *Arena) Cameras() int {
	return a.cams
}

// Depth returns the number of buffers per camera.
func (a *Arena) Depth() int {
	return a.depth
}
