// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package frames holds the shared frame geometry, the per-frame buffer
// type, and the session arena the capture schedulers copy into.
package frames

import (
	"errors"
	"fmt"
	"time"
)

// VideoSpec describes the decoded frame geometry every camera in a
// session must produce. Frames are YUV420: a full-resolution luma plane
// followed by two half-resolution chroma planes.
type VideoSpec struct {
	Width  int
	Height int
	FPS    int
}

func (s VideoSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return errors.New("frame dimensions must be positive")
	}
	if s.Width%2 != 0 || s.Height%2 != 0 {
		return errors.New("frame dimensions must be even for YUV420")
	}
	if s.FPS <= 0 {
		return errors.New("fps must be positive")
	}
	return nil
}

// LumaBytes returns the size of the Y plane.
func (s VideoSpec) LumaBytes() int {
	return s.Width * s.Height
}

// ChromaBytes returns the size of one of the two half-resolution chroma
// planes.
func (s VideoSpec) ChromaBytes() int {
	return s.LumaBytes() / 4
}

// FrameBytes returns the size of one decoded frame.
func (s VideoSpec) FrameBytes() int {
	return s.LumaBytes() + 2*s.ChromaBytes()
}

// FrameInterval returns the nanoseconds between capture instants.
func (s VideoSpec) FrameInterval() uint64 {
	return uint64(time.Second) / uint64(s.FPS)
}

// Frame is one decoded camera frame. Timestamp is nanoseconds since the
// session epoch shared by all camera hosts; it is zero until the frame has
// been captured.
type Frame struct {
	Camera    int
	Timestamp uint64
	Pix       []byte
}

// Y returns the luma plane.
func (f *Frame) Y(spec VideoSpec) []byte {
	return f.Pix[:spec.LumaBytes()]
}

// U returns the first chroma plane.
func (f *Frame) U(spec VideoSpec) []byte {
	return f.Pix[spec.LumaBytes() : spec.LumaBytes()+spec.ChromaBytes()]
}

// V returns the second chroma plane.
func (f *Frame) V(spec VideoSpec) []byte {
	return f.Pix[spec.LumaBytes()+spec.ChromaBytes():]
}

// NewFrame allocates a standalone frame outside any arena. Device
// implementations use these for their own buffer pools.
func NewFrame(camera int, spec VideoSpec) *Frame {
	return &Frame{
		Camera: camera,
		Pix:    make([]byte, spec.FrameBytes()),
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame(cam=%d ts=%d)", f.Camera, f.Timestamp)
}
