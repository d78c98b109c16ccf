// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package headers implements the handshake block a camera service sends
// when it connects to the synchronizer: a YAML document terminated by a
// blank line, describing the camera and the frame geometry it will
// deliver.
package headers

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v1"

	"github.com/framesync/frameset-sync/frames"
)

// YAML field names used in the handshake block.
const (
	CameraID    = "CameraID"
	XResolution = "ResX"
	YResolution = "ResY"
	FPS         = "FPS"
	FrameSize   = "FrameSize"
	Brand       = "Brand"
	Model       = "Model"
)

// HeaderInfo contains the camera description fields sent by a camera
// service when it connects.
type HeaderInfo struct {
	cameraID  int
	resX      int
	resY      int
	fps       int
	framesize int
	brand     string
	model     string
}

// New builds the header a camera service sends for itself.
func New(cameraID int, spec frames.VideoSpec, brand, model string) *HeaderInfo {
	return &HeaderInfo{
		cameraID:  cameraID,
		resX:      spec.Width,
		resY:      spec.Height,
		fps:       spec.FPS,
		framesize: spec.FrameBytes(),
		brand:     brand,
		model:     model,
	}
}

// CameraID returns the camera's index within the session.
func (h *HeaderInfo) CameraID() int {
	return h.cameraID
}

// ResX returns the frame width in pixels.
func (h *HeaderInfo) ResX() int {
	return h.resX
}

// ResY returns the frame height in pixels.
func (h *HeaderInfo) ResY() int {
	return h.resY
}

// FPS returns the camera's frame rate.
func (h *HeaderInfo) FPS() int {
	return h.fps
}

// FrameSize returns the number of bytes in each decoded frame.
func (h *HeaderInfo) FrameSize() int {
	return h.framesize
}

// Model returns the camera model.
func (h *HeaderInfo) Model() string {
	return h.model
}

// Brand returns the camera brand.
func (h *HeaderInfo) Brand() string {
	return h.brand
}

// ValidateSpec checks the header against the session's configured frame
// geometry. Any mismatch is fatal at connection time so a misconfigured
// camera never reaches a capture session.
func (h *HeaderInfo) ValidateSpec(spec frames.VideoSpec) error {
	if h.resX != spec.Width || h.resY != spec.Height {
		return fmt.Errorf("camera %d: resolution %dx%d does not match configured %dx%d",
			h.cameraID, h.resX, h.resY, spec.Width, spec.Height)
	}
	if h.fps != spec.FPS {
		return fmt.Errorf("camera %d: fps %d does not match configured %d", h.cameraID, h.fps, spec.FPS)
	}
	if h.framesize != spec.FrameBytes() {
		return fmt.Errorf("camera %d: frame size %d does not match configured %d",
			h.cameraID, h.framesize, spec.FrameBytes())
	}
	return nil
}

// Spec returns the frame geometry the header describes.
func (h *HeaderInfo) Spec() frames.VideoSpec {
	return frames.VideoSpec{Width: h.resX, Height: h.resY, FPS: h.fps}
}

// ReadHeaderInfo parses the handshake block: YAML lines up to the first
// blank line.
func ReadHeaderInfo(reader *bufio.Reader) (*HeaderInfo, error) {
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString(byte('\n'))
		if err != nil {
			return nil, err
		}
		if strings.Trim(line, " ") == "\n" {
			break
		}
		buf.WriteString(line)
	}
	h := make(map[string]interface{})
	if err := yaml.Unmarshal(buf.Bytes(), &h); err != nil {
		return nil, err
	}

	return &HeaderInfo{
		cameraID:  toInt(h[CameraID]),
		resX:      toInt(h[XResolution]),
		resY:      toInt(h[YResolution]),
		fps:       toInt(h[FPS]),
		framesize: toInt(h[FrameSize]),
		brand:     toStr(h[Brand]),
		model:     toStr(h[Model]),
	}, nil
}

// WriteHeaderInfo sends the handshake block, including the terminating
// blank line.
func WriteHeaderInfo(w io.Writer, h *HeaderInfo) error {
	out, err := yaml.Marshal(map[string]interface{}{
		CameraID:    h.cameraID,
		XResolution: h.resX,
		YResolution: h.resY,
		FPS:         h.fps,
		FrameSize:   h.framesize,
		Brand:       h.brand,
		Model:       h.model,
	})
	if err != nil {
		return err
	}
	out = append(out, '\n')
	_, err = w.Write(out)
	return err
}

func toInt(v interface{}) int {
	out, ok := v.(int)
	if !ok {
		return 0
	}
	return out
}

func toStr(v interface{}) string {
	out, ok := v.(string)
	if !ok {
		return ""
	}
	return out
}
