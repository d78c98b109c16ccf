// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framesync/frameset-sync/frames"
)

func TestAllDefaults(t *testing.T) {
	conf, err := ParseConfig([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, Config{
		Cameras:      2,
		Width:        640,
		Height:       480,
		FPS:          30,
		Buffers:      8,
		ControlPort:  8275,
		CameraSocket: "/var/run/frameset-cameras",
		CPUBase:      -1,
	}, *conf)
	assert.Equal(t, frames.VideoSpec{Width: 640, Height: 480, FPS: 30}, conf.Spec())
}

func TestAllSet(t *testing.T) {
	// All config set at non-default values.
	config := []byte(`
cameras: 4
width: 1280
height: 720
fps: 60
buffers: 12
control-port: 9000
camera-socket: "/some/sock"
output-socket: "/other/sock"
power-pin: "GPIO23"
cpu-base: 2
realtime: true
`)

	conf, err := ParseConfig(config)
	require.NoError(t, err)

	assert.Equal(t, Config{
		Cameras:      4,
		Width:        1280,
		Height:       720,
		FPS:          60,
		Buffers:      12,
		ControlPort:  9000,
		CameraSocket: "/some/sock",
		OutputSocket: "/other/sock",
		PowerPin:     "GPIO23",
		CPUBase:      2,
		Realtime:     true,
	}, *conf)
}

func TestInvalid(t *testing.T) {
	for _, tc := range []struct {
		what   string
		config string
	}{
		{"no cameras", "cameras: 0"},
		{"odd width", "width: 641"},
		{"zero fps", "fps: 0"},
		{"too few buffers", "buffers: 2"},
		{"bad port", "control-port: 0"},
		{"no camera socket", `camera-socket: ""`},
	} {
		_, err := ParseConfig([]byte(tc.config))
		assert.Error(t, err, tc.what)
	}
}
