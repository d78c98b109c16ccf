// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllDefaults(t *testing.T) {
	conf, err := ParseConfig([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, Config{
		CameraID:     0,
		CameraSocket: "/var/run/frameset-cameras",
		Width:        640,
		Height:       480,
		FPS:          30,
		Brand:        "Framesync",
		Model:        "SimCam",
	}, *conf)
}

func TestAllSet(t *testing.T) {
	// All config set at non-default values.
	config := []byte(`
camera-id: 3
camera-socket: "/some/sock"
width: 1280
height: 720
fps: 60
brand: "Acme"
model: "CamPro"
`)

	conf, err := ParseConfig(config)
	require.NoError(t, err)

	assert.Equal(t, Config{
		CameraID:     3,
		CameraSocket: "/some/sock",
		Width:        1280,
		Height:       720,
		FPS:          60,
		Brand:        "Acme",
		Model:        "CamPro",
	}, *conf)
}

func TestInvalid(t *testing.T) {
	for _, tc := range []struct {
		what   string
		config string
	}{
		{"negative id", "camera-id: -1"},
		{"no socket", `camera-socket: ""`},
		{"odd height", "height: 481"},
	} {
		_, err := ParseConfig([]byte(tc.config))
		assert.Error(t, err, tc.what)
	}
}
