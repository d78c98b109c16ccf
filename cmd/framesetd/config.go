// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"errors"
	"fmt"
	"io/ioutil"

	yaml "gopkg.in/yaml.v2"

	"github.com/framesync/frameset-sync/frames"
)

type Config struct {
	Cameras      int
	Width        int
	Height       int
	FPS          int
	Buffers      int
	ControlPort  int
	CameraSocket string
	OutputSocket string
	PowerPin     string
	CPUBase      int
	Realtime     bool
}

func (conf *Config) Validate() error {
	if conf.Cameras < 1 {
		return errors.New("cameras should be at least 1")
	}
	if err := conf.Spec().Validate(); err != nil {
		return err
	}
	if conf.Buffers < 3 {
		return errors.New("buffers should be at least 3")
	}
	if conf.ControlPort < 1 || conf.ControlPort > 65535 {
		return fmt.Errorf("invalid control-port: %d", conf.ControlPort)
	}
	if conf.CameraSocket == "" {
		return errors.New("camera-socket is required")
	}
	return nil
}

// Spec returns the frame geometry every camera in the session must
// produce.
func (conf *Config) Spec() frames.VideoSpec {
	return frames.VideoSpec{
		Width:  conf.Width,
		Height: conf.Height,
		FPS:    conf.FPS,
	}
}

type rawConfig struct {
	Cameras      int    `yaml:"cameras"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	Buffers      int    `yaml:"buffers"`
	ControlPort  int    `yaml:"control-port"`
	CameraSocket string `yaml:"camera-socket"`
	OutputSocket string `yaml:"output-socket"`
	PowerPin     string `yaml:"power-pin"`
	CPUBase      int    `yaml:"cpu-base"`
	Realtime     bool   `yaml:"realtime"`
}

var defaultConfig = rawConfig{
	Cameras:      2,
	Width:        640,
	Height:       480,
	FPS:          30,
	Buffers:      8,
	ControlPort:  8275,
	CameraSocket: "/var/run/frameset-cameras",
	OutputSocket: "",
	PowerPin:     "",
	CPUBase:      -1,
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	raw := defaultConfig
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}

	conf := &Config{
		Cameras:      raw.Cameras,
		Width:        raw.Width,
		Height:       raw.Height,
		FPS:          raw.FPS,
		Buffers:      raw.Buffers,
		ControlPort:  raw.ControlPort,
		CameraSocket: raw.CameraSocket,
		OutputSocket: raw.OutputSocket,
		PowerPin:     raw.PowerPin,
		CPUBase:      raw.CPUBase,
		Realtime:     raw.Realtime,
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
