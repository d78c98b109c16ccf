// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"errors"
	"io/ioutil"

	yaml "gopkg.in/yaml.v2"

	"github.com/framesync/frameset-sync/frames"
)

type Config struct {
	CameraID     int    `yaml:"camera-id"`
	CameraSocket string `yaml:"camera-socket"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	Brand        string `yaml:"brand"`
	Model        string `yaml:"model"`
}

func (conf *Config) Validate() error {
	if conf.CameraID < 0 {
		return errors.New("camera-id should not be negative")
	}
	if conf.CameraSocket == "" {
		return errors.New("camera-socket is required")
	}
	return conf.Spec().Validate()
}

// Spec returns the frame geometry this camera delivers.
func (conf *Config) Spec() frames.VideoSpec {
	return frames.VideoSpec{
		Width:  conf.Width,
		Height: conf.Height,
		FPS:    conf.FPS,
	}
}

var defaultConfig = Config{
	CameraID:     0,
	CameraSocket: "/var/run/frameset-cameras",
	Width:        640,
	Height:       480,
	FPS:          30,
	Brand:        "Framesync",
	Model:        "SimCam",
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
