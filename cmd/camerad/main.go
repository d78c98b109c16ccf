// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"

	"github.com/framesync/frameset-sync/frames"
	"github.com/framesync/frameset-sync/headers"
)

var version = "<not set>"

// A zero capture timestamp can only come from a confused synchronizer;
// drop the connection and resync.
var errNilRequest = errors.New("zero capture request timestamp")

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/camerad.yaml"
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	logConfig(conf)

	for {
		err := runCamera(conf)
		log.Printf("synchronizer connection ended with: %v", err)
		time.Sleep(5 * time.Second)
		log.Print("reconnecting")
	}
}

// runCamera serves one synchronizer connection: the header handshake,
// then one generated frame per capture request.
func runCamera(conf *Config) error {
	log.Print("dialing synchronizer camera socket")
	conn, err := net.DialUnix("unixpacket", nil, &net.UnixAddr{
		Net:  "unixpacket",
		Name: conf.CameraSocket,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	spec := conf.Spec()
	conn.SetWriteBuffer(spec.FrameBytes() * 4)

	log.Print("sending camera header")
	header := headers.New(conf.CameraID, spec, conf.Brand, conf.Model)
	if err := headers.WriteHeaderInfo(conn, header); err != nil {
		return err
	}

	log.Print("serving capture requests")
	framesPerSdNotify := 5 * conf.FPS
	frame := make([]byte, spec.FrameBytes())
	var seq uint64
	notifyCount := 0
	for {
		var req [8]byte
		if _, err := io.ReadFull(conn, req[:]); err != nil {
			return err
		}
		if binary.LittleEndian.Uint64(req[:]) == 0 {
			return errNilRequest
		}

		seq++
		paintFrame(frame, spec, seq)
		if _, err := conn.Write(frame); err != nil {
			return err
		}

		if notifyCount++; notifyCount >= framesPerSdNotify {
			daemon.SdNotify(false, "WATCHDOG=1")
			notifyCount = 0
		}
	}
}

// paintFrame generates the test pattern standing in for camera hardware:
// a diagonal luma gradient that shifts one pixel per frame, flat
// mid-range chroma.
func paintFrame(frame []byte, spec frames.VideoSpec, seq uint64) {
	y := frame[:spec.LumaBytes()]
	for row := 0; row < spec.Height; row++ {
		for col := 0; col < spec.Width; col++ {
			y[row*spec.Width+col] = byte(uint64(row+col) + seq)
		}
	}
	chroma := frame[spec.LumaBytes():]
	for i := range chroma {
		chroma[i] = 128
	}
}

func logConfig(conf *Config) {
	log.Printf("camera id: %d", conf.CameraID)
	log.Printf("camera socket: %s", conf.CameraSocket)
	log.Printf("frame geometry: %dx%d @ %dfps", conf.Width, conf.Height, conf.FPS)
	log.Printf("camera: %s %s", conf.Brand, conf.Model)
}
