// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/framesync/frameset-sync/frames"
	"github.com/framesync/frameset-sync/headers"
	"github.com/framesync/frameset-sync/scheduler"
	"github.com/framesync/frameset-sync/simcam"
)

type cameraPort struct {
	dev    scheduler.Device
	queues scheduler.Queues
}

// openCameras provides one device per configured camera: simulated
// pattern generators with --simulate, otherwise one connected camera
// service each.
func openCameras(args Args, conf *Config) ([]cameraPort, func(), error) {
	if args.Simulate {
		return openSimulated(conf)
	}
	return acceptCameras(conf)
}

func openSimulated(conf *Config) ([]cameraPort, func(), error) {
	log.Printf("simulating %d cameras", conf.Cameras)
	ports := make([]cameraPort, conf.Cameras)
	for cam := range ports {
		queues := scheduler.NewQueues(cam, conf.Buffers, conf.Spec())
		dev, err := simcam.New(simcam.Config{
			Camera: cam,
			Spec:   conf.Spec(),
			Queues: queues,
		})
		if err != nil {
			return nil, nil, err
		}
		ports[cam] = cameraPort{dev: dev, queues: queues}
	}
	return ports, func() {}, nil
}

// acceptCameras waits until every configured camera service has
// connected and passed its header handshake. Connections with a bad
// header, an out-of-range camera id or a duplicate id are rejected
// without aborting startup.
func acceptCameras(conf *Config) ([]cameraPort, func(), error) {
	os.Remove(conf.CameraSocket)
	listener, err := net.Listen("unixpacket", conf.CameraSocket)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("waiting for %d camera connections on %s", conf.Cameras, conf.CameraSocket)
	ports := make([]cameraPort, conf.Cameras)
	cams := make([]*socketCamera, conf.Cameras)
	connected := 0
	for connected < conf.Cameras {
		conn, err := listener.Accept()
		if err != nil {
			listener.Close()
			return nil, nil, err
		}
		cam, err := newSocketCamera(conn, conf)
		if err != nil {
			log.Printf("rejecting camera connection: %v", err)
			conn.Close()
			continue
		}
		if cams[cam.id] != nil {
			log.Printf("rejecting duplicate connection for camera %d", cam.id)
			conn.Close()
			continue
		}
		cams[cam.id] = cam
		ports[cam.id] = cameraPort{dev: cam, queues: cam.queues}
		connected++
		log.Printf("camera %d connected (%s %s)", cam.id, cam.brand, cam.model)
	}

	// All cameras present; no further connections until restart.
	listener.Close()

	closeAll := func() {
		for _, cam := range cams {
			if cam != nil {
				cam.Stop()
			}
		}
	}
	return ports, closeAll, nil
}

// socketCamera implements scheduler.Device over a camera service
// connection. Capture requests go out as 8 byte timestamps; each reply
// is one frame-size packet, read into a pool buffer by a dedicated
// reader goroutine.
type socketCamera struct {
	id           int
	brand, model string
	conn         net.Conn
	reader       *bufio.Reader
	queues       scheduler.Queues
	cfg          *Config

	complete func()
	finished chan struct{}
}

func newSocketCamera(conn net.Conn, conf *Config) (*socketCamera, error) {
	spec := conf.Spec()
	reader := bufio.NewReaderSize(conn, spec.FrameBytes())

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	h, err := headers.ReadHeaderInfo(reader)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("header handshake: %v", err)
	}
	if h.CameraID() < 0 || h.CameraID() >= conf.Cameras {
		return nil, fmt.Errorf("camera id %d out of range [0,%d)", h.CameraID(), conf.Cameras)
	}
	if err := h.ValidateSpec(spec); err != nil {
		return nil, err
	}

	return &socketCamera{
		id:     h.CameraID(),
		brand:  h.Brand(),
		model:  h.Model(),
		conn:   conn,
		reader: reader,
		queues: scheduler.NewQueues(h.CameraID(), conf.Buffers, spec),
		cfg:    conf,
	}, nil
}

func (c *socketCamera) Spec() frames.VideoSpec {
	return c.cfg.Spec()
}

func (c *socketCamera) Start(complete func()) error {
	if c.complete != nil {
		return errors.New("camera already started")
	}
	c.complete = complete
	c.finished = make(chan struct{})
	go c.readFrames()
	return nil
}

func (c *socketCamera) RequestCapture(target uint64) error {
	var req [8]byte
	binary.LittleEndian.PutUint64(req[:], target)
	if _, err := c.conn.Write(req[:]); err != nil {
		return fmt.Errorf("camera %d connection: %v", c.id, err)
	}
	return nil
}

func (c *socketCamera) Stop() error {
	c.conn.Close()
	if c.finished != nil {
		<-c.finished
	}
	return nil
}

func (c *socketCamera) readFrames() {
	defer close(c.finished)
	for {
		buf, ok := c.queues.Free.Dequeue()
		if !ok {
			// All buffers in flight; the scheduler's backpressure check
			// keeps this transient.
			time.Sleep(time.Millisecond)
			continue
		}
		if _, err := io.ReadFull(c.reader, buf.Pix); err != nil {
			c.queues.Free.Enqueue(buf)
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				log.Printf("camera %d read: %v", c.id, err)
			}
			return
		}
		c.queues.Filled.Enqueue(buf)
		c.complete()
	}
}
