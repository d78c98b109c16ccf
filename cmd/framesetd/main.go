// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"errors"
	"log"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"periph.io/x/periph/host"

	"github.com/framesync/frameset-sync/control"
	"github.com/framesync/frameset-sync/frames"
	"github.com/framesync/frameset-sync/scheduler"
	"github.com/framesync/frameset-sync/syncer"
)

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Simulate   bool   `arg:"-s,--simulate" help:"use simulated cameras instead of camera service connections"`
	Quick      bool   `arg:"-q,--quick" help:"don't cycle camera power on startup"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/framesetd.yaml"
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

	ch := control.NewChannel()
	control.RelaySignals(ch)

	log.Println("starting d-bus service")
	service, err := startService(ch)
	if err != nil {
		return err
	}

	if conf.PowerPin != "" && !args.Quick {
		log.Print("host initialisation")
		if _, err := host.Init(); err != nil {
			return err
		}
		if err := cycleCameraPower(conf.PowerPin); err != nil {
			return err
		}
	}

	listener, err := control.NewListener(conf.ControlPort, ch)
	if err != nil {
		return err
	}
	defer listener.Close()
	go func() {
		if err := listener.Run(); err != nil {
			log.Printf("control listener: %v", err)
		}
	}()

	session := syncer.NewSession()
	defer session.Terminate()

	arena, err := frames.NewArena(conf.Spec(), conf.Cameras, conf.Buffers)
	if err != nil {
		return err
	}

	consumer, closeConsumer, err := newConsumer(conf)
	if err != nil {
		return err
	}
	defer closeConsumer()

	sync := syncer.New(session, conf.Cameras, newProgressConsumer(consumer, conf.FPS))
	sync.Heartbeat = watchdogFeeder(conf.FPS)
	service.setSession(session, sync)

	cameras, closeCameras, err := openCameras(args, conf)
	if err != nil {
		return err
	}
	defer closeCameras()

	errs := make(chan error, conf.Cameras+1)
	for cam := 0; cam < conf.Cameras; cam++ {
		cpu := -1
		if conf.CPUBase >= 0 {
			cpu = conf.CPUBase + cam
		}
		sched, err := scheduler.New(scheduler.Config{
			Camera:   cam,
			Device:   cameras[cam].dev,
			Queues:   cameras[cam].queues,
			Arena:    arena,
			Session:  session,
			Slot:     sync.Slot(cam),
			Counter:  sync.Counter(),
			Notify:   sync.Notifier(),
			Cameras:  conf.Cameras,
			CPU:      cpu,
			Realtime: conf.Realtime,
		})
		if err != nil {
			return err
		}
		go func() { errs <- sched.Run() }()
	}
	go func() { errs <- sync.Run() }()

	daemon.SdNotify(false, "READY=1")
	log.Print("waiting for session commands")

	events := make(chan control.Event)
	go func() {
		for {
			ev, ok := ch.Next(session.Done())
			if !ok {
				return
			}
			select {
			case events <- ev:
			case <-session.Done():
				return
			}
		}
	}()

	for {
		select {
		case err := <-errs:
			session.Terminate()
			if err != nil {
				return err
			}
			return errors.New("capture goroutine exited unexpectedly")

		case ev := <-events:
			switch ev.Type {
			case control.EventStart:
				if session.Running() {
					log.Print("session already running, restarting")
					session.Stop()
					sync.DisarmAll()
				}
				log.Printf("session start, epoch %d", ev.Timestamp)
				session.Start(ev.Timestamp)
				sync.ArmAll()

			case control.EventStop:
				log.Printf("session stop after %d framesets", sync.Emitted())
				session.Stop()
				sync.DisarmAll()

			case control.EventTerminate:
				log.Print("terminating")
				session.Terminate()
				return nil
			}
		}
	}
}

// progressConsumer logs frameset throughput: frequently for the first
// minute of a session, infrequently after that.
type progressConsumer struct {
	next  syncer.Consumer
	fps   int
	count int
}

func newProgressConsumer(next syncer.Consumer, fps int) *progressConsumer {
	return &progressConsumer{next: next, fps: fps}
}

func (c *progressConsumer) Consume(fs *syncer.Frameset) error {
	c.count++
	if (c.count%(15*c.fps) == 0 && c.count <= 60*c.fps) || c.count%(300*c.fps) == 0 {
		log.Printf("%d framesets emitted", c.count)
	}
	return c.next.Consume(fs)
}

// watchdogFeeder notifies the systemd watchdog every few seconds worth
// of framesets. A session whose rounds stop completing starves the
// watchdog, which is how a wedged capture pipeline gets detected and
// restarted from outside.
func watchdogFeeder(fps int) func() {
	count := 0
	return func() {
		if count++; count >= 5*fps {
			daemon.SdNotify(false, "WATCHDOG=1")
			count = 0
		}
	}
}

func logConfig(conf *Config) {
	log.Printf("cameras: %d", conf.Cameras)
	log.Printf("frame geometry: %dx%d @ %dfps", conf.Width, conf.Height, conf.FPS)
	log.Printf("buffers per camera: %d", conf.Buffers)
	log.Printf("control port: %d", conf.ControlPort)
	log.Printf("camera socket: %s", conf.CameraSocket)
	if conf.OutputSocket != "" {
		log.Printf("output socket: %s", conf.OutputSocket)
	}
	if conf.PowerPin != "" {
		log.Printf("power pin: %s", conf.PowerPin)
	}
	if conf.CPUBase >= 0 {
		log.Printf("cpu pinning from core %d, realtime=%v", conf.CPUBase, conf.Realtime)
	}
}
