// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/framesync/frameset-sync/control"
	"github.com/framesync/frameset-sync/syncer"
)

const (
	dbusName = "org.framesync.framesetd"
	dbusPath = "/org/framesync/framesetd"
)

// framesetdService exposes session control over d-bus. Commands are
// posted onto the same control channel as UDP and signal events so the
// coordinator stays the single decision point.
type framesetdService struct {
	ch *control.Channel

	mu      sync.Mutex
	session *syncer.Session
	sync    *syncer.Synchronizer
}

func startService(ch *control.Channel) (*framesetdService, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}
	s := &framesetdService{ch: ch}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return s, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

func (s *framesetdService) setSession(session *syncer.Session, sync *syncer.Synchronizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.sync = sync
}

// Start begins a capture session with the given epoch timestamp
// (nanoseconds).
func (s *framesetdService) Start(timestamp int64) *dbus.Error {
	if timestamp <= 0 {
		return makeDbusError("Start", fmt.Errorf("invalid timestamp %d", timestamp))
	}
	s.ch.Post(control.Event{Type: control.EventStart, Timestamp: uint64(timestamp)})
	return nil
}

// Stop ends the current session.
func (s *framesetdService) Stop() *dbus.Error {
	s.ch.Post(control.Event{Type: control.EventStop})
	return nil
}

// Terminate shuts the daemon down.
func (s *framesetdService) Terminate() *dbus.Error {
	s.ch.Post(control.Event{Type: control.EventTerminate})
	return nil
}

// Status reports the current session state.
func (s *framesetdService) Status() (string, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return "starting", nil
	}
	if !s.session.Running() {
		return "stopped", nil
	}
	return fmt.Sprintf("running: epoch=%d framesets=%d", s.session.StartNS(), s.sync.Emitted()), nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
