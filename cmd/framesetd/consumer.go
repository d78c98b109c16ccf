// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"encoding/binary"
	"log"
	"net"
	"os"
	"sync"

	"github.com/framesync/frameset-sync/syncer"
)

func newConsumer(conf *Config) (syncer.Consumer, func(), error) {
	if conf.OutputSocket == "" {
		log.Print("no output socket configured, framesets will be discarded")
		return new(syncer.DiscardConsumer), func() {}, nil
	}
	w, err := newSocketConsumer(conf.OutputSocket)
	if err != nil {
		return nil, nil, err
	}
	return w, w.close, nil
}

// socketConsumer delivers each emitted frameset to a downstream client
// over a unixpacket socket: one header packet (timestamp, camera count,
// frame size, all little-endian), then one packet per frame. With no
// client connected framesets are dropped; a write failure drops the
// client, never the session.
type socketConsumer struct {
	listener net.Listener

	mu   sync.Mutex
	conn net.Conn
}

func newSocketConsumer(path string) (*socketConsumer, error) {
	os.Remove(path)
	listener, err := net.Listen("unixpacket", path)
	if err != nil {
		return nil, err
	}
	s := &socketConsumer{listener: listener}
	go s.acceptLoop()
	return s, nil
}

func (s *socketConsumer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		log.Print("frameset client connected")
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()
	}
}

func (s *socketConsumer) Consume(fs *syncer.Frameset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}

	var header [24]byte
	binary.LittleEndian.PutUint64(header[0:], fs.Timestamp)
	binary.LittleEndian.PutUint64(header[8:], uint64(len(fs.Frames)))
	binary.LittleEndian.PutUint64(header[16:], uint64(len(fs.Frames[0].Pix)))
	if _, err := s.conn.Write(header[:]); err != nil {
		s.dropClient(err)
		return nil
	}
	for _, f := range fs.Frames {
		if _, err := s.conn.Write(f.Pix); err != nil {
			s.dropClient(err)
			return nil
		}
	}
	return nil
}

func (s *socketConsumer) dropClient(err error) {
	log.Printf("frameset client write failed, dropping client: %v", err)
	s.conn.Close()
	s.conn = nil
}

func (s *socketConsumer) close() {
	s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
