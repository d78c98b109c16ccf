// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package control

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/framesync/frameset-sync/loglimiter"
)

// Listener decodes session commands from UDP datagrams. Two datagram
// shapes are valid: 8 bytes holding a little-endian nanosecond timestamp
// (a start command, or a stop when the timestamp is zero), and the 4
// byte ASCII string "STOP". Anything else is a protocol fault: logged,
// rate limited, and ignored.
type Listener struct {
	conn    *net.UDPConn
	ch      *Channel
	limiter *loglimiter.LogLimiter
}

func NewListener(port int, ch *Channel) (*Listener, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("control listen: %v", err)
	}
	return &Listener{
		conn:    conn,
		ch:      ch,
		limiter: loglimiter.New(30 * time.Second),
	}, nil
}

// Addr returns the bound UDP address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Run reads datagrams until Close is called. Malformed datagrams never
// end the loop.
func (l *Listener) Run() error {
	buf := make([]byte, 64)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("control read: %v", err)
		}

		switch {
		case n == 8:
			ts := binary.LittleEndian.Uint64(buf[:8])
			if ts == 0 {
				l.ch.Post(Event{Type: EventStop})
				continue
			}
			l.ch.Post(Event{Type: EventStart, Timestamp: ts})
		case n == 4 && string(buf[:4]) == "STOP":
			l.ch.Post(Event{Type: EventStop})
		default:
			l.limiter.Printf("control: ignoring malformed %d byte datagram from %v", n, from)
		}
	}
}

// Close stops the read loop. Run returns nil afterwards.
func (l *Listener) Close() error {
	return l.conn.Close()
}
