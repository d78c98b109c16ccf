// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package control

import (
	"os"
	"os/signal"
	"syscall"
)

// RelaySignals forwards SIGINT and SIGTERM as terminate events so
// shutdown flows through the same coordinator path as every other
// command. Runs until the process exits.
func RelaySignals(ch *Channel) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigs {
			ch.Post(Event{Type: EventTerminate})
		}
	}()
}
