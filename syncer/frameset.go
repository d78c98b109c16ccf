// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package syncer

import "github.com/framesync/frameset-sync/frames"

// Frameset is one time-aligned frame per camera, ordered by camera index,
// all sharing the same capture timestamp.
type Frameset struct {
	Timestamp uint64
	Frames    []*frames.Frame
}

// Consumer receives completed framesets. Consume must not return until
// the consumer no longer needs the frame buffers; the synchronizer reuses
// them for later captures as soon as it returns. A non-nil error ends the
// session.
type Consumer interface {
	Consume(fs *Frameset) error
}

// DiscardConsumer drops framesets. Useful for benchmarks and simulation
// runs where only the synchronization behaviour matters.
type DiscardConsumer struct{}

func (*DiscardConsumer) Consume(*Frameset) error { return nil }
