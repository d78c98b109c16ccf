// Copyright 2024 The Framesync Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

//go:build !linux
// +build !linux

package scheduler

import "errors"

func pinThread(cpu int, realtime bool) error {
	return errors.New("cpu pinning is only supported on linux")
}
