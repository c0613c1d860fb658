// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !windows

package interrupt

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestInterrupt(t *testing.T) {
	var calls []int
	AddInterruptHandler(func() { calls = append(calls, 1) })
	AddInterruptHandler(func() { calls = append(calls, 2) })
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-ShutdownChannel:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no shutdown signaled")
	}
	if len(calls) != 2 || calls[0] != 2 || calls[1] != 1 {
		t.Errorf("handlers called in wrong order: %v", calls)
	}
}
