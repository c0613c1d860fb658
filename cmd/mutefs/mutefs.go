// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// mutefs manages forward secrecy sessions between identities.
package main

import (
	"os"

	"github.com/mutecomm/mutefs/fsctrl"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/util"
	"github.com/mutecomm/mutefs/util/interrupt"
)

func mutefsMain() error {
	defer log.Flush()

	ctrl := fsctrl.New()
	defer ctrl.Close()

	interrupt.AddInterruptHandler(func() {
		log.Infof("gracefully shutting down...")
		ctrl.Close()
	})

	go func() {
		if err := ctrl.Start(os.Args); err != nil {
			interrupt.ShutdownChannel <- err
			return
		}
		interrupt.ShutdownChannel <- nil
	}()

	return <-interrupt.ShutdownChannel
}

func main() {
	// work around defer not working after os.Exit()
	if err := mutefsMain(); err != nil {
		util.Fatal(err)
	}
}
