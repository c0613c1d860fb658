// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interrupt runs registered handlers on SIGINT or SIGTERM and then
// signals the main goroutine to shut down.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mutecomm/mutefs/log"
)

// ShutdownChannel is used to signal that shutdown is in progress.
var ShutdownChannel = make(chan error)

var (
	mutex    sync.Mutex
	handlers []func()
	signals  chan os.Signal
)

func run() {
	sig := <-signals
	log.Infof("received %s, shutting down...", sig)
	mutex.Lock()
	hs := append([]func(){}, handlers...)
	mutex.Unlock()
	// last registered, first called
	for i := len(hs) - 1; i >= 0; i-- {
		hs[i]()
	}
	ShutdownChannel <- nil
}

// AddInterruptHandler adds a handler which is called when the process
// receives SIGINT (Ctrl+C) or SIGTERM.
func AddInterruptHandler(handler func()) {
	mutex.Lock()
	defer mutex.Unlock()
	if signals == nil {
		signals = make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		go run()
	}
	handlers = append(handlers, handler)
}
