// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"errors"
	"time"

	"github.com/jpillora/backoff"
	"github.com/mutecomm/mutefs/log"
)

// ErrRetry is returned by a Handler if the delivery of a packet should be
// retried later.
var ErrRetry = errors.New("transport: retry")

// Handler processes a delivered packet.
type Handler func(p *Packet) error

// Dispatcher delivers the packets of a Queue to handlers. A packet whose
// handler returns ErrRetry is retried with exponential backoff until
// MaxDuration is exceeded, packets failing with any other error are
// dropped.
type Dispatcher struct {
	Queue       *Queue
	Min         time.Duration
	Max         time.Duration
	MaxDuration time.Duration
	sleep       func(time.Duration)
}

// NewDispatcher returns a new dispatcher for queue with default backoff
// settings.
func NewDispatcher(queue *Queue) *Dispatcher {
	return &Dispatcher{
		Queue:       queue,
		Min:         100 * time.Millisecond,
		Max:         5 * time.Second,
		MaxDuration: time.Minute,
		sleep:       time.Sleep,
	}
}

func (d *Dispatcher) deliver(p *Packet, h Handler) error {
	err := h(p)
	if err != ErrRetry {
		return err
	}
	log.Warnf("transport: delivery of %016x to %s: retry", p.MessageID, p.To)
	b := &backoff.Backoff{
		Min:    d.Min,
		Max:    d.Max,
		Factor: 1.5,
		Jitter: false,
	}
	sleep := d.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	var total time.Duration
	for {
		dur := b.Duration()
		sleep(dur)
		total += dur
		err = h(p)
		if err != ErrRetry {
			return err
		}
		if total >= d.MaxDuration {
			// total duration is larger than max duration -> stop trying
			return log.Errorf("transport: giving up delivery of %016x to %s after %s",
				p.MessageID, p.To, total)
		}
		log.Warnf("transport: delivery of %016x to %s: retry", p.MessageID, p.To)
	}
}

// Deliver hands all packets waiting for recipient to over to h, in order,
// and returns the number of packets h processed successfully.
func (d *Dispatcher) Deliver(to string, h Handler) int {
	var n int
	for {
		p := d.Queue.Pop(to)
		if p == nil {
			return n
		}
		if err := d.deliver(p, h); err != nil {
			log.Errorf("transport: dropping %016x from %s: %s", p.MessageID, p.From, err)
			continue
		}
		n++
	}
}
