// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport implements an in-memory message transport for forward
// secrecy envelopes: a queue of encoded packets per recipient and a
// dispatcher which delivers them with retries.
package transport

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/msg"
)

// Packet is an encoded envelope on its way from one party to another.
type Packet struct {
	From      string
	To        string
	MessageID uint64
	Data      []byte
}

// Envelope decodes the envelope contained in p.
func (p *Packet) Envelope() (*msg.Envelope, error) {
	env, err := msg.Unmarshal(p.Data)
	if err != nil {
		return nil, err
	}
	env.MessageID = p.MessageID
	return env, nil
}

// Queue holds the packets in transit, in order per recipient.
type Queue struct {
	mutex   sync.Mutex
	rand    io.Reader
	packets map[string][]*Packet
}

// NewQueue returns a new empty queue. Message IDs for envelopes which do not
// have one are read from rand.
func NewQueue(rand io.Reader) *Queue {
	return &Queue{
		rand:    rand,
		packets: make(map[string][]*Packet),
	}
}

// Endpoint returns the sending endpoint of party from.
func (q *Queue) Endpoint(from string) *Endpoint {
	return &Endpoint{queue: q, from: from}
}

func (q *Queue) push(p *Packet) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.packets[p.To] = append(q.packets[p.To], p)
}

// Pop removes and returns the oldest packet for recipient to, nil if there
// is none.
func (q *Queue) Pop(to string) *Packet {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	list := q.packets[to]
	if len(list) == 0 {
		return nil
	}
	p := list[0]
	q.packets[to] = list[1:]
	return p
}

// Len returns the number of packets waiting for recipient to.
func (q *Queue) Len(to string) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.packets[to])
}

// Drop discards all packets waiting for recipient to and returns their
// number.
func (q *Queue) Drop(to string) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	n := len(q.packets[to])
	delete(q.packets, to)
	return n
}

// Endpoint sends envelopes of a single party.
type Endpoint struct {
	queue *Queue
	from  string
}

// Send encodes env and queues it for recipient to.
func (e *Endpoint) Send(to string, env *msg.Envelope) error {
	data, err := msg.Marshal(env)
	if err != nil {
		return err
	}
	id := env.MessageID
	if id == 0 {
		var b [8]byte
		if _, err := io.ReadFull(e.queue.rand, b[:]); err != nil {
			return log.Error(err)
		}
		id = binary.BigEndian.Uint64(b[:])
	}
	log.Tracef("transport: %s -> %s: %s", e.from, to, env)
	e.queue.push(&Packet{
		From:      e.from,
		To:        to,
		MessageID: id,
		Data:      data,
	})
	return nil
}
