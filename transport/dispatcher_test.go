// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDispatcher(t *testing.T, n int) *Dispatcher {
	q := NewQueue(cipher.RandReader)
	alice := q.Endpoint("ALICE001")
	for i := 0; i < n; i++ {
		require.NoError(t, alice.Send("BOB*0002", terminate(byte(i))))
	}
	d := NewDispatcher(q)
	d.sleep = func(time.Duration) {}
	return d
}

func TestDeliver(t *testing.T) {
	d := testDispatcher(t, 3)
	var ids []byte
	n := d.Deliver("BOB*0002", func(p *Packet) error {
		env, err := p.Envelope()
		if err != nil {
			return err
		}
		ids = append(ids, env.SessionID[0])
		return nil
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0, 1, 2}, ids)
	assert.Equal(t, 0, d.Queue.Len("BOB*0002"))
}

func TestDeliverRetry(t *testing.T) {
	d := testDispatcher(t, 1)
	var calls int
	n := d.Deliver("BOB*0002", func(p *Packet) error {
		calls++
		if calls < 4 {
			return ErrRetry
		}
		return nil
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, calls)
}

func TestDeliverGiveUp(t *testing.T) {
	d := testDispatcher(t, 2)
	d.MaxDuration = time.Second
	var slept time.Duration
	d.sleep = func(dur time.Duration) { slept += dur }
	n := d.Deliver("BOB*0002", func(p *Packet) error {
		return ErrRetry
	})
	assert.Equal(t, 0, n)
	assert.True(t, slept >= 2*time.Second)
}

func TestDeliverDrop(t *testing.T) {
	d := testDispatcher(t, 2)
	var calls int
	n := d.Deliver("BOB*0002", func(p *Packet) error {
		calls++
		if calls == 1 {
			return errors.New("broken")
		}
		return nil
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, calls)
}
