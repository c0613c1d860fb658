// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"testing"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/msg"
	"github.com/mutecomm/mutefs/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terminate(id byte) *msg.Envelope {
	return &msg.Envelope{
		SessionID: session.ID{id},
		Content:   &msg.Terminate{Cause: msg.TerminateReset},
	}
}

func TestQueue(t *testing.T) {
	q := NewQueue(cipher.RandReader)
	alice := q.Endpoint("ALICE001")
	assert.Nil(t, q.Pop("BOB*0002"))

	require.NoError(t, alice.Send("BOB*0002", terminate(1)))
	env := terminate(2)
	env.MessageID = 0x42
	require.NoError(t, alice.Send("BOB*0002", env))
	assert.Equal(t, 2, q.Len("BOB*0002"))
	assert.Equal(t, 0, q.Len("ALICE001"))

	p := q.Pop("BOB*0002")
	require.NotNil(t, p)
	assert.Equal(t, "ALICE001", p.From)
	assert.NotZero(t, p.MessageID)
	dec, err := p.Envelope()
	require.NoError(t, err)
	assert.Equal(t, session.ID{1}, dec.SessionID)
	assert.Equal(t, p.MessageID, dec.MessageID)

	p = q.Pop("BOB*0002")
	require.NotNil(t, p)
	assert.Equal(t, uint64(0x42), p.MessageID)
	assert.Equal(t, 0, q.Len("BOB*0002"))
}

func TestQueueSendFailures(t *testing.T) {
	q := NewQueue(cipher.RandFail)
	alice := q.Endpoint("ALICE001")
	assert.Error(t, alice.Send("BOB*0002", &msg.Envelope{}), "no content")
	assert.Error(t, alice.Send("BOB*0002", terminate(1)), "no message ID")
	assert.Equal(t, 0, q.Len("BOB*0002"))
}

func TestDrop(t *testing.T) {
	q := NewQueue(cipher.RandReader)
	alice := q.Endpoint("ALICE001")
	for i := 0; i < 3; i++ {
		require.NoError(t, alice.Send("BOB*0002", terminate(byte(i))))
	}
	assert.Equal(t, 3, q.Drop("BOB*0002"))
	assert.Equal(t, 0, q.Len("BOB*0002"))
}
