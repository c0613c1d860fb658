// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ratchet

import (
	"testing"

	"github.com/mutecomm/mutefs/def"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRatchet() *KDFRatchet {
	var ck [32]byte
	for i := range ck {
		ck[i] = byte(i)
	}
	return New(1, &ck)
}

func TestTurnDeterministic(t *testing.T) {
	a := newTestRatchet()
	b := newTestRatchet()
	assert.True(t, a.Equal(b))
	k1 := a.CurrentEncryptionKey()
	a.Turn()
	assert.Equal(t, uint64(2), a.Counter())
	assert.False(t, a.Equal(b))
	assert.NotEqual(t, k1, a.CurrentEncryptionKey())

	turns, err := b.TurnUntil(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), turns)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.CurrentEncryptionKey(), b.CurrentEncryptionKey())
}

func TestTurnUntil(t *testing.T) {
	a := newTestRatchet()
	b := newTestRatchet()
	for i := 0; i < 10; i++ {
		a.Turn()
	}
	turns, err := b.TurnUntil(11)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), turns)
	assert.True(t, a.Equal(b))

	turns, err = b.TurnUntil(11)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), turns)

	_, err = b.TurnUntil(10)
	assert.Equal(t, ErrRotationNotPossible, err)
	assert.Equal(t, uint64(11), b.Counter())
}

func TestTurnUntilCeiling(t *testing.T) {
	a := newTestRatchet()
	_, err := a.TurnUntil(1 + def.MaxCounterIncrement + 1)
	assert.Equal(t, ErrTooManyTurns, err)
	assert.Equal(t, uint64(1), a.Counter(), "ratchet must be unchanged")
	turns, err := a.TurnUntil(1 + def.MaxCounterIncrement)
	require.NoError(t, err)
	assert.Equal(t, uint64(def.MaxCounterIncrement), turns)
}

func TestCloneAndWipe(t *testing.T) {
	a := newTestRatchet()
	c := a.Clone()
	assert.True(t, a.Equal(c))
	c.Turn()
	assert.Equal(t, uint64(1), a.Counter())
	c.Wipe()
	assert.Equal(t, [32]byte{}, *c.ChainKey())
	var n *KDFRatchet
	assert.Nil(t, n.Clone())
	assert.True(t, n.Equal(nil))
	assert.False(t, n.Equal(a))
}
