// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"testing"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var localRange = fsver.Range{Min: fsver.V1_0, Max: fsver.V1_2}

func testIdentities(t *testing.T) (alice, bob *identity.KeyPair) {
	alice, err := identity.FromBase64("AAAAAAAA", "2Hi7lA4boz9eLl0ozdeb2uKj2+i/wD2PUTRczwshp1Y=")
	require.NoError(t, err)
	bob, err = identity.FromBase64("BBBBBBBB", "WE2g/Mu8jeGHMUX0pqyCP+ypW6gCu2xEBKESOyqgbn0=")
	require.NoError(t, err)
	return alice, bob
}

// exchange runs the Init/Accept exchange between alice and bob and returns
// the initiator and responder sessions.
func exchange(t *testing.T, alice, bob *identity.KeyPair) (*Session, *Session) {
	a, err := NewInitiator(alice, bob.Identity(), bob.PublicKey(), localRange)
	require.NoError(t, err)
	assert.Equal(t, L20, a.State)
	require.NoError(t, a.Validate())

	b, err := NewResponder(bob, a.ID, a.MyEphemeralPublicKey, alice.Identity(),
		alice.PublicKey(), localRange, localRange)
	require.NoError(t, err)
	assert.Equal(t, R24, b.State)
	require.NoError(t, b.Validate())
	assert.True(t, b.NewSessionCommitted)
	assert.Nil(t, b.EphemeralPrivateKey())
	return a, b
}

func TestKeyExchangeSymmetry(t *testing.T) {
	alice, bob := testIdentities(t)
	a, b := exchange(t, alice, bob)

	// 2DH: alice's outgoing ratchet equals bob's incoming ratchet
	assert.True(t, a.MyRatchet2DH.Equal(b.PeerRatchet2DH))

	priv := a.EphemeralPrivateKey()
	require.NotNil(t, priv)
	err := a.ProcessAccept(alice, b.MyEphemeralPublicKey, bob.PublicKey(), localRange)
	require.NoError(t, err)
	assert.Equal(t, RL44, a.State)
	require.NoError(t, a.Validate())
	assert.Nil(t, a.EphemeralPrivateKey())
	assert.Equal(t, [32]byte{}, *priv, "ephemeral private key must be wiped")
	assert.Nil(t, a.MyRatchet2DH)

	// 4DH in both directions
	assert.True(t, a.MyRatchet4DH.Equal(b.PeerRatchet4DH))
	assert.True(t, b.MyRatchet4DH.Equal(a.PeerRatchet4DH))
	assert.False(t, a.MyRatchet4DH.Equal(a.PeerRatchet4DH), "directions must differ")
	assert.Equal(t, uint64(1), a.MyRatchet4DH.Counter())
	assert.Equal(t, DHVersions{Local: fsver.V1_2, Remote: fsver.V1_2}, *a.Versions)
	assert.Equal(t, *a.Versions, *b.Versions)

	b.DiscardPeerRatchet2DH()
	assert.Equal(t, RL44, b.State)
	assert.Nil(t, b.PeerRatchet2DH)
	require.NoError(t, b.Validate())
}

func TestProcessAcceptErrors(t *testing.T) {
	alice, bob := testIdentities(t)
	a, b := exchange(t, alice, bob)

	// wrong state
	err := b.ProcessAccept(bob, a.MyEphemeralPublicKey, alice.PublicKey(), localRange)
	assert.Equal(t, ErrIllegalState, err)

	// missing private key (e.g. after a restart)
	c := a.Clone()
	assert.Nil(t, c.EphemeralPrivateKey())
	err = c.ProcessAccept(alice, b.MyEphemeralPublicKey, bob.PublicKey(), localRange)
	assert.Equal(t, ErrMissingEphemeralPrivateKey, err)

	// negotiation failure leaves the session untouched
	err = a.ProcessAccept(alice, b.MyEphemeralPublicKey, bob.PublicKey(),
		fsver.Range{Min: fsver.FromWire(0x0200), Max: fsver.FromWire(0x0201)})
	assert.Equal(t, fsver.ErrUnableToNegotiate, err)
	assert.Equal(t, L20, a.State)
	assert.NotNil(t, a.EphemeralPrivateKey())
}

func TestNewResponderNegotiation(t *testing.T) {
	alice, bob := testIdentities(t)
	a, err := NewInitiator(alice, bob.Identity(), bob.PublicKey(), localRange)
	require.NoError(t, err)

	// an Init without version range is treated as 1.0
	b, err := NewResponder(bob, a.ID, a.MyEphemeralPublicKey, alice.Identity(),
		alice.PublicKey(), fsver.Range{}, localRange)
	require.NoError(t, err)
	assert.Equal(t, fsver.V1_0, b.Versions.Local)
	assert.Equal(t, fsver.DefaultRemoteRange, b.RemoteRange)

	_, err = NewResponder(bob, a.ID, a.MyEphemeralPublicKey, alice.Identity(),
		alice.PublicKey(), fsver.Range{Min: fsver.V1_2, Max: fsver.V1_1}, localRange)
	assert.Equal(t, fsver.ErrInvalidVersion, err)
}

func TestRestore(t *testing.T) {
	alice, bob := testIdentities(t)
	a, b := exchange(t, alice, bob)

	r, err := Restore(b.ID, b.MyIdentity, b.PeerIdentity, b.State, b.MyEphemeralPublicKey,
		b.MyRatchet2DH, b.MyRatchet4DH, b.PeerRatchet2DH, b.PeerRatchet4DH,
		b.RemoteRange, b.Versions, b.NewSessionCommitted, b.LastMessageSent, localRange)
	require.NoError(t, err)
	assert.Equal(t, b.Clone(), r)

	// ratchets do not match the state
	_, err = Restore(a.ID, a.MyIdentity, a.PeerIdentity, RL44, a.MyEphemeralPublicKey,
		a.MyRatchet2DH, nil, nil, nil, a.RemoteRange, &DHVersions{fsver.V1_0, fsver.V1_0},
		false, a.LastMessageSent, localRange)
	assert.Equal(t, ErrIllegalState, err)

	// 4DH states need versions
	_, err = Restore(b.ID, b.MyIdentity, b.PeerIdentity, b.State, b.MyEphemeralPublicKey,
		b.MyRatchet2DH, b.MyRatchet4DH, b.PeerRatchet2DH, b.PeerRatchet4DH,
		b.RemoteRange, nil, true, b.LastMessageSent, localRange)
	assert.Error(t, err)
}

func TestID(t *testing.T) {
	var lo, hi ID
	lo[15] = 1
	hi[0] = 1
	assert.True(t, lo.Less(hi))
	assert.False(t, hi.Less(lo))
	assert.False(t, lo.Less(lo))
	id, err := IDFromBytes(hi[:])
	require.NoError(t, err)
	assert.Equal(t, hi, id)
	_, err = IDFromBytes([]byte{1, 2})
	assert.Error(t, err)
	assert.Equal(t, "01000000000000000000000000000000", hi.String())
}

func TestStates(t *testing.T) {
	for _, s := range []State{L20, R20, R24, RL44} {
		p, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, p)
	}
	_, err := ParseState("L44")
	assert.Error(t, err)
	assert.True(t, R24.FourDHCapable())
	assert.False(t, L20.FourDHCapable())
	assert.Equal(t, "4DH", Mode4DH.String())
}
