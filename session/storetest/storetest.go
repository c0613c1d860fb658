// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storetest implements a conformance test suite for implementations
// of session.Store.
package storetest

import (
	"testing"
	"time"

	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/identity"
	"github.com/mutecomm/mutefs/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LocalRange is the version range stores under test must be created with.
var LocalRange = fsver.Range{Min: fsver.V1_0, Max: fsver.V1_2}

// NewStoreFunc returns a fresh store and a function to release it.
type NewStoreFunc func(t *testing.T) (session.Store, func())

type fixture struct {
	alice *identity.KeyPair
	bob   *identity.KeyPair
}

func newFixture(t *testing.T) *fixture {
	alice, err := identity.FromBase64("AAAAAAAA", "2Hi7lA4boz9eLl0ozdeb2uKj2+i/wD2PUTRczwshp1Y=")
	require.NoError(t, err)
	bob, err := identity.FromBase64("BBBBBBBB", "WE2g/Mu8jeGHMUX0pqyCP+ypW6gCu2xEBKESOyqgbn0=")
	require.NoError(t, err)
	return &fixture{alice: alice, bob: bob}
}

// initiator returns a new L20 session of alice with bob.
func (f *fixture) initiator(t *testing.T) *session.Session {
	s, err := session.NewInitiator(f.alice, f.bob.Identity(), f.bob.PublicKey(), LocalRange)
	require.NoError(t, err)
	return s
}

// responder returns a new R24 session of alice for an Init of bob.
func (f *fixture) responder(t *testing.T) *session.Session {
	init, err := session.NewInitiator(f.bob, f.alice.Identity(), f.alice.PublicKey(), LocalRange)
	require.NoError(t, err)
	s, err := session.NewResponder(f.alice, init.ID, init.MyEphemeralPublicKey,
		f.bob.Identity(), f.bob.PublicKey(), LocalRange, LocalRange)
	require.NoError(t, err)
	return s
}

// Run runs all conformance tests against the stores returned by newStore.
func Run(t *testing.T, newStore NewStoreFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store session.Store, f *fixture)
	}{
		{"Empty", testEmpty},
		{"StoreAndLoad", testStoreAndLoad},
		{"BestSession", testBestSession},
		{"RatchetsNoRegression", testRatchetsNoRegression},
		{"DiscardPeer2DH", testDiscardPeer2DH},
		{"CommitAndVersion", testCommitAndVersion},
		{"Delete", testDelete},
		{"DeleteExceptFourDHOnly", testDeleteExceptFourDHOnly},
		{"InvalidVersions", testInvalidVersions},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store, release := newStore(t)
			defer release()
			test.fn(t, store, newFixture(t))
		})
	}
}

func testEmpty(t *testing.T, store session.Store, f *fixture) {
	s, err := store.BestSession("AAAAAAAA", "BBBBBBBB")
	require.NoError(t, err)
	assert.Nil(t, s)
	s, err = store.ExactSession("AAAAAAAA", "BBBBBBBB", session.ID{})
	require.NoError(t, err)
	assert.Nil(t, s)
	deleted, err := store.DeleteSession("AAAAAAAA", "BBBBBBBB", session.ID{})
	require.NoError(t, err)
	assert.False(t, deleted)
	n, err := store.DeleteAllSessions("AAAAAAAA", "BBBBBBBB")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	// updates of unknown sessions are no-ops
	require.NoError(t, store.UpdateRatchets(f.initiator(t), false))
	require.NoError(t, store.UpdateCommitAndVersion(f.initiator(t)))
}

func testStoreAndLoad(t *testing.T, store session.Store, f *fixture) {
	for _, s := range []*session.Session{f.initiator(t), f.responder(t)} {
		s.LastMessageSent = time.Unix(1500000000, 0)
		require.NoError(t, store.StoreSession(s))
		loaded, err := store.ExactSession(s.MyIdentity, s.PeerIdentity, s.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Nil(t, loaded.EphemeralPrivateKey(), "private key must never be stored")
		assert.Equal(t, s.State, loaded.State)
		assert.Equal(t, LocalRange, loaded.LocalRange)
		assert.True(t, s.MyRatchet2DH.Equal(loaded.MyRatchet2DH))
		assert.True(t, s.MyRatchet4DH.Equal(loaded.MyRatchet4DH))
		assert.True(t, s.PeerRatchet2DH.Equal(loaded.PeerRatchet2DH))
		assert.True(t, s.PeerRatchet4DH.Equal(loaded.PeerRatchet4DH))
		assert.Equal(t, s.MyEphemeralPublicKey, loaded.MyEphemeralPublicKey)
		assert.Equal(t, s.Versions, loaded.Versions)
		assert.Equal(t, s.NewSessionCommitted, loaded.NewSessionCommitted)
		assert.True(t, s.LastMessageSent.Equal(loaded.LastMessageSent))
		if s.State == session.R24 {
			assert.Equal(t, s.RemoteRange, loaded.RemoteRange)
		}
		// wrong pair
		other, err := store.ExactSession(s.PeerIdentity, s.MyIdentity, s.ID)
		require.NoError(t, err)
		assert.Nil(t, other)
	}
}

func testBestSession(t *testing.T, store session.Store, f *fixture) {
	l20 := f.initiator(t)
	require.NoError(t, store.StoreSession(l20))
	best, err := store.BestSession("AAAAAAAA", "BBBBBBBB")
	require.NoError(t, err)
	assert.Equal(t, l20.ID, best.ID)

	// a session with my 4DH ratchet wins over L20, regardless of the ID
	r1 := f.responder(t)
	r2 := f.responder(t)
	require.NoError(t, store.StoreSession(r1))
	require.NoError(t, store.StoreSession(r2))
	smaller := r1.ID
	if r2.ID.Less(r1.ID) {
		smaller = r2.ID
	}
	for i := 0; i < 3; i++ {
		best, err = store.BestSession("AAAAAAAA", "BBBBBBBB")
		require.NoError(t, err)
		assert.Equal(t, smaller, best.ID, "best session must be deterministic")
	}
	list, err := store.ListSessions("AAAAAAAA", "BBBBBBBB")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, smaller, list[0].ID)
	assert.Equal(t, l20.ID, list[2].ID)
}

func testRatchetsNoRegression(t *testing.T, store session.Store, f *fixture) {
	s := f.responder(t)
	require.NoError(t, store.StoreSession(s))
	stale := s.Clone()

	s.MyRatchet4DH.Turn()
	s.MyRatchet4DH.Turn()
	require.NoError(t, store.UpdateRatchets(s, false))
	loaded, err := store.ExactSession(s.MyIdentity, s.PeerIdentity, s.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), loaded.MyRatchet4DH.Counter())
	assert.True(t, s.MyRatchet4DH.Equal(loaded.MyRatchet4DH))

	// a stale copy never rolls back
	require.NoError(t, store.UpdateRatchets(stale, false))
	require.NoError(t, store.StoreSession(stale))
	loaded, err = store.ExactSession(s.MyIdentity, s.PeerIdentity, s.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), loaded.MyRatchet4DH.Counter())

	// writing the peer direction leaves mine alone
	stale.PeerRatchet4DH.Turn()
	require.NoError(t, store.UpdateRatchets(stale, true))
	loaded, err = store.ExactSession(s.MyIdentity, s.PeerIdentity, s.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), loaded.MyRatchet4DH.Counter())
	assert.Equal(t, uint64(2), loaded.PeerRatchet4DH.Counter())
}

func testDiscardPeer2DH(t *testing.T, store session.Store, f *fixture) {
	s := f.responder(t)
	require.NoError(t, store.StoreSession(s))
	stale := s.Clone()

	s.PeerRatchet4DH.Turn()
	s.DiscardPeerRatchet2DH()
	require.NoError(t, store.UpdateRatchets(s, true))
	loaded, err := store.ExactSession(s.MyIdentity, s.PeerIdentity, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RL44, loaded.State)
	assert.Nil(t, loaded.PeerRatchet2DH)

	// the 2DH ratchet is never recreated
	stale.PeerRatchet2DH.Turn()
	require.NoError(t, store.UpdateRatchets(stale, true))
	loaded, err = store.ExactSession(s.MyIdentity, s.PeerIdentity, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RL44, loaded.State)
	assert.Nil(t, loaded.PeerRatchet2DH)
}

func testCommitAndVersion(t *testing.T, store session.Store, f *fixture) {
	s := f.initiator(t)
	require.NoError(t, store.StoreSession(s))
	s.NewSessionCommitted = true
	s.LastMessageSent = time.Unix(1600000000, 0)
	require.NoError(t, store.UpdateCommitAndVersion(s))
	loaded, err := store.ExactSession(s.MyIdentity, s.PeerIdentity, s.ID)
	require.NoError(t, err)
	assert.True(t, loaded.NewSessionCommitted)
	assert.True(t, s.LastMessageSent.Equal(loaded.LastMessageSent))

	r := f.responder(t)
	r.Versions = &session.DHVersions{Local: fsver.V1_0, Remote: fsver.V1_0}
	require.NoError(t, store.StoreSession(r))
	r.Versions = &session.DHVersions{Local: fsver.V1_1, Remote: fsver.V1_0}
	require.NoError(t, store.UpdateCommitAndVersion(r))
	r.Versions = &session.DHVersions{Local: fsver.V1_0, Remote: fsver.V1_0}
	require.NoError(t, store.UpdateCommitAndVersion(r))
	loaded, err = store.ExactSession(r.MyIdentity, r.PeerIdentity, r.ID)
	require.NoError(t, err)
	assert.Equal(t, session.DHVersions{Local: fsver.V1_1, Remote: fsver.V1_0}, *loaded.Versions,
		"versions must never be downgraded")
}

func testDelete(t *testing.T, store session.Store, f *fixture) {
	a := f.initiator(t)
	b := f.responder(t)
	require.NoError(t, store.StoreSession(a))
	require.NoError(t, store.StoreSession(b))
	deleted, err := store.DeleteSession(a.MyIdentity, a.PeerIdentity, a.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = store.DeleteSession(a.MyIdentity, a.PeerIdentity, a.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
	n, err := store.DeleteAllSessions(a.MyIdentity, a.PeerIdentity)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	best, err := store.BestSession(a.MyIdentity, a.PeerIdentity)
	require.NoError(t, err)
	assert.Nil(t, best)
}

func testDeleteExceptFourDHOnly(t *testing.T, store session.Store, f *fixture) {
	l20 := f.initiator(t)
	r1 := f.responder(t)
	r2 := f.responder(t)
	for _, s := range []*session.Session{l20, r1, r2} {
		require.NoError(t, store.StoreSession(s))
	}
	n, err := store.DeleteAllSessionsExcept("AAAAAAAA", "BBBBBBBB", r1.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	list, err := store.ListSessions("AAAAAAAA", "BBBBBBBB")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, r1.ID, list[0].ID)
	assert.Equal(t, l20.ID, list[1].ID)

	n, err = store.DeleteAllSessionsExcept("AAAAAAAA", "BBBBBBBB", r1.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	best, err := store.BestSession("AAAAAAAA", "BBBBBBBB")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, best.ID)
}

func testInvalidVersions(t *testing.T, store session.Store, f *fixture) {
	require.NoError(t, store.StoreSession(f.initiator(t)))
	r := f.responder(t)
	require.NoError(t, store.StoreSession(r))
	invalid, err := store.HasInvalidVersionSessions("AAAAAAAA", "BBBBBBBB", LocalRange)
	require.NoError(t, err)
	assert.False(t, invalid)
	invalid, err = store.HasInvalidVersionSessions("AAAAAAAA", "BBBBBBBB",
		fsver.Range{Min: fsver.V1_0, Max: fsver.V1_1})
	require.NoError(t, err)
	assert.True(t, invalid)
}
