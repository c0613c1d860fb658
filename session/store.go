// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/ratchet"
)

// Store defines the interface of a durable store for sessions. Sessions
// are keyed by (MyIdentity, PeerIdentity, ID).
//
// Lookups return nil, nil if no session matches. Sessions returned by a
// store never carry an ephemeral private key and must be restored with the
// local version range given to the store.
//
// Writes never regress the stored state: ratchet counters only increase,
// removed ratchets are never recreated, the commit flag is never reset, and
// versions are never downgraded. A write from a stale copy of a session is
// a silent no-op for the stale parts.
type Store interface {
	// ExactSession returns the session with the given ID.
	ExactSession(myIdentity, peerIdentity string, id ID) (*Session, error)

	// BestSession returns the session to use for sending: sessions with a
	// 4DH ratchet of mine come first, ties are broken by the smallest ID.
	BestSession(myIdentity, peerIdentity string) (*Session, error)

	// StoreSession inserts s or updates the stored copy of s.
	StoreSession(s *Session) error

	// UpdateRatchets writes the ratchets of s for one direction: the
	// peer's if peer is true, mine otherwise.
	UpdateRatchets(s *Session, peer bool) error

	// UpdateCommitAndVersion writes the commit flag, the time of the last
	// sent message, and the versions of s.
	UpdateCommitAndVersion(s *Session) error

	// DeleteSession deletes a single session and reports whether it existed.
	DeleteSession(myIdentity, peerIdentity string, id ID) (bool, error)

	// DeleteAllSessions deletes all sessions between the two parties and
	// returns their number.
	DeleteAllSessions(myIdentity, peerIdentity string) (int, error)

	// DeleteAllSessionsExcept deletes all sessions between the two parties
	// except the one with the given ID. If fourDHOnly is true only sessions
	// with a 4DH ratchet of mine are deleted.
	DeleteAllSessionsExcept(myIdentity, peerIdentity string, exclude ID, fourDHOnly bool) (int, error)

	// ListSessions returns all sessions between the two parties in best
	// session order.
	ListSessions(myIdentity, peerIdentity string) ([]*Session, error)

	// HasInvalidVersionSessions reports whether there are 4DH sessions
	// between the two parties whose versions lie outside of supported.
	HasInvalidVersionSessions(myIdentity, peerIdentity string, supported fsver.Range) (bool, error)
}

// Better reports whether a is a better session to send with than b.
func Better(a, b *Session) bool {
	a4, b4 := a.MyRatchet4DH != nil, b.MyRatchet4DH != nil
	if a4 != b4 {
		return a4
	}
	return a.ID.Less(b.ID)
}

// stateRank orders the states by the progress of the key exchange.
var stateRank = map[State]int{L20: 0, R20: 0, R24: 1, RL44: 2}

// MergeRatchets returns a copy of stored with the ratchets of s for one
// direction applied (the peer's if peer is true, mine otherwise) and
// reports whether anything changed. A ratchet is only replaced by one with
// a higher counter, and a 2DH ratchet is only dropped if s carries the 4DH
// ratchet of the same direction. No ratchet is ever created.
func MergeRatchets(stored, s *Session, peer bool) (*Session, bool) {
	m := stored.Clone()
	var c2, c4 bool
	if peer {
		m.PeerRatchet2DH, c2 = merge2DH(m.PeerRatchet2DH, s.PeerRatchet2DH, s.PeerRatchet4DH != nil)
		m.PeerRatchet4DH, c4 = merge4DH(m.PeerRatchet4DH, s.PeerRatchet4DH)
	} else {
		m.MyRatchet2DH, c2 = merge2DH(m.MyRatchet2DH, s.MyRatchet2DH, s.MyRatchet4DH != nil)
		m.MyRatchet4DH, c4 = merge4DH(m.MyRatchet4DH, s.MyRatchet4DH)
	}
	if !c2 && !c4 {
		return m, false
	}
	for state, want := range ratchets {
		have := [4]bool{
			m.MyRatchet2DH != nil,
			m.MyRatchet4DH != nil,
			m.PeerRatchet2DH != nil,
			m.PeerRatchet4DH != nil,
		}
		if have == want {
			m.State = state
			break
		}
	}
	return m, true
}

func merge2DH(stored, r *ratchet.KDFRatchet, has4DH bool) (*ratchet.KDFRatchet, bool) {
	switch {
	case stored == nil:
		return nil, false
	case r == nil && has4DH:
		return nil, true
	case r != nil && r.Counter() > stored.Counter():
		return r.Clone(), true
	}
	return stored, false
}

func merge4DH(stored, r *ratchet.KDFRatchet) (*ratchet.KDFRatchet, bool) {
	if stored != nil && r != nil && r.Counter() > stored.Counter() {
		return r.Clone(), true
	}
	return stored, false
}

// MergeCommitAndVersion returns a copy of stored with the commit flag,
// last sent time, and versions of s applied without regression and reports
// whether anything changed.
func MergeCommitAndVersion(stored, s *Session) (*Session, bool) {
	m := stored.Clone()
	var changed bool
	if s.NewSessionCommitted && !m.NewSessionCommitted {
		m.NewSessionCommitted = true
		changed = true
	}
	if s.LastMessageSent.After(m.LastMessageSent) {
		m.LastMessageSent = s.LastMessageSent
		changed = true
	}
	if m.Versions != nil && s.Versions != nil {
		v := m.Versions.Max(*s.Versions)
		if v != *m.Versions {
			m.Versions = &v
			changed = true
		}
	}
	return m, changed
}

// MergeSession returns the session to store when s is written over stored.
// If s has progressed further in the key exchange it replaces stored,
// keeping the higher values of stored where s is behind. Otherwise the
// ratchets of both directions, the commit flag, and the versions of s are
// merged into stored.
func MergeSession(stored, s *Session) *Session {
	if stateRank[s.State] > stateRank[stored.State] {
		m := s.Clone()
		m, _ = MergeCommitAndVersion(m, stored)
		return m
	}
	m, _ := MergeRatchets(stored, s, false)
	m, _ = MergeRatchets(m, s, true)
	m, _ = MergeCommitAndVersion(m, s)
	if m.RemoteRange.IsZero() {
		m.RemoteRange = s.RemoteRange
	}
	return m
}
