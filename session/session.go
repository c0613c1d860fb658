// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session implements forward secrecy DH sessions between two
// parties and defines the interface of session stores.
//
// A session is created by the initiator in state L20 and sent to the peer
// as an Init. The responder derives the session in state R24 and answers
// with an Accept, which moves the initiator to RL44. The responder reaches
// RL44 with the first 4DH message it receives from the initiator.
//
//	initiator                         responder
//	---------                         ---------
//	NewInitiator        (L20)
//	                  --- Init --->
//	                                  NewResponder        (R24)
//	                  <-- Accept --
//	ProcessAccept       (RL44)
//	                  --- 4DH msg ->
//	                                  DiscardPeerRatchet2DH (RL44)
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/ratchet"
	"github.com/mutecomm/mutefs/util/bzero"
)

const (
	salt2DHPrefix = "ke-2dh-"
	salt4DHPrefix = "ke-4dh-"
)

// ErrIllegalState is raised when an operation is not allowed in the current
// state of a session or the ratchets of a session do not match its state.
var ErrIllegalState = errors.New("session: illegal state")

// ErrMissingEphemeralPrivateKey is raised when an Accept is processed for a
// session whose ephemeral private key is not available (anymore).
var ErrMissingEphemeralPrivateKey = errors.New("session: missing ephemeral private key")

// IdentityStore gives access to the long-term identity of the local party.
type IdentityStore interface {
	// Identity returns the identity string of the local party.
	Identity() string
	// PublicKey returns the long-term public key of the local party.
	PublicKey() *[32]byte
	// SharedSecret computes the DH shared secret between the long-term
	// private key and peerPublicKey.
	SharedSecret(peerPublicKey *[32]byte) (*[32]byte, error)
}

// Session is a forward secrecy session between MyIdentity and PeerIdentity.
type Session struct {
	ID           ID
	MyIdentity   string
	PeerIdentity string
	State        State

	// MyEphemeralPublicKey is kept to resend the Init of an uncommitted
	// session. The private key is only held in memory until the Accept has
	// been processed and is never written to a store.
	MyEphemeralPublicKey  *[32]byte
	myEphemeralPrivateKey *[32]byte

	MyRatchet2DH   *ratchet.KDFRatchet
	MyRatchet4DH   *ratchet.KDFRatchet
	PeerRatchet2DH *ratchet.KDFRatchet
	PeerRatchet4DH *ratchet.KDFRatchet

	// LocalRange is the locally supported version range. It is taken from
	// the configuration and not persisted.
	LocalRange fsver.Range
	// RemoteRange is the version range the peer announced in its Init or
	// Accept. Zero for sessions created before the Accept arrived.
	RemoteRange fsver.Range
	// Versions are the applied 4DH versions, nil in L20 and R20.
	Versions *DHVersions

	NewSessionCommitted bool
	LastMessageSent     time.Time
}

// NewInitiator creates a new session with a fresh ID and ephemeral key pair
// for a message to peerIdentity (in state L20).
func NewInitiator(
	ids IdentityStore,
	peerIdentity string,
	peerPublicKey *[32]byte,
	localRange fsver.Range,
) (*Session, error) {
	id, err := NewID(cipher.RandReader)
	if err != nil {
		return nil, err
	}
	eph, err := cipher.Curve25519Generate(cipher.RandReader)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:                    id,
		MyIdentity:            ids.Identity(),
		PeerIdentity:          peerIdentity,
		State:                 L20,
		MyEphemeralPublicKey:  eph.PublicKey(),
		myEphemeralPrivateKey: eph.PrivateKey(),
		LocalRange:            localRange,
	}
	ss, err := ids.SharedSecret(peerPublicKey)
	if err != nil {
		return nil, err
	}
	se, err := cipher.ECDH(s.myEphemeralPrivateKey, peerPublicKey, s.MyEphemeralPublicKey)
	if err != nil {
		return nil, err
	}
	s.MyRatchet2DH = derive2DH(ss, se, s.MyIdentity)
	log.Debugf("session: new initiator session %s with %s, localRange=%s",
		s.ID, peerIdentity, localRange)
	return s, nil
}

// NewResponder creates the session for a received Init (in state R24).
// If no common version can be negotiated, no session is created and the
// fsver error is returned. The ephemeral private key of the responder is
// wiped before NewResponder returns.
func NewResponder(
	ids IdentityStore,
	id ID,
	peerEphemeralPublicKey *[32]byte,
	peerIdentity string,
	peerPublicKey *[32]byte,
	remoteRange fsver.Range,
	localRange fsver.Range,
) (*Session, error) {
	if peerEphemeralPublicKey == nil {
		return nil, log.Error("session: missing peer ephemeral public key")
	}
	negotiated, err := fsver.Negotiate(localRange, remoteRange.OrDefault())
	if err != nil {
		return nil, err
	}
	eph, err := cipher.Curve25519Generate(cipher.RandReader)
	if err != nil {
		return nil, err
	}
	defer eph.WipePrivateKey()
	ss, err := ids.SharedSecret(peerPublicKey)
	if err != nil {
		return nil, err
	}
	se, err := ids.SharedSecret(peerEphemeralPublicKey)
	if err != nil {
		return nil, err
	}
	es, err := cipher.ECDH(eph.PrivateKey(), peerPublicKey, eph.PublicKey())
	if err != nil {
		return nil, err
	}
	ee, err := cipher.ECDH(eph.PrivateKey(), peerEphemeralPublicKey, eph.PublicKey())
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:                   id,
		MyIdentity:           ids.Identity(),
		PeerIdentity:         peerIdentity,
		State:                R24,
		MyEphemeralPublicKey: eph.PublicKey(),
		PeerRatchet2DH:       derive2DH(ss, se, peerIdentity),
		LocalRange:           localRange,
		RemoteRange:          remoteRange.OrDefault(),
		Versions:             &DHVersions{Local: negotiated, Remote: negotiated},
		NewSessionCommitted:  true,
	}
	s.MyRatchet4DH, s.PeerRatchet4DH = derive4DH(ss, se, es, ee, s.MyIdentity, peerIdentity)
	log.Debugf("session: new responder session %s with %s, remoteRange=%s, version=%s",
		s.ID, peerIdentity, s.RemoteRange, negotiated)
	return s, nil
}

// Restore rebuilds a session read from a store. The ratchets must match the
// given state, otherwise ErrIllegalState is returned.
func Restore(
	id ID,
	myIdentity, peerIdentity string,
	state State,
	myEphemeralPublicKey *[32]byte,
	my2DH, my4DH, peer2DH, peer4DH *ratchet.KDFRatchet,
	remoteRange fsver.Range,
	versions *DHVersions,
	committed bool,
	lastMessageSent time.Time,
	localRange fsver.Range,
) (*Session, error) {
	s := &Session{
		ID:                   id,
		MyIdentity:           myIdentity,
		PeerIdentity:         peerIdentity,
		State:                state,
		MyEphemeralPublicKey: myEphemeralPublicKey,
		MyRatchet2DH:         my2DH,
		MyRatchet4DH:         my4DH,
		PeerRatchet2DH:       peer2DH,
		PeerRatchet4DH:       peer4DH,
		LocalRange:           localRange,
		RemoteRange:          remoteRange,
		NewSessionCommitted:  committed,
		LastMessageSent:      lastMessageSent,
	}
	if state.FourDHCapable() {
		if versions == nil {
			return nil, log.Errorf("session: missing versions for session %s in state %s", id, state)
		}
		v := *versions
		s.Versions = &v
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the ratchets of s match its state.
func (s *Session) Validate() error {
	want, ok := ratchets[s.State]
	if !ok {
		return log.Errorf("session: %s: %s", ErrIllegalState, s.State)
	}
	have := [4]bool{
		s.MyRatchet2DH != nil,
		s.MyRatchet4DH != nil,
		s.PeerRatchet2DH != nil,
		s.PeerRatchet4DH != nil,
	}
	if have != want {
		log.Errorf("session: ratchets %v do not match state %s of session %s",
			have, s.State, s.ID)
		return ErrIllegalState
	}
	return nil
}

// EphemeralPrivateKey returns the ephemeral private key of an L20 session,
// nil if it is not available.
func (s *Session) EphemeralPrivateKey() *[32]byte {
	return s.myEphemeralPrivateKey
}

// SetEphemeralPrivateKey sets the ephemeral private key of an L20 session.
func (s *Session) SetEphemeralPrivateKey(key *[32]byte) {
	s.myEphemeralPrivateKey = key
}

// ProcessAccept completes the key exchange of an initiator session with the
// Accept of the peer and moves it from L20 to RL44.
func (s *Session) ProcessAccept(
	ids IdentityStore,
	peerEphemeralPublicKey *[32]byte,
	peerPublicKey *[32]byte,
	remoteRange fsver.Range,
) error {
	if s.State != L20 {
		log.Errorf("session: cannot process accept for session %s in state %s", s.ID, s.State)
		return ErrIllegalState
	}
	if s.myEphemeralPrivateKey == nil {
		return log.Error(ErrMissingEphemeralPrivateKey)
	}
	if peerEphemeralPublicKey == nil {
		return log.Error("session: missing peer ephemeral public key")
	}
	negotiated, err := fsver.Negotiate(s.LocalRange, remoteRange.OrDefault())
	if err != nil {
		return err
	}
	ss, err := ids.SharedSecret(peerPublicKey)
	if err != nil {
		return err
	}
	se, err := cipher.ECDH(s.myEphemeralPrivateKey, peerPublicKey, s.MyEphemeralPublicKey)
	if err != nil {
		return err
	}
	es, err := ids.SharedSecret(peerEphemeralPublicKey)
	if err != nil {
		return err
	}
	ee, err := cipher.ECDH(s.myEphemeralPrivateKey, peerEphemeralPublicKey, s.MyEphemeralPublicKey)
	if err != nil {
		return err
	}
	s.MyRatchet4DH, s.PeerRatchet4DH = derive4DH(ss, se, es, ee, s.MyIdentity, s.PeerIdentity)
	bzero.Key32(s.myEphemeralPrivateKey)
	s.myEphemeralPrivateKey = nil
	s.MyRatchet2DH.Wipe()
	s.MyRatchet2DH = nil
	s.RemoteRange = remoteRange.OrDefault()
	s.Versions = &DHVersions{Local: negotiated, Remote: negotiated}
	s.State = RL44
	log.Debugf("session: processed accept for session %s, version=%s", s.ID, negotiated)
	return nil
}

// DiscardPeerRatchet2DH drops the 2DH ratchet of the peer after the first
// 4DH message was received and moves the session from R24 to RL44.
func (s *Session) DiscardPeerRatchet2DH() {
	if s.State != R24 {
		return
	}
	s.PeerRatchet2DH.Wipe()
	s.PeerRatchet2DH = nil
	s.State = RL44
}

// MyRatchet returns the outgoing ratchet of the given mode.
func (s *Session) MyRatchet(mode Mode) *ratchet.KDFRatchet {
	switch mode {
	case Mode2DH:
		return s.MyRatchet2DH
	case Mode4DH:
		return s.MyRatchet4DH
	}
	return nil
}

// PeerRatchet returns the incoming ratchet of the given mode.
func (s *Session) PeerRatchet(mode Mode) *ratchet.KDFRatchet {
	switch mode {
	case Mode2DH:
		return s.PeerRatchet2DH
	case Mode4DH:
		return s.PeerRatchet4DH
	}
	return nil
}

// OutgoingMode returns the mode of outgoing messages, ModeNone if the
// session cannot send.
func (s *Session) OutgoingMode() Mode {
	switch {
	case s.MyRatchet4DH != nil:
		return Mode4DH
	case s.MyRatchet2DH != nil:
		return Mode2DH
	}
	return ModeNone
}

// Clone returns a deep copy of s without the ephemeral private key.
func (s *Session) Clone() *Session {
	c := *s
	c.myEphemeralPrivateKey = nil
	if s.MyEphemeralPublicKey != nil {
		pub := *s.MyEphemeralPublicKey
		c.MyEphemeralPublicKey = &pub
	}
	c.MyRatchet2DH = s.MyRatchet2DH.Clone()
	c.MyRatchet4DH = s.MyRatchet4DH.Clone()
	c.PeerRatchet2DH = s.PeerRatchet2DH.Clone()
	c.PeerRatchet4DH = s.PeerRatchet4DH.Clone()
	if s.Versions != nil {
		v := *s.Versions
		c.Versions = &v
	}
	return &c
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s -> %s, %s)", s.ID, s.MyIdentity, s.PeerIdentity, s.State)
}

func derive2DH(ss, se *[32]byte, identity string) *ratchet.KDFRatchet {
	key := make([]byte, 0, 64)
	key = append(key, ss[:]...)
	key = append(key, se[:]...)
	defer bzero.Bytes(key)
	return ratchet.New(1, cipher.KDF(key, salt2DHPrefix+identity, cipher.KDFPersonal))
}

func derive4DH(ss, se, es, ee *[32]byte, myIdentity, peerIdentity string) (my, peer *ratchet.KDFRatchet) {
	h := cipher.Hash512(ss[:], se[:], es[:], ee[:])
	defer bzero.Bytes(h[:])
	my = ratchet.New(1, cipher.KDF(h[:], salt4DHPrefix+myIdentity, cipher.KDFPersonal))
	peer = ratchet.New(1, cipher.KDF(h[:], salt4DHPrefix+peerIdentity, cipher.KDFPersonal))
	return
}
