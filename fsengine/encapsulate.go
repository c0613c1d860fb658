// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsengine

import (
	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/msg"
	"github.com/mutecomm/mutefs/session"
	"github.com/mutecomm/mutefs/util/bzero"
	"github.com/pkg/errors"
)

// Result is the outcome of Encapsulate.
type Result struct {
	// Aux are envelopes which must be sent before Message, in order.
	Aux []*msg.Envelope
	// Message is the encapsulated message, nil if Plain is set.
	Message *msg.Envelope
	// Plain is set if the message has to be sent without forward secrecy.
	Plain *msg.Inner
	// Mode is the DH mode of Message, ModeNone for Plain.
	Mode session.Mode
	// NewSessionID is the ID of a session created for the message.
	NewSessionID *session.ID
}

// Encapsulate wraps inner for recipient. If there is no session with
// recipient a new one is initiated and its Init is returned in Aux.
// If the negotiated version is too low for the type of inner, the message
// is returned as Plain, unless the type requires forward secrecy in which
// case ErrVersionTooLow is returned.
//
// All session changes are persisted before Encapsulate returns.
func (e *Engine) Encapsulate(recipient Contact, inner *msg.Inner) (*Result, error) {
	defer e.locks.lock(e.pair(recipient.Identity))()
	return e.encapsulate(recipient, inner)
}

// Send encapsulates inner and queues the resulting envelopes on the
// sender of the engine. If the Init of a new session cannot be queued the
// session is discarded. A Plain result is returned to the caller, who
// has to send it without forward secrecy.
func (e *Engine) Send(recipient Contact, inner *msg.Inner) (*Result, error) {
	peer := recipient.Identity
	defer e.locks.lock(e.pair(peer))()
	res, err := e.encapsulate(recipient, inner)
	if err != nil {
		return nil, err
	}
	for _, env := range res.Aux {
		if err := e.sender.Send(peer, env); err != nil {
			if _, ok := env.Content.(*msg.Init); ok && res.NewSessionID != nil {
				log.Warnf("fsengine: cannot send init of session %s to %s, discarding",
					res.NewSessionID, peer)
				if err := e.deleteSession(peer, *res.NewSessionID); err != nil {
					return nil, err
				}
			}
			return nil, log.Error(errors.Wrapf(err, "fsengine: send %s", env.Content))
		}
	}
	if res.Message != nil {
		if err := e.sender.Send(peer, res.Message); err != nil {
			return nil, log.Error(errors.Wrapf(err, "fsengine: send %s", res.Message.Content))
		}
	}
	return res, nil
}

// DiscardNewSession deletes the session id with recipient. It is called
// when the Init of a new session returned by Encapsulate could not be sent.
func (e *Engine) DiscardNewSession(recipient Contact, id session.ID) error {
	defer e.locks.lock(e.pair(recipient.Identity))()
	log.Infof("fsengine: discarding new session %s with %s", id, recipient.Identity)
	return e.deleteSession(recipient.Identity, id)
}

func (e *Engine) encapsulate(recipient Contact, inner *msg.Inner) (*Result, error) {
	peer := recipient.Identity
	res := new(Result)
	s, err := e.bestSession(peer)
	if err != nil {
		return nil, err
	}
	if s == nil {
		var init *msg.Envelope
		s, init, err = e.initiate(recipient)
		if err != nil {
			return nil, err
		}
		id := s.ID
		res.NewSessionID = &id
		res.Aux = append(res.Aux, init)
	} else if s.State == session.L20 && !s.NewSessionCommitted {
		log.Debugf("fsengine: session %s with %s not committed, resending init", s.ID, peer)
		res.Aux = append(res.Aux, initEnvelope(s))
	}

	applied := s.OutgoingAppliedVersion()
	if applied.Less(msg.MinVersion(inner.Type)) {
		if msg.RequiresFS(inner.Type) {
			return nil, log.Error(errors.Wrapf(ErrVersionTooLow,
				"%s needs %s, session %s applies %s",
				inner.Type, msg.MinVersion(inner.Type), s.ID, applied))
		}
		log.Infof("fsengine: %s to %s needs %s, session %s applies %s, sending without FS",
			inner.Type, peer, msg.MinVersion(inner.Type), s.ID, applied)
		if e.keepAliveDue(s) {
			env, err := e.encrypt(s, msg.NewEmpty(0))
			if err != nil {
				return nil, err
			}
			res.Aux = append(res.Aux, env)
		}
		res.Plain = inner
		res.Mode = session.ModeNone
		return res, nil
	}

	res.Message, err = e.encrypt(s, inner)
	if err != nil {
		return nil, err
	}
	res.Mode = res.Message.Content.(*msg.Message).DHType
	return res, nil
}

// initiate creates and stores a new initiator session with recipient and
// returns it with its Init.
func (e *Engine) initiate(recipient Contact) (*session.Session, *msg.Envelope, error) {
	peer := recipient.Identity
	s, err := session.NewInitiator(e.ids, peer, recipient.PublicKey, e.cfg.LocalRange)
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.StoreSession(s); err != nil {
		bzero.Key32(s.EphemeralPrivateKey())
		return nil, nil, err
	}
	e.keys.put(e.pair(peer), s.ID, s.EphemeralPrivateKey())
	bzero.Key32(s.EphemeralPrivateKey())
	s.SetEphemeralPrivateKey(nil)
	log.Infof("fsengine: initiated session %s with %s", s.ID, peer)
	c := s.Clone()
	e.notify(peer, func(l StatusListener) { l.NewSessionInitiated(c, peer) })
	return s, initEnvelope(s), nil
}

// keepAliveDue reports whether an empty message should be sent in s.
func (e *Engine) keepAliveDue(s *session.Session) bool {
	if !s.State.FourDHCapable() {
		return false
	}
	if s.OutgoingAppliedVersion().Less(msg.MinVersion(msg.Empty)) {
		return false
	}
	return e.cfg.Now().Sub(s.LastMessageSent) > e.cfg.KeepAliveInterval
}

// encrypt seals inner with the current key of the outgoing ratchet of s,
// turns the ratchet, and persists the session.
func (e *Engine) encrypt(s *session.Session, inner *msg.Inner) (*msg.Envelope, error) {
	mode := s.OutgoingMode()
	r := s.MyRatchet(mode)
	if r == nil {
		log.Errorf("fsengine: session %s in state %s cannot send", s.ID, s.State)
		return nil, session.ErrIllegalState
	}
	key := r.CurrentEncryptionKey()
	plaintext := inner.Plaintext()
	ciphertext := cipher.SecretBoxSeal(plaintext, key)
	bzero.Key32(key)
	bzero.Bytes(plaintext)
	m := &msg.Message{
		DHType:         mode,
		Counter:        r.Counter(),
		Ciphertext:     ciphertext,
		OfferedVersion: s.OutgoingOfferedVersion(),
		AppliedVersion: s.OutgoingAppliedVersion(),
		Group:          inner.Group,
	}
	r.Turn()
	if err := e.store.UpdateRatchets(s, false); err != nil {
		return nil, err
	}
	s.NewSessionCommitted = true
	s.LastMessageSent = e.cfg.Now()
	if err := e.store.UpdateCommitAndVersion(s); err != nil {
		return nil, err
	}
	log.Debugf("fsengine: encapsulated %s in session %s: %s", inner, s.ID, m)
	return &msg.Envelope{SessionID: s.ID, Content: m, MessageID: inner.ID}, nil
}
