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

// SessionUpdate describes the session a message was received in.
type SessionUpdate struct {
	Session  *session.Session
	Versions *session.UpdatedVersions // nil if the versions did not change
}

// Decapsulate processes env received from sender. For a Message the
// decrypted inner message is returned, control messages and messages which
// had to be rejected return a nil inner message. An error is returned if
// the envelope could not be processed and no reply was sent for it.
func (e *Engine) Decapsulate(sender Contact, env *msg.Envelope) (*msg.Inner, *SessionUpdate, error) {
	defer e.locks.lock(e.pair(sender.Identity))()
	log.Debugf("fsengine: %s <- %s: %s", e.ids.Identity(), sender.Identity, env)
	switch c := env.Content.(type) {
	case *msg.Init:
		return nil, nil, e.processInit(sender, env.SessionID, c)
	case *msg.Accept:
		return nil, nil, e.processAccept(sender, env.SessionID, c)
	case *msg.Message:
		return e.processMessage(sender, env, c)
	case *msg.Reject:
		return nil, nil, e.processReject(sender.Identity, env.SessionID, c)
	case *msg.Terminate:
		return nil, nil, e.processTerminate(sender.Identity, env.SessionID, c)
	}
	return nil, nil, log.Error(msg.ErrMissingContent)
}

// RejectEnvelope answers env from sender without processing it, because
// forward secrecy is disabled locally. Messages are rejected and new
// sessions terminated.
func (e *Engine) RejectEnvelope(sender Contact, env *msg.Envelope) {
	switch c := env.Content.(type) {
	case *msg.Message:
		log.Infof("fsengine: rejecting message %016x from %s", env.MessageID, sender.Identity)
		e.sendReject(sender.Identity, env, c.Group, msg.RejectDisabledByLocal)
	case *msg.Init:
		log.Infof("fsengine: terminating session %s from %s", env.SessionID, sender.Identity)
		e.sendTerminate(sender.Identity, env.SessionID, msg.TerminateDisabledByLocal)
	}
}

func (e *Engine) processInit(sender Contact, id session.ID, init *msg.Init) error {
	peer := sender.Identity
	s, err := e.exactSession(peer, id)
	if err != nil {
		return err
	}
	if s != nil {
		log.Infof("fsengine: session %s with %s already exists, ignoring init", id, peer)
		return nil
	}
	s, err = session.NewResponder(e.ids, id, init.EphemeralPublicKey, peer,
		sender.PublicKey, init.SupportedVersion, e.cfg.LocalRange)
	if err != nil {
		return log.Error(errors.Wrapf(err, "fsengine: init of session %s from %s", id, peer))
	}
	// only one remotely initiated session may exist
	n, err := e.store.DeleteAllSessionsExcept(e.ids.Identity(), peer, id, true)
	if err != nil {
		return err
	}
	preempted := n > 0
	if preempted {
		log.Infof("fsengine: init of session %s from %s preempted %d sessions", id, peer, n)
	}
	if err := e.store.StoreSession(s); err != nil {
		return err
	}
	c := s.Clone()
	e.notify(peer, func(l StatusListener) { l.ResponderSessionEstablished(c, peer, preempted) })
	pub := *s.MyEphemeralPublicKey
	e.send(peer, &msg.Envelope{
		SessionID: id,
		Content: &msg.Accept{
			EphemeralPublicKey: &pub,
			SupportedVersion:   e.cfg.LocalRange,
		},
	})
	return nil
}

func (e *Engine) processAccept(sender Contact, id session.ID, accept *msg.Accept) error {
	peer := sender.Identity
	s, err := e.exactSession(peer, id)
	if err != nil {
		return err
	}
	if s == nil {
		log.Warnf("fsengine: accept for unknown session %s from %s", id, peer)
		e.sendTerminate(peer, id, msg.TerminateUnknownSession)
		e.notify(peer, func(l StatusListener) { l.SessionNotFound(id, peer) })
		return nil
	}
	if s.State != session.L20 {
		log.Warnf("fsengine: accept for session %s from %s in state %s", id, peer, s.State)
		e.notify(peer, func(l StatusListener) { l.IllegalSessionState(id, peer) })
		return nil
	}
	key := e.keys.take(e.pair(peer), id)
	if key == nil {
		log.Warnf("fsengine: ephemeral key of session %s with %s lost, resetting", id, peer)
		if err := e.deleteSession(peer, id); err != nil {
			return err
		}
		e.sendTerminate(peer, id, msg.TerminateReset)
		e.notify(peer, func(l StatusListener) { l.IllegalSessionState(id, peer) })
		return nil
	}
	s.SetEphemeralPrivateKey(key)
	if err := s.ProcessAccept(e.ids, accept.EphemeralPublicKey, sender.PublicKey, accept.SupportedVersion); err != nil {
		bzero.Key32(key)
		if err := e.deleteSession(peer, id); err != nil {
			return err
		}
		e.sendTerminate(peer, id, msg.TerminateReset)
		return log.Error(errors.Wrapf(err, "fsengine: accept of session %s from %s", id, peer))
	}
	if err := e.store.StoreSession(s); err != nil {
		return err
	}
	log.Infof("fsengine: session %s with %s established", id, peer)
	c := s.Clone()
	e.notify(peer, func(l StatusListener) { l.InitiatorSessionEstablished(c, peer) })
	return nil
}

func (e *Engine) processMessage(sender Contact, env *msg.Envelope, m *msg.Message) (*msg.Inner, *SessionUpdate, error) {
	peer := sender.Identity
	id := env.SessionID
	s, err := e.exactSession(peer, id)
	if err != nil {
		return nil, nil, err
	}
	if s == nil {
		log.Warnf("fsengine: message for unknown session %s from %s", id, peer)
		e.sendReject(peer, env, m.Group, msg.RejectUnknownSession)
		e.notify(peer, func(l StatusListener) { l.SessionNotFound(id, peer) })
		return nil, nil, nil
	}
	r := s.PeerRatchet(m.DHType)
	if r == nil {
		log.Warnf("fsengine: no %s ratchet in session %s with %s (%s)", m.DHType, id, peer, s.State)
		e.sendReject(peer, env, m.Group, msg.RejectStateMismatch)
		e.notify(peer, func(l StatusListener) { l.SessionBadDHState(id, peer) })
		return nil, nil, nil
	}
	pv, err := s.ProcessIncomingVersions(m.DHType, m.OfferedVersion, m.AppliedVersion)
	if err != nil {
		if _, ok := err.(*session.RejectError); !ok {
			return nil, nil, err
		}
		log.Warnf("fsengine: session %s with %s: %s", id, peer, err)
		e.sendReject(peer, env, m.Group, msg.RejectStateMismatch)
		if err := e.deleteSession(peer, id); err != nil {
			return nil, nil, err
		}
		e.notify(peer, func(l StatusListener) { l.IllegalSessionState(id, peer) })
		return nil, nil, nil
	}
	turns, err := r.TurnUntil(m.Counter)
	if err != nil {
		e.notify(peer, func(l StatusListener) { l.MessageOutOfOrder(id, peer, env.MessageID) })
		return nil, nil, log.Error(errors.Wrapf(err,
			"fsengine: message %016x in session %s from %s, counter %d (at %d)",
			env.MessageID, id, peer, m.Counter, r.Counter()))
	}
	if turns > 0 {
		log.Infof("fsengine: skipped %d messages in session %s from %s", turns, id, peer)
		e.notify(peer, func(l StatusListener) { l.MessagesSkipped(id, peer, turns) })
	}
	key := r.CurrentEncryptionKey()
	plaintext, err := cipher.SecretBoxOpen(m.Ciphertext, key)
	bzero.Key32(key)
	if err != nil {
		log.Warnf("fsengine: cannot decrypt message %016x in session %s from %s",
			env.MessageID, id, peer)
		e.sendReject(peer, env, m.Group, msg.RejectStateMismatch)
		if err := e.deleteSession(peer, id); err != nil {
			return nil, nil, err
		}
		e.notify(peer, func(l StatusListener) { l.MessageDecryptionFailed(id, peer, env.MessageID) })
		return nil, nil, nil
	}
	defer bzero.Bytes(plaintext)
	r.Turn()

	if m.DHType == session.Mode4DH {
		s.DiscardPeerRatchet2DH()
		best, err := e.bestSession(peer)
		if err != nil {
			return nil, nil, err
		}
		if best != nil && best.ID == id {
			n, err := e.store.DeleteAllSessionsExcept(e.ids.Identity(), peer, id, false)
			if err != nil {
				return nil, nil, err
			}
			e.keys.dropAll(e.pair(peer), &id)
			if n > 0 {
				log.Infof("fsengine: deleted %d other sessions with %s", n, peer)
			}
		}
		if r.Counter() == 2 {
			c := s.Clone()
			e.notify(peer, func(l StatusListener) { l.First4DHMessageReceived(c, peer) })
		}
	}
	updated := s.CommitVersions(pv)
	if err := e.store.UpdateRatchets(s, true); err != nil {
		return nil, nil, err
	}
	if updated != nil {
		log.Infof("fsengine: versions of session %s with %s updated %s", id, peer, updated)
		if err := e.store.UpdateCommitAndVersion(s); err != nil {
			return nil, nil, err
		}
		c := s.Clone()
		e.notify(peer, func(l StatusListener) { l.VersionsUpdated(c, updated, peer) })
	}

	inner, err := msg.ParsePlaintext(plaintext)
	if err != nil {
		return nil, nil, err
	}
	inner.ID = env.MessageID
	inner.Group = m.Group
	inner.FSMode = m.DHType
	return inner, &SessionUpdate{Session: s.Clone(), Versions: updated}, nil
}

func (e *Engine) processReject(peer string, id session.ID, reject *msg.Reject) error {
	log.Warnf("fsengine: message %016x in session %s rejected by %s: %s",
		reject.MessageID, id, peer, reject.Cause)
	if err := e.deleteSession(peer, id); err != nil {
		return err
	}
	e.notify(peer, func(l StatusListener) { l.RejectReceived(id, peer, reject.MessageID, reject.Cause) })
	return nil
}

func (e *Engine) processTerminate(peer string, id session.ID, terminate *msg.Terminate) error {
	log.Infof("fsengine: session %s terminated by %s: %s", id, peer, terminate.Cause)
	if err := e.deleteSession(peer, id); err != nil {
		return err
	}
	e.notify(peer, func(l StatusListener) { l.SessionTerminated(id, peer, terminate.Cause) })
	return nil
}
