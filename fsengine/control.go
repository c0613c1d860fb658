// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsengine

import (
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/msg"
	"github.com/mutecomm/mutefs/session"
	"github.com/pkg/errors"
)

// Terminate deletes all sessions with peer and sends a Terminate with the
// given cause for each of them. It returns the number of terminated
// sessions.
func (e *Engine) Terminate(peer Contact, cause msg.TerminateCause) (int, error) {
	defer e.locks.lock(e.pair(peer.Identity))()
	return e.terminate(peer.Identity, cause)
}

func (e *Engine) terminate(peer string, cause msg.TerminateCause) (int, error) {
	sessions, err := e.store.ListSessions(e.ids.Identity(), peer)
	if err != nil {
		return 0, err
	}
	n, err := e.store.DeleteAllSessions(e.ids.Identity(), peer)
	if err != nil {
		return 0, err
	}
	e.keys.dropAll(e.pair(peer), nil)
	for _, s := range sessions {
		e.sendTerminate(peer, s.ID, cause)
	}
	log.Infof("fsengine: terminated %d sessions with %s: %s", n, peer, cause)
	return n, nil
}

// HasContactUsedFS reports whether peer has sent a message with forward
// secrecy in the best session.
func (e *Engine) HasContactUsedFS(peer Contact) (bool, error) {
	defer e.locks.lock(e.pair(peer.Identity))()
	s, err := e.bestSession(peer.Identity)
	if err != nil || s == nil {
		return false, err
	}
	if s.PeerRatchet4DH != nil && s.PeerRatchet4DH.Counter() > 1 {
		return true, nil
	}
	return s.PeerRatchet2DH != nil && s.PeerRatchet2DH.Counter() > 1, nil
}

// RefreshReport lists the peers Refresh acted upon.
type RefreshReport struct {
	Reset     []string // sessions with unsupported versions were terminated
	Initiated []string // a new session was initiated
	Resent    []string // the Init of an uncommitted session was sent again
	KeptAlive []string // an empty message was sent
}

// Refresh makes sure a usable session exists with every peer. Sessions
// with versions outside of the local range are terminated and replaced,
// missing sessions are initiated, Inits of uncommitted sessions resent,
// and idle 4DH sessions kept alive with an empty message.
// All peers are processed, the first error encountered is returned.
func (e *Engine) Refresh(peers []Contact) (*RefreshReport, error) {
	report := new(RefreshReport)
	var first error
	for _, peer := range peers {
		if err := e.refresh(peer, report); err != nil {
			log.Warnf("fsengine: cannot refresh sessions with %s: %s", peer.Identity, err)
			if first == nil {
				first = err
			}
		}
	}
	return report, first
}

func (e *Engine) refresh(peer Contact, report *RefreshReport) error {
	id := peer.Identity
	defer e.locks.lock(e.pair(id))()
	invalid, err := e.store.HasInvalidVersionSessions(e.ids.Identity(), id, e.cfg.LocalRange)
	if err != nil {
		return err
	}
	if invalid {
		if _, err := e.terminate(id, msg.TerminateReset); err != nil {
			return err
		}
		report.Reset = append(report.Reset, id)
	}
	s, err := e.bestSession(id)
	if err != nil {
		return err
	}
	switch {
	case s == nil:
		s, init, err := e.initiate(peer)
		if err != nil {
			return err
		}
		if err := e.sender.Send(id, init); err != nil {
			if err := e.deleteSession(id, s.ID); err != nil {
				return err
			}
			return log.Error(errors.Wrapf(err, "fsengine: send init of session %s", s.ID))
		}
		report.Initiated = append(report.Initiated, id)
	case s.State == session.L20 && !s.NewSessionCommitted:
		if err := e.sender.Send(id, initEnvelope(s)); err != nil {
			return log.Error(errors.Wrapf(err, "fsengine: resend init of session %s", s.ID))
		}
		report.Resent = append(report.Resent, id)
	case e.keepAliveDue(s):
		env, err := e.encrypt(s, msg.NewEmpty(0))
		if err != nil {
			return err
		}
		if err := e.sender.Send(id, env); err != nil {
			return log.Error(errors.Wrapf(err, "fsengine: send empty message in session %s", s.ID))
		}
		report.KeptAlive = append(report.KeptAlive, id)
	}
	return nil
}
