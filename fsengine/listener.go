// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsengine

import (
	"github.com/mutecomm/mutefs/msg"
	"github.com/mutecomm/mutefs/session"
)

// StatusListener is notified about session events. The sessions passed to
// a listener are copies and may be kept. Events are delivered after the
// operation which caused them released the lock of the peer, so listeners
// may call back into the engine, even for the same peer.
type StatusListener interface {
	NewSessionInitiated(s *session.Session, peer string)
	ResponderSessionEstablished(s *session.Session, peer string, preempted bool)
	InitiatorSessionEstablished(s *session.Session, peer string)
	RejectReceived(id session.ID, peer string, messageID uint64, cause msg.RejectCause)
	SessionNotFound(id session.ID, peer string)
	SessionBadDHState(id session.ID, peer string)
	MessagesSkipped(id session.ID, peer string, n uint64)
	MessageOutOfOrder(id session.ID, peer string, messageID uint64)
	First4DHMessageReceived(s *session.Session, peer string)
	VersionsUpdated(s *session.Session, versions *session.UpdatedVersions, peer string)
	MessageDecryptionFailed(id session.ID, peer string, messageID uint64)
	SessionTerminated(id session.ID, peer string, cause msg.TerminateCause)
	IllegalSessionState(id session.ID, peer string)
}

// NopListener ignores all events. Embed it to implement only some methods.
type NopListener struct{}

// NewSessionInitiated implements StatusListener.
func (NopListener) NewSessionInitiated(*session.Session, string) {}

// ResponderSessionEstablished implements StatusListener.
func (NopListener) ResponderSessionEstablished(*session.Session, string, bool) {}

// InitiatorSessionEstablished implements StatusListener.
func (NopListener) InitiatorSessionEstablished(*session.Session, string) {}

// RejectReceived implements StatusListener.
func (NopListener) RejectReceived(session.ID, string, uint64, msg.RejectCause) {}

// SessionNotFound implements StatusListener.
func (NopListener) SessionNotFound(session.ID, string) {}

// SessionBadDHState implements StatusListener.
func (NopListener) SessionBadDHState(session.ID, string) {}

// MessagesSkipped implements StatusListener.
func (NopListener) MessagesSkipped(session.ID, string, uint64) {}

// MessageOutOfOrder implements StatusListener.
func (NopListener) MessageOutOfOrder(session.ID, string, uint64) {}

// First4DHMessageReceived implements StatusListener.
func (NopListener) First4DHMessageReceived(*session.Session, string) {}

// VersionsUpdated implements StatusListener.
func (NopListener) VersionsUpdated(*session.Session, *session.UpdatedVersions, string) {}

// MessageDecryptionFailed implements StatusListener.
func (NopListener) MessageDecryptionFailed(session.ID, string, uint64) {}

// SessionTerminated implements StatusListener.
func (NopListener) SessionTerminated(session.ID, string, msg.TerminateCause) {}

// IllegalSessionState implements StatusListener.
func (NopListener) IllegalSessionState(session.ID, string) {}

// ListenerID identifies a registered listener.
type ListenerID uint64

type registration struct {
	id ListenerID
	l  StatusListener
}

// AddListener registers l for session events and returns the ID to remove
// it with. The same listener may be registered more than once.
func (e *Engine) AddListener(l StatusListener) ListenerID {
	e.lmutex.Lock()
	defer e.lmutex.Unlock()
	e.lastID++
	e.listeners = append(e.listeners, registration{id: e.lastID, l: l})
	return e.lastID
}

// RemoveListener unregisters the listener with the given ID. Unknown IDs
// are ignored.
func (e *Engine) RemoveListener(id ListenerID) {
	e.lmutex.Lock()
	defer e.lmutex.Unlock()
	for i, r := range e.listeners {
		if r.id == id {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// notify calls fn for every listener once the lock of the pair with peer
// has been released. Listeners may add or remove listeners and call the
// engine while being notified.
func (e *Engine) notify(peer string, fn func(l StatusListener)) {
	e.locks.post(e.pair(peer), func() {
		e.lmutex.RLock()
		listeners := make([]registration, len(e.listeners))
		copy(listeners, e.listeners)
		e.lmutex.RUnlock()
		for _, r := range listeners {
			fn(r.l)
		}
	})
}
