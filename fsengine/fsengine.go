// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fsengine implements the forward secrecy session protocol engine.
//
// The engine wraps application messages of the local identity into
// forward secrecy envelopes (Encapsulate) and unwraps received envelopes
// (Decapsulate). It establishes sessions with Init/Accept, ratchets keys,
// negotiates versions, and recovers from lost or stale sessions with
// Reject and Terminate.
//
// All operations on the sessions between the local identity and one peer
// are serialized, operations for different peers run concurrently.
package fsengine

import (
	"sync"
	"time"

	"github.com/mutecomm/mutefs/def"
	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/msg"
	"github.com/mutecomm/mutefs/session"
	"github.com/mutecomm/mutefs/util/bzero"
	"github.com/pkg/errors"
)

// ErrVersionTooLow is raised when a message type which requires forward
// secrecy cannot be sent because the negotiated version is too low.
var ErrVersionTooLow = errors.New("fsengine: negotiated version too low for message type")

// Contact is a peer with its long-term public key.
type Contact struct {
	Identity  string
	PublicKey *[32]byte
}

// Sender queues envelopes for delivery to a peer.
type Sender interface {
	Send(to string, env *msg.Envelope) error
}

// Config is the configuration of an Engine.
type Config struct {
	// LocalRange is the range of locally supported versions.
	LocalRange fsver.Range
	// KeepAliveInterval is the idle time after which an empty message is
	// sent on a 4DH session.
	KeepAliveInterval time.Duration
	// Now returns the current time.
	Now func() time.Time
}

// DefaultConfig returns the configuration from the package def.
func DefaultConfig() *Config {
	return &Config{
		LocalRange:        def.FSVersionRange,
		KeepAliveInterval: def.KeepAlive,
		Now:               time.Now,
	}
}

// Engine is the forward secrecy engine of a local identity.
type Engine struct {
	store     session.Store
	ids       session.IdentityStore
	sender    Sender
	cfg       Config
	locks     pairLocks
	keys      keyCache
	lmutex    sync.RWMutex
	lastID    ListenerID
	listeners []registration
}

// New returns a new engine for the local identity ids which keeps its
// sessions in store and sends control messages with sender. If cfg is nil
// the DefaultConfig is used, zero fields are taken from it as well.
func New(store session.Store, ids session.IdentityStore, sender Sender, cfg *Config) *Engine {
	c := *DefaultConfig()
	if cfg != nil {
		if !cfg.LocalRange.IsZero() {
			c.LocalRange = cfg.LocalRange
		}
		if cfg.KeepAliveInterval != 0 {
			c.KeepAliveInterval = cfg.KeepAliveInterval
		}
		if cfg.Now != nil {
			c.Now = cfg.Now
		}
	}
	return &Engine{
		store:  store,
		ids:    ids,
		sender: sender,
		cfg:    c,
		locks:  pairLocks{m: make(map[pair]*pairLock)},
		keys:   keyCache{m: make(map[pair]map[session.ID]*[32]byte)},
	}
}

// Identity returns the local identity of the engine.
func (e *Engine) Identity() string {
	return e.ids.Identity()
}

// LocalRange returns the locally supported version range.
func (e *Engine) LocalRange() fsver.Range {
	return e.cfg.LocalRange
}

type pair struct {
	my   string
	peer string
}

func (e *Engine) pair(peer string) pair {
	return pair{e.ids.Identity(), peer}
}

type pairLock struct {
	sync.Mutex
	refs   int
	events []func()
}

// pairLocks hands out one mutex per pair, entries are removed when
// nobody holds or waits for them. Events posted by the holder of a pair
// run after it released the lock.
type pairLocks struct {
	mutex sync.Mutex
	m     map[pair]*pairLock
}

func (l *pairLocks) lock(p pair) func() {
	l.mutex.Lock()
	pl, ok := l.m[p]
	if !ok {
		pl = new(pairLock)
		l.m[p] = pl
	}
	pl.refs++
	l.mutex.Unlock()
	pl.Lock()
	return func() {
		l.mutex.Lock()
		events := pl.events
		pl.events = nil
		l.mutex.Unlock()
		pl.Unlock()
		l.mutex.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.m, p)
		}
		l.mutex.Unlock()
		for _, fn := range events {
			fn()
		}
	}
}

// post runs fn once the current holder of p unlocked it. If p is not
// locked fn runs immediately. Only the holder of p may post events for it.
func (l *pairLocks) post(p pair, fn func()) {
	l.mutex.Lock()
	pl, ok := l.m[p]
	if ok {
		pl.events = append(pl.events, fn)
	}
	l.mutex.Unlock()
	if !ok {
		fn()
	}
}

// keyCache holds the ephemeral private keys of L20 sessions. They are
// never written to the store, a restart loses them.
type keyCache struct {
	mutex sync.Mutex
	m     map[pair]map[session.ID]*[32]byte
}

func (c *keyCache) put(p pair, id session.ID, key *[32]byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.m[p] == nil {
		c.m[p] = make(map[session.ID]*[32]byte)
	}
	k := *key
	c.m[p][id] = &k
}

// take removes the key of session id and returns it, nil if there is none.
func (c *keyCache) take(p pair, id session.ID) *[32]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	key := c.m[p][id]
	delete(c.m[p], id)
	return key
}

func (c *keyCache) drop(p pair, id session.ID) {
	bzero.Key32(c.take(p, id))
}

// dropAll wipes all keys of p except the one of session keep, if given.
func (c *keyCache) dropAll(p pair, keep *session.ID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for id, key := range c.m[p] {
		if keep != nil && id == *keep {
			continue
		}
		bzero.Key32(key)
		delete(c.m[p], id)
	}
	if len(c.m[p]) == 0 {
		delete(c.m, p)
	}
}

// exactSession loads a session and applies the local configuration.
func (e *Engine) exactSession(peer string, id session.ID) (*session.Session, error) {
	s, err := e.store.ExactSession(e.ids.Identity(), peer, id)
	if err != nil || s == nil {
		return nil, err
	}
	s.LocalRange = e.cfg.LocalRange
	return s, nil
}

// bestSession loads the best session and applies the local configuration.
func (e *Engine) bestSession(peer string) (*session.Session, error) {
	s, err := e.store.BestSession(e.ids.Identity(), peer)
	if err != nil || s == nil {
		return nil, err
	}
	s.LocalRange = e.cfg.LocalRange
	return s, nil
}

func (e *Engine) deleteSession(peer string, id session.ID) error {
	e.keys.drop(e.pair(peer), id)
	if _, err := e.store.DeleteSession(e.ids.Identity(), peer, id); err != nil {
		return err
	}
	return nil
}

// send queues a control message. Delivery is the business of the
// transport, failures are only logged.
func (e *Engine) send(to string, env *msg.Envelope) {
	log.Debugf("fsengine: %s -> %s: %s", e.ids.Identity(), to, env)
	if err := e.sender.Send(to, env); err != nil {
		log.Warnf("fsengine: cannot send %s to %s: %s", env.Content, to, err)
	}
}

func (e *Engine) sendReject(to string, env *msg.Envelope, group *msg.GroupIdentity, cause msg.RejectCause) {
	e.send(to, &msg.Envelope{
		SessionID: env.SessionID,
		Content: &msg.Reject{
			MessageID: env.MessageID,
			Cause:     cause,
			Group:     group,
		},
	})
}

func (e *Engine) sendTerminate(to string, id session.ID, cause msg.TerminateCause) {
	e.send(to, &msg.Envelope{
		SessionID: id,
		Content:   &msg.Terminate{Cause: cause},
	})
}

func initEnvelope(s *session.Session) *msg.Envelope {
	pub := *s.MyEphemeralPublicKey
	return &msg.Envelope{
		SessionID: s.ID,
		Content: &msg.Init{
			EphemeralPublicKey: &pub,
			SupportedVersion:   s.LocalRange,
		},
	}
}
